// Copyright 2024 The PlotNi Authors <dev@plotni.dev>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/imdario/mergo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

var log = logrus.WithField("component", "render")

const DefaultTimeout = 10 * time.Second
const defaultWidth = 800
const defaultHeight = 400

type Config struct {
	// Timeout bounds a single render, DefaultTimeout when 0
	Timeout time.Duration
	// MaxConcurrent caps the number of renders running at once, NumCPU when 0
	MaxConcurrent int
	// CacheSize is the number of artifacts kept in the LRU cache, 0 disables caching
	CacheSize int
	// Defaults are merged into the options of every request
	Defaults RenderOptions
	// Palettes overrides BuiltinPalettes when not nil
	Palettes map[string]Palette
	// Strategies overrides BuiltinStrategies when not nil
	Strategies map[ChartType]Strategy
}

// Renderer owns the strategy registry and runs renders under the configured
// concurrency and timeout bounds. It is safe for concurrent use, no state is
// shared between requests outside of the artifact cache.
type Renderer struct {
	strategies map[ChartType]Strategy
	palettes   map[string]Palette
	defaults   RenderOptions
	timeout    time.Duration
	sem        *semaphore.Weighted
	cache      *lru.Cache
	inflight   singleflight.Group
}

func NewRenderer(config Config) (*Renderer, error) {
	strategies := config.Strategies
	if strategies == nil {
		strategies = BuiltinStrategies()
	}

	palettes := config.Palettes
	if palettes == nil {
		palettes = BuiltinPalettes()
	}

	defaults := config.Defaults
	if defaults.Width == 0 {
		defaults.Width = defaultWidth
	}
	if defaults.Height == 0 {
		defaults.Height = defaultHeight
	}
	if defaults.Format == "" {
		defaults.Format = FormatPNG
	}
	if defaults.Palette == "" {
		defaults.Palette = DefaultPaletteName
	}
	if _, ok := palettes[defaults.Palette]; !ok {
		return nil, fmt.Errorf("default palette [%s] is not defined", defaults.Palette)
	}
	switch defaults.Format {
	case FormatPNG, FormatSVG:
	default:
		return nil, fmt.Errorf("default format [%s] is not supported, expecting one of %v", defaults.Format, Formats())
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.NumCPU()
	}

	renderer := &Renderer{
		strategies: strategies,
		palettes:   palettes,
		defaults:   defaults,
		timeout:    timeout,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
	}

	if config.CacheSize > 0 {
		cache, err := lru.New(config.CacheSize)
		if err != nil {
			return nil, err
		}
		renderer.cache = cache
	}

	return renderer, nil
}

// Render validates the request and produces exactly one artifact for it.
// Errors are either *InvalidRequestError or *RenderError.
func (renderer *Renderer) Render(ctx context.Context, req PlotRequest) (Artifact, error) {
	if err := req.validate(renderer.strategies); err != nil {
		return Artifact{}, err
	}

	if err := mergo.Merge(&req.Options, renderer.defaults); err != nil {
		return Artifact{}, &RenderError{Reason: "unable to apply default options", Err: err}
	}

	palette, ok := renderer.palettes[req.Options.Palette]
	if !ok {
		return Artifact{}, invalidRequestf("unknown palette [%s]", req.Options.Palette)
	}

	if renderer.cache == nil {
		return renderer.render(ctx, req, palette)
	}

	// Lookup-or-render-and-insert is one atomic step per key, identical
	// concurrent requests render once.
	key, err := req.cacheKey()
	if err != nil {
		return Artifact{}, &RenderError{Reason: "unable to compute the request cache key", Err: err}
	}

	result, err, _ := renderer.inflight.Do(key, func() (interface{}, error) {
		if cached, ok := renderer.cache.Get(key); ok {
			log.WithField("key", key).Debug("artifact cache hit")
			return cached.(Artifact), nil
		}
		artifact, err := renderer.render(ctx, req, palette)
		if err != nil {
			return nil, err
		}
		renderer.cache.Add(key, artifact)
		return artifact, nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return result.(Artifact), nil
}

func (renderer *Renderer) render(ctx context.Context, req PlotRequest, palette Palette) (Artifact, error) {
	strategy := renderer.strategies[req.Type]

	ctx, cancel := context.WithTimeout(ctx, renderer.timeout)
	defer cancel()

	if err := renderer.sem.Acquire(ctx, 1); err != nil {
		return Artifact{}, &RenderError{Reason: "aborted while waiting for a render slot", Err: err}
	}

	type renderResult struct {
		artifact Artifact
		err      error
	}
	resultChan := make(chan renderResult, 1)

	go func() {
		defer renderer.sem.Release(1)
		defer func() {
			if recovered := recover(); recovered != nil {
				resultChan <- renderResult{err: fmt.Errorf("strategy panicked: %v", recovered)}
			}
		}()
		artifact, err := strategy.Render(req, palette)
		resultChan <- renderResult{artifact: artifact, err: err}
	}()

	select {
	case result := <-resultChan:
		if result.err != nil {
			return Artifact{}, &RenderError{Reason: "rendering failed", Err: result.err}
		}
		if len(result.artifact.Bytes) == 0 {
			return Artifact{}, &RenderError{Reason: "rendering produced an empty artifact"}
		}
		return result.artifact, nil
	case <-ctx.Done():
		// The strategy goroutine is left to finish on its own, it still
		// holds its semaphore slot until then.
		return Artifact{}, &RenderError{Reason: "render deadline exceeded", Err: ctx.Err()}
	}
}

func (req *PlotRequest) cacheKey() (string, error) {
	serialized, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(serialized)
	return hex.EncodeToString(digest[:]), nil
}
