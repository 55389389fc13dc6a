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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyStrategy struct {
	calls int32
	delay time.Duration
	err   error
}

func (spy *spyStrategy) Render(_req PlotRequest, _palette Palette) (Artifact, error) {
	atomic.AddInt32(&spy.calls, 1)
	if spy.delay > 0 {
		time.Sleep(spy.delay)
	}
	if spy.err != nil {
		return Artifact{}, spy.err
	}
	return Artifact{Bytes: []byte("an artifact"), ContentType: "application/x-test"}, nil
}

func (spy *spyStrategy) callCount() int32 {
	return atomic.LoadInt32(&spy.calls)
}

func newSpyRenderer(t *testing.T, spy *spyStrategy, config Config) *Renderer {
	config.Strategies = map[ChartType]Strategy{ChartTypeLine: spy}
	renderer, err := NewRenderer(config)
	require.NoError(t, err)
	return renderer
}

func TestRenderLinePNG(t *testing.T) {
	renderer, err := NewRenderer(Config{})
	require.NoError(t, err)

	artifact, err := renderer.Render(context.Background(), PlotRequest{
		Data: []float64{1, 2, 3},
		Type: ChartTypeLine,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.Bytes)
	assert.Equal(t, "image/png", artifact.ContentType)
}

func TestRenderEveryChartType(t *testing.T) {
	renderer, err := NewRenderer(Config{})
	require.NoError(t, err)

	for _, chartType := range ChartTypes() {
		artifact, err := renderer.Render(context.Background(), PlotRequest{
			Data:   []float64{4, 8, 15, 16, 23, 42},
			Labels: []string{"a", "b", "c", "d", "e", "f"},
			Type:   chartType,
			Options: RenderOptions{
				Title:  "Some title",
				XLabel: "x",
				YLabel: "y",
			},
		})
		require.NoError(t, err, "chart type [%s]", chartType)
		assert.NotEmpty(t, artifact.Bytes, "chart type [%s]", chartType)
	}
}

func TestRenderSVG(t *testing.T) {
	renderer, err := NewRenderer(Config{})
	require.NoError(t, err)

	artifact, err := renderer.Render(context.Background(), PlotRequest{
		Data:    []float64{1, 2, 3},
		Type:    ChartTypeLine,
		Options: RenderOptions{Format: FormatSVG},
	})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", artifact.ContentType)
	assert.Contains(t, string(artifact.Bytes), "<svg")
}

func TestRenderIsDeterministic(t *testing.T) {
	renderer, err := NewRenderer(Config{})
	require.NoError(t, err)

	req := PlotRequest{
		Data:    []float64{3, 1, 4, 1, 5},
		Type:    ChartTypeBar,
		Options: RenderOptions{Title: "Twice"},
	}

	first, err := renderer.Render(context.Background(), req)
	require.NoError(t, err)
	second, err := renderer.Render(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ContentType, second.ContentType)
	assert.Equal(t, first.Bytes, second.Bytes)
}

func TestRenderAppliesDefaults(t *testing.T) {
	spy := &spyStrategy{}
	renderer := newSpyRenderer(t, spy, Config{
		Defaults: RenderOptions{Format: FormatSVG, Palette: "dark"},
	})

	artifact, err := renderer.Render(context.Background(), PlotRequest{
		Data: []float64{1, 2, 3},
		Type: ChartTypeLine,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.Bytes)
	assert.EqualValues(t, 1, spy.callCount())
}

func TestEmptyDataRejectedBeforeRendering(t *testing.T) {
	spy := &spyStrategy{}
	renderer := newSpyRenderer(t, spy, Config{})

	_, err := renderer.Render(context.Background(), PlotRequest{
		Data: []float64{},
		Type: ChartTypeLine,
	})
	assert.Error(t, err)
	assert.IsType(t, &InvalidRequestError{}, err)
	assert.EqualValues(t, 0, spy.callCount())
}

func TestUnknownChartTypeRejectedBeforeRendering(t *testing.T) {
	spy := &spyStrategy{}
	renderer := newSpyRenderer(t, spy, Config{})

	_, err := renderer.Render(context.Background(), PlotRequest{
		Data: []float64{1, 2, 3},
		Type: "unsupported-type",
	})
	assert.Error(t, err)
	assert.IsType(t, &InvalidRequestError{}, err)
	assert.EqualValues(t, 0, spy.callCount())
}

func TestUnknownPaletteRejected(t *testing.T) {
	spy := &spyStrategy{}
	renderer := newSpyRenderer(t, spy, Config{})

	_, err := renderer.Render(context.Background(), PlotRequest{
		Data:    []float64{1, 2, 3},
		Type:    ChartTypeLine,
		Options: RenderOptions{Palette: "no-such-palette"},
	})
	assert.Error(t, err)
	assert.IsType(t, &InvalidRequestError{}, err)
	assert.EqualValues(t, 0, spy.callCount())
}

func TestStrategyFailureIsARenderError(t *testing.T) {
	spy := &spyStrategy{err: errors.New("injected fault")}
	renderer := newSpyRenderer(t, spy, Config{})

	_, err := renderer.Render(context.Background(), PlotRequest{
		Data: []float64{1, 2, 3},
		Type: ChartTypeLine,
	})
	assert.Error(t, err)

	renderErr := &RenderError{}
	assert.ErrorAs(t, err, &renderErr)
}

func TestDegenerateInputIsARenderError(t *testing.T) {
	renderer, err := NewRenderer(Config{})
	require.NoError(t, err)

	// A single data point yields a zero x range the line strategy can't plot
	_, err = renderer.Render(context.Background(), PlotRequest{
		Data: []float64{42},
		Type: ChartTypeLine,
	})
	assert.Error(t, err)

	renderErr := &RenderError{}
	assert.ErrorAs(t, err, &renderErr)
}

func TestRenderTimeout(t *testing.T) {
	spy := &spyStrategy{delay: 500 * time.Millisecond}
	renderer := newSpyRenderer(t, spy, Config{Timeout: 20 * time.Millisecond})

	_, err := renderer.Render(context.Background(), PlotRequest{
		Data: []float64{1, 2, 3},
		Type: ChartTypeLine,
	})
	assert.Error(t, err)

	renderErr := &RenderError{}
	assert.ErrorAs(t, err, &renderErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIdenticalConcurrentRequestsRenderOnce(t *testing.T) {
	spy := &spyStrategy{delay: 100 * time.Millisecond}
	renderer := newSpyRenderer(t, spy, Config{CacheSize: 8})

	req := PlotRequest{Data: []float64{1, 2, 3}, Type: ChartTypeLine}

	wg := sync.WaitGroup{}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			artifact, err := renderer.Render(context.Background(), req)
			assert.NoError(t, err)
			assert.NotEmpty(t, artifact.Bytes)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, spy.callCount())

	// A later identical request is served from the cache
	_, err := renderer.Render(context.Background(), req)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, spy.callCount())
}
