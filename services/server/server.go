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

// Package server assembles and runs the PlotNi rendering service: the
// renderer, the optional websocket relay and the http server in front of
// them.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/plotni/plotni/services/server/httpserver"
	"github.com/plotni/plotni/services/server/render"
	"github.com/plotni/plotni/services/server/tunnel"
)

var log = logrus.WithField("component", "server")

type Options struct {
	Port           uint
	Secret         string
	RenderTimeout  time.Duration
	MaxRenders     int
	CacheSize      int
	PaletteFile    string
	EnableTunnel   bool
	DefaultFormat  string
	DefaultPalette string
}

var DefaultOptions = Options{
	Port:           9999,
	Secret:         "plotni-secret-key-change-this",
	RenderTimeout:  render.DefaultTimeout,
	MaxRenders:     0,
	CacheSize:      128,
	PaletteFile:    "",
	EnableTunnel:   true,
	DefaultFormat:  string(render.FormatPNG),
	DefaultPalette: render.DefaultPaletteName,
}

func Run(ctx context.Context, options Options) error {
	// Build the palette set
	palettes := render.BuiltinPalettes()
	if options.PaletteFile != "" {
		loadedPalettes, err := render.LoadPalettes(options.PaletteFile)
		if err != nil {
			return err
		}
		for name, palette := range loadedPalettes {
			palettes[name] = palette
		}
		log.WithFields(logrus.Fields{
			"path":        options.PaletteFile,
			"nb_palettes": len(loadedPalettes),
		}).Info("palettes loaded")
	}

	// Build the renderer
	renderer, err := render.NewRenderer(render.Config{
		Timeout:       options.RenderTimeout,
		MaxConcurrent: options.MaxRenders,
		CacheSize:     options.CacheSize,
		Defaults: render.RenderOptions{
			Format:  render.Format(options.DefaultFormat),
			Palette: options.DefaultPalette,
		},
		Palettes: palettes,
	})
	if err != nil {
		return err
	}

	// Build the websocket relay
	var relay *tunnel.Relay
	if options.EnableTunnel {
		relay = tunnel.NewRelay(options.Secret)
	} else {
		log.Info("websocket relay disabled")
	}

	// Build the http server
	httpServer, err := httpserver.New(options.Port, renderer, relay)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	// Start the http server
	group.Go(func() error {
		log.WithField("port", options.Port).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("unexpected error while serving http routes: %v", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("Gracefully stopping")

		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(stopCtx); err != nil {
			log.WithField("error", err).Warning("Error while stopping")
		}
		return ctx.Err()
	})

	return group.Wait()
}
