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

package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/plotni/plotni/cmd/services/utils"
	"github.com/plotni/plotni/services/server"
	"github.com/plotni/plotni/version"
)

// serverViper represents the configuration of the server command
var serverViper = viper.New()

const serverPortKey = "port"
const serverPortEnv = "PLOTNI_PORT"
const serverSecretKey = "secret"
const serverSecretEnv = "PLOTNI_KEY"
const serverRenderTimeoutKey = "render_timeout"
const serverRenderTimeoutEnv = "PLOTNI_RENDER_TIMEOUT"
const serverMaxRendersKey = "max_renders"
const serverMaxRendersEnv = "PLOTNI_MAX_RENDERS"
const serverCacheSizeKey = "cache_size"
const serverCacheSizeEnv = "PLOTNI_CACHE_SIZE"
const serverPaletteFileKey = "palette_file"
const serverPaletteFileEnv = "PLOTNI_PALETTE_FILE"
const serverEnableTunnelKey = "enable_tunnel"
const serverEnableTunnelEnv = "PLOTNI_ENABLE_TUNNEL"
const serverDefaultFormatKey = "default_format"
const serverDefaultFormatEnv = "PLOTNI_DEFAULT_FORMAT"
const serverDefaultPaletteKey = "default_palette"
const serverDefaultPaletteEnv = "PLOTNI_DEFAULT_PALETTE"

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the rendering server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _args []string) error {
		err := configureLog(servicesViper)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"version": version.Version,
			"hash":    version.Hash,
		}).Info("starting the rendering server")

		options := server.Options{
			Port:           serverViper.GetUint(serverPortKey),
			Secret:         serverViper.GetString(serverSecretKey),
			RenderTimeout:  serverViper.GetDuration(serverRenderTimeoutKey),
			MaxRenders:     serverViper.GetInt(serverMaxRendersKey),
			CacheSize:      serverViper.GetInt(serverCacheSizeKey),
			PaletteFile:    serverViper.GetString(serverPaletteFileKey),
			EnableTunnel:   serverViper.GetBool(serverEnableTunnelKey),
			DefaultFormat:  serverViper.GetString(serverDefaultFormatKey),
			DefaultPalette: serverViper.GetString(serverDefaultPaletteKey),
		}

		ctx := utils.ContextWithUserTermination(context.Background())

		err = server.Run(ctx, options)
		if err != nil {
			if err == context.Canceled {
				log.Info("interrupted by user")
				return nil
			}
			return err
		}
		return nil
	},
}

func init() {
	serverViper.SetDefault(serverPortKey, server.DefaultOptions.Port)
	// `PORT` is honored for compatibility with hosted runtimes injecting it
	_ = serverViper.BindEnv(serverPortKey, serverPortEnv, "PORT")
	serverCmd.Flags().Uint(
		serverPortKey,
		serverViper.GetUint(serverPortKey),
		"The http port to listen on",
	)

	serverViper.SetDefault(serverSecretKey, server.DefaultOptions.Secret)
	_ = serverViper.BindEnv(serverSecretKey, serverSecretEnv)
	serverCmd.Flags().String(
		serverSecretKey,
		serverViper.GetString(serverSecretKey),
		"Secret used to derive the tunnel cipher key",
	)

	serverViper.SetDefault(serverRenderTimeoutKey, server.DefaultOptions.RenderTimeout)
	_ = serverViper.BindEnv(serverRenderTimeoutKey, serverRenderTimeoutEnv)
	serverCmd.Flags().Duration(
		serverRenderTimeoutKey,
		serverViper.GetDuration(serverRenderTimeoutKey),
		"Maximum duration of a single render",
	)

	serverViper.SetDefault(serverMaxRendersKey, server.DefaultOptions.MaxRenders)
	_ = serverViper.BindEnv(serverMaxRendersKey, serverMaxRendersEnv)
	serverCmd.Flags().Int(
		serverMaxRendersKey,
		serverViper.GetInt(serverMaxRendersKey),
		"Maximum number of concurrent renders (0 means the number of CPUs)",
	)

	serverViper.SetDefault(serverCacheSizeKey, server.DefaultOptions.CacheSize)
	_ = serverViper.BindEnv(serverCacheSizeKey, serverCacheSizeEnv)
	serverCmd.Flags().Int(
		serverCacheSizeKey,
		serverViper.GetInt(serverCacheSizeKey),
		"Number of rendered artifacts kept in the LRU cache (0 disables caching)",
	)

	serverViper.SetDefault(serverPaletteFileKey, server.DefaultOptions.PaletteFile)
	_ = serverViper.BindEnv(serverPaletteFileKey, serverPaletteFileEnv)
	serverCmd.Flags().String(
		serverPaletteFileKey,
		serverViper.GetString(serverPaletteFileKey),
		"YAML file defining additional color palettes",
	)

	serverViper.SetDefault(serverEnableTunnelKey, server.DefaultOptions.EnableTunnel)
	_ = serverViper.BindEnv(serverEnableTunnelKey, serverEnableTunnelEnv)
	serverCmd.Flags().Bool(
		serverEnableTunnelKey,
		serverViper.GetBool(serverEnableTunnelKey),
		"Serve the encrypted websocket relay on /ws",
	)

	serverViper.SetDefault(serverDefaultFormatKey, server.DefaultOptions.DefaultFormat)
	_ = serverViper.BindEnv(serverDefaultFormatKey, serverDefaultFormatEnv)
	serverCmd.Flags().String(
		serverDefaultFormatKey,
		serverViper.GetString(serverDefaultFormatKey),
		"Output format used when a request doesn't specify one",
	)

	serverViper.SetDefault(serverDefaultPaletteKey, server.DefaultOptions.DefaultPalette)
	_ = serverViper.BindEnv(serverDefaultPaletteKey, serverDefaultPaletteEnv)
	serverCmd.Flags().String(
		serverDefaultPaletteKey,
		serverViper.GetString(serverDefaultPaletteKey),
		"Color palette used when a request doesn't specify one",
	)

	// Don't sort alphabetically, keep insertion order
	serverCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = serverViper.BindPFlags(serverCmd.Flags())
}
