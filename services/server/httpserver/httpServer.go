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

package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"

	"github.com/plotni/plotni/services/server/render"
	"github.com/plotni/plotni/services/server/tunnel"
	"github.com/plotni/plotni/version"
)

var log = logrus.WithField("component", "http")

var infos = openapi.Info{
	Title: "PlotNi Rendering Server",
	Description: "The PlotNi rendering server turns plot requests into chart images.\n" +
		"\n" +
		"The API is composed of two groups of routes:\n" +
		"- [Render](#tag/Render)\n" +
		"- the websocket relay on `/ws`, not described by this document\n",
	Version: version.Version,
}

type Server struct {
	http.Server
	renderer *render.Renderer
	relay    *tunnel.Relay

	gin  *gin.Engine
	fizz *fizz.Fizz
}

func New(port uint, renderer *render.Renderer, relay *tunnel.Relay) (*Server, error) {
	// Debug mode can be helpful during development
	gin.SetMode(gin.ReleaseMode)
	//gin.SetMode(gin.DebugMode)

	tonic.SetErrorHook(tonicErrorHook)

	ginEngine := gin.New()
	fizzEngine := fizz.NewFromEngine(ginEngine)

	server := &Server{
		Server: http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: fizzEngine,
		},
		renderer: renderer,
		relay:    relay,
		gin:      ginEngine,
		fizz:     fizzEngine,
	}

	server.gin.HandleMethodNotAllowed = true

	// Allows all origins
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true

	server.fizz.Use(cors.New(corsConfig))

	// Use a custom error handler
	server.fizz.Use(ginErrorHandlerMiddleware)

	// Use the custom logger middleware
	server.fizz.Use(ginLoggerMiddleware)

	// Recovery middleware recovers from any panics and writes a 500 if there was one.
	server.fizz.Use(gin.Recovery())

	server.fizz.GET("/", []fizz.OperationOption{
		fizz.Summary("Retrieve information about this server"),
	}, tonic.Handler(server.getInfo, http.StatusOK))

	// Hosted runtimes probe with HEAD requests
	ginEngine.HEAD("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	server.fizz.GET("/openapi.json", []fizz.OperationOption{
		fizz.Summary("Retrieve the open api specification"),
		fizz.Response("500", "Bad server configuration or state", httpError{}, nil, nil),
	}, server.fizz.OpenAPI(&infos, "json"))

	renderGroup := server.fizz.Group(
		"/render",
		"Render",
		"Turn plot requests into chart images.",
	)
	renderGroup.GET("/charts", []fizz.OperationOption{
		fizz.Summary("List the supported chart types and artifact formats"),
	}, tonic.Handler(server.listCharts, http.StatusOK))

	// Registered on the bare engine: the response body is the image itself,
	// which tonic cannot express.
	ginEngine.POST("/render", server.renderPlot)

	if relay != nil {
		ginEngine.GET("/ws", func(c *gin.Context) {
			relay.Handle(c.Writer, c.Request)
		})
	}

	ginEngine.NoRoute(func(c *gin.Context) {
		_ = c.AbortWithError(http.StatusNotFound, fmt.Errorf("not found"))
	})

	ginEngine.NoMethod(func(c *gin.Context) {
		_ = c.AbortWithError(http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})

	return server, nil
}

type response struct {
	Message string `json:"message" description:"Human-readable response description"`
}

type infoResponse struct {
	response
	Version     string `json:"version" description:"PlotNi Version"`
	VersionHash string `json:"version_hash"`
}

func (server *Server) getInfo(*gin.Context) (infoResponse, error) {
	return infoResponse{
		response: response{
			Message: "This is the PlotNi rendering server",
		},
		Version:     version.Version,
		VersionHash: version.Hash,
	}, nil
}

type listChartsResponse struct {
	Charts  []render.ChartType `json:"charts" description:"Supported chart types"`
	Formats []render.Format    `json:"formats" description:"Supported artifact formats"`
}

func (server *Server) listCharts(*gin.Context) (listChartsResponse, error) {
	return listChartsResponse{
		Charts:  render.ChartTypes(),
		Formats: render.Formats(),
	}, nil
}

func (server *Server) renderPlot(c *gin.Context) {
	request := render.PlotRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithCategory(
			c,
			http.StatusBadRequest,
			render.CategoryInvalidRequest,
			fmt.Sprintf("unable to decode the plot request (%s)", err),
			err,
		)
		return
	}

	log.WithFields(logrus.Fields{
		"chart_type": request.Type,
		"nb_values":  len(request.Data),
	}).Info("rendering")

	artifact, err := server.renderer.Render(c.Request.Context(), request)
	if err != nil {
		var invalidRequestErr *render.InvalidRequestError
		if errors.As(err, &invalidRequestErr) {
			abortWithCategory(
				c,
				http.StatusBadRequest,
				render.CategoryInvalidRequest,
				invalidRequestErr.Reason,
				err,
			)
			return
		}

		// Surface the failure category, not the internal diagnostic
		message := "rendering failed"
		var renderErr *render.RenderError
		if errors.As(err, &renderErr) {
			message = renderErr.Reason
		}
		abortWithCategory(c, http.StatusInternalServerError, render.CategoryRenderError, message, err)
		return
	}

	c.Data(http.StatusOK, artifact.ContentType, artifact.Bytes)
}
