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

// Package render turns plot requests into encoded chart images.
//
// A PlotRequest is validated, completed with server-wide defaults and handed
// to the strategy registered for its chart type. The resulting Artifact is an
// immutable byte sequence plus its content type, it is never mutated after
// creation.
package render

import (
	"fmt"
	"sort"
)

// ChartType selects the rendering strategy applied to a request.
type ChartType string

const (
	ChartTypeLine    ChartType = "line"
	ChartTypeBar     ChartType = "bar"
	ChartTypeScatter ChartType = "scatter"
	ChartTypeArea    ChartType = "area"
)

// Format is the encoding of the rendered artifact.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

const (
	contentTypePNG = "image/png"
	contentTypeSVG = "image/svg+xml"
)

// Dimensions above this are rejected before any rendering happens.
const maxDimension = 4096

//nolint:lll
type RenderOptions struct {
	Title   string `json:"title,omitempty" description:"Chart title"`
	XLabel  string `json:"x_label,omitempty" description:"X axis label"`
	YLabel  string `json:"y_label,omitempty" description:"Y axis label"`
	Width   int    `json:"width,omitempty" description:"Artifact width in pixels, server default when omitted"`
	Height  int    `json:"height,omitempty" description:"Artifact height in pixels, server default when omitted"`
	Format  Format `json:"format,omitempty" description:"Artifact encoding, one of png or svg, server default when omitted"`
	Palette string `json:"palette,omitempty" description:"Name of the color palette, server default when omitted"`
}

//nolint:lll
type PlotRequest struct {
	Data    []float64     `json:"data" description:"Values to plot, must not be empty"`
	Labels  []string      `json:"labels,omitempty" description:"Optional categorical labels, must match the length of data"`
	Type    ChartType     `json:"type" description:"Chart type, one of the types listed by the charts endpoint"`
	Options RenderOptions `json:"options,omitempty"`
}

// Artifact is the rendered output of exactly one accepted PlotRequest.
type Artifact struct {
	Bytes       []byte
	ContentType string
}

const (
	CategoryInvalidRequest = "InvalidRequest"
	CategoryRenderError    = "RenderError"
)

// InvalidRequestError rejects a request before any rendering work happens.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return e.Reason
}

func invalidRequestf(format string, args ...interface{}) error {
	return &InvalidRequestError{Reason: fmt.Sprintf(format, args...)}
}

// RenderError reports a failure while generating the artifact, the request
// itself was valid.
type RenderError struct {
	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s)", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Formats lists the supported artifact encodings.
func Formats() []Format {
	return []Format{FormatPNG, FormatSVG}
}

func (req *PlotRequest) validate(strategies map[ChartType]Strategy) error {
	if len(req.Data) == 0 {
		return invalidRequestf("data must not be empty")
	}
	if _, ok := strategies[req.Type]; !ok {
		known := make([]string, 0, len(strategies))
		for chartType := range strategies {
			known = append(known, string(chartType))
		}
		sort.Strings(known)
		return invalidRequestf("unknown chart type [%s], expecting one of %v", req.Type, known)
	}
	if len(req.Labels) > 0 && len(req.Labels) != len(req.Data) {
		return invalidRequestf(
			"labels length [%d] doesn't match data length [%d]",
			len(req.Labels),
			len(req.Data),
		)
	}
	switch req.Options.Format {
	case "", FormatPNG, FormatSVG:
	default:
		return invalidRequestf("unknown format [%s], expecting one of %v", req.Options.Format, Formats())
	}
	if req.Options.Width < 0 || req.Options.Width > maxDimension {
		return invalidRequestf("width [%d] out of range [0, %d]", req.Options.Width, maxDimension)
	}
	if req.Options.Height < 0 || req.Options.Height > maxDimension {
		return invalidRequestf("height [%d] out of range [0, %d]", req.Options.Height, maxDimension)
	}
	return nil
}
