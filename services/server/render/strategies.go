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
	"bytes"
	"io"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
)

// Strategy renders one chart type. Strategies must be deterministic: the same
// request and palette always produce the same bytes.
type Strategy interface {
	Render(req PlotRequest, palette Palette) (Artifact, error)
}

// BuiltinStrategies returns the fixed chart type registry. Adding a chart
// type means adding one ChartType value and one entry here.
func BuiltinStrategies() map[ChartType]Strategy {
	return map[ChartType]Strategy{
		ChartTypeLine:    lineStrategy{},
		ChartTypeBar:     barStrategy{},
		ChartTypeScatter: scatterStrategy{},
		ChartTypeArea:    areaStrategy{},
	}
}

// ChartTypes lists the registered chart types in a stable order.
func ChartTypes() []ChartType {
	return []ChartType{ChartTypeLine, ChartTypeBar, ChartTypeScatter, ChartTypeArea}
}

type lineStrategy struct{}

func (lineStrategy) Render(req PlotRequest, palette Palette) (Artifact, error) {
	ch := baseChart(req, palette)
	ch.Series = []chart.Series{chart.ContinuousSeries{
		XValues: sequence(len(req.Data)),
		YValues: req.Data,
		Style: chart.Style{
			StrokeColor: palette.Series,
			StrokeWidth: 2.0,
		},
	}}
	return encode(ch.Render, req.Options.Format)
}

type areaStrategy struct{}

func (areaStrategy) Render(req PlotRequest, palette Palette) (Artifact, error) {
	ch := baseChart(req, palette)
	ch.Series = []chart.Series{chart.ContinuousSeries{
		XValues: sequence(len(req.Data)),
		YValues: req.Data,
		Style: chart.Style{
			StrokeColor: palette.Series,
			StrokeWidth: 2.0,
			FillColor:   palette.Fill,
		},
	}}
	return encode(ch.Render, req.Options.Format)
}

type scatterStrategy struct{}

func (scatterStrategy) Render(req PlotRequest, palette Palette) (Artifact, error) {
	ch := baseChart(req, palette)
	ch.Series = []chart.Series{chart.ContinuousSeries{
		XValues: sequence(len(req.Data)),
		YValues: req.Data,
		// Points only, no connecting line
		Style: chart.Style{
			StrokeWidth: 0,
			DotColor:    palette.Series,
			DotWidth:    5.0,
		},
	}}
	return encode(ch.Render, req.Options.Format)
}

type barStrategy struct{}

func (barStrategy) Render(req PlotRequest, palette Palette) (Artifact, error) {
	bars := make([]chart.Value, 0, len(req.Data))
	for valueIdx, value := range req.Data {
		label := strconv.Itoa(valueIdx)
		if valueIdx < len(req.Labels) {
			label = req.Labels[valueIdx]
		}
		bars = append(bars, chart.Value{
			Label: label,
			Value: value,
			Style: chart.Style{
				StrokeColor: palette.Series,
				FillColor:   palette.Series,
			},
		})
	}

	ch := chart.BarChart{
		Title:      req.Options.Title,
		Width:      req.Options.Width,
		Height:     req.Options.Height,
		Background: chart.Style{FillColor: palette.Background},
		Canvas:     chart.Style{FillColor: palette.Background},
		YAxis:      chart.YAxis{Name: req.Options.YLabel},
		Bars:       bars,
	}
	return encode(ch.Render, req.Options.Format)
}

func baseChart(req PlotRequest, palette Palette) chart.Chart {
	return chart.Chart{
		Title:      req.Options.Title,
		Width:      req.Options.Width,
		Height:     req.Options.Height,
		Background: chart.Style{FillColor: palette.Background},
		Canvas:     chart.Style{FillColor: palette.Background},
		XAxis:      chart.XAxis{Name: req.Options.XLabel},
		YAxis:      chart.YAxis{Name: req.Options.YLabel},
	}
}

func sequence(length int) []float64 {
	values := make([]float64, length)
	for valueIdx := range values {
		values[valueIdx] = float64(valueIdx)
	}
	return values
}

func encode(renderFunc func(chart.RendererProvider, io.Writer) error, format Format) (Artifact, error) {
	provider := chart.PNG
	contentType := contentTypePNG
	if format == FormatSVG {
		provider = chart.SVG
		contentType = contentTypeSVG
	}

	buf := bytes.Buffer{}
	if err := renderFunc(provider, &buf); err != nil {
		return Artifact{}, err
	}
	return Artifact{Bytes: buf.Bytes(), ContentType: contentType}, nil
}
