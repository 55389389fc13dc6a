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
	"fmt"
	"os"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
	"gopkg.in/yaml.v2"
)

// Palette holds the colors applied by every strategy.
type Palette struct {
	Series     drawing.Color
	Fill       drawing.Color
	Background drawing.Color
}

const DefaultPaletteName = "default"

// BuiltinPalettes returns the palettes available without any configuration.
func BuiltinPalettes() map[string]Palette {
	return map[string]Palette{
		DefaultPaletteName: {
			Series:     drawing.ColorFromHex("1f77b4"),
			Fill:       drawing.ColorFromHex("aec7e8"),
			Background: drawing.ColorFromHex("ffffff"),
		},
		"dark": {
			Series:     drawing.ColorFromHex("4fc3f7"),
			Fill:       drawing.ColorFromHex("29434e"),
			Background: drawing.ColorFromHex("212121"),
		},
	}
}

type paletteDefinition struct {
	Series     string `yaml:"series"`
	Fill       string `yaml:"fill"`
	Background string `yaml:"background"`
}

type paletteFile struct {
	Palettes map[string]paletteDefinition `yaml:"palettes"`
}

// LoadPalettes reads additional palettes from a YAML file. Loaded palettes
// can redefine the builtin ones.
func LoadPalettes(path string) (map[string]Palette, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read palette file %q: %w", path, err)
	}

	parsed := paletteFile{}
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("unable to parse palette file %q: %w", path, err)
	}

	palettes := map[string]Palette{}
	for name, definition := range parsed.Palettes {
		palette, err := definition.toPalette()
		if err != nil {
			return nil, fmt.Errorf("invalid palette [%s]: %w", name, err)
		}
		palettes[name] = palette
	}
	return palettes, nil
}

func (definition paletteDefinition) toPalette() (Palette, error) {
	series, err := parseColor(definition.Series)
	if err != nil {
		return Palette{}, err
	}
	fill, err := parseColor(definition.Fill)
	if err != nil {
		return Palette{}, err
	}
	background, err := parseColor(definition.Background)
	if err != nil {
		return Palette{}, err
	}
	return Palette{Series: series, Fill: fill, Background: background}, nil
}

func parseColor(value string) (drawing.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) != 3 && len(hex) != 6 {
		return drawing.Color{}, fmt.Errorf("invalid color %q, expecting a 3 or 6 digit hex value", value)
	}
	for _, c := range hex {
		isDigit := c >= '0' && c <= '9'
		isHexLetter := (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isDigit && !isHexLetter {
			return drawing.Color{}, fmt.Errorf("invalid color %q, expecting a 3 or 6 digit hex value", value)
		}
	}
	return drawing.ColorFromHex(hex), nil
}
