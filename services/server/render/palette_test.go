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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

func TestBuiltinPalettes(t *testing.T) {
	palettes := BuiltinPalettes()
	assert.Contains(t, palettes, DefaultPaletteName)
	assert.Contains(t, palettes, "dark")
}

func TestLoadPalettes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palettes.yaml")
	content := `palettes:
  ocean:
    series: "#006994"
    fill: "89cff0"
    background: "ffffff"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	palettes, err := LoadPalettes(path)
	require.NoError(t, err)
	require.Contains(t, palettes, "ocean")
	assert.Equal(t, drawing.ColorFromHex("006994"), palettes["ocean"].Series)
	assert.Equal(t, drawing.ColorFromHex("89cff0"), palettes["ocean"].Fill)
}

func TestLoadPalettesInvalidColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palettes.yaml")
	content := `palettes:
  broken:
    series: "not-a-color"
    fill: "89cff0"
    background: "ffffff"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadPalettes(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestLoadPalettesMissingFile(t *testing.T) {
	_, err := LoadPalettes(filepath.Join(t.TempDir(), "no-such-file.yaml"))
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	color, err := parseColor("#1f77b4")
	assert.NoError(t, err)
	assert.Equal(t, drawing.ColorFromHex("1f77b4"), color)

	_, err = parseColor("xyz")
	assert.Error(t, err)

	_, err = parseColor("12345")
	assert.Error(t, err)
}
