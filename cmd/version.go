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

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plotni/plotni/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of the PlotNi server",
	Run: func(_cmd *cobra.Command, _args []string) {
		fmt.Printf("%s-%s\n", version.Version, version.Hash)
	},
}
