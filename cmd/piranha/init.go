// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

// runInit executes the 'init' CLI command, creating a .piranha/project.yaml
// configuration file that records the project's default language and the
// directory holding its rules.toml/edges.toml/scope_config.toml.
//
// Flags:
//   - --force: Overwrite an existing configuration (default: false)
//   - --language: Default language for cleanup runs (default: go)
//   - --config-dir: Directory holding rules.toml/edges.toml/scope_config.toml
//     (default: configs/cleanup_rules/<language>, the bundled pack)
//
// Examples:
//
//	piranha init                       Use the bundled Go cleanup pack
//	piranha init --config-dir ./.piranha/rules
import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	pirerrors "github.com/kraklabs/piranha/internal/errors"
	"github.com/kraklabs/piranha/internal/ui"
	"github.com/kraklabs/piranha/pkg/config"
)

type initFlags struct {
	force     bool
	language  string
	configDir string
}

func runInit(args []string) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		pirerrors.FatalError(pirerrors.NewIOError("cannot get current directory", "", "check the process has a valid working directory", err), false)
	}

	projectDir := filepath.Join(cwd, ".piranha")
	projectPath := filepath.Join(projectDir, "project.yaml")

	if _, err := os.Stat(projectPath); err == nil && !flags.force {
		pirerrors.FatalError(pirerrors.NewConfigError(
			fmt.Sprintf("%s already exists", projectPath),
			"a project configuration is already present",
			"pass --force to overwrite it",
			nil,
		), false)
	}

	configDir := flags.configDir
	if configDir == "" {
		configDir = filepath.Join("configs", "cleanup_rules", flags.language)
	}

	pf := config.ProjectFile{Language: flags.language, ConfigDir: configDir}
	data, err := yaml.Marshal(&pf)
	if err != nil {
		pirerrors.FatalError(pirerrors.NewInternalError("cannot encode project file", "", "", err), false)
	}

	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		pirerrors.FatalError(pirerrors.NewIOError("cannot create .piranha directory", projectDir, "check directory permissions", err), false)
	}
	if err := os.WriteFile(projectPath, data, 0o644); err != nil {
		pirerrors.FatalError(pirerrors.NewIOError("cannot write project file", projectPath, "check directory permissions", err), false)
	}

	ui.Successf("Created %s", projectPath)
	fmt.Printf("  language:   %s\n", flags.language)
	fmt.Printf("  config_dir: %s\n", configDir)
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite an existing .piranha/project.yaml")
	fs.StringVar(&f.language, "language", "go", "Default language for cleanup runs")
	fs.StringVar(&f.configDir, "config-dir", "", "Directory holding rules.toml/edges.toml/scope_config.toml (default: bundled pack for --language)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: piranha init [options]

Creates .piranha/project.yaml, recording the default language and rule
config directory for subsequent 'piranha clean' runs.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}
