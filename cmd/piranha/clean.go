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

// runClean executes the 'clean' CLI command, driving the Rule Engine to a
// fixed point across the project.
//
// Flags:
//   - --flag-name: The stale flag to clean up (sets stale_flag_name)
//   - --flag-namespace: The flag's namespace, if any
//   - --treated: Which branch survives folding (default: true)
//   - --language: Grammar to parse with (only "go" is wired)
//   - --config-dir: Override the bundled per-language cleanup rule directory
//   - --path-to-configurations: A project's own rules.toml/edges.toml,
//     merged with (not replacing) the bundled per-language pack
//   - --exclude: Repeatable glob to exclude from the walk
//   - --dry-run: Compute edits but don't write them
//   - --json: Emit the run summary as JSON
//   - --no-color: Disable colored terminal output
//   - -q/--quiet: Suppress the progress spinner
//   - --metrics-addr: HTTP listen address for Prometheus metrics
//
// Examples:
//
//	piranha clean --flag-name STALE_FLAG --treated
//	piranha clean --flag-name STALE_FLAG --treated=false --dry-run --json
import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	flag "github.com/spf13/pflag"

	pirerrors "github.com/kraklabs/piranha/internal/errors"
	"github.com/kraklabs/piranha/internal/output"
	"github.com/kraklabs/piranha/internal/ui"
	"github.com/kraklabs/piranha/pkg/cleaner"
	"github.com/kraklabs/piranha/pkg/config"
	"github.com/kraklabs/piranha/pkg/rulestore"
	"github.com/kraklabs/piranha/pkg/scope"
)

// extensionForLanguage maps a config language name to the file extension
// the project walk collects and the tree-sitter grammar that parses it.
// Only Go is wired today; a second grammar is a matter of adding an entry
// here plus the grammar's import, not changing any engine code.
func extensionForLanguage(language string) (string, *sitter.Language, error) {
	switch language {
	case "", "go":
		return ".go", golang.GetLanguage(), nil
	default:
		return "", nil, fmt.Errorf("unsupported language %q (only \"go\" is wired)", language)
	}
}

// cleanResultJSON is the --json shape of a completed run.
type cleanResultJSON struct {
	FilesModified       []string `json:"files_modified"`
	Passes              int      `json:"passes"`
	DryRun              bool     `json:"dry_run"`
	MethodRulesPromoted int      `json:"method_rules_promoted"`
	ClassRulesPromoted  int      `json:"class_rules_promoted"`
}

func runClean(args []string, configPath string) {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	flagName := fs.String("flag-name", "", "The stale flag to clean up (sets stale_flag_name)")
	flagNamespace := fs.String("flag-namespace", "", "The flag's namespace, if any")
	treated := fs.Bool("treated", true, "Which branch survives folding: true keeps the treated branch")
	language := fs.String("language", "", "Grammar to parse with (default: the project's configured language, or go)")
	configDir := fs.String("config-dir", "", "Override the bundled per-language cleanup rule directory")
	pathToConfigurations := fs.String("path-to-configurations", "", "Directory with the project's own rules.toml/edges.toml, merged with the bundled pack")
	exclude := fs.StringArray("exclude", nil, "Glob to exclude from the walk (repeatable)")
	dryRun := fs.Bool("dry-run", false, "Compute edits but don't write them")
	jsonOutput := fs.Bool("json", false, "Emit the run summary as JSON")
	noColor := fs.Bool("no-color", false, "Disable colored terminal output")
	quiet := fs.BoolP("quiet", "q", false, "Suppress the progress spinner")
	verbose := fs.CountP("verbose", "v", "Increase log verbosity (repeatable)")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: piranha clean [options]

Drives the rule graph to a fixed point across the project rooted at the
current directory, using .piranha/project.yaml for defaults.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	globals := GlobalFlags{JSON: *jsonOutput, Quiet: *quiet, NoColor: *noColor, Verbose: *verbose}
	ui.InitColors(globals.NoColor)

	logLevel := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		logLevel = slog.LevelDebug
	case globals.Verbose == 1:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	root, err := os.Getwd()
	if err != nil {
		pirerrors.FatalError(pirerrors.NewIOError("cannot get current directory", "", "check the process has a valid working directory", err), globals.JSON)
	}

	lang := *language
	dir := *configDir
	if lang == "" || dir == "" {
		if cp := configPath; cp != "" || fileExists(filepath.Join(root, ".piranha", "project.yaml")) {
			if cp == "" {
				cp = filepath.Join(root, ".piranha", "project.yaml")
			}
			pf, err := config.LoadProjectFile(cp)
			if err != nil {
				pirerrors.FatalError(err, globals.JSON)
			}
			if lang == "" {
				lang = pf.Language
			}
			if dir == "" {
				dir = pf.ConfigDir
			}
		}
	}
	if lang == "" {
		lang = "go"
	}
	if dir == "" {
		dir = filepath.Join("configs", "cleanup_rules", lang)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}

	ext, grammar, err := extensionForLanguage(lang)
	if err != nil {
		pirerrors.FatalError(pirerrors.NewConfigError("cannot resolve language", lang, "pass --language go or wire a new grammar", err), globals.JSON)
	}

	rules, err := config.LoadRules(filepath.Join(dir, "rules.toml"))
	if err != nil {
		pirerrors.FatalError(err, globals.JSON)
	}
	edges, err := config.LoadEdges(filepath.Join(dir, "edges.toml"))
	if err != nil {
		pirerrors.FatalError(err, globals.JSON)
	}
	scopes, err := config.LoadScopes(filepath.Join(dir, "scope_config.toml"))
	if err != nil {
		pirerrors.FatalError(err, globals.JSON)
	}

	// path_to_configurations: a project's own API-specific rules, loaded
	// alongside (not instead of) the bundled per-language cleanup pack
	// above, so a single run can fold both a project's flag-API rules and
	// the generic constant-fold cleanup rules.
	if *pathToConfigurations != "" {
		projDir := *pathToConfigurations
		if !filepath.IsAbs(projDir) {
			projDir = filepath.Join(root, projDir)
		}
		projRules, err := config.LoadRules(filepath.Join(projDir, "rules.toml"))
		if err != nil {
			pirerrors.FatalError(err, globals.JSON)
		}
		projEdges, err := config.LoadEdges(filepath.Join(projDir, "edges.toml"))
		if err != nil {
			pirerrors.FatalError(err, globals.JSON)
		}
		rules = append(rules, projRules...)
		edges = append(edges, projEdges...)
	}

	seedArgs := config.Arguments{
		Language:      lang,
		FlagName:      *flagName,
		FlagNamespace: *flagNamespace,
		FlagValue:     *treated,
	}
	seedTags := seedArgs.SeedTags()
	if seedTags["stale_flag_name"] == "" {
		delete(seedTags, "stale_flag_name")
	}

	store, diags := rulestore.New(rules, edges, seedTags)
	for _, d := range diags {
		logger.Warn("clean.rule.skipped", "err", d)
	}

	c := &cleaner.Cleaner{
		Root:         root,
		Ext:          ext,
		ExcludeGlobs: *exclude,
		Lang:         grammar,
		Store:        store,
		Scopes:       scope.NewRegistry(scopes),
		Logger:       logger,
		DryRun:       *dryRun,
	}

	progressCfg := NewProgressConfig(globals)
	spinner := NewPassSpinner(progressCfg, "Cleaning")
	if spinner != nil {
		defer func() { _ = spinner.Finish() }()
	}

	result, err := c.Run()
	if err != nil {
		pirerrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(cleanResultJSON{
			FilesModified:       result.FilesModified,
			Passes:              result.Passes,
			DryRun:              *dryRun,
			MethodRulesPromoted: result.MethodRulesPromoted,
			ClassRulesPromoted:  result.ClassRulesPromoted,
		}); err != nil {
			pirerrors.FatalError(pirerrors.NewInternalError("cannot encode result", "", "", err), true)
		}
		return
	}

	if globals.Quiet {
		return
	}

	ui.Header("Cleanup Summary")
	fmt.Printf("  passes:         %d\n", result.Passes)
	fmt.Printf("  files modified: %d\n", len(result.FilesModified))
	fmt.Printf("  method rules promoted: %d\n", result.MethodRulesPromoted)
	fmt.Printf("  class rules promoted:  %d\n", result.ClassRulesPromoted)
	for _, f := range result.FilesModified {
		fmt.Printf("    %s\n", f)
	}
	if *dryRun {
		ui.Info("dry run: no files were written")
	} else {
		ui.Success("cleanup complete")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
