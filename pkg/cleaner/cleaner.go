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

// Package cleaner implements the Flag Cleaner: the
// project-level outer loop driving the Rule Engine to a fixed point
// across every file in a codebase.
package cleaner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	pirerrors "github.com/kraklabs/piranha/internal/errors"
	"github.com/kraklabs/piranha/internal/metrics"
	"github.com/kraklabs/piranha/pkg/engine"
	"github.com/kraklabs/piranha/pkg/rulestore"
	"github.com/kraklabs/piranha/pkg/scope"
	"github.com/kraklabs/piranha/pkg/unit"
	"github.com/kraklabs/piranha/pkg/walk"
)

// Cleaner drives the Rule Engine across every file under Root until the
// store's global rule set stops growing.
type Cleaner struct {
	Root         string
	Ext          string
	ExcludeGlobs []string
	Lang         *sitter.Language
	Store        *rulestore.Store
	Scopes       *scope.Registry
	Logger       *slog.Logger
	DryRun       bool
}

// Result summarizes one completed run.
type Result struct {
	FilesModified []string
	Passes        int
	// MethodRulesPromoted and ClassRulesPromoted report the size of the
	// Rule Store's method/class partitions at the end of the run, for
	// visibility into scope-restricted promotions that never leave a
	// single file's processing (unlike a Global promotion, these never
	// show up in FilesModified as a separate signal).
	MethodRulesPromoted int
	ClassRulesPromoted  int
}

func (c *Cleaner) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Run executes the outer loop to completion and,
// unless DryRun, persists every modified file.
func (c *Cleaner) Run() (*Result, error) {
	logger := c.logger()
	units := make(map[string]*unit.SourceCodeUnit)
	modified := make(map[string]bool)

	defer func() {
		for _, su := range units {
			su.Close()
		}
	}()

	pass := 0
	for {
		pass++
		start := time.Now()

		heuristics := collectHeuristics(c.Store)
		pattern := walk.BuildHeuristicPattern(heuristics)

		files, err := walk.Collect(c.Root, c.Ext, c.ExcludeGlobs)
		if err != nil {
			return nil, pirerrors.NewIOError("cannot walk codebase", c.Root, "check the path exists and is readable", err)
		}
		for range files {
			metrics.RecordFileWalked()
		}

		candidates := walk.GrepFilter(files, pattern, logger)
		skipped := len(files) - len(candidates)
		if skipped > 0 {
			metrics.RecordFileSkippedGrep(skipped)
			logger.Debug("cleaner.grep.skip", "skipped", skipped, "total", len(files))
		}

		beforeGlobal := len(c.Store.GlobalRules())
		promoted := false

		for _, path := range candidates {
			su, loadErr := c.loadOrGet(units, path)
			if loadErr != nil {
				logger.Warn("cleaner.file.unreadable", "path", path, "err", loadErr)
				continue
			}

			e := &engine.Engine{Store: c.Store, Scopes: c.Scopes, Lang: c.Lang, Logger: logger}
			edited, runErr := e.Run(su)
			if runErr != nil {
				var corrupt *unit.CorruptionError
				if errors.As(runErr, &corrupt) {
					metrics.RecordFatalCorruption()
					return nil, pirerrors.NewCorruptionError(
						fmt.Sprintf("unrecoverable syntax corruption in %s", corrupt.Path),
						corrupt.FinalSource,
						"inspect the file manually; the engine reverted its last edit",
						corrupt,
					)
				}
				return nil, runErr
			}
			if edited {
				modified[path] = true
			}

			if len(c.Store.GlobalRules()) > beforeGlobal {
				// A promotion happened mid-pass: stop this pass, recompute
				// the grep heuristic, and restart the walk.
				promoted = true
				break
			}
		}

		metrics.RecordOuterPass(time.Since(start).Seconds())

		if !promoted {
			break
		}
	}

	var modifiedPaths []string
	for path := range modified {
		modifiedPaths = append(modifiedPaths, path)
	}
	sort.Strings(modifiedPaths)

	if !c.DryRun {
		for _, path := range modifiedPaths {
			if err := units[path].Persist(); err != nil {
				return nil, pirerrors.NewIOError("cannot write file", path, "check directory permissions", err)
			}
		}
	}

	return &Result{
		FilesModified:       modifiedPaths,
		Passes:              pass,
		MethodRulesPromoted: len(c.Store.MethodRules()),
		ClassRulesPromoted:  len(c.Store.ClassRules()),
	}, nil
}

// loadOrGet returns path's already-open unit if this run has touched it
// before, or lazily parses it for the first time.
func (c *Cleaner) loadOrGet(units map[string]*unit.SourceCodeUnit, path string) (*unit.SourceCodeUnit, error) {
	if su, ok := units[path]; ok {
		return su, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	su, err := unit.New(path, content, c.Lang, sitter.NewParser())
	if err != nil {
		return nil, err
	}
	units[path] = su
	return su, nil
}

// collectHeuristics gathers the grep heuristics of every rule that can fire
// on this pass: the seed rules (active from pass one) plus every rule
// currently promoted to global scope. Omitting seed rules would leave the
// heuristic set empty for however many passes precede the first Global
// promotion, during which GrepFilter must pass every file through
// unfiltered rather than silently dropping files the seed rules would
// have matched.
func collectHeuristics(store *rulestore.Store) []string {
	var heuristics []string
	for _, r := range store.SeedRules() {
		heuristics = append(heuristics, r.GrepHeuristics...)
	}
	for _, r := range store.GlobalRules() {
		heuristics = append(heuristics, r.GrepHeuristics...)
	}
	return heuristics
}
