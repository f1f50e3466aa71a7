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

// Package walk implements the project-level file discovery and grep
// pre-filter that feed the Flag Cleaner's outer loop: a directory walk
// collects candidate source files, then a worker pool cheaply discards
// files that cannot possibly contain a match before any of them is parsed.
package walk

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Collect walks root and returns every file whose extension matches ext
// (e.g. ".go"), skipping any path that matches one of excludeGlobs.
func Collect(root, ext string, excludeGlobs []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if rel != "." && shouldExclude(rel, excludeGlobs) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldExclude(rel, excludeGlobs) {
			return nil
		}
		if ext != "" && filepath.Ext(path) != ext {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// shouldExclude reports whether rel matches one of the glob patterns.
// Patterns are matched against every path component depth (so "vendor"
// excludes "vendor" at any nesting, not just the root), and against the
// full relative path, using path/filepath's shell-style matching.
func shouldExclude(rel string, globs []string) bool {
	normalized := filepath.ToSlash(rel)
	parts := strings.Split(normalized, "/")
	for _, pattern := range globs {
		pattern = filepath.ToSlash(pattern)
		if ok, _ := filepath.Match(pattern, normalized); ok {
			return true
		}
		for i := range parts {
			suffix := strings.Join(parts[i:], "/")
			if ok, _ := filepath.Match(pattern, suffix); ok {
				return true
			}
			if ok, _ := filepath.Match(pattern, parts[i]); ok {
				return true
			}
		}
	}
	return false
}

// BuildHeuristicPattern compiles the grep heuristic regex: the alternation
// of every heuristic passed in (the Flag Cleaner passes the hole bindings of
// the seed rules and the currently active global rules), excluding the
// literal bindings "true" and "false" (too common to usefully pre-filter
// on) and any empty binding. A nil result means no pattern could be built
// and the caller should skip filtering entirely.
func BuildHeuristicPattern(heuristics []string) *regexp.Regexp {
	seen := make(map[string]struct{}, len(heuristics))
	var parts []string
	for _, h := range heuristics {
		if h == "" || h == "true" || h == "false" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		parts = append(parts, regexp.QuoteMeta(h))
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(strings.Join(parts, "|"))
}

// GrepFilter discards files that do not match pattern, in parallel. A nil
// pattern disables the filter (every file passes) since an all-global-
// scoped run may have no textual anchor to search for.
func GrepFilter(files []string, pattern *regexp.Regexp, logger *slog.Logger) []string {
	if pattern == nil {
		return files
	}
	if logger == nil {
		logger = slog.Default()
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > 8 {
		numWorkers = 8
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	jobs := make(chan string, len(files))
	results := make(chan string, len(files))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				data, err := os.ReadFile(path)
				if err != nil {
					logger.Warn("walk.grep.read_error", "path", path, "err", err)
					continue
				}
				if pattern.Match(data) {
					results <- path
				}
			}
		}()
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var kept []string
	for path := range results {
		kept = append(kept, path)
	}
	// Channel order is nondeterministic across workers; the outer loop
	// relies on a stable file order to converge deterministically.
	sort.Strings(kept)
	return kept
}
