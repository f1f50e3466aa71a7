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

package cleaner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/piranha/pkg/rule"
	"github.com/kraklabs/piranha/pkg/rulestore"
	"github.com/kraklabs/piranha/pkg/scope"
	"github.com/kraklabs/piranha/pkg/tagsub"
)

// TestRunFeatureFlagCleanupWithPromotion exercises a stale-flag cleanup
// that spans two files: the if statement guarding the flag check in one
// file is deleted and, via a Global edge, promotes a second rule that
// deletes function declarations, so on the next pass the function the
// flag used to guard is removed from the other file.
func TestRunFeatureFlagCleanupWithPromotion(t *testing.T) {
	root := t.TempDir()

	caller := filepath.Join(root, "caller.go")
	callerSrc := "package main\n\nfunc run() {\n\tif isTreated(\"STALE_FLAG\") {\n\t\tdoWork()\n\t}\n}\n"
	require.NoError(t, os.WriteFile(caller, []byte(callerSrc), 0o644))

	def := filepath.Join(root, "def.go")
	defSrc := "package main\n\nfunc doWork() {\n\tprintln(\"hi\")\n}\n"
	require.NoError(t, os.WriteFile(def, []byte(defSrc), 0o644))

	templates := []*rule.Rule{
		ruleWithGroup(
			rule.New("fold_is_treated",
				`(if_statement condition: (call_expression function: (identifier) arguments: (argument_list (string_literal))))@if`,
				"if",
				"",
				nil,
			),
			rule.FeatureFlagCleanupGroup,
		),
	}
	edges := []rule.Edge{
		{From: "fold_is_treated", To: []string{"delete_dowork"}, Scope: rule.ScopeGlobal},
	}
	// delete_dowork has no hole bindings at all: every file scanned after
	// promotion gets this rule reseeded by the engine, so it must stay
	// instantiable without any per-file tag.
	templates = append(templates, rule.New("delete_dowork",
		`(function_declaration)@fn`,
		"fn",
		"",
		nil,
	))

	seedTags := tagsub.TagMap{
		"stale_flag_name": "STALE_FLAG",
		"treated":         "true",
	}
	store, diags := rulestore.New(templates, edges, seedTags)
	require.Empty(t, diags)

	c := &Cleaner{
		Root:   root,
		Ext:    ".go",
		Lang:   golang.GetLanguage(),
		Store:  store,
		Scopes: scope.NewRegistry(nil),
	}

	result, err := c.Run()
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Passes, 2)
	require.Contains(t, result.FilesModified, caller)

	out, err := os.ReadFile(def)
	require.NoError(t, err)
	require.NotContains(t, string(out), "doWork")
}

// TestRunGrepFilterSoundness confirms that with no rules at all (an empty
// heuristic set, which disables filtering) a run over a file completes in
// a single pass and modifies nothing.
func TestRunGrepFilterSoundness(t *testing.T) {
	root := t.TempDir()
	untouched := filepath.Join(root, "untouched.go")
	require.NoError(t, os.WriteFile(untouched, []byte("package main\n\nfunc other() {}\n"), 0o644))

	store, diags := rulestore.New(nil, nil, tagsub.TagMap{})
	require.Empty(t, diags)

	c := &Cleaner{
		Root:   root,
		Ext:    ".go",
		Lang:   golang.GetLanguage(),
		Store:  store,
		Scopes: scope.NewRegistry(nil),
	}

	result, err := c.Run()
	require.NoError(t, err)
	require.Empty(t, result.FilesModified)
	require.Equal(t, 1, result.Passes)
}

// TestRunFiltersOnSeedRuleHeuristicsBeforeFirstPromotion confirms the grep
// pre-filter uses seed rule heuristics even before any rule has been
// promoted to global scope: a file with no textual anchor to the seed
// rule's bound flag name is skipped on the very first pass, not merely
// once a global rule exists.
func TestRunFiltersOnSeedRuleHeuristicsBeforeFirstPromotion(t *testing.T) {
	root := t.TempDir()

	matching := filepath.Join(root, "matching.go")
	matchingSrc := "package main\n\nfunc run() {\n\tif isTreated(\"STALE_FLAG\") {\n\t\tdoWork()\n\t}\n}\n"
	require.NoError(t, os.WriteFile(matching, []byte(matchingSrc), 0o644))

	unrelated := filepath.Join(root, "unrelated.go")
	unrelatedSrc := "package main\n\nfunc other() {\n\tprintln(\"nothing to see here\")\n}\n"
	require.NoError(t, os.WriteFile(unrelated, []byte(unrelatedSrc), 0o644))

	seed := ruleWithGroup(
		rule.New("fold_is_treated",
			`(call_expression function: (identifier) arguments: (argument_list (string_literal) @lit (#eq? @lit "@stale_flag_name"))) @call`,
			"call",
			"@treated",
			[]string{"stale_flag_name", "treated"},
		),
		rule.FeatureFlagCleanupGroup,
	)
	seedTags := tagsub.TagMap{
		"stale_flag_name": "STALE_FLAG",
		"treated":         "true",
	}
	store, diags := rulestore.New([]*rule.Rule{seed}, nil, seedTags)
	require.Empty(t, diags)
	require.NotEmpty(t, store.SeedRules()[0].GrepHeuristics)

	c := &Cleaner{
		Root:   root,
		Ext:    ".go",
		Lang:   golang.GetLanguage(),
		Store:  store,
		Scopes: scope.NewRegistry(nil),
	}

	result, err := c.Run()
	require.NoError(t, err)
	require.Equal(t, 1, result.Passes)
	require.Contains(t, result.FilesModified, matching)
	require.NotContains(t, result.FilesModified, unrelated)

	out, err := os.ReadFile(unrelated)
	require.NoError(t, err)
	require.Equal(t, unrelatedSrc, string(out))
}

func ruleWithGroup(r *rule.Rule, group string) *rule.Rule {
	r.AddToGroup(group)
	return r
}
