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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/piranha/pkg/rule"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rules.toml", `
[[rules]]
name = "replace_is_treated"
query = "isTreated(\"@stale_flag_name\")"
replace_node = "c"
replace = "@treated"
groups = ["Feature-flag API cleanup"]
`)
	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "replace_is_treated", rules[0].Name)
	require.True(t, rules[0].IsFeatureFlagCleanup())
}

func TestLoadRulesWithConstraint(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rules.toml", `
[[rules]]
name = "r1"
query = "(q) @c"
replace_node = "c"
replace = "x"

[rules.constraint]
matcher = "Method"
queries = ["(other @namespace)"]
predicate = "All"
`)
	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.NotNil(t, rules[0].Constraint)
	require.Equal(t, rule.All, rules[0].Constraint.Predicate)
	// Holes come only from the explicit "holes" key; the constraint's
	// @namespace is resolved at match time, not required up front.
	_, hasNamespaceHole := rules[0].Holes["namespace"]
	require.False(t, hasNamespaceHole)
}

func TestLoadEdgesMissingFileIsEmpty(t *testing.T) {
	edges, err := LoadEdges(filepath.Join(t.TempDir(), "missing-edges.toml"))
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestLoadEdges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "edges.toml", `
[[edges]]
from = "replace_is_treated"
to = ["delete_decl"]
scope = "Global"
`)
	edges, err := LoadEdges(path)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, rule.ScopeGlobal, edges[0].Scope)
}

func TestLoadScopes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scope_config.toml", `
[[scopes]]
name = "Method"

[[scopes.pairs]]
matcher = "(method_declaration) @m"
matcher_gen = "(method_declaration) @m"
`)
	scopes, err := LoadScopes(path)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	require.Equal(t, "Method", scopes[0].Name)
	require.Len(t, scopes[0].Pairs, 1)
}

func TestLoadArgumentsAndSeedTags(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "piranha_arguments.toml", `
language = "go"
flag_name = "FOO"
flag_namespace = "ns"
flag_value = true

[substitutions]
extra = "bar"
`)
	args, err := LoadArguments(path)
	require.NoError(t, err)
	require.Equal(t, "go", args.Language)

	tags := args.SeedTags()
	require.Equal(t, "FOO", tags["stale_flag_name"])
	require.Equal(t, "true", tags["treated"])
	require.Equal(t, "false", tags["treated_complement"])
	require.Equal(t, "ns", tags["namespace"])
	require.Equal(t, "bar", tags["extra"])
}

func TestLoadProjectFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "project.yaml", "language: go\nconfig_dir: configs/cleanup_rules/go\n")
	pf, err := LoadProjectFile(path)
	require.NoError(t, err)
	require.Equal(t, "go", pf.Language)
	require.Equal(t, "configs/cleanup_rules/go", pf.ConfigDir)
}
