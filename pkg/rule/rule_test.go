// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/piranha/pkg/tagsub"
)

func TestNewTakesHolesExplicitlyNotFromCaptures(t *testing.T) {
	// @fn and @arg are tree-sitter captures in this query, not declared
	// holes, so they must stay untouched by substitution even though
	// @stale_flag_name (a declared hole) shares their `@name` syntax.
	r := New("delete_stale_flag",
		`(call_expression function: (identifier) @fn arguments: (argument_list (string_literal) @arg (#eq? @arg "@stale_flag_name"))) @c`,
		"c", "@treated",
		[]string{"stale_flag_name", "treated"})

	_, hasStale := r.Holes["stale_flag_name"]
	_, hasTreated := r.Holes["treated"]
	_, hasFn := r.Holes["fn"]
	_, hasArg := r.Holes["arg"]
	assert.True(t, hasStale)
	assert.True(t, hasTreated)
	assert.False(t, hasFn)
	assert.False(t, hasArg)
}

func TestNewWithNoHolesSubstitutesNothing(t *testing.T) {
	r := New("r1", `(q) @capture`, "capture", "@capture", nil)
	inst := r.Instantiate(tagsub.TagMap{"capture": "should not be used"})
	assert.Equal(t, `(q) @capture`, inst.Query)
	assert.Equal(t, "@capture", inst.Replace)
}

func TestTryInstantiateUnboundHole(t *testing.T) {
	r := New("r1", `@a`, "c", "@b", []string{"a", "b"})
	_, err := r.TryInstantiate(tagsub.TagMap{"a": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
}

func TestInstantiatePanicsOnUnboundHole(t *testing.T) {
	r := New("r1", `@a`, "c", "x", []string{"a"})
	assert.Panics(t, func() {
		r.Instantiate(tagsub.TagMap{})
	})
}

func TestInstantiateFreezesQueryAndReplace(t *testing.T) {
	r := New("r1", `isTreated("@stale_flag_name")`, "c", "@treated",
		[]string{"stale_flag_name", "treated"})
	inst, err := r.TryInstantiate(tagsub.TagMap{"stale_flag_name": "FOO", "treated": "true"})
	require.NoError(t, err)
	assert.Equal(t, `isTreated("FOO")`, inst.Query)
	assert.Equal(t, "true", inst.Replace)
	assert.Empty(t, inst.Holes)
}

func TestGroupMembership(t *testing.T) {
	r := New("r1", "q", "c", "r", nil)
	assert.False(t, r.IsFeatureFlagCleanup())
	r.AddToGroup(FeatureFlagCleanupGroup)
	assert.True(t, r.IsFeatureFlagCleanup())
}

func TestDeriveGrepHeuristicsOnlyFromQuery(t *testing.T) {
	r := New("r1", `isTreated("@stale_flag_name")`, "c", "@stale_flag_name /* not a heuristic source */",
		[]string{"stale_flag_name"})
	tags := tagsub.TagMap{"stale_flag_name": "FOO"}
	r.DeriveGrepHeuristics(tags)
	require.Len(t, r.GrepHeuristics, 1)
	assert.Equal(t, "FOO", r.GrepHeuristics[0])
}

func TestDeriveGrepHeuristicsSkipsHolesNotInQuery(t *testing.T) {
	r := New("r1", `(boolean_literal)`, "c", "@treated", []string{"treated"})
	tags := tagsub.TagMap{"treated": "XYZ"}
	r.DeriveGrepHeuristics(tags)
	assert.Empty(t, r.GrepHeuristics)
}

func TestDeriveGrepHeuristicsIgnoresUndeclaredCapture(t *testing.T) {
	// @namespace is a capture here, not a declared hole: even though tags
	// happens to bind a "namespace" value that occurs in Query, it must
	// not become a heuristic.
	r := New("r1", `(q @namespace)`, "c", "", nil)
	tags := tagsub.TagMap{"namespace": "q"}
	r.DeriveGrepHeuristics(tags)
	assert.Empty(t, r.GrepHeuristics)
}
