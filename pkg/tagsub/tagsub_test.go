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

package tagsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteBasic(t *testing.T) {
	tags := TagMap{"stale_flag_name": "FOO", "treated": "true"}
	got := Substitute(`isTreated("@stale_flag_name")`, tags)
	require.Equal(t, `isTreated("FOO")`, got)
}

func TestSubstituteUnboundLeftIntact(t *testing.T) {
	tags := TagMap{"stale_flag_name": "FOO"}
	got := Substitute(`@stale_flag_name == @namespace`, tags)
	assert.Equal(t, "FOO == @namespace", got)
}

func TestSubstituteNoHoles(t *testing.T) {
	got := Substitute("(true)", TagMap{"a": "b"})
	assert.Equal(t, "(true)", got)
}

func TestContainsOnlyTestsQuery(t *testing.T) {
	assert.True(t, Contains(`isTreated("FOO")`, "FOO"))
	assert.False(t, Contains(`isTreated("FOO")`, "BAR"))
	assert.False(t, Contains("anything", ""))
}

func TestSubstitutionClosureInvariant(t *testing.T) {
	// For any tag map covering every hole a template references,
	// substitute leaves no @name token from that map behind.
	query := `(isTreated("@stale_flag_name") (argument_list @ns))`
	tags := TagMap{"stale_flag_name": "X", "ns": "X"}
	result := Substitute(query, tags)
	assert.NotContains(t, result, "@stale_flag_name")
	assert.NotContains(t, result, "@ns")
}
