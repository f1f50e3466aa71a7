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

// Built-in scope names. Any other string is resolved
// via the Scope config bundled for the target language.
const (
	ScopeParent = "Parent"
	ScopeMethod = "Method"
	ScopeClass  = "Class"
	ScopeGlobal = "Global"
)

// Edge is a directed transition between rules/groups, qualified by a
// lexical scope.
type Edge struct {
	// From is a rule name or group name.
	From string

	// To is the list of rule names or group names this edge fans out to.
	To []string

	// Scope is one of the built-in scope constants above, or a
	// user-defined scope name resolved via the Scope config.
	Scope string
}

// Matcher locates the enclosing node for a named scope; Generator is the
// template query, instantiated with Matcher's captures, that restricts
// subsequent matches to that node.
type ScopeMatcherPair struct {
	Matcher   string
	Generator string
}

// Scope is a named lexical container built from an ordered list of
// (matcher, generator) pairs. Pairs are tried in declared order; the first
// pair whose matcher matches some ancestor wins, and among the ancestors it
// matches the outermost one is chosen.
type Scope struct {
	Name  string
	Pairs []ScopeMatcherPair
}
