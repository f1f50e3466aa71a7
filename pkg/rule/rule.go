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

// Package rule implements the rule-graph's data model: the Rule itself
// (query + replacement template + holes + constraint + groups), hole
// instantiation, and the Edge/Scope/Predicate types that wire rules
// together into a graph.
package rule

import (
	"fmt"

	"github.com/kraklabs/piranha/pkg/tagsub"
)

// FeatureFlagCleanupGroup is the reserved group label identifying the seed
// rules of a feature-flag cleanup run.
const FeatureFlagCleanupGroup = "Feature-flag API cleanup"

// Predicate is the boolean combinator over a constraint's sub-queries.
type Predicate string

const (
	// All requires every sub-query to have at least one match.
	All Predicate = "All"
	// Any requires at least one sub-query to have a match (exists-one
	// semantics, implemented by symmetry with All/None: no bundled rule
	// uses Any today, but it must still behave correctly for
	// user-authored configs).
	Any Predicate = "Any"
	// None requires that no sub-query has any match.
	None Predicate = "None"
)

// Constraint is a secondary query plus a predicate evaluated over a list of
// sub-queries, run within an enclosing scope. Holes inside Queries/Matcher
// survive instantiation unresolved; they are re-substituted at match time
// against the file's accumulated tags.
type Constraint struct {
	// Matcher names the scope the constraint's sub-queries run within.
	Matcher string

	// Queries is the list of sub-queries to run within Matcher's scope.
	Queries []string

	// Predicate combines the per-query match-existence results.
	Predicate Predicate
}

// Rule is a named syntactic pattern, its replacement template, and the
// metadata needed to instantiate and fire it.
type Rule struct {
	// Name uniquely identifies the rule within a Store.
	Name string

	// Query is the tree-sitter S-expression pattern, possibly containing
	// holes (`@h`).
	Query string

	// ReplaceNode is the capture name whose byte range gets rewritten.
	ReplaceNode string

	// Replace is the replacement template, may also contain holes.
	Replace string

	// Holes is the explicit set of tag names (the rules.toml "holes" key)
	// that must be bound before the rule is instantiable. Only these
	// names are substituted into Query/Replace; any other `@name` token
	// is a tree-sitter capture and is left untouched, even if a tag of
	// the same name happens to be bound.
	Holes map[string]struct{}

	// Groups is the set of free-form labels this rule belongs to.
	Groups map[string]struct{}

	// Constraint is optional; nil means unconstrained.
	Constraint *Constraint

	// GrepHeuristics holds plaintext fragments derived from hole
	// bindings that actually occur in Query (populated by
	// DeriveGrepHeuristics, not at construction time).
	GrepHeuristics []string

	// instantiated marks a frozen, hole-substituted copy: re-deriving
	// grep heuristics or re-instantiating such a copy is a programming
	// error, not a recoverable one.
	instantiated bool
}

// New constructs an uninstantiated rule. holes is the explicit list of tag
// names this rule requires (a rules.toml entry's "holes" key) — it is never
// derived by scanning Query/Replace for `@name` tokens, because a query's
// own tree-sitter captures share that same syntax with substitution holes
// and are not reliably distinguishable from them by text alone. A rule
// with no holes performs no substitution at all: its Query/Replace are
// used verbatim, captures included. Groups starts empty.
func New(name, query, replaceNode, replace string, holes []string) *Rule {
	h := make(map[string]struct{}, len(holes))
	for _, hole := range holes {
		h[hole] = struct{}{}
	}
	return &Rule{
		Name:        name,
		Query:       query,
		ReplaceNode: replaceNode,
		Replace:     replace,
		Holes:       h,
		Groups:      make(map[string]struct{}),
	}
}

// AddToGroup adds label to the rule's group membership.
func (r *Rule) AddToGroup(label string) {
	if r.Groups == nil {
		r.Groups = make(map[string]struct{})
	}
	r.Groups[label] = struct{}{}
}

// IsFeatureFlagCleanup reports whether r belongs to the reserved
// "Feature-flag API cleanup" group.
func (r *Rule) IsFeatureFlagCleanup() bool {
	_, ok := r.Groups[FeatureFlagCleanupGroup]
	return ok
}

// Instantiable reports whether every hole in r.Holes is bound in tags.
func (r *Rule) Instantiable(tags tagsub.TagMap) bool {
	for h := range r.Holes {
		if _, ok := tags[h]; !ok {
			return false
		}
	}
	return true
}

// TryInstantiate substitutes holes into Query and Replace, returning an
// error that names the first unbound hole it finds rather than panicking.
// The Constraint, if any, is carried over unresolved.
func (r *Rule) TryInstantiate(tags tagsub.TagMap) (*Rule, error) {
	for h := range r.Holes {
		if _, ok := tags[h]; !ok {
			return nil, fmt.Errorf("rule %q: hole %q is unbound", r.Name, h)
		}
	}
	return r.instantiate(tags), nil
}

// Instantiate substitutes holes into Query and Replace. It panics if any
// required hole is unbound; callers must pre-check with Instantiable (or
// prefer TryInstantiate) — this variant is for callers who have already
// verified instantiability.
func (r *Rule) Instantiate(tags tagsub.TagMap) *Rule {
	for h := range r.Holes {
		if _, ok := tags[h]; !ok {
			panic(fmt.Sprintf("rule %q: hole %q is unbound", r.Name, h))
		}
	}
	return r.instantiate(tags)
}

func (r *Rule) instantiate(tags tagsub.TagMap) *Rule {
	relevant := relevantSubstitutions(r.Holes, tags)
	substitutedQuery := tagsub.Substitute(r.Query, relevant)
	out := &Rule{
		Name:         r.Name,
		Query:        substitutedQuery,
		ReplaceNode:  r.ReplaceNode,
		Replace:      tagsub.Substitute(r.Replace, relevant),
		Holes:        map[string]struct{}{},
		Groups:       copyGroups(r.Groups),
		Constraint:   r.Constraint,
		instantiated: true,
	}
	out.GrepHeuristics = deriveGrepHeuristics(substitutedQuery, r.Holes, tags)
	return out
}

// relevantSubstitutions restricts tags to the names in holes, matching the
// original implementation's "relevant_substitutions": a tag whose name
// isn't a declared hole of this rule is never used to rewrite Query or
// Replace, even if present in the caller's wider tag map.
func relevantSubstitutions(holes map[string]struct{}, tags tagsub.TagMap) tagsub.TagMap {
	out := make(tagsub.TagMap, len(holes))
	for h := range holes {
		if v, ok := tags[h]; ok {
			out[h] = v
		}
	}
	return out
}

// DeriveGrepHeuristics populates GrepHeuristics from this rule's declared
// Holes whose bound text actually occurs in Query once substituted. Holes
// that only appear in Replace do not become heuristics: they never
// restrict which files could possibly need the rule's match.
func (r *Rule) DeriveGrepHeuristics(tags tagsub.TagMap) {
	substituted := tagsub.Substitute(r.Query, relevantSubstitutions(r.Holes, tags))
	r.GrepHeuristics = deriveGrepHeuristics(substituted, r.Holes, tags)
}

func deriveGrepHeuristics(query string, holes map[string]struct{}, tags tagsub.TagMap) []string {
	var heuristics []string
	for h := range holes {
		val, ok := tags[h]
		if !ok || val == "" {
			continue
		}
		if tagsub.Contains(query, val) {
			heuristics = append(heuristics, val)
		}
	}
	return heuristics
}

func copyGroups(groups map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(groups))
	for k := range groups {
		out[k] = struct{}{}
	}
	return out
}
