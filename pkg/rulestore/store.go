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

// Package rulestore implements the Rule Store: the
// authoritative, in-memory registry of active rules partitioned by
// lifecycle class, and the sole interpreter of edge semantics (scope
// restriction vs. global-rule promotion).
package rulestore

import (
	"fmt"
	"sync"

	"github.com/kraklabs/piranha/pkg/rule"
	"github.com/kraklabs/piranha/pkg/tagsub"
)

// Target is one resolved outgoing edge destination: the scope it should
// fire under, and the instantiated rule (nil + non-nil Err when the
// target could not be instantiated because a hole was unbound, a
// diagnostic rather than a fatal error).
type Target struct {
	Scope string
	Rule  *rule.Rule
	Err   error
}

// Store is the rule graph's runtime state: seed/method/class/global
// partitions plus the compiled edge adjacency.
type Store struct {
	mu sync.Mutex

	templates    map[string]*rule.Rule
	groupMembers map[string][]string
	edges        map[string][]rule.Edge

	seedTags tagsub.TagMap

	seed        []*rule.Rule
	method      map[string]*rule.Rule
	class       map[string]*rule.Rule
	global      map[string]*rule.Rule
	partitionOf map[string]string // name -> "method" | "class" | "global"
}

// New builds a Store from the full rule-template catalog (as loaded from
// rules.toml, including bundled per-language cleanup rules), the edge
// adjacency (edges.toml), and the seed tag map (flag_name, namespace,
// treated, treated_complement, plus any extra substitutions). Every
// template in the reserved "Feature-flag API cleanup" group is
// instantiated immediately into the seed partition; templates whose
// holes aren't yet bound by seedTags are skipped with a diagnostic
//, not treated as fatal.
func New(templates []*rule.Rule, edges []rule.Edge, seedTags tagsub.TagMap) (*Store, []error) {
	s := &Store{
		templates:    make(map[string]*rule.Rule, len(templates)),
		groupMembers: make(map[string][]string),
		edges:        make(map[string][]rule.Edge),
		seedTags:     tagsub.TagMap{},
		method:       make(map[string]*rule.Rule),
		class:        make(map[string]*rule.Rule),
		global:       make(map[string]*rule.Rule),
		partitionOf:  make(map[string]string),
	}
	for k, v := range seedTags {
		s.seedTags[k] = v
	}
	for _, t := range templates {
		s.templates[t.Name] = t
		for g := range t.Groups {
			s.groupMembers[g] = append(s.groupMembers[g], t.Name)
		}
	}
	for _, e := range edges {
		s.edges[e.From] = append(s.edges[e.From], e)
	}

	var diagnostics []error
	for _, t := range templates {
		if !t.IsFeatureFlagCleanup() {
			continue
		}
		inst, err := t.TryInstantiate(s.seedTags)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Errorf("seed rule %q not instantiated: %w", t.Name, err))
			continue
		}
		s.seed = append(s.seed, inst)
	}

	return s, diagnostics
}

// AddToInputSubstitutions extends the seed tag map with globally visible
// bindings — callers are expected to have already filtered to
// "global_var_"-prefixed tags.
func (s *Store) AddToInputSubstitutions(pairs tagsub.TagMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range pairs {
		s.seedTags[k] = v
	}
}

// SeedTags returns a snapshot copy of the current seed tag map.
func (s *Store) SeedTags() tagsub.TagMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tagsub.Merge(s.seedTags, nil)
}

// SeedRules returns the process-wide seed rules (immutable after
// construction).
func (s *Store) SeedRules() []*rule.Rule {
	out := make([]*rule.Rule, len(s.seed))
	copy(out, s.seed)
	return out
}

// GlobalRules returns the current global-rule partition.
func (s *Store) GlobalRules() []*rule.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mapValues(s.global)
}

// MethodRules returns the current method-scoped partition.
func (s *Store) MethodRules() []*rule.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mapValues(s.method)
}

// ClassRules returns the current class-scoped partition.
func (s *Store) ClassRules() []*rule.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mapValues(s.class)
}

// AddGlobalRule idempotently inserts rule into the global partition,
// moving it out of method/class if it was previously promoted there:
// promotion is a move, not a copy. Returns true if this call actually
// changed global_rules (used by the Flag Cleaner's outer loop to detect
// new promotions).
func (s *Store) AddGlobalRule(r *rule.Rule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addGlobalLocked(r)
}

func (s *Store) addGlobalLocked(r *rule.Rule) bool {
	if s.partitionOf[r.Name] == "global" {
		return false
	}
	s.removeFromCurrentPartitionLocked(r.Name)
	s.global[r.Name] = r
	s.partitionOf[r.Name] = "global"
	return true
}

func (s *Store) addMethodRule(r *rule.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partitionOf[r.Name] == "global" {
		// Already promoted; a global rule is never demoted back down.
		return
	}
	s.removeFromCurrentPartitionLocked(r.Name)
	s.method[r.Name] = r
	s.partitionOf[r.Name] = "method"
}

func (s *Store) addClassRule(r *rule.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partitionOf[r.Name] == "global" {
		return
	}
	s.removeFromCurrentPartitionLocked(r.Name)
	s.class[r.Name] = r
	s.partitionOf[r.Name] = "class"
}

func (s *Store) removeFromCurrentPartitionLocked(name string) {
	switch s.partitionOf[name] {
	case "method":
		delete(s.method, name)
	case "class":
		delete(s.class, name)
	case "global":
		delete(s.global, name)
	}
}

// Outgoing expands the outgoing edges of fromName, resolving group-valued
// endpoints to their current template members and skipping endpoints that
// aren't instantiable against tags (seed tags merged with the caller's
// file-accumulated tags, file tags taking precedence). Method/Class
// targets are appended to their partitions as a side effect (the store is
// the only mutator of the rule graph); Global targets are promoted via
// AddGlobalRule and also returned so the caller can observe and log the
// promotion, but the caller must not enqueue a Global target against the
// current file — it will be picked up project-wide on a later pass.
func (s *Store) Outgoing(fromName string, fileTags tagsub.TagMap) []Target {
	effective := tagsub.Merge(s.SeedTags(), fileTags)

	s.mu.Lock()
	edges := append([]rule.Edge(nil), s.edges[fromName]...)
	s.mu.Unlock()

	var out []Target
	for _, e := range edges {
		for _, name := range s.expandEndpoints(e.To) {
			tmpl, ok := s.templates[name]
			if !ok {
				out = append(out, Target{Scope: e.Scope, Err: fmt.Errorf("edge target %q: no such rule or group", name)})
				continue
			}
			inst, err := tmpl.TryInstantiate(effective)
			if err != nil {
				out = append(out, Target{Scope: e.Scope, Err: err})
				continue
			}
			switch e.Scope {
			case rule.ScopeGlobal:
				s.AddGlobalRule(inst)
			case rule.ScopeMethod:
				s.addMethodRule(inst)
			case rule.ScopeClass:
				s.addClassRule(inst)
			}
			out = append(out, Target{Scope: e.Scope, Rule: inst})
		}
	}
	return out
}

// expandEndpoints resolves each entry of to into one or more template
// names: a literal rule name passes through unchanged; a group name
// expands to every template currently carrying that group label.
func (s *Store) expandEndpoints(to []string) []string {
	var names []string
	for _, t := range to {
		if _, isRule := s.templates[t]; isRule {
			names = append(names, t)
			continue
		}
		if members, isGroup := s.groupMembers[t]; isGroup {
			names = append(names, members...)
			continue
		}
		// Neither a known rule nor a known group; pass through so the
		// caller surfaces a clear "no such rule or group" diagnostic.
		names = append(names, t)
	}
	return names
}

func mapValues(m map[string]*rule.Rule) []*rule.Rule {
	out := make([]*rule.Rule, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}
