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

// Package scope implements the Scope Resolver: given a
// matched node and a named scope, it walks ancestors and constructs a
// concrete tree-sitter query locating the node's enclosing scope.
package scope

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/piranha/pkg/rtsquery"
	"github.com/kraklabs/piranha/pkg/rule"
	"github.com/kraklabs/piranha/pkg/tagsub"
)

// Registry holds the named Scope definitions bundled for one language
// (loaded from scope_config.toml).
type Registry struct {
	scopes map[string]*rule.Scope
}

// NewRegistry builds a Registry from the given scopes.
func NewRegistry(scopes []rule.Scope) *Registry {
	r := &Registry{scopes: make(map[string]*rule.Scope, len(scopes))}
	for i := range scopes {
		s := scopes[i]
		r.scopes[s.Name] = &s
	}
	return r
}

// Resolved is the outcome of resolving a scope: either Query (a
// tag-substituted generator query restricting subsequent matches to
// Node), with Node == nil meaning "no restriction" (the Global scope).
type Resolved struct {
	Node  *sitter.Node
	Query string
}

// Resolve locates the enclosing scope of matched within lang/content.
// For ScopeParent, the enclosing node is simply matched.Parent(). For
// ScopeGlobal, no restriction is applied (Resolved.Node is nil). For any
// other (including user-defined) scope name, Resolve looks the scope up
// in the registry and walks ancestors, trying each matcher in declared
// order; among ancestors where a given matcher captures, the outermost
// one wins.
func (r *Registry) Resolve(scopeName string, matched *sitter.Node, lang *sitter.Language, content []byte) (*Resolved, error) {
	switch scopeName {
	case rule.ScopeGlobal:
		return &Resolved{}, nil
	case rule.ScopeParent:
		parent := matched.Parent()
		if parent == nil {
			return nil, fmt.Errorf("scope %q: matched node has no parent", scopeName)
		}
		return &Resolved{Node: parent}, nil
	}

	sc, ok := r.scopes[scopeName]
	if !ok {
		return nil, fmt.Errorf("scope %q: not defined in scope config", scopeName)
	}

	ancestors := ancestorChain(matched)

	for _, pair := range sc.Pairs {
		var (
			winner   *sitter.Node
			captures map[string]*sitter.Node
		)
		// Ancestors are ordered innermost-first; scan the whole chain so
		// we can apply the outermost-wins tie-break below.
		for _, anc := range ancestors {
			matches, err := rtsquery.Run(pair.Matcher, lang, anc, content)
			if err != nil {
				return nil, fmt.Errorf("scope %q matcher: %w", scopeName, err)
			}
			for _, m := range matches {
				if !sameRange(m.Primary, anc) {
					continue
				}
				// anc itself is of the shape pair.Matcher describes.
				// Outermost-wins: ancestors later in the chain are
				// further from matched, so always prefer the latest
				// hit.
				winner = anc
				captures = m.Captures
			}
		}
		if winner != nil {
			generator := instantiateGenerator(pair.Generator, captures, content)
			return &Resolved{Node: winner, Query: generator}, nil
		}
	}

	return nil, fmt.Errorf("scope %q: no enclosing node found for match", scopeName)
}

// ancestorChain returns node's ancestors, innermost (direct parent) first,
// ending at the tree root.
func ancestorChain(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	cur := node.Parent()
	for cur != nil {
		out = append(out, cur)
		cur = cur.Parent()
	}
	return out
}

func sameRange(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// instantiateGenerator substitutes a matcher's captured node text into the
// scope's generator template, keyed by capture name.
func instantiateGenerator(generator string, captures map[string]*sitter.Node, content []byte) string {
	tags := make(tagsub.TagMap, len(captures))
	for name, node := range captures {
		tags[name] = string(content[node.StartByte():node.EndByte()])
	}
	return tagsub.Substitute(generator, tags)
}
