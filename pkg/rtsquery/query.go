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

// Package rtsquery wraps go-tree-sitter's S-expression query engine
// (sitter.Query / sitter.QueryCursor) behind the small surface the rule
// graph actually needs: run a query over a node, get back every match as a
// name->node capture map, ordered deepest-first-then-earliest-byte-offset.
package rtsquery

import (
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// Match is one query match: capture name -> captured node, plus the
// byte range and depth of the capture named by primary (used for
// ordering and for locating the edit range).
type Match struct {
	Captures map[string]*sitter.Node
	// Primary is the capture that anchors this match's position for
	// ordering purposes: the capture with the smallest start byte (the
	// first one reported, on a tie).
	Primary *sitter.Node
	depth   int
}

// Run compiles pattern against lang and executes it over root, returning
// every match. root may be a sub-node (for scope-restricted execution) or
// the tree's root node (unrestricted).
func Run(pattern string, lang *sitter.Language, root *sitter.Node, content []byte) ([]Match, error) {
	q, err := sitter.NewQuery([]byte(pattern), lang)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	depth := depthIndex(root)

	var matches []Match
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		captures := make(map[string]*sitter.Node, len(m.Captures))
		var anchor *sitter.Node
		for _, c := range m.Captures {
			name := q.CaptureNameForId(c.Index)
			node := c.Node
			captures[name] = node
			if anchor == nil || node.StartByte() < anchor.StartByte() {
				anchor = node
			}
		}
		if anchor == nil {
			continue
		}
		matches = append(matches, Match{
			Captures: captures,
			Primary:  anchor,
			depth:    depth(anchor),
		})
	}

	// Deepest-first, then earliest-by-byte-offset.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].depth != matches[j].depth {
			return matches[i].depth > matches[j].depth
		}
		return matches[i].Primary.StartByte() < matches[j].Primary.StartByte()
	})

	return matches, nil
}

// depthIndex returns a function computing a node's depth relative to root
// by walking Parent() pointers. go-tree-sitter nodes carry parent links,
// so this is O(depth) per node rather than requiring a separate walk.
func depthIndex(root *sitter.Node) func(*sitter.Node) int {
	rootID := root
	return func(n *sitter.Node) int {
		depth := 0
		cur := n
		for cur != nil {
			if sameNode(cur, rootID) {
				return depth
			}
			cur = cur.Parent()
			depth++
			if depth > 100000 {
				// Defensive bound; a real tree never nests this deep.
				return depth
			}
		}
		return depth
	}
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// HasAnyMatch reports whether pattern has at least one match within root —
// the primitive behind constraint predicate evaluation: All/Any/None are all expressed as counts of per-sub-query
// HasAnyMatch results.
func HasAnyMatch(pattern string, lang *sitter.Language, root *sitter.Node, content []byte) (bool, error) {
	matches, err := Run(pattern, lang, root, content)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}
