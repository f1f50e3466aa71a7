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

// Package engine implements the Rule Engine: the per-file
// inner loop that selects candidate rules, runs their queries, validates
// constraints, applies one edit at a time, and propagates along outgoing
// edges until the file's work queue drains.
package engine

import (
	"fmt"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/piranha/internal/metrics"
	"github.com/kraklabs/piranha/pkg/rtsquery"
	"github.com/kraklabs/piranha/pkg/rule"
	"github.com/kraklabs/piranha/pkg/rulestore"
	"github.com/kraklabs/piranha/pkg/scope"
	"github.com/kraklabs/piranha/pkg/tagsub"
	"github.com/kraklabs/piranha/pkg/unit"
)

// Engine drives a single Source Code Unit to a fixed point against the
// rules currently active in Store.
type Engine struct {
	Store  *rulestore.Store
	Scopes *scope.Registry
	Lang   *sitter.Language
	Logger *slog.Logger
}

// queueItem pairs a rule with the node to search under; Node == nil means
// "search the whole file".
type queueItem struct {
	rule *rule.Rule
	node *sitter.Node
}

// Run drives su to a fixed point: it seeds the queue with the store's
// feature-flag seed rules plus every rule already promoted to global scope
// (a global rule applies across every file, not only the one that
// triggered its promotion, so every file touched after a restart is
// re-scanned against it), then loops popping items, matching,
// validating constraints, applying the deepest-first/earliest-offset
// match, folding captures into su's tags, and propagating along outgoing
// edges. Returns whether any edit was applied.
func (e *Engine) Run(su *unit.SourceCodeUnit) (bool, error) {
	logger := e.logger()
	var queue []queueItem
	for _, r := range e.Store.SeedRules() {
		queue = append(queue, queueItem{rule: r})
	}
	for _, r := range e.Store.GlobalRules() {
		queue = append(queue, queueItem{rule: r})
	}

	edited := false
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		r := item.rule
		if !r.Instantiable(su.Tags) {
			continue
		}

		searchRoot := su.Tree.RootNode()
		if item.node != nil {
			searchRoot = item.node
		}

		matches, err := rtsquery.Run(r.Query, e.Lang, searchRoot, su.Code)
		if err != nil {
			return edited, fmt.Errorf("rule %q: %w", r.Name, err)
		}

		var (
			chosen      *rtsquery.Match
			replaceNode *sitter.Node
		)
		for i := range matches {
			m := &matches[i]
			node, ok := m.Captures[r.ReplaceNode]
			if !ok {
				continue
			}
			if r.Constraint != nil {
				ok, err := e.evalConstraint(r.Constraint, node, su)
				if err != nil {
					return edited, fmt.Errorf("rule %q constraint: %w", r.Name, err)
				}
				if !ok {
					continue
				}
			}
			chosen = m
			replaceNode = node
			break
		}
		if chosen == nil {
			// No match survived constraint evaluation (or no match at
			// all): drop this rule and continue.
			continue
		}

		captureTags := capturesToTags(chosen.Captures, su.Code)
		replacement := tagsub.Substitute(r.Replace, tagsub.Merge(su.Tags, captureTags))

		edit := unit.Edit{
			Start:   replaceNode.StartByte(),
			OldEnd:  replaceNode.EndByte(),
			NewText: replacement,
		}
		if err := su.ApplyEdit(edit); err != nil {
			return edited, err
		}
		edited = true
		metrics.RecordEditApplied(r.Name)
		logger.Info("engine.match.apply", "rule", r.Name, "path", su.Path, "start", edit.Start)

		su.AddToSubstitutions(captureTags, e.Store)

		for _, target := range e.Store.Outgoing(r.Name, su.Tags) {
			if target.Err != nil {
				logger.Debug("engine.edge.skip", "from", r.Name, "err", target.Err)
				continue
			}
			if target.Scope == rule.ScopeGlobal {
				metrics.RecordGlobalPromotion(target.Rule.Name)
				logger.Info("engine.rule.promoted", "rule", target.Rule.Name)
				// Promotion already happened inside Store.Outgoing; this
				// file's queue must not enqueue it.
				continue
			}
			if target.Scope == rule.ScopeMethod || target.Scope == rule.ScopeClass {
				metrics.RecordScopePromotion(target.Scope, target.Rule.Name)
			}

			resolved, err := e.Scopes.Resolve(target.Scope, replaceNode, e.Lang, su.Code)
			if err != nil {
				logger.Debug("engine.scope.skip", "rule", target.Rule.Name, "scope", target.Scope, "err", err)
				continue
			}
			queue = append(queue, queueItem{rule: target.Rule, node: resolved.Node})
		}
	}

	return edited, nil
}

// evalConstraint resolves the constraint's Matcher scope around node, then
// evaluates each sub-query's match-existence inside it, combining results
// per Predicate. Holes in the constraint's queries are re-substituted
// against su's accumulated tags here, at match time.
func (e *Engine) evalConstraint(c *rule.Constraint, node *sitter.Node, su *unit.SourceCodeUnit) (bool, error) {
	resolved, err := e.Scopes.Resolve(c.Matcher, node, e.Lang, su.Code)
	if err != nil {
		return false, nil // scope not found simply fails the constraint
	}
	root := su.Tree.RootNode()
	if resolved.Node != nil {
		root = resolved.Node
	}

	count := 0
	for _, q := range c.Queries {
		substituted := tagsub.Substitute(q, su.Tags)
		ok, err := rtsquery.HasAnyMatch(substituted, e.Lang, root, su.Code)
		if err != nil {
			return false, err
		}
		if ok {
			count++
		}
	}

	switch c.Predicate {
	case rule.All:
		return count == len(c.Queries), nil
	case rule.None:
		return count == 0, nil
	case rule.Any:
		return count > 0, nil
	default:
		return false, fmt.Errorf("unknown predicate %q", c.Predicate)
	}
}

func capturesToTags(captures map[string]*sitter.Node, content []byte) tagsub.TagMap {
	tags := make(tagsub.TagMap, len(captures))
	for name, node := range captures {
		tags[name] = string(content[node.StartByte():node.EndByte()])
	}
	return tags
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
