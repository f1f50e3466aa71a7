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

// Package config loads the TOML-shaped rule graph configuration and the
// piranha_arguments seed substitutions, plus the project-level
// .piranha/project.yaml that records the default language and config
// directory.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	pirerrors "github.com/kraklabs/piranha/internal/errors"
	"github.com/kraklabs/piranha/pkg/rule"
	"github.com/kraklabs/piranha/pkg/tagsub"
)

// RuleConfig is one rules.toml table entry.
type RuleConfig struct {
	Name        string            `toml:"name"`
	Query       string            `toml:"query"`
	ReplaceNode string            `toml:"replace_node"`
	Replace     string            `toml:"replace"`
	Holes       []string          `toml:"holes"`
	Groups      []string          `toml:"groups"`
	Constraint  *ConstraintConfig `toml:"constraint"`
}

// ConstraintConfig is the TOML shape of a rule.Constraint.
type ConstraintConfig struct {
	Matcher   string   `toml:"matcher"`
	Queries   []string `toml:"queries"`
	Predicate string   `toml:"predicate"`
}

// rulesFile is the top-level shape of rules.toml: a table list under
// `[[rules]]`.
type rulesFile struct {
	Rules []RuleConfig `toml:"rules"`
}

// EdgeConfig is one edges.toml table entry.
type EdgeConfig struct {
	From  string   `toml:"from"`
	To    []string `toml:"to"`
	Scope string   `toml:"scope"`
}

type edgesFile struct {
	Edges []EdgeConfig `toml:"edges"`
}

// ScopeConfig is one scope_config.toml named scope entry.
type ScopeConfig struct {
	Name  string              `toml:"name"`
	Pairs []ScopePairConfig   `toml:"pairs"`
}

// ScopePairConfig is a single (matcher, matcher_gen) pair.
type ScopePairConfig struct {
	Matcher    string `toml:"matcher"`
	MatcherGen string `toml:"matcher_gen"`
}

type scopesFile struct {
	Scopes []ScopeConfig `toml:"scopes"`
}

// Arguments is the decoded piranha_arguments file: the
// required language/flag_name/flag_namespace/flag_value plus any extra
// substitutions.
type Arguments struct {
	Language      string            `toml:"language"`
	FlagName      string            `toml:"flag_name"`
	FlagNamespace string            `toml:"flag_namespace"`
	FlagValue     bool              `toml:"flag_value"`
	Substitutions map[string]string `toml:"substitutions"`
}

// SeedTags builds the seed tag bindings from Arguments:
// stale_flag_name, treated, treated_complement, namespace, plus any
// extra substitutions the config supplies.
func (a *Arguments) SeedTags() tagsub.TagMap {
	treated := "false"
	complement := "true"
	if a.FlagValue {
		treated, complement = "true", "false"
	}
	tags := tagsub.TagMap{
		"stale_flag_name":    a.FlagName,
		"treated":            treated,
		"treated_complement": complement,
		"namespace":          a.FlagNamespace,
	}
	for k, v := range a.Substitutions {
		tags[k] = v
	}
	return tags
}

// LoadRules decodes a rules.toml file into Rule templates.
func LoadRules(path string) ([]*rule.Rule, error) {
	var f rulesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, pirerrors.NewConfigError(
			"cannot load rules config",
			fmt.Sprintf("failed to parse %s", path),
			"check the file is valid TOML with a [[rules]] table list",
			err,
		)
	}
	rules := make([]*rule.Rule, 0, len(f.Rules))
	for _, rc := range f.Rules {
		r := rule.New(rc.Name, rc.Query, rc.ReplaceNode, rc.Replace, rc.Holes)
		for _, g := range rc.Groups {
			r.AddToGroup(g)
		}
		if rc.Constraint != nil {
			r.Constraint = &rule.Constraint{
				Matcher:   rc.Constraint.Matcher,
				Queries:   rc.Constraint.Queries,
				Predicate: rule.Predicate(rc.Constraint.Predicate),
			}
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// LoadEdges decodes an edges.toml file into Edges. A missing file is
// treated as an empty edge set.
func LoadEdges(path string) ([]rule.Edge, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	var f edgesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, pirerrors.NewConfigError(
			"cannot load edges config",
			fmt.Sprintf("failed to parse %s", path),
			"check the file is valid TOML with an [[edges]] table list",
			err,
		)
	}
	edges := make([]rule.Edge, 0, len(f.Edges))
	for _, ec := range f.Edges {
		edges = append(edges, rule.Edge{From: ec.From, To: ec.To, Scope: ec.Scope})
	}
	return edges, nil
}

// LoadScopes decodes a scope_config.toml file into rule.Scope values.
func LoadScopes(path string) ([]rule.Scope, error) {
	var f scopesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, pirerrors.NewConfigError(
			"cannot load scope config",
			fmt.Sprintf("failed to parse %s", path),
			"check the file is valid TOML with a [[scopes]] table list",
			err,
		)
	}
	scopes := make([]rule.Scope, 0, len(f.Scopes))
	for _, sc := range f.Scopes {
		s := rule.Scope{Name: sc.Name}
		for _, p := range sc.Pairs {
			s.Pairs = append(s.Pairs, rule.ScopeMatcherPair{Matcher: p.Matcher, Generator: p.MatcherGen})
		}
		scopes = append(scopes, s)
	}
	return scopes, nil
}

// LoadArguments decodes the piranha_arguments file (TOML-shaped).
func LoadArguments(path string) (*Arguments, error) {
	var a Arguments
	if _, err := toml.DecodeFile(path, &a); err != nil {
		return nil, pirerrors.NewConfigError(
			"cannot load piranha arguments",
			fmt.Sprintf("failed to parse %s", path),
			"check the file defines language, flag_name, flag_namespace, flag_value",
			err,
		)
	}
	return &a, nil
}

// ProjectFile is the shape of .piranha/project.yaml: the default language
// and the config directory holding rules.toml/edges.toml for that
// language.
type ProjectFile struct {
	Language  string `yaml:"language"`
	ConfigDir string `yaml:"config_dir"`
}

// LoadProjectFile decodes .piranha/project.yaml.
func LoadProjectFile(path string) (*ProjectFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pirerrors.NewConfigError(
			"cannot read project file",
			path,
			"run 'piranha init' to create .piranha/project.yaml",
			err,
		)
	}
	var pf ProjectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, pirerrors.NewConfigError(
			"cannot parse project file",
			fmt.Sprintf("failed to parse %s", path),
			"check the file is valid YAML with language and config_dir keys",
			err,
		)
	}
	return &pf, nil
}
