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

// Package unit implements the Source Code Unit: a file's
// AST plus text plus accumulated tag bindings. It applies edits, performs
// tree-sitter incremental re-parse, and runs local syntax recovery.
//
// The incremental-reparse shape (pass the prior *sitter.Tree back into
// ParseCtx, then check rootNode.HasError()) generalizes a one-shot parse
// into an actual edit-and-reparse loop; when the reparsed tree has errors,
// the recovery ladder in recovery.go takes over.
package unit

import (
	"context"
	"fmt"
	"os"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/piranha/pkg/tagsub"
)

// Publisher receives tag bindings that begin with "global_var_" so they
// can be published into the Rule Store's seed tag map. It is satisfied
// by *rulestore.Store without importing it here, keeping unit free of a
// dependency on rulestore.
type Publisher interface {
	AddToInputSubstitutions(pairs tagsub.TagMap)
}

// Edit describes a single textual replacement: bytes [Start, OldEnd) of
// the unit's code are replaced by NewText.
type Edit struct {
	Start   uint32
	OldEnd  uint32
	NewText string
}

// SourceCodeUnit is a file's AST + text + accumulated tag bindings
//. Its invariant: after any edit returns success, the root
// node is either error-free or the edit has been reverted.
type SourceCodeUnit struct {
	Path    string
	Code    []byte
	Tags    tagsub.TagMap
	Tree    *sitter.Tree
	Lang    *sitter.Language
	Parser  *sitter.Parser
	deleted bool
}

// New constructs a Source Code Unit from an initial parse of content.
func New(path string, content []byte, lang *sitter.Language, parser *sitter.Parser) (*SourceCodeUnit, error) {
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &SourceCodeUnit{
		Path:   path,
		Code:   content,
		Tags:   make(tagsub.TagMap),
		Tree:   tree,
		Lang:   lang,
		Parser: parser,
	}, nil
}

// Close releases the underlying tree-sitter tree.
func (u *SourceCodeUnit) Close() {
	if u.Tree != nil {
		u.Tree.Close()
		u.Tree = nil
	}
}

// ApplyEditDry computes the resulting text for edit without mutating the
// unit, so callers (the engine) can inspect match ranges before committing.
func (u *SourceCodeUnit) ApplyEditDry(edit Edit) []byte {
	out := make([]byte, 0, len(u.Code)-int(edit.OldEnd-edit.Start)+len(edit.NewText))
	out = append(out, u.Code[:edit.Start]...)
	out = append(out, []byte(edit.NewText)...)
	out = append(out, u.Code[edit.OldEnd:]...)
	return out
}

// ApplyEdit performs the textual replacement, asks the parser for an
// incremental reparse against the prior tree, and runs recovery if the
// resulting tree has syntax errors.
func (u *SourceCodeUnit) ApplyEdit(edit Edit) error {
	newCode := u.ApplyEditDry(edit)
	newTree, err := u.reparseIncremental(edit, newCode)
	if err != nil {
		return err
	}

	if newTree.RootNode().HasError() {
		return u.recover(edit, newCode, newTree)
	}

	u.Tree.Close()
	u.Tree = newTree
	u.Code = newCode
	return nil
}

// reparseIncremental informs the prior tree of the edit's byte/point
// ranges, then asks the parser to reparse, handing it the prior tree so
// tree-sitter can reuse unaffected subtrees.
func (u *SourceCodeUnit) reparseIncremental(edit Edit, newCode []byte) (*sitter.Tree, error) {
	input := sitter.EditInput{
		StartIndex:  edit.Start,
		OldEndIndex: edit.OldEnd,
		NewEndIndex: edit.Start + uint32(len(edit.NewText)),
	}
	u.Tree.Edit(input)

	u.Parser.SetLanguage(u.Lang)
	newTree, err := u.Parser.ParseCtx(context.Background(), u.Tree, newCode)
	if err != nil {
		return nil, fmt.Errorf("reparse %s: %w", u.Path, err)
	}
	return newTree, nil
}

// ApplyEditReplaceAll performs a full (non-incremental) reparse of text;
// used by recovery to revert a failed edit attempt.
func (u *SourceCodeUnit) ApplyEditReplaceAll(text []byte) error {
	u.Parser.SetLanguage(u.Lang)
	tree, err := u.Parser.ParseCtx(context.Background(), nil, text)
	if err != nil {
		return fmt.Errorf("reparse %s: %w", u.Path, err)
	}
	if u.Tree != nil {
		u.Tree.Close()
	}
	u.Tree = tree
	u.Code = text
	return nil
}

// Persist writes the unit's code to disk, or deletes the file if the code
// is empty after cleanup.
func (u *SourceCodeUnit) Persist() error {
	if len(trimBlank(u.Code)) == 0 {
		u.deleted = true
		if err := os.Remove(u.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", u.Path, err)
		}
		return nil
	}
	if err := os.WriteFile(u.Path, u.Code, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", u.Path, err)
	}
	return nil
}

// Deleted reports whether Persist removed this unit's file.
func (u *SourceCodeUnit) Deleted() bool { return u.deleted }

// AddToSubstitutions extends the unit's local tags, monotonically
//. Any binding whose tag begins with "global_var_" is also
// published to the rule store's seed tag map.
func (u *SourceCodeUnit) AddToSubstitutions(pairs tagsub.TagMap, store Publisher) {
	if u.Tags == nil {
		u.Tags = make(tagsub.TagMap)
	}
	globals := make(tagsub.TagMap)
	for k, v := range pairs {
		u.Tags[k] = v
		if hasGlobalVarPrefix(k) {
			globals[k] = v
		}
	}
	if len(globals) > 0 && store != nil {
		store.AddToInputSubstitutions(globals)
	}
}

const globalVarPrefix = "global_var_"

func hasGlobalVarPrefix(tag string) bool {
	if len(tag) < len(globalVarPrefix) {
		return false
	}
	return tag[:len(globalVarPrefix)] == globalVarPrefix
}

func trimBlank(code []byte) []byte {
	i, j := 0, len(code)
	for i < j && isBlank(code[i]) {
		i++
	}
	for j > i && isBlank(code[j-1]) {
		j--
	}
	return code[i:j]
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// recoverySteps holds the two textual regex repairs applied in order by
// recovery step 2; lifted verbatim from the original
// Piranha's utilities/mod.rs comma/bracket repair, not reinvented.
var recoverySteps = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`,\s*\n*,`), ","},
	{regexp.MustCompile(`\[\s*\n*,`), "["},
}
