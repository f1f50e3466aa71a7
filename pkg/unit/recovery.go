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

package unit

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// CorruptionError signals unrecoverable syntax corruption. The final source is attached for diagnostics.
type CorruptionError struct {
	Path        string
	FinalSource string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("unrecoverable syntax corruption in %s", e.Path)
}

// recover implements the three-step recovery ladder after an edit left
// the tree with errors:
//
//  1. Post-order, try deleting each extra "," node; stop at the first
//     deletion that clears the error, else revert and keep looking.
//  2. Apply two textual regex fixes in order (collapse doubled commas,
//     drop a leading-comma bracket) and reparse.
//  3. If still errored, the edit is catastrophic: return a
//     *CorruptionError for the caller to surface as a fatal, per-file
//     abort.
func (u *SourceCodeUnit) recover(_ Edit, erroredCode []byte, erroredTree *sitter.Tree) error {
	preAttemptCode := u.Code

	if fixed, ok := u.tryDeleteExtraCommas(erroredCode, erroredTree); ok {
		u.Code = fixed.code
		u.Tree.Close()
		u.Tree = fixed.tree
		return nil
	}
	erroredTree.Close()

	code := erroredCode
	for _, step := range recoverySteps {
		code = step.pattern.ReplaceAll(code, []byte(step.repl))
	}

	if err := u.ApplyEditReplaceAll(code); err != nil {
		return err
	}
	if !u.Tree.RootNode().HasError() {
		return nil
	}

	final := string(u.Code)
	if err := u.ApplyEditReplaceAll(preAttemptCode); err != nil {
		return err
	}
	return &CorruptionError{Path: u.Path, FinalSource: final}
}

type deletionAttempt struct {
	code []byte
	tree *sitter.Tree
}

// tryDeleteExtraCommas walks erroredTree post-order; for each extra node
// whose text is exactly ",", it deletes that byte range and reparses from
// scratch to check whether the error cleared. It stops at the first
// success.
func (u *SourceCodeUnit) tryDeleteExtraCommas(erroredCode []byte, erroredTree *sitter.Tree) (deletionAttempt, bool) {
	var candidates []*sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
		if n.IsExtra() && string(erroredCode[n.StartByte():n.EndByte()]) == "," {
			candidates = append(candidates, n)
		}
	}
	walk(erroredTree.RootNode())

	for _, c := range candidates {
		attemptCode := make([]byte, 0, len(erroredCode)-1)
		attemptCode = append(attemptCode, erroredCode[:c.StartByte()]...)
		attemptCode = append(attemptCode, erroredCode[c.EndByte():]...)

		u.Parser.SetLanguage(u.Lang)
		attemptTree, err := u.Parser.ParseCtx(context.Background(), nil, attemptCode)
		if err != nil {
			continue
		}
		if !attemptTree.RootNode().HasError() {
			return deletionAttempt{code: attemptCode, tree: attemptTree}, true
		}
		attemptTree.Close()
	}
	return deletionAttempt{}, false
}
