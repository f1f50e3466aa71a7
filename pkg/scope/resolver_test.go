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

package scope

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/piranha/pkg/rtsquery"
	"github.com/kraklabs/piranha/pkg/rule"
)

const goMethodScopeSample = `package sample

type Server struct{}

func (s *Server) Handle() {
	if isTreated("FOO") {
		doSomething()
	}
}
`

func parseGo(t *testing.T, src string) (*sitter.Tree, []byte) {
	t.Helper()
	lang := golang.GetLanguage()
	p := sitter.NewParser()
	p.SetLanguage(lang)
	content := []byte(src)
	tree, err := p.ParseCtx(context.Background(), nil, content)
	require.NoError(t, err)
	return tree, content
}

func TestResolveMethodScope(t *testing.T) {
	tree, content := parseGo(t, goMethodScopeSample)
	defer tree.Close()
	lang := golang.GetLanguage()

	calls, err := rtsquery.Run(`(call_expression function: (identifier) @fn) @call`, lang, tree.RootNode(), content)
	require.NoError(t, err)
	require.NotEmpty(t, calls)

	var isTreatedCall *sitter.Node
	for _, m := range calls {
		if string(content[m.Captures["fn"].StartByte():m.Captures["fn"].EndByte()]) == "isTreated" {
			isTreatedCall = m.Captures["call"]
		}
	}
	require.NotNil(t, isTreatedCall)

	reg := NewRegistry([]rule.Scope{
		{
			Name: rule.ScopeMethod,
			Pairs: []rule.ScopeMatcherPair{
				{
					Matcher:   `(method_declaration name: (field_identifier) @method_name) @method`,
					Generator: `(method_declaration name: (field_identifier) @method_name (#eq? @method_name "@method_name")) @method`,
				},
			},
		},
	})

	resolved, err := reg.Resolve(rule.ScopeMethod, isTreatedCall, lang, content)
	require.NoError(t, err)
	require.NotNil(t, resolved.Node)
	require.Equal(t, "method_declaration", resolved.Node.Type())
	require.Contains(t, resolved.Query, "Handle")
}

func TestResolveParentScope(t *testing.T) {
	tree, content := parseGo(t, goMethodScopeSample)
	defer tree.Close()
	lang := golang.GetLanguage()

	reg := NewRegistry(nil)
	calls, err := rtsquery.Run(`(call_expression) @call`, lang, tree.RootNode(), content)
	require.NoError(t, err)
	require.NotEmpty(t, calls)

	resolved, err := reg.Resolve(rule.ScopeParent, calls[0].Primary, lang, content)
	require.NoError(t, err)
	require.Equal(t, calls[0].Primary.Parent().StartByte(), resolved.Node.StartByte())
}

func TestResolveGlobalScopeHasNoRestriction(t *testing.T) {
	reg := NewRegistry(nil)
	resolved, err := reg.Resolve(rule.ScopeGlobal, nil, nil, nil)
	require.NoError(t, err)
	require.Nil(t, resolved.Node)
	require.Empty(t, resolved.Query)
}

func TestResolveUnknownScopeErrors(t *testing.T) {
	tree, content := parseGo(t, goMethodScopeSample)
	defer tree.Close()
	lang := golang.GetLanguage()

	reg := NewRegistry(nil)
	calls, err := rtsquery.Run(`(call_expression) @call`, lang, tree.RootNode(), content)
	require.NoError(t, err)

	_, err = reg.Resolve("NoSuchScope", calls[0].Primary, lang, content)
	require.Error(t, err)
}
