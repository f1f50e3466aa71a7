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
	"os"
	"path/filepath"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/piranha/pkg/tagsub"
)

type fakePublisher struct {
	received tagsub.TagMap
}

func (f *fakePublisher) AddToInputSubstitutions(pairs tagsub.TagMap) {
	if f.received == nil {
		f.received = make(tagsub.TagMap)
	}
	for k, v := range pairs {
		f.received[k] = v
	}
}

func newUnit(t *testing.T, path, src string) *SourceCodeUnit {
	t.Helper()
	lang := golang.GetLanguage()
	p := sitter.NewParser()
	u, err := New(path, []byte(src), lang, p)
	require.NoError(t, err)
	t.Cleanup(u.Close)
	return u
}

func TestApplyEditConstantFold(t *testing.T) {
	src := "package main\n\nfunc f() {\n\tif true {\n\t\tA()\n\t}\n}\n"
	path := filepath.Join(t.TempDir(), "f.go")
	u := newUnit(t, path, src)

	start := uint32(strings.Index(src, "if true {"))
	end := start + uint32(len("if true {\n\t\tA()\n\t}"))

	err := u.ApplyEdit(Edit{Start: start, OldEnd: end, NewText: "A()"})
	require.NoError(t, err)
	require.False(t, u.Tree.RootNode().HasError())
	require.Contains(t, string(u.Code), "A()")
	require.NotContains(t, string(u.Code), "if true")
}

func TestApplyEditDryDoesNotMutate(t *testing.T) {
	src := "package main\n"
	path := filepath.Join(t.TempDir(), "f.go")
	u := newUnit(t, path, src)

	out := u.ApplyEditDry(Edit{Start: 0, OldEnd: 7, NewText: "pkg mod"})
	require.Equal(t, "pkg mod main\n", string(out))
	require.Equal(t, src, string(u.Code))
}

func TestPersistWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.go")
	u := newUnit(t, path, "package main\n")

	require.NoError(t, u.Persist())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "package main\n", string(data))
	require.False(t, u.Deleted())
}

func TestPersistDeletesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.go")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	u := newUnit(t, path, "package main\n")
	u.Code = []byte("   \n\n")

	require.NoError(t, u.Persist())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
	require.True(t, u.Deleted())
}

func TestAddToSubstitutionsPublishesGlobalVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.go")
	u := newUnit(t, path, "package main\n")
	pub := &fakePublisher{}

	u.AddToSubstitutions(tagsub.TagMap{
		"global_var_flag_enabled": "removed",
		"local_only":              "x",
	}, pub)

	require.Equal(t, "removed", u.Tags["global_var_flag_enabled"])
	require.Equal(t, "x", u.Tags["local_only"])
	require.Equal(t, "removed", pub.received["global_var_flag_enabled"])
	_, ok := pub.received["local_only"]
	require.False(t, ok)
}
