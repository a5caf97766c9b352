package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, root string, rel string, source string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
}

func TestRepositoryContextsRespectLayers(t *testing.T) {
	assert.Empty(t, collectViolations(filepath.Join("..", "contexts")))
}

func TestLayerViolationsAreReported(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "meetings/engine/domain/entities/item.go", `package entities

import (
	"strings"

	"github.com/google/uuid"
	"parley/contexts/meetings/engine/ports"
)

var _ = strings.TrimSpace
`)
	writeSource(t, root, "meetings/engine/application/commands/run.go", `package commands

import (
	"parley/contexts/meetings/engine/adapters/memory"
	"parley/contexts/meetings/chat/ports"
	"parley/internal/platform/config"
)
`)
	writeSource(t, root, "meetings/engine/adapters/memory/store.go", `package memory

import (
	"github.com/google/uuid"
	"parley/contexts/meetings/engine/domain/entities"
)
`)
	writeSource(t, root, "meetings/engine/module.go", `package engine

import "parley/contexts/meetings/engine/adapters/memory"
`)
	writeSource(t, root, "meetings/engine/domain/entities/item_test.go", `package entities

import "parley/internal/platform/config"
`)

	violations := collectViolations(root)

	rules := make(map[string]string, len(violations))
	for _, v := range violations {
		rules[v.Import] = v.Rule
	}
	assert.Equal(t, map[string]string{
		"github.com/google/uuid":                          "domain must not import third-party packages",
		"parley/contexts/meetings/engine/ports":           "domain import is outside its allowlist",
		"parley/contexts/meetings/engine/adapters/memory": "application import is outside its allowlist",
		"parley/contexts/meetings/chat/ports":             "cross-service imports are forbidden",
		"parley/internal/platform/config":                 "application must not import runtime infrastructure",
	}, rules)
	require.Len(t, violations, 5)
	assert.Equal(t, "meetings/engine/application/commands/run.go", violations[0].File)
}
