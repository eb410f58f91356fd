package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/patternlab/internal/rag"
	"github.com/rahul/patternlab/internal/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewApp_CloseReleasesStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chunks.db")
	cfgPath := writeConfig(t, `
providers:
  openai:
    api_key: sk-test
    enabled: true
rag:
  store: sqlite
  sqlite_path: `+dbPath+`
`)

	a, err := newApp(cfgPath)
	require.NoError(t, err)

	svc, ok := a.services.RAG.(*rag.Service)
	require.True(t, ok)
	vs, ok := svc.Store.(*store.VectorStore)
	require.True(t, ok)
	require.NoError(t, vs.DB.Ping())

	require.NoError(t, a.Close())
	assert.Error(t, vs.DB.Ping(), "store must be closed")
	assert.NoError(t, a.Close(), "second close is a no-op")
}

func TestNewApp_FailureAfterStoreOpened(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chunks.db")
	cfgPath := writeConfig(t, `
providers:
  openai:
    api_key: sk-test
    enabled: true
tools:
  search:
    backend: bing
rag:
  store: sqlite
  sqlite_path: `+dbPath+`
`)

	a, err := newApp(cfgPath)
	assert.Nil(t, a)
	assert.ErrorContains(t, err, `unknown search backend "bing"`)

	_, statErr := os.Stat(dbPath)
	assert.NoError(t, statErr, "store was opened before the failing step")
}

func TestNewApp_StoreDisabled(t *testing.T) {
	cfgPath := writeConfig(t, `
providers:
  openai:
    api_key: sk-test
    enabled: true
rag:
  store: none
`)

	a, err := newApp(cfgPath)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.services.RAG)
	assert.Empty(t, a.closers)
}
