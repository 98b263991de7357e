package bpe_prep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTracker_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.status")
	status, err := LoadStatus(path)
	require.NoError(t, err)
	assert.False(t, status.IsComplete(StageDictionaryBuilder))
	assert.NoFileExists(t, path)

	require.NoError(t, status.MarkComplete(StageDictionaryBuilder))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stages":{"DictionaryBuilder":true}}`, string(data))

	reloaded, err := LoadStatus(path)
	require.NoError(t, err)
	assert.True(t, reloaded.IsComplete(StageDictionaryBuilder))
	assert.Equal(t, []string{StageDictionaryBuilder}, reloaded.Completed())

	require.NoError(t, reloaded.Reset())
	reloaded, err = LoadStatus(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Completed())
}

func TestLoadStatus_Malformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "corpus.status", "{")
	_, err := LoadStatus(path)
	assert.ErrorIs(t, err, ErrMalformedArtifact)
}

func TestLoadStatus_FalseEntriesIgnored(t *testing.T) {
	path := writeFile(t, t.TempDir(), "corpus.status",
		`{"stages":{"A":true,"B":false}}`)
	status, err := LoadStatus(path)
	require.NoError(t, err)
	assert.True(t, status.IsComplete("A"))
	assert.False(t, status.IsComplete("B"))
}
