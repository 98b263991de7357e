package bpe_prep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFrequencyDictionary_Sorted(t *testing.T) {
	dict := FrequencyDictionary{"b": 2, "a": 2, "c": 5, "d": 1}
	assert.Equal(t, []DictionaryEntry{
		{"c", 5}, {"a", 2}, {"b", 2}, {"d", 1},
	}, dict.Sorted())
	assert.Equal(t, FrequencyDictionary{"c": 5, "a": 2, "b": 2},
		dict.AtLeast(2))
	assert.Equal(t, uint64(10), dict.Total())
}

func TestFrequencyDictionary_WriteRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict")
	dict := FrequencyDictionary{"the": 10, "cat": 3, "ζ": 3}
	require.NoError(t, dict.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "the 10\ncat 3\nζ 3\n", string(data))

	read, err := ReadDictionary(path)
	require.NoError(t, err)
	assert.Equal(t, dict, read)
}

func TestFrequencyDictionary_WriteRejectsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict")
	err := FrequencyDictionary{"a b": 1}.Write(path)
	assert.ErrorIs(t, err, ErrMalformedArtifact)
	assert.NoFileExists(t, path)
}

func TestReadDictionary_AnyOrder(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dict", "a 1\n\nb 7\n")
	dict, err := ReadDictionary(path)
	require.NoError(t, err)
	assert.Equal(t, FrequencyDictionary{"a": 1, "b": 7}, dict)
}

func TestReadDictionary_Malformed(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"fields":    "a 1 2\n",
		"count":     "a x\n",
		"negative":  "a -1\n",
		"duplicate": "a 1\na 2\n",
	} {
		_, err := ReadDictionary(writeFile(t, dir, name, content))
		assert.ErrorIs(t, err, ErrMalformedArtifact, name)
	}
}

func TestCountTokens_WorkerIndependent(t *testing.T) {
	var corpus strings.Builder
	for idx := 0; idx < 5000; idx++ {
		corpus.WriteString("the quick brown fox\n")
		if idx%3 == 0 {
			corpus.WriteString("jumps over the lazy dog\n")
		}
	}
	expected, lines, err := CountTokens(context.Background(),
		WhitespaceTokenizer{}, strings.NewReader(corpus.String()),
		DictionaryOptions{Workers: 1, BatchLines: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, 5000+1667, lines)
	assert.Equal(t, uint64(5000+1667), expected["the"])
	assert.Equal(t, uint64(1667), expected["dog"])

	for _, workers := range []int{2, 7} {
		counts, _, err := CountTokens(context.Background(),
			WhitespaceTokenizer{}, strings.NewReader(corpus.String()),
			DictionaryOptions{Workers: workers, BatchLines: 13})
		require.NoError(t, err)
		assert.Equal(t, expected, counts, "workers=%d", workers)
	}
}

func TestCountTokens_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	corpus := strings.Repeat("a b c\n", 10000)
	_, _, err := CountTokens(ctx, WhitespaceTokenizer{},
		strings.NewReader(corpus), DictionaryOptions{Workers: 1, BatchLines: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildTokenDictionary(t *testing.T) {
	dir := t.TempDir()
	corpus := writeFile(t, dir, "corpus", "b a\na c a\n\n")
	dictPath := filepath.Join(dir, "corpus.tokens.dict")
	dict, err := BuildTokenDictionary(context.Background(),
		WhitespaceTokenizer{}, corpus, dictPath, DictionaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, FrequencyDictionary{"a": 3, "b": 1, "c": 1}, dict)

	data, err := os.ReadFile(dictPath)
	require.NoError(t, err)
	assert.Equal(t, "a 3\nb 1\nc 1\n", string(data))

	_, err = BuildTokenDictionary(context.Background(),
		WhitespaceTokenizer{}, filepath.Join(dir, "missing"), dictPath,
		DictionaryOptions{})
	assert.Error(t, err)
}
