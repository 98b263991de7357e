package bpe_prep

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/bpe_prep/types"
)

func pairs(merges ...string) []types.SymbolPair {
	result := make([]types.SymbolPair, 0, len(merges)/2)
	for idx := 0; idx < len(merges); idx += 2 {
		result = append(result,
			types.SymbolPair{Left: merges[idx], Right: merges[idx+1]})
	}
	return result
}

var learnerTokens = FrequencyDictionary{"ab": 5, "abc": 3, "bc": 2}

func TestLearnBPE_Exhausts(t *testing.T) {
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(learnerTokens), learnerTokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "ab", "abc", "bc"}, vocab.Symbols)
	assert.Equal(t, pairs("a", "b", "ab", "c", "b", "c"), vocab.Merges)
	assert.Equal(t, []uint64{8, 3, 2}, vocab.MergeCounts)
}

func TestLearnBPE_StopsAtTarget(t *testing.T) {
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(learnerTokens), learnerTokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "ab"}, vocab.Symbols)
	assert.Equal(t, pairs("a", "b"), vocab.Merges)
}

func TestLearnBPE_BaseExceedsTarget(t *testing.T) {
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(learnerTokens), learnerTokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, vocab.Symbols)
	assert.Empty(t, vocab.Merges)
}

func TestLearnBPE_Thresholds(t *testing.T) {
	// c falls below the character threshold and splits "abc" into "ab".
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(learnerTokens), learnerTokens,
		LearnOptions{MinChars: 6, MinTokens: 3, TargetSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "ab"}, vocab.Symbols)
	assert.Equal(t, []uint64{8}, vocab.MergeCounts)
}

func TestLearnBPE_MinimumPairCount(t *testing.T) {
	tokens := FrequencyDictionary{"xy": 1, "z": 4}
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(tokens), tokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x", "y"}, vocab.Symbols)
	assert.Empty(t, vocab.Merges)
}

func TestLearnBPE_Empty(t *testing.T) {
	vocab, err := LearnBPE(context.Background(),
		FrequencyDictionary{}, FrequencyDictionary{},
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 10})
	require.NoError(t, err)
	assert.Empty(t, vocab.Symbols)
	assert.Empty(t, vocab.Merges)
}

func TestLearnBPE_TieBreaks(t *testing.T) {
	// Equal counts across words: the earlier word in symbol order wins.
	tokens := FrequencyDictionary{"yz": 2, "xy": 2}
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(tokens), tokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 10})
	require.NoError(t, err)
	assert.Equal(t, pairs("x", "y", "y", "z"), vocab.Merges)

	// Equal counts inside one word: the leftmost pair wins.
	tokens = FrequencyDictionary{"abcd": 2}
	vocab, err = LearnBPE(context.Background(),
		CharacterCounts(tokens), tokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 10})
	require.NoError(t, err)
	assert.Equal(t, pairs("a", "b", "ab", "c", "abc", "d"), vocab.Merges)
	assert.Equal(t, []string{"a", "b", "c", "d", "ab", "abc", "abcd"},
		vocab.Symbols)
}

func TestLearnBPE_RepeatedSymbols(t *testing.T) {
	tokens := FrequencyDictionary{"aaaa": 3}
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(tokens), tokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 10})
	require.NoError(t, err)
	// (a,a) occurs three times per word before merging, non-overlapping
	// merging leaves [aa aa].
	assert.Equal(t, pairs("a", "a", "aa", "aa"), vocab.Merges)
	assert.Equal(t, []uint64{9, 3}, vocab.MergeCounts)
}

// naivePairCounts recounts every pair from scratch and returns them with
// their first encounter order.
func naivePairCounts(words [][]string, counts []uint64) (
	map[types.SymbolPair]uint64, []types.SymbolPair) {
	totals := make(map[types.SymbolPair]uint64)
	order := make([]types.SymbolPair, 0)
	for wordIdx, word := range words {
		for idx := 1; idx < len(word); idx++ {
			pair := types.SymbolPair{Left: word[idx-1], Right: word[idx]}
			if _, ok := totals[pair]; !ok {
				order = append(order, pair)
			}
			totals[pair] += counts[wordIdx]
		}
	}
	return totals, order
}

func applyMerge(words [][]string, pair types.SymbolPair) {
	for wordIdx, word := range words {
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); {
			if i < len(word)-1 && word[i] == pair.Left &&
				word[i+1] == pair.Right {
				merged = append(merged, pair.Merged())
				i += 2
			} else {
				merged = append(merged, word[i])
				i++
			}
		}
		words[wordIdx] = merged
	}
}

func TestLearnBPE_GreedyAgainstRecount(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abcde")
	tokens := make(FrequencyDictionary)
	for len(tokens) < 300 {
		runes := make([]rune, 2+rng.Intn(7))
		for idx := range runes {
			runes[idx] = alphabet[rng.Intn(len(alphabet))]
		}
		tokens[string(runes)] = uint64(1 + rng.Intn(20))
	}
	target := 60
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(tokens), tokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: target})
	require.NoError(t, err)
	assert.LessOrEqual(t, vocab.Size(), target)
	require.NotEmpty(t, vocab.Merges)

	words := make([][]string, 0, len(tokens))
	counts := make([]uint64, 0, len(tokens))
	for _, entry := range sortedSymbols(tokens) {
		word := make([]string, 0)
		for _, r := range entry {
			word = append(word, string(r))
		}
		words = append(words, word)
		counts = append(counts, tokens[entry])
	}
	for idx, merge := range vocab.Merges {
		totals, order := naivePairCounts(words, counts)
		var best types.SymbolPair
		var bestCount uint64
		for _, pair := range order {
			if totals[pair] > bestCount {
				best, bestCount = pair, totals[pair]
			}
		}
		require.Equal(t, best, merge, "merge %d", idx)
		require.Equal(t, bestCount, vocab.MergeCounts[idx], "merge %d", idx)
		for pair, count := range totals {
			require.GreaterOrEqual(t, vocab.MergeCounts[idx], count,
				fmt.Sprintf("merge %d vs %v", idx, pair))
		}
		applyMerge(words, merge)
	}
}

func sortedSymbols(dict FrequencyDictionary) []string {
	entries := make([]string, 0, len(dict))
	for symbol := range dict {
		entries = append(entries, symbol)
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j] < entries[j-1]; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries
}

func TestLearnVocabulary_Artifacts(t *testing.T) {
	dir := t.TempDir()
	paths := ArtifactPaths(filepath.Join(dir, "corpus"))
	require.NoError(t, learnerTokens.Write(paths.TokenDictionary))
	require.NoError(t, CharacterCounts(learnerTokens).Write(
		paths.CharDictionary))

	vocab, err := LearnVocabulary(context.Background(), LearnerInput{
		CharDictPath:    paths.CharDictionary,
		TokenDictPath:   paths.TokenDictionary,
		VocabularyBase:  paths.BPEBase,
		ManifestPath:    paths.Manifest,
		MinChars:        1,
		MinTokens:       1,
		TargetSize:      8,
		CheckpointSizes: []int{4, 5, 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, vocab.Size())

	checkpoint, err := ReadVocabulary(VocabularyPath(paths.BPEBase, 4))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "ab"}, checkpoint.Symbols)
	assert.Equal(t, pairs("a", "b"), checkpoint.Merges)

	checkpoint, err = ReadVocabulary(VocabularyPath(paths.BPEBase, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, checkpoint.Size())

	// never reached
	assert.NoFileExists(t, VocabularyPath(paths.BPEBase, 7))

	final, err := ReadVocabulary(VocabularyPath(paths.BPEBase, 8))
	require.NoError(t, err)
	assert.Equal(t, vocab.Symbols, final.Symbols)
	assert.Equal(t, vocab.Merges, final.Merges)

	manifest, err := os.ReadFile(paths.Manifest)
	require.NoError(t, err)
	assert.Equal(t, "b\na\nc\nab\nabc\nbc\n", string(manifest))
}

func TestLearnVocabulary_MissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := LearnVocabulary(context.Background(), LearnerInput{
		CharDictPath:  filepath.Join(dir, "missing.chars"),
		TokenDictPath: filepath.Join(dir, "missing.tokens"),
		TargetSize:    4,
	})
	assert.Error(t, err)
}

func TestLearnBPE_NeverSpellsControlSymbols(t *testing.T) {
	tokens := FrequencyDictionary{SegmentSymbol: 5, MaskSymbol: 4,
		PadSymbol: 3, UnknownSymbol: 2}
	vocab, err := LearnBPE(context.Background(),
		CharacterCounts(tokens), tokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 100})
	require.NoError(t, err)
	require.NotEmpty(t, vocab.Merges)
	for _, symbol := range vocab.Symbols {
		assert.False(t, isReservedSymbol(symbol), symbol)
	}
	for _, merge := range vocab.Merges {
		assert.False(t, isReservedSymbol(merge.Merged()), merge.Merged())
	}
	assert.Contains(t, vocab.Symbols, "[SEG")
}

func TestLearnBPE_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LearnBPE(ctx, CharacterCounts(learnerTokens), learnerTokens,
		LearnOptions{MinChars: 1, MinTokens: 1, TargetSize: 10})
	assert.ErrorIs(t, err, context.Canceled)
}
