package bpe_prep

import (
	"container/heap"
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/wbrown/bpe_prep/pkg/logger"
	"github.com/wbrown/bpe_prep/types"
)

const ctxCheckMerges = 256

// LearnOptions bounds the BPE learner.
type LearnOptions struct {
	MinChars   uint64
	MinTokens  uint64
	TargetSize int
	// Checkpoints are inventory sizes below TargetSize at which Snapshot is
	// called with the vocabulary learned so far.
	Checkpoints []int
	Snapshot    func(size int, vocab *Vocabulary) error
}

// LearnerInput names the artifacts read and written by LearnVocabulary.
type LearnerInput struct {
	CharDictPath    string
	TokenDictPath   string
	VocabularyBase  string
	ManifestPath    string
	MinChars        uint64
	MinTokens       uint64
	TargetSize      int
	CheckpointSizes []int
}

// LearnVocabulary reads both dictionaries, learns a vocabulary of
// TargetSize symbols and writes it to `<VocabularyBase>.<TargetSize>`, with
// snapshots at each checkpoint size, followed by the manifest.
func LearnVocabulary(
	ctx context.Context,
	input LearnerInput,
) (*Vocabulary, error) {
	log := logger.WithComponent("token_learner")
	chars, err := ReadDictionary(input.CharDictPath)
	if err != nil {
		return nil, fmt.Errorf("reading character dictionary: %w", err)
	}
	tokens, err := ReadDictionary(input.TokenDictPath)
	if err != nil {
		return nil, fmt.Errorf("reading token dictionary: %w", err)
	}
	vocab, err := LearnBPE(ctx, chars, tokens, LearnOptions{
		MinChars:    input.MinChars,
		MinTokens:   input.MinTokens,
		TargetSize:  input.TargetSize,
		Checkpoints: input.CheckpointSizes,
		Snapshot: func(size int, snapshot *Vocabulary) error {
			path := VocabularyPath(input.VocabularyBase, size)
			log.Info("writing vocabulary checkpoint", "path", path)
			return snapshot.Write(path)
		},
	})
	if err != nil {
		return nil, err
	}
	finalPath := VocabularyPath(input.VocabularyBase, input.TargetSize)
	if err := vocab.Write(finalPath); err != nil {
		return nil, err
	}
	if err := WriteManifest(input.ManifestPath, vocab.Symbols); err != nil {
		return nil, err
	}
	log.Info("vocabulary learned",
		"path", finalPath,
		"symbols", humanize.Comma(int64(vocab.Size())),
		"merges", humanize.Comma(int64(len(vocab.Merges))),
		"target", input.TargetSize)
	return vocab, nil
}

// LearnBPE
// Greedy byte-pair learning over a token dictionary. The inventory starts
// with the characters occurring at least MinChars times, ordered by count
// descending then rune, and never grows past TargetSize. Tokens occurring
// at least MinTokens times are the words, scanned in ascending symbol
// order. Each round merges the adjacent pair with the highest
// frequency-weighted count; ties go to the pair encountered first in that
// scan. A pair whose merge would spell a reserved symbol other than
// UnknownSymbol is never merged. Learning stops when the inventory reaches
// TargetSize or no pair occurs at least twice.
func LearnBPE(
	ctx context.Context,
	chars FrequencyDictionary,
	tokens FrequencyDictionary,
	opts LearnOptions,
) (*Vocabulary, error) {
	inventory := make([]string, 0, max(opts.TargetSize, 0))
	known := make(map[string]struct{})
	for _, entry := range chars.AtLeast(opts.MinChars).Sorted() {
		if len(inventory) >= opts.TargetSize {
			break
		}
		inventory = append(inventory, entry.Symbol)
		known[entry.Symbol] = struct{}{}
	}

	state := newPairState(tokens.AtLeast(opts.MinTokens), known)
	checkpoints := make(map[int]bool, len(opts.Checkpoints))
	for _, size := range opts.Checkpoints {
		if size < opts.TargetSize {
			checkpoints[size] = true
		}
	}

	merges := make([]types.SymbolPair, 0)
	mergeCounts := make([]uint64, 0)
	for len(inventory) < opts.TargetSize {
		if len(merges)%ctxCheckMerges == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		best, count, ok := state.best()
		if !ok || count < 2 {
			break
		}
		state.merge(best)
		merges = append(merges, best)
		mergeCounts = append(mergeCounts, count)
		symbol := best.Merged()
		if _, dupe := known[symbol]; dupe {
			continue
		}
		known[symbol] = struct{}{}
		inventory = append(inventory, symbol)
		if checkpoints[len(inventory)] && opts.Snapshot != nil {
			snapshot := NewVocabulary(slices.Clone(inventory),
				slices.Clone(merges), slices.Clone(mergeCounts))
			if err := opts.Snapshot(len(inventory), snapshot); err != nil {
				return nil, err
			}
		}
	}
	return NewVocabulary(inventory, merges, mergeCounts), nil
}

type bpeWord struct {
	symbols []string
	count   uint64
}

// pairState holds the words and their weighted adjacent pair counts.
// Counts are updated incrementally: a merge only touches the words that
// contain the merged pair.
type pairState struct {
	words  []bpeWord
	counts map[types.SymbolPair]uint64
	where  map[types.SymbolPair]map[int]struct{}
	queue  pairQueue
}

func newPairState(tokens FrequencyDictionary, known map[string]struct{},
) *pairState {
	symbols := make([]string, 0, len(tokens))
	for symbol := range tokens {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	state := &pairState{
		counts: make(map[types.SymbolPair]uint64),
		where:  make(map[types.SymbolPair]map[int]struct{}),
	}
	for _, symbol := range symbols {
		count := tokens[symbol]
		fragment := make([]string, 0, len(symbol))
		flush := func() {
			if len(fragment) > 1 {
				state.words = append(state.words,
					bpeWord{symbols: fragment, count: count})
			}
			fragment = make([]string, 0, len(symbol))
		}
		for _, r := range symbol {
			char := string(r)
			if _, ok := known[char]; !ok {
				flush()
				continue
			}
			fragment = append(fragment, char)
		}
		flush()
	}
	for wordIdx := range state.words {
		state.add(wordIdx)
	}
	for pair, count := range state.counts {
		state.queue = append(state.queue, pairEntry{pair, count})
	}
	heap.Init(&state.queue)
	return state
}

func (state *pairState) add(wordIdx int) {
	word := state.words[wordIdx]
	for idx := 1; idx < len(word.symbols); idx++ {
		pair := types.SymbolPair{Left: word.symbols[idx-1],
			Right: word.symbols[idx]}
		state.counts[pair] += word.count
		words, ok := state.where[pair]
		if !ok {
			words = make(map[int]struct{})
			state.where[pair] = words
		}
		words[wordIdx] = struct{}{}
	}
}

func (state *pairState) remove(wordIdx int,
	touched map[types.SymbolPair]struct{}) {
	word := state.words[wordIdx]
	for idx := 1; idx < len(word.symbols); idx++ {
		pair := types.SymbolPair{Left: word.symbols[idx-1],
			Right: word.symbols[idx]}
		touched[pair] = struct{}{}
		state.counts[pair] -= word.count
		if state.counts[pair] == 0 {
			delete(state.counts, pair)
		}
		if words, ok := state.where[pair]; ok {
			delete(words, wordIdx)
			if len(words) == 0 {
				delete(state.where, pair)
			}
		}
	}
}

// best returns the pair to merge next without removing it.
func (state *pairState) best() (types.SymbolPair, uint64, bool) {
	var ties []types.SymbolPair
	var bestCount uint64
	for state.queue.Len() > 0 {
		top := state.queue[0]
		current, live := state.counts[top.pair]
		if !live || current != top.count || isReservedSymbol(top.pair.Merged()) {
			heap.Pop(&state.queue)
			continue
		}
		if len(ties) > 0 && top.count < bestCount {
			break
		}
		heap.Pop(&state.queue)
		if len(ties) == 0 || !slices.Contains(ties, top.pair) {
			ties = append(ties, top.pair)
		}
		bestCount = top.count
	}
	if len(ties) == 0 {
		return types.SymbolPair{}, 0, false
	}
	winner := ties[0]
	for _, pair := range ties[1:] {
		if state.firstBefore(pair, winner) {
			winner = pair
		}
	}
	for _, pair := range ties {
		heap.Push(&state.queue, pairEntry{pair, bestCount})
	}
	return winner, bestCount, true
}

// firstBefore reports whether a is encountered before b when scanning the
// words in order and each word left to right.
func (state *pairState) firstBefore(a, b types.SymbolPair) bool {
	wordA, wordB := state.firstWord(a), state.firstWord(b)
	if wordA != wordB {
		return wordA < wordB
	}
	symbols := state.words[wordA].symbols
	for idx := 1; idx < len(symbols); idx++ {
		pair := types.SymbolPair{Left: symbols[idx-1], Right: symbols[idx]}
		switch pair {
		case a:
			return true
		case b:
			return false
		}
	}
	return false
}

func (state *pairState) firstWord(pair types.SymbolPair) int {
	first := -1
	for wordIdx := range state.where[pair] {
		if first == -1 || wordIdx < first {
			first = wordIdx
		}
	}
	return first
}

// merge replaces every occurrence of pair in the words containing it.
func (state *pairState) merge(pair types.SymbolPair) {
	affected := make([]int, 0, len(state.where[pair]))
	for wordIdx := range state.where[pair] {
		affected = append(affected, wordIdx)
	}
	sort.Ints(affected)
	merged := pair.Merged()
	touched := make(map[types.SymbolPair]struct{})
	for _, wordIdx := range affected {
		state.remove(wordIdx, touched)
		symbols := state.words[wordIdx].symbols
		replaced := make([]string, 0, len(symbols))
		for i := 0; i < len(symbols); {
			if i < len(symbols)-1 && symbols[i] == pair.Left &&
				symbols[i+1] == pair.Right {
				replaced = append(replaced, merged)
				i += 2
			} else {
				replaced = append(replaced, symbols[i])
				i++
			}
		}
		state.words[wordIdx].symbols = replaced
		state.add(wordIdx)
		for idx := 1; idx < len(replaced); idx++ {
			touched[types.SymbolPair{Left: replaced[idx-1],
				Right: replaced[idx]}] = struct{}{}
		}
	}
	for touchedPair := range touched {
		if count, ok := state.counts[touchedPair]; ok {
			heap.Push(&state.queue, pairEntry{touchedPair, count})
		}
	}
}

type pairEntry struct {
	pair  types.SymbolPair
	count uint64
}

// pairQueue is a max-heap on count. Entries go stale as counts change and
// are discarded lazily by best.
type pairQueue []pairEntry

func (q pairQueue) Len() int           { return len(q) }
func (q pairQueue) Less(i, j int) bool { return q[i].count > q[j].count }
func (q pairQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *pairQueue) Push(x any) {
	*q = append(*q, x.(pairEntry))
}

func (q *pairQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}
