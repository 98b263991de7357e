package bpe_prep

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenizer segments a line of raw text into units. Every implementation
// here emits units that contain no whitespace, so units can be stored in
// whitespace separated artifacts and a resampled line re-splits into the
// same units.
type Tokenizer interface {
	Split(text string) []string
}

const SPLIT_REGEX = "'s|'t|'re|'ve|'m|'ll|'d|\\p{L}+|\\p{N}+|[^\\s\\p{L}\\p{N}]+"

// WhitespaceTokenizer splits on unicode whitespace.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Split(text string) []string {
	return strings.Fields(text)
}

// RegexTokenizer splits words, numbers, contractions and punctuation runs
// apart. Special symbols are matched before splitting and kept whole.
type RegexTokenizer struct {
	pattern      *regexp.Regexp
	specialsTree *RuneNode
	LowerCase    bool
	Normalize    bool
}

// NewRegexTokenizer compiles SPLIT_REGEX and indexes specials.
func NewRegexTokenizer(specials []string) *RegexTokenizer {
	return &RegexTokenizer{
		pattern:      regexp.MustCompile(SPLIT_REGEX),
		specialsTree: newRuneTree(specials),
		Normalize:    true,
	}
}

func (tokenizer *RegexTokenizer) Split(text string) []string {
	if tokenizer.Normalize {
		text = norm.NFC.String(text)
	}
	runes := []rune(text)
	units := make([]string, 0, len(runes)/4+1)
	segmentStart := 0
	for idx := 0; idx < len(runes); {
		matched := tokenizer.specialsTree.longestMatch(runes, idx)
		if matched == 0 {
			idx++
			continue
		}
		units = tokenizer.splitWords(string(runes[segmentStart:idx]), units)
		units = append(units, string(runes[idx:idx+matched]))
		idx += matched
		segmentStart = idx
	}
	return tokenizer.splitWords(string(runes[segmentStart:]), units)
}

func (tokenizer *RegexTokenizer) splitWords(text string,
	units []string) []string {
	if text == "" {
		return units
	}
	for _, word := range tokenizer.pattern.FindAllString(text, -1) {
		if tokenizer.LowerCase {
			word = strings.ToLower(word)
		}
		if word = strings.TrimFunc(word, unicode.IsSpace); word != "" {
			units = append(units, word)
		}
	}
	return units
}

const (
	TokenizerWhitespace = "whitespace"
	TokenizerRegex      = "regex"
	TokenizerProse      = "prose"
)

// NewTokenizer resolves a tokenizer by name: whitespace (the default),
// regex or prose.
func NewTokenizer(name string) (Tokenizer, error) {
	switch name {
	case "", TokenizerWhitespace:
		return WhitespaceTokenizer{}, nil
	case TokenizerRegex:
		return NewRegexTokenizer(nil), nil
	case TokenizerProse:
		return NewProseTokenizer(), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}
