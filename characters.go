package bpe_prep

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/wbrown/bpe_prep/pkg/logger"
)

// CharacterCounts derives character frequencies from a token dictionary.
// Each distinct rune of a token is credited with the token's count once,
// however many times the rune repeats inside the token.
func CharacterCounts(tokens FrequencyDictionary) FrequencyDictionary {
	chars := make(FrequencyDictionary)
	seen := make(map[rune]bool, 16)
	for token, count := range tokens {
		clear(seen)
		for _, r := range token {
			if seen[r] {
				continue
			}
			seen[r] = true
			chars[string(r)] += count
		}
	}
	return chars
}

// DeriveCharacterDictionary reads the token dictionary at tokenDictPath and
// writes its character dictionary to charDictPath.
func DeriveCharacterDictionary(tokenDictPath, charDictPath string) (
	FrequencyDictionary, error) {
	tokens, err := ReadDictionary(tokenDictPath)
	if err != nil {
		return nil, fmt.Errorf("reading token dictionary: %w", err)
	}
	chars := CharacterCounts(tokens)
	if err := chars.Write(charDictPath); err != nil {
		return nil, err
	}
	logger.WithComponent("character_builder").Info(
		"character dictionary written",
		"path", charDictPath,
		"characters", humanize.Comma(int64(len(chars))))
	return chars, nil
}
