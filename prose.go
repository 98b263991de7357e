package bpe_prep

import (
	"log/slog"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/wbrown/bpe_prep/pkg/logger"
)

// ProseTokenizer splits text into words and punctuation with prose's
// rule based tokenizer.
type ProseTokenizer struct {
	logger *slog.Logger
}

func NewProseTokenizer() *ProseTokenizer {
	return &ProseTokenizer{logger: logger.WithComponent("prose_tokenizer")}
}

func (tokenizer *ProseTokenizer) Split(text string) []string {
	doc, err := prose.NewDocument(
		text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		// prose only fails on model loading, fall back to whitespace.
		tokenizer.logger.Debug("prose tokenization failed", "error", err)
		return strings.Fields(text)
	}
	tokens := doc.Tokens()
	units := make([]string, 0, len(tokens))
	for _, token := range tokens {
		units = append(units, strings.Fields(token.Text)...)
	}
	return units
}
