package bpe_prep

import (
	"context"
	"fmt"

	"github.com/wbrown/bpe_prep/pkg/logger"
	"github.com/wbrown/bpe_prep/pkg/metrics"
)

// Stage names, as recorded in the status file.
const (
	StageDictionaryBuilder = "DictionaryBuilder"
	StageCharacterBuilder  = "CharacterBuilder"
	StageTokenLearner      = "TokenLearner"
	StageDocumentResampler = "DocumentResampler"
	StageDatasetEncoder    = "DatasetEncoder"
)

// DictionaryBuilderStage counts the corpus tokens.
type DictionaryBuilderStage struct {
	Tokenizer  Tokenizer
	CorpusPath string
	DictPath   string
	Options    DictionaryOptions
	Metrics    *metrics.Metrics
}

func (stage DictionaryBuilderStage) Name() string {
	return StageDictionaryBuilder
}

func (stage DictionaryBuilderStage) Run(ctx context.Context) error {
	dict, err := BuildTokenDictionary(ctx, stage.Tokenizer, stage.CorpusPath,
		stage.DictPath, stage.Options)
	if err != nil {
		return err
	}
	if stage.Metrics != nil {
		stage.Metrics.DictionaryEntries.WithLabelValues("tokens").Set(
			float64(len(dict)))
	}
	return nil
}

// CharacterBuilderStage derives the character dictionary.
type CharacterBuilderStage struct {
	TokenDictPath string
	CharDictPath  string
	Metrics       *metrics.Metrics
}

func (stage CharacterBuilderStage) Name() string {
	return StageCharacterBuilder
}

func (stage CharacterBuilderStage) Run(ctx context.Context) error {
	chars, err := DeriveCharacterDictionary(stage.TokenDictPath,
		stage.CharDictPath)
	if err != nil {
		return err
	}
	if stage.Metrics != nil {
		stage.Metrics.DictionaryEntries.WithLabelValues("characters").Set(
			float64(len(chars)))
	}
	return nil
}

// TokenLearnerStage learns the vocabulary and the manifest.
type TokenLearnerStage struct {
	Input   LearnerInput
	Metrics *metrics.Metrics
}

func (stage TokenLearnerStage) Name() string {
	return StageTokenLearner
}

func (stage TokenLearnerStage) Run(ctx context.Context) error {
	vocab, err := LearnVocabulary(ctx, stage.Input)
	if err != nil {
		return err
	}
	if stage.Metrics != nil {
		stage.Metrics.VocabularySize.Set(float64(vocab.Size()))
	}
	return nil
}

// DocumentResamplerStage rewrites the corpus in manifest symbols.
type DocumentResamplerStage struct {
	Tokenizer     Tokenizer
	CorpusPath    string
	ResampledPath string
	ManifestPath  string
}

func (stage DocumentResamplerStage) Name() string {
	return StageDocumentResampler
}

func (stage DocumentResamplerStage) Run(ctx context.Context) error {
	return Resample(ctx, stage.Tokenizer, stage.CorpusPath,
		stage.ResampledPath, stage.ManifestPath)
}

// DatasetEncoderStage writes the dataset blocks, index and token map.
type DatasetEncoderStage struct {
	Input EncoderInput
}

func (stage DatasetEncoderStage) Name() string {
	return StageDatasetEncoder
}

func (stage DatasetEncoderStage) Run(ctx context.Context) error {
	_, err := EncodeDataset(ctx, stage.Input)
	return err
}

// TrainingDataPrep turns one corpus into dataset blocks and serves masked
// training batches from them.
type TrainingDataPrep struct {
	Config    *Config
	Paths     Paths
	Tokenizer Tokenizer
	Metrics   *metrics.Metrics

	dataset *LinearDataset
}

// NewTrainingDataPrep derives every artifact path from corpusPath.
func NewTrainingDataPrep(corpusPath string, cfg *Config,
	m *metrics.Metrics) (*TrainingDataPrep, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tokenizer, err := NewTokenizer(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	return &TrainingDataPrep{
		Config:    cfg,
		Paths:     ArtifactPaths(corpusPath),
		Tokenizer: tokenizer,
		Metrics:   m,
	}, nil
}

// VocabularyPath is where the final vocabulary is written.
func (prep *TrainingDataPrep) VocabularyPath() string {
	return VocabularyPath(prep.Paths.BPEBase, prep.Config.BPETokensToLearn)
}

// Stages lists the pipeline stages in execution order.
func (prep *TrainingDataPrep) Stages() []Stage {
	cfg := prep.Config
	paths := prep.Paths
	return []Stage{
		DictionaryBuilderStage{
			Tokenizer:  prep.Tokenizer,
			CorpusPath: paths.Corpus,
			DictPath:   paths.TokenDictionary,
			Options:    DictionaryOptions{Workers: cfg.Workers},
			Metrics:    prep.Metrics,
		},
		CharacterBuilderStage{
			TokenDictPath: paths.TokenDictionary,
			CharDictPath:  paths.CharDictionary,
			Metrics:       prep.Metrics,
		},
		TokenLearnerStage{
			Input: LearnerInput{
				CharDictPath:    paths.CharDictionary,
				TokenDictPath:   paths.TokenDictionary,
				VocabularyBase:  paths.BPEBase,
				ManifestPath:    paths.Manifest,
				MinChars:        uint64(cfg.MinCharsForDictEntry),
				MinTokens:       uint64(cfg.MinTokensForDictEntry),
				TargetSize:      cfg.BPETokensToLearn,
				CheckpointSizes: cfg.BPECheckpointSizes,
			},
			Metrics: prep.Metrics,
		},
		DocumentResamplerStage{
			Tokenizer:     prep.Tokenizer,
			CorpusPath:    paths.Corpus,
			ResampledPath: paths.Resampled,
			ManifestPath:  paths.Manifest,
		},
		DatasetEncoderStage{
			Input: EncoderInput{
				Tokenizer:       WhitespaceTokenizer{},
				ResampledPath:   paths.Resampled,
				VocabularyPath:  prep.VocabularyPath(),
				DatasetBase:     paths.DatasetBase,
				IndexPath:       paths.DatasetIndex,
				TokenMapPath:    paths.DatasetTokenMap,
				MaxTokensPerDoc: cfg.MaxBPETokensPerDoc,
				WriteTrigger:    cfg.DatablockWriteTriggerSize,
				Metrics:         prep.Metrics,
			},
		},
	}
}

// Run executes the pending stages and returns the dataset file index.
func (prep *TrainingDataPrep) Run(ctx context.Context) ([]string, error) {
	pipeline, err := NewResumablePipeline(prep.Paths.Status, prep.Metrics)
	if err != nil {
		return nil, err
	}
	if err := pipeline.Run(ctx, prep.Stages()...); err != nil {
		return nil, err
	}
	index, err := ReadFileIndex(prep.Paths.DatasetIndex)
	if err != nil {
		return nil, fmt.Errorf("reading dataset index: %w", err)
	}
	logger.WithComponent("pipeline").Info("training data ready",
		"corpus", prep.Paths.Corpus, "files", len(index))
	return index, nil
}

// Generator opens the linear view over the dataset written by Run and
// returns a masked sample generator over it. Close releases the view.
func (prep *TrainingDataPrep) Generator() (*PretrainingGenerator, error) {
	index, err := ReadFileIndex(prep.Paths.DatasetIndex)
	if err != nil {
		return nil, fmt.Errorf("reading dataset index: %w", err)
	}
	tokenMap, err := ReadTokenMap(prep.Paths.DatasetTokenMap)
	if err != nil {
		return nil, fmt.Errorf("reading token map: %w", err)
	}
	delimiter, ok := tokenMap[SegmentSymbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingControlSymbol,
			SegmentSymbol)
	}
	if prep.dataset != nil {
		prep.dataset.Close()
	}
	prep.dataset, err = OpenLinearDataset(index, delimiter, LinearOptions{})
	if err != nil {
		return nil, err
	}
	return NewPretrainingGenerator(prep.dataset, tokenMap,
		prep.Config.ModelInputSize, prep.Config.Policy(), prep.Config.Seed)
}

func (prep *TrainingDataPrep) Close() error {
	if prep.dataset == nil {
		return nil
	}
	err := prep.dataset.Close()
	prep.dataset = nil
	return err
}
