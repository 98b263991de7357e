package bpe_prep

import (
	"fmt"
)

// Stage tags used to derive artifact paths from the corpus path.
const (
	TagStatus           = "status"
	TagTokenDictionary  = "tokens.dict"
	TagCharDictionary   = "chars.dict"
	TagBPE              = "bpe"
	TagManifest         = "manifest"
	TagResampled        = "resampled"
	TagDataset          = "dataset"
	TagDatasetIndex     = "dataset.index"
	TagDatasetTokenMap  = "dataset.tokenmap"
	datasetBlockPattern = "%s.%05d.blk"
)

// DerivePath returns the artifact path for a stage tag of the run
// identified by base.
func DerivePath(base, tag string) string {
	return base + "." + tag
}

// Paths is the full set of artifact locations for one corpus.
type Paths struct {
	Corpus          string
	Status          string
	TokenDictionary string
	CharDictionary  string
	BPEBase         string
	Manifest        string
	Resampled       string
	DatasetBase     string
	DatasetIndex    string
	DatasetTokenMap string
}

// ArtifactPaths derives every artifact path from the corpus path.
func ArtifactPaths(corpusPath string) Paths {
	return Paths{
		Corpus:          corpusPath,
		Status:          DerivePath(corpusPath, TagStatus),
		TokenDictionary: DerivePath(corpusPath, TagTokenDictionary),
		CharDictionary:  DerivePath(corpusPath, TagCharDictionary),
		BPEBase:         DerivePath(corpusPath, TagBPE),
		Manifest:        DerivePath(corpusPath, TagManifest),
		Resampled:       DerivePath(corpusPath, TagResampled),
		DatasetBase:     DerivePath(corpusPath, TagDataset),
		DatasetIndex:    DerivePath(corpusPath, TagDatasetIndex),
		DatasetTokenMap: DerivePath(corpusPath, TagDatasetTokenMap),
	}
}

// VocabularyPath is the artifact path of the vocabulary snapshot at size.
func VocabularyPath(base string, size int) string {
	return fmt.Sprintf("%s.%d", base, size)
}

// DatasetBlockPath is the path of the counter'th dataset block.
func DatasetBlockPath(base string, counter int) string {
	return fmt.Sprintf(datasetBlockPattern, base, counter)
}
