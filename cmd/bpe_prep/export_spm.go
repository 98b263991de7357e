package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wbrown/bpe_prep"
	"github.com/wbrown/bpe_prep/resources"
)

func newExportSPMCmd() *cobra.Command {
	var vocabPath, outPath string

	cmd := &cobra.Command{
		Use:   "export-spm",
		Short: "Export a learned vocabulary as a SentencePiece BPE model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if vocabPath == "" || outPath == "" {
				return errors.New("--vocab and --out are required")
			}
			vocab, err := bpe_prep.ReadVocabulary(vocabPath)
			if err != nil {
				return err
			}
			if err := resources.WriteSentencePieceFile(outPath,
				vocab.SentencePiece()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pieces\n", outPath,
				vocab.Size())
			return nil
		},
	}

	cmd.Flags().StringVar(&vocabPath, "vocab", "", "Vocabulary artifact (<corpus>.bpe.<size>)")
	cmd.Flags().StringVar(&outPath, "out", "", "SentencePiece model file to write")

	return cmd
}
