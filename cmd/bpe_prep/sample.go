package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newSampleCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a batch of masked training examples as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batchSize <= 0 {
				return errors.New("--batch must be positive")
			}
			prep, err := loadPrep(newMetricsSink(""))
			if err != nil {
				return err
			}
			defer prep.Close()
			generator, err := prep.Generator()
			if err != nil {
				return err
			}
			batch, err := generator.Generate(batchSize)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			return encoder.Encode(struct {
				TokenCount int       `json:"token_count"`
				Features   [][]int32 `json:"features"`
				Positions  [][]int32 `json:"positions"`
				Labels     [][]int32 `json:"labels"`
			}{generator.TokenCount(), batch.Features, batch.Positions,
				batch.Labels})
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch", 8, "Examples to generate")

	return cmd
}
