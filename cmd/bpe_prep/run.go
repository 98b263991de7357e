package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wbrown/bpe_prep"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pending pipeline stages for a corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink := newMetricsSink(metricsFile)
			prep, err := loadPrep(sink)
			if err != nil {
				return err
			}
			index, runErr := prep.Run(cmd.Context())
			if err := sink.flush(); err != nil && runErr == nil {
				runErr = err
			}
			if runErr != nil {
				return runErr
			}
			for _, path := range index {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget completed stages so the next run starts over",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prep, err := loadPrep(newMetricsSink(""))
			if err != nil {
				return err
			}
			status, err := bpe_prep.LoadStatus(prep.Paths.Status)
			if err != nil {
				return err
			}
			return status.Reset()
		},
	}
}
