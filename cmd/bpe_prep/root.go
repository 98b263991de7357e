package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wbrown/bpe_prep"
	"github.com/wbrown/bpe_prep/pkg/logger"
)

var (
	corpusPath  string
	cfgFile     string
	metricsFile string
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bpe_prep",
		Short:         "Learn a BPE vocabulary and build training datasets from a corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&corpusPath, "corpus", "", "Newline delimited corpus file")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Pipeline configuration (yaml)")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile when done")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSampleCmd())
	cmd.AddCommand(newFlattenCmd())
	cmd.AddCommand(newExportSPMCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}

// loadPrep loads the configuration, sets up logging and derives the
// corpus artifacts.
func loadPrep(m *metricsSink) (*bpe_prep.TrainingDataPrep, error) {
	if corpusPath == "" {
		return nil, errors.New("--corpus is required")
	}
	if cfgFile == "" {
		return nil, errors.New("--config is required")
	}
	cfg, err := bpe_prep.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return bpe_prep.NewTrainingDataPrep(corpusPath, cfg, m.metrics())
}
