package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/bpe_prep"
)

func TestNewRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"run", "sample", "flatten", "export-spm",
		"reset"} {
		assert.True(t, names[want], "subcommand %q not registered", want)
	}
}

func TestRunRequiresCorpus(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"run", "--corpus", "", "--config", "x.yaml"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--corpus")
}

func writeFixture(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.txt")
	lines := strings.Repeat("the cat sat on the mat\nthe dog ate the hat\n", 20)
	require.NoError(t, os.WriteFile(corpus, []byte(lines), 0644))
	config := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`
min_chars_for_dict_entry: 1
min_tokens_for_dict_entry: 1
bpe_tokens_to_learn: 30
max_bpe_tokens_per_doc: 16
datablock_write_trigger_size: 256
model_input_size: 8
logging:
  level: error
`), 0644))
	return corpus, config
}

func TestRunSampleAndExport(t *testing.T) {
	corpus, config := writeFixture(t)
	metricsPath := filepath.Join(filepath.Dir(corpus), "metrics.prom")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--corpus", corpus, "--config", config,
		"--metrics-file", metricsPath})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), corpus+".dataset.00000.blk")

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "bpe_prep_documents_encoded_total 40")

	out.Reset()
	cmd = NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sample", "--corpus", corpus, "--config", config,
		"--batch", "3", "--metrics-file", ""})
	require.NoError(t, cmd.Execute())
	var sample struct {
		TokenCount int       `json:"token_count"`
		Features   [][]int32 `json:"features"`
		Labels     [][]int32 `json:"labels"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &sample))
	assert.Len(t, sample.Features, 3)
	assert.Len(t, sample.Labels[0], 8)
	assert.Greater(t, sample.TokenCount, len(bpe_prep.ControlSymbols))

	spm := filepath.Join(filepath.Dir(corpus), "model.spm")
	cmd = NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"export-spm", "--vocab", corpus + ".bpe.30",
		"--out", spm})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, spm)
}

func TestFlattenWritesWholeStream(t *testing.T) {
	corpus, config := writeFixture(t)
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--corpus", corpus, "--config", config,
		"--metrics-file", ""})
	require.NoError(t, cmd.Execute())

	flat := filepath.Join(filepath.Dir(corpus), "flat.bin")
	cmd = NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"flatten", "--corpus", corpus, "--config", config,
		"--out", flat, "--uint16"})
	require.NoError(t, cmd.Execute())

	index, err := bpe_prep.ReadFileIndex(corpus + ".dataset.index")
	require.NoError(t, err)
	view, err := bpe_prep.OpenLinearDataset(index, 1, bpe_prep.LinearOptions{})
	require.NoError(t, err)
	defer view.Close()
	stat, err := os.Stat(flat)
	require.NoError(t, err)
	assert.Equal(t, view.Len()*2, stat.Size())
}
