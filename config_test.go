package bpe_prep

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
min_chars_for_dict_entry: 2
min_tokens_for_dict_entry: 1
bpe_tokens_to_learn: 500
max_bpe_tokens_per_doc: 128
datablock_write_trigger_size: 1048576
model_input_size: 64
`

func TestParseConfig_Valid(t *testing.T) {
	cfg, err := ParseConfig([]byte(validConfig + `
tokenizer: regex
workers: 3
bpe_checkpoint_sizes: [100, 250]
masking:
  mask_rate: 0.2
seed: 7
logging:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MinCharsForDictEntry)
	assert.Equal(t, 500, cfg.BPETokensToLearn)
	assert.Equal(t, int64(1048576), cfg.DatablockWriteTriggerSize)
	assert.Equal(t, TokenizerRegex, cfg.Tokenizer)
	assert.Equal(t, []int{100, 250}, cfg.BPECheckpointSizes)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "json", cfg.Logging.Format)

	policy := cfg.Policy()
	assert.Equal(t, 0.2, policy.MaskRate)
	assert.Equal(t, 0.8, policy.MaskTokenRate)
	assert.Equal(t, int32(-1), policy.IgnoreLabel)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(validConfig))
	require.NoError(t, err)
	assert.Equal(t, TokenizerWhitespace, cfg.Tokenizer)
	assert.Equal(t, DefaultMaskingPolicy(), cfg.Policy())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParseConfig_RequiredKeys(t *testing.T) {
	for _, key := range RequiredKeys {
		lines := make([]string, 0)
		for _, line := range strings.Split(validConfig, "\n") {
			if !strings.HasPrefix(line, key+":") {
				lines = append(lines, line)
			}
		}
		_, err := ParseConfig([]byte(strings.Join(lines, "\n")))
		require.Error(t, err, key)
		assert.ErrorIs(t, err, ErrConfigInvalid, key)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr, key)
		assert.Equal(t, key, cfgErr.Key)
		assert.Equal(t, PipelineName, cfgErr.Pipeline)
		assert.Contains(t, err.Error(),
			"TrainingDataPrepPipeline::ConfigurationNotValid")
	}
}

func TestParseConfig_NonInteger(t *testing.T) {
	for _, value := range []string{`"12"`, "1.5", "true", "[1]", "~"} {
		doc := strings.Replace(validConfig, "model_input_size: 64",
			"model_input_size: "+value, 1)
		_, err := ParseConfig([]byte(doc))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr, value)
		assert.Equal(t, KeyModelInputSize, cfgErr.Key, value)
	}
}

func TestParseConfig_Ranges(t *testing.T) {
	tests := []struct {
		Replace string
		With    string
		Key     string
	}{
		{"bpe_tokens_to_learn: 500", "bpe_tokens_to_learn: 0",
			KeyBPETokensToLearn},
		{"min_chars_for_dict_entry: 2", "min_chars_for_dict_entry: -1",
			KeyMinCharsForDictEntry},
		{"model_input_size: 64", "model_input_size: -64",
			KeyModelInputSize},
		{"model_input_size: 64", "model_input_size: 64\ntokenizer: bogus",
			"tokenizer"},
		{"model_input_size: 64",
			"model_input_size: 64\nbpe_checkpoint_sizes: [600]",
			"bpe_checkpoint_sizes"},
		{"model_input_size: 64",
			"model_input_size: 64\nmasking:\n  mask_rate: 1.5", "masking"},
	}
	for _, test := range tests {
		doc := strings.Replace(validConfig, test.Replace, test.With, 1)
		_, err := ParseConfig([]byte(doc))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr, test.With)
		assert.Equal(t, test.Key, cfgErr.Key, test.With)
	}
}

func TestParseConfig_BadYAML(t *testing.T) {
	_, err := ParseConfig([]byte("min_chars_for_dict_entry: [\n"))
	assert.ErrorIs(t, err, ErrConfigInvalid)
	_, err = ParseConfig(nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", validConfig)
	t.Setenv("BPE_PREP_WORKERS", "5")
	t.Setenv("BPE_PREP_LOG_LEVEL", "warn")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "warn", cfg.Logging.Level)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
