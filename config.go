package bpe_prep

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const PipelineName = "TrainingDataPrepPipeline"

// Required configuration keys.
const (
	KeyMinCharsForDictEntry      = "min_chars_for_dict_entry"
	KeyMinTokensForDictEntry     = "min_tokens_for_dict_entry"
	KeyBPETokensToLearn          = "bpe_tokens_to_learn"
	KeyMaxBPETokensPerDoc        = "max_bpe_tokens_per_doc"
	KeyDatablockWriteTriggerSize = "datablock_write_trigger_size"
	KeyModelInputSize            = "model_input_size"
)

var RequiredKeys = []string{
	KeyMinCharsForDictEntry,
	KeyMinTokensForDictEntry,
	KeyBPETokensToLearn,
	KeyMaxBPETokensPerDoc,
	KeyDatablockWriteTriggerSize,
	KeyModelInputSize,
}

// Config is the pipeline configuration.
type Config struct {
	MinCharsForDictEntry      int   `yaml:"min_chars_for_dict_entry"`
	MinTokensForDictEntry     int   `yaml:"min_tokens_for_dict_entry"`
	BPETokensToLearn          int   `yaml:"bpe_tokens_to_learn"`
	MaxBPETokensPerDoc        int   `yaml:"max_bpe_tokens_per_doc"`
	DatablockWriteTriggerSize int64 `yaml:"datablock_write_trigger_size"`
	ModelInputSize            int   `yaml:"model_input_size"`

	Tokenizer          string        `yaml:"tokenizer"`
	Workers            int           `yaml:"workers"`
	BPECheckpointSizes []int         `yaml:"bpe_checkpoint_sizes"`
	Masking            MaskingConfig `yaml:"masking"`
	Seed               int64         `yaml:"seed"`
	Logging            LoggingConfig `yaml:"logging"`
}

// MaskingConfig mirrors MaskingPolicy.
type MaskingConfig struct {
	MaskRate        float64 `yaml:"mask_rate"`
	MaskTokenRate   float64 `yaml:"mask_token_rate"`
	RandomTokenRate float64 `yaml:"random_token_rate"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Policy is the masking policy the generator uses.
func (cfg *Config) Policy() MaskingPolicy {
	policy := DefaultMaskingPolicy()
	policy.MaskRate = cfg.Masking.MaskRate
	policy.MaskTokenRate = cfg.Masking.MaskTokenRate
	policy.RandomTokenRate = cfg.Masking.RandomTokenRate
	return policy
}

func defaultConfig() *Config {
	policy := DefaultMaskingPolicy()
	return &Config{
		Tokenizer: TokenizerWhitespace,
		Masking: MaskingConfig{
			MaskRate:        policy.MaskRate,
			MaskTokenRate:   policy.MaskTokenRate,
			RandomTokenRate: policy.RandomTokenRate,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads and validates the YAML configuration at path, then
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// ParseConfig decodes and validates a YAML configuration document.
func ParseConfig(data []byte) (*Config, error) {
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Pipeline: PipelineName,
			Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	if err := ValidateConfigMap(raw); err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Pipeline: PipelineName,
			Message: fmt.Sprintf("decoding YAML: %v", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfigMap checks that every required key is present and holds an
// integer.
func ValidateConfigMap(raw map[string]any) error {
	for _, key := range RequiredKeys {
		value, ok := raw[key]
		if !ok || value == nil {
			return &ConfigError{Pipeline: PipelineName, Key: key,
				Message: "missing required integer value"}
		}
		switch value.(type) {
		case int, int64, uint64:
		default:
			return &ConfigError{Pipeline: PipelineName, Key: key,
				Message: fmt.Sprintf("expected an integer, got %v", value)}
		}
	}
	return nil
}

// Validate checks value ranges of a decoded configuration.
func (cfg *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return &ConfigError{Pipeline: PipelineName, Key: key,
			Message: fmt.Sprintf(format, args...)}
	}
	if cfg.MinCharsForDictEntry < 0 {
		return invalid(KeyMinCharsForDictEntry, "must not be negative")
	}
	if cfg.MinTokensForDictEntry < 0 {
		return invalid(KeyMinTokensForDictEntry, "must not be negative")
	}
	if cfg.BPETokensToLearn <= 0 {
		return invalid(KeyBPETokensToLearn, "must be positive")
	}
	if cfg.MaxBPETokensPerDoc <= 0 {
		return invalid(KeyMaxBPETokensPerDoc, "must be positive")
	}
	if cfg.DatablockWriteTriggerSize <= 0 {
		return invalid(KeyDatablockWriteTriggerSize, "must be positive")
	}
	if cfg.ModelInputSize <= 0 {
		return invalid(KeyModelInputSize, "must be positive")
	}
	if cfg.Workers < 0 {
		return invalid("workers", "must not be negative")
	}
	for _, size := range cfg.BPECheckpointSizes {
		if size <= 0 || size >= cfg.BPETokensToLearn {
			return invalid("bpe_checkpoint_sizes",
				"%d is not between 0 and %s", size, KeyBPETokensToLearn)
		}
	}
	if _, err := NewTokenizer(cfg.Tokenizer); err != nil {
		return invalid("tokenizer", "%v", err)
	}
	if err := cfg.Policy().Validate(); err != nil {
		return invalid("masking", "%v", err)
	}
	return nil
}

// applyEnvOverrides lets the environment adjust operational settings that
// do not change artifacts.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BPE_PREP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("BPE_PREP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BPE_PREP_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
