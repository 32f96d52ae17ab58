package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/knowledge-engine/traitlab/internal/classifier"
	"github.com/knowledge-engine/traitlab/internal/tfidf"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the configuration for the experiment runner
type Config struct {
	Pipeline PipelineConfig
	Split    SplitConfig
	Sweep    SweepConfig
	Storage  StorageConfig
	Server   ServerConfig
}

// PipelineConfig holds feature extraction settings
type PipelineConfig struct {
	VocabularyThreshold int
	Mode                string
	// FeaturesAmount is used by the vectorize endpoint; <= 0 keeps every term
	FeaturesAmount int
	Workers        int
	Placeholder    string
	Stemming       bool
}

// SplitConfig holds train/test split settings
type SplitConfig struct {
	Ratio float64
	Seed  int64
	// Seeded false draws a fresh seed for every split
	Seeded bool
}

// SweepConfig holds the experiment grid
type SweepConfig struct {
	Features     []int
	Complexities []float64
	Losses       []string
	// Traits restricts the sweep to the named traits; empty means all
	Traits     []string
	TraitsFile string
	Epochs     int
}

// StorageConfig holds file locations
type StorageConfig struct {
	CorpusPath string
	CacheDir   string
	ResultsDB  string
	// ModelsDir receives one trained model per experiment; empty disables it
	ModelsDir string
}

type ServerConfig struct {
	Addr    string
	Enabled bool
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			VocabularyThreshold: GetIntEnv("PIPELINE_VOCABULARY_THRESHOLD", tfidf.DefaultThreshold),
			Mode:                GetStringEnv("PIPELINE_MODE", "unigram"),
			FeaturesAmount:      GetIntEnv("PIPELINE_FEATURES", 0),
			Workers:             GetIntEnv("PIPELINE_WORKERS", 0),
			Placeholder:         GetStringEnv("PIPELINE_MENTION_PLACEHOLDER", "username"),
			Stemming:            GetBoolEnv("PIPELINE_STEMMING", true),
		},
		Split: SplitConfig{
			Ratio:  GetFloatEnv("SPLIT_RATIO", 0.8),
			Seed:   int64(GetIntEnv("SPLIT_SEED", 123)),
			Seeded: GetBoolEnv("SPLIT_SEEDED", true),
		},
		Sweep: SweepConfig{
			Features:     GetIntListEnv("SWEEP_FEATURES", []int{5}),
			Complexities: GetFloatListEnv("SWEEP_COMPLEXITIES", []float64{1}),
			Losses:       GetStringListEnv("SWEEP_LOSSES", []string{"l1", "l2"}),
			Traits:       GetStringListEnv("SWEEP_TRAITS", nil),
			TraitsFile:   GetStringEnv("SWEEP_TRAITS_FILE", ""),
			Epochs:       GetIntEnv("SWEEP_EPOCHS", classifier.DefaultEpochs),
		},
		Storage: StorageConfig{
			CorpusPath: GetStringEnv("STORAGE_CORPUS_PATH", "./data/corpus.csv"),
			CacheDir:   GetStringEnv("STORAGE_CACHE_DIR", "./data/cache"),
			ResultsDB:  GetStringEnv("STORAGE_RESULTS_DB", "./data/results.db"),
			ModelsDir:  GetStringEnv("STORAGE_MODELS_DIR", ""),
		},
		Server: ServerConfig{
			Addr:    GetStringEnv("SERVER_ADDR", ":8080"),
			Enabled: GetBoolEnv("SERVER_ENABLED", false),
		},
	}
}

// Validate reports the first setting that would make a run fail
func (c *Config) Validate() error {
	if c.Pipeline.VocabularyThreshold < 1 {
		return fmt.Errorf("%w: vocabulary threshold must be at least 1, got %d", ErrInvalidConfig, c.Pipeline.VocabularyThreshold)
	}
	if _, err := tfidf.ParseMode(c.Pipeline.Mode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if math.IsNaN(c.Split.Ratio) || c.Split.Ratio <= 0 || c.Split.Ratio >= 1 {
		return fmt.Errorf("%w: split ratio must be in (0, 1), got %v", ErrInvalidConfig, c.Split.Ratio)
	}
	if len(c.Sweep.Features) == 0 || len(c.Sweep.Complexities) == 0 || len(c.Sweep.Losses) == 0 {
		return fmt.Errorf("%w: sweep needs at least one feature count, complexity and loss", ErrInvalidConfig)
	}
	for _, n := range c.Sweep.Features {
		if n < 1 {
			return fmt.Errorf("%w: feature count must be positive, got %d", ErrInvalidConfig, n)
		}
	}
	for _, cx := range c.Sweep.Complexities {
		if !(cx > 0) {
			return fmt.Errorf("%w: complexity must be positive, got %v", ErrInvalidConfig, cx)
		}
	}
	for _, l := range c.Sweep.Losses {
		if _, err := classifier.ParseLoss(l); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.Storage.CorpusPath == "" {
		return fmt.Errorf("%w: corpus path is required", ErrInvalidConfig)
	}
	return nil
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetStringListEnv splits a comma-separated value, dropping blank items
func GetStringListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// GetIntListEnv parses a comma-separated list of integers. Any malformed item
// discards the whole value.
func GetIntListEnv(key string, defaultValue []int) []int {
	items := GetStringListEnv(key, nil)
	if items == nil {
		return defaultValue
	}
	values := make([]int, 0, len(items))
	for _, item := range items {
		v, err := strconv.Atoi(item)
		if err != nil {
			return defaultValue
		}
		values = append(values, v)
	}
	return values
}

// GetFloatListEnv parses a comma-separated list of floats. Any malformed item
// discards the whole value.
func GetFloatListEnv(key string, defaultValue []float64) []float64 {
	items := GetStringListEnv(key, nil)
	if items == nil {
		return defaultValue
	}
	values := make([]float64, 0, len(items))
	for _, item := range items {
		v, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return defaultValue
		}
		values = append(values, v)
	}
	return values
}
