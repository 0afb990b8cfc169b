// Package config loads digitpad settings from a file, a .env file and the
// environment, in that order of precedence from lowest to highest.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/digitpad/internal/model"
	"github.com/Brownie44l1/digitpad/internal/normalize"
	"github.com/Brownie44l1/digitpad/internal/recognizer"
	"github.com/Brownie44l1/digitpad/internal/segment"
)

// Config holds every tunable of the server.
type Config struct {
	Server      ServerConfig      `toml:"server" yaml:"server" json:"server"`
	Model       ModelConfig       `toml:"model" yaml:"model" json:"model"`
	Recognition RecognitionConfig `toml:"recognition" yaml:"recognition" json:"recognition"`
	Quiz        QuizConfig        `toml:"quiz" yaml:"quiz" json:"quiz"`
	Logging     LoggingConfig     `toml:"logging" yaml:"logging" json:"logging"`
}

type ServerConfig struct {
	Port string `toml:"port" yaml:"port" json:"port"`
	// MaxPadSide bounds the width and height of pads created over HTTP.
	MaxPadSide int `toml:"max_pad_side" yaml:"max_pad_side" json:"max_pad_side"`
	// MaxPads caps open interactive pads; pads idle for PadIdleSeconds are closed.
	MaxPads        int `toml:"max_pads" yaml:"max_pads" json:"max_pads"`
	PadIdleSeconds int `toml:"pad_idle_seconds" yaml:"pad_idle_seconds" json:"pad_idle_seconds"`
}

type ModelConfig struct {
	Path         string `toml:"path" yaml:"path" json:"path"`
	MetadataPath string `toml:"metadata_path" yaml:"metadata_path" json:"metadata_path"`
	LibraryPath  string `toml:"library_path" yaml:"library_path" json:"library_path"`
}

type RecognitionConfig struct {
	AlphaThreshold int     `toml:"alpha_threshold" yaml:"alpha_threshold" json:"alpha_threshold"`
	MinPixels      int     `toml:"min_pixels" yaml:"min_pixels" json:"min_pixels"`
	DigitSize      int     `toml:"digit_size" yaml:"digit_size" json:"digit_size"`
	PaddingRatio   float64 `toml:"padding_ratio" yaml:"padding_ratio" json:"padding_ratio"`
	Policy         string  `toml:"policy" yaml:"policy" json:"policy"`
	TopK           int     `toml:"top_k" yaml:"top_k" json:"top_k"`
	BeamWidth      int     `toml:"beam_width" yaml:"beam_width" json:"beam_width"`
	DebounceMS     int     `toml:"debounce_ms" yaml:"debounce_ms" json:"debounce_ms"`
	ScoreMode      string  `toml:"score_mode" yaml:"score_mode" json:"score_mode"`
}

type QuizConfig struct {
	RoundSeconds int `toml:"round_seconds" yaml:"round_seconds" json:"round_seconds"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			MaxPadSide:     4096,
			MaxPads:        64,
			PadIdleSeconds: 600,
		},
		Model: ModelConfig{
			Path:         filepath.Join("models", "mnist-12.onnx"),
			MetadataPath: filepath.Join("models", "model_metadata.json"),
		},
		Recognition: RecognitionConfig{
			AlphaThreshold: segment.DefaultAlphaThreshold,
			MinPixels:      segment.DefaultMinPixels,
			DigitSize:      normalize.DefaultSize,
			PaddingRatio:   normalize.DefaultPaddingRatio,
			Policy:         normalize.PolicyMargin.String(),
			TopK:           3,
			BeamWidth:      5,
			DebounceMS:     int(recognizer.DefaultDebounce / time.Millisecond),
			ScoreMode:      model.ScoreRaw.String(),
		},
		Quiz: QuizConfig{RoundSeconds: 10},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. A missing file keeps the defaults; a
// .env file next to the working directory is loaded if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return cfg, nil
}

// ApplyEnvOverrides replaces settings with any environment variables set.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DIGITPAD_MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("DIGITPAD_METADATA_PATH"); v != "" {
		c.Model.MetadataPath = v
	}
	if v := os.Getenv("DIGITPAD_ORT_LIBRARY"); v != "" {
		c.Model.LibraryPath = v
	}
	if v := os.Getenv("DIGITPAD_SCORE_MODE"); v != "" {
		c.Recognition.ScoreMode = v
	}
	if v := os.Getenv("DIGITPAD_POLICY"); v != "" {
		c.Recognition.Policy = v
	}
	if v := os.Getenv("DIGITPAD_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Recognition.DebounceMS = n
		}
	}
	if v := os.Getenv("DIGITPAD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DIGITPAD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	r := c.Recognition
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.MaxPadSide <= 0 {
		errs = append(errs, errors.New("server.max_pad_side must be positive"))
	}
	if c.Server.MaxPads < 1 {
		errs = append(errs, errors.New("server.max_pads must be at least 1"))
	}
	if c.Server.PadIdleSeconds < 1 {
		errs = append(errs, errors.New("server.pad_idle_seconds must be at least 1"))
	}
	if r.AlphaThreshold < 1 || r.AlphaThreshold > 254 {
		errs = append(errs, fmt.Errorf("recognition.alpha_threshold %d out of range 1..254", r.AlphaThreshold))
	}
	if r.MinPixels < 1 {
		errs = append(errs, errors.New("recognition.min_pixels must be at least 1"))
	}
	if r.DigitSize < 4 {
		errs = append(errs, errors.New("recognition.digit_size must be at least 4"))
	}
	if r.PaddingRatio <= 0 || r.PaddingRatio > 1 {
		errs = append(errs, errors.New("recognition.padding_ratio must be above 0 and at most 1"))
	}
	if r.TopK < 1 || r.TopK > model.NumClasses {
		errs = append(errs, fmt.Errorf("recognition.top_k must be within 1..%d", model.NumClasses))
	}
	if r.BeamWidth < 1 {
		errs = append(errs, errors.New("recognition.beam_width must be at least 1"))
	}
	if r.DebounceMS < 0 {
		errs = append(errs, errors.New("recognition.debounce_ms must not be negative"))
	}
	if _, err := normalize.ParsePolicy(r.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := model.ParseScoreMode(r.ScoreMode); err != nil {
		errs = append(errs, err)
	}
	if c.Quiz.RoundSeconds < 1 {
		errs = append(errs, errors.New("quiz.round_seconds must be at least 1"))
	}
	return errors.Join(errs...)
}

// RecognizerOptions converts the recognition settings. Call Validate first.
func (c *Config) RecognizerOptions() recognizer.Options {
	r := c.Recognition
	policy, _ := normalize.ParsePolicy(r.Policy)
	mode, _ := model.ParseScoreMode(r.ScoreMode)
	return recognizer.Options{
		Segment: segment.Options{
			AlphaThreshold: uint8(r.AlphaThreshold),
			MinPixels:      r.MinPixels,
		},
		Normalize: normalize.Options{
			Size:         r.DigitSize,
			PaddingRatio: r.PaddingRatio,
			Policy:       policy,
		},
		TopK:      r.TopK,
		BeamWidth: r.BeamWidth,
		ScoreMode: mode,
	}
}

// Debounce is the quiet period before a pad is recognised.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Recognition.DebounceMS) * time.Millisecond
}

// PadIdle is how long an unused pad is kept open.
func (c *Config) PadIdle() time.Duration {
	return time.Duration(c.Server.PadIdleSeconds) * time.Second
}

// RoundDuration is the time allowed per quiz question.
func (c *Config) RoundDuration() time.Duration {
	return time.Duration(c.Quiz.RoundSeconds) * time.Second
}

// ModelOptions converts the model settings.
func (c *Config) ModelOptions() model.Options {
	return model.Options{
		ModelPath:    c.Model.Path,
		MetadataPath: c.Model.MetadataPath,
		LibraryPath:  c.Model.LibraryPath,
	}
}
