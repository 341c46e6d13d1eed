package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type SpeechConfig struct {
	Voice  string  `yaml:"voice"`
	Model  string  `yaml:"model"`
	Format string  `yaml:"format"`
	Speed  float64 `yaml:"speed"`
}

type APIConfig struct {
	Mode      string `yaml:"mode"` // openai, mock
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type OCRConfig struct {
	Model     string `yaml:"model"`
	Prompt    string `yaml:"prompt"`
	MaxTokens int    `yaml:"max_tokens"`
}

type MergeConfig struct {
	Command string `yaml:"command"`
}

type HistoryConfig struct {
	Path    string `yaml:"path"`
	MaxRuns int    `yaml:"max_runs"`
}

type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type Config struct {
	Speech    SpeechConfig    `yaml:"speech"`
	API       APIConfig       `yaml:"api"`
	OCR       OCRConfig       `yaml:"ocr"`
	Merge     MergeConfig     `yaml:"merge"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Voices accepted by the speech endpoint.
var Voices = []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}

// Models accepted by the speech endpoint.
var Models = []string{"tts-1", "tts-1-hd", "gpt-4o-mini-tts"}

// Formats accepted by the speech endpoint. Raw pcm output is wrapped into a
// WAV container before it is written to disk.
var Formats = []string{"mp3", "opus", "aac", "flac", "wav", "pcm"}

const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

func Default() Config {
	return Config{
		Speech: SpeechConfig{
			Voice:  "alloy",
			Model:  "tts-1",
			Format: "mp3",
			Speed:  1.0,
		},
		API: APIConfig{
			Mode:      "openai",
			BaseURL:   "https://api.openai.com/v1",
			TimeoutMS: 120000,
		},
		OCR: OCRConfig{
			Model:     "gpt-4o-mini",
			Prompt:    "Extract all readable text from this image. Return only the text, nothing else.",
			MaxTokens: 4096,
		},
		Merge: MergeConfig{
			Command: "ffmpeg",
		},
		History: HistoryConfig{
			Path:    "",
			MaxRuns: 1000,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
	}
}

// Load reads the config file (when path is non-empty) over the defaults
// and applies environment overrides. Callers run Validate after layering
// any CLI flag overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Speech.Voice, "READALOUD_VOICE")
	overrideString(&cfg.Speech.Model, "READALOUD_MODEL")
	overrideString(&cfg.Speech.Format, "READALOUD_FORMAT")
	overrideFloat(&cfg.Speech.Speed, "READALOUD_SPEED")
	overrideString(&cfg.API.Mode, "READALOUD_API_MODE")
	overrideString(&cfg.API.BaseURL, "READALOUD_API_BASE_URL")
	overrideString(&cfg.API.Key, "OPENAI_API_KEY")
	overrideString(&cfg.API.Key, "READALOUD_API_KEY")
	overrideInt(&cfg.API.TimeoutMS, "READALOUD_API_TIMEOUT_MS")
	overrideString(&cfg.OCR.Model, "READALOUD_OCR_MODEL")
	overrideString(&cfg.OCR.Prompt, "READALOUD_OCR_PROMPT")
	overrideInt(&cfg.OCR.MaxTokens, "READALOUD_OCR_MAX_TOKENS")
	overrideString(&cfg.Merge.Command, "READALOUD_MERGE_COMMAND")
	overrideString(&cfg.History.Path, "READALOUD_HISTORY_PATH")
	overrideInt(&cfg.History.MaxRuns, "READALOUD_HISTORY_MAX_RUNS")
	overrideBool(&cfg.Telemetry.Enabled, "READALOUD_TELEMETRY_ENABLED")
	overrideString(&cfg.Telemetry.LogLevel, "READALOUD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "READALOUD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "READALOUD_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "READALOUD_TELEMETRY_PROMETHEUS_BIND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// Validate checks the fully resolved configuration.
func Validate(cfg Config) error {
	if !contains(Voices, cfg.Speech.Voice) {
		return fmt.Errorf("speech.voice must be one of %s", strings.Join(Voices, "|"))
	}
	if !contains(Models, cfg.Speech.Model) {
		return fmt.Errorf("speech.model must be one of %s", strings.Join(Models, "|"))
	}
	if !contains(Formats, cfg.Speech.Format) {
		return fmt.Errorf("speech.format must be one of %s", strings.Join(Formats, "|"))
	}
	if cfg.Speech.Speed < MinSpeed || cfg.Speech.Speed > MaxSpeed {
		return fmt.Errorf("speech.speed must be between %v and %v", MinSpeed, MaxSpeed)
	}
	switch cfg.API.Mode {
	case "openai", "mock":
	default:
		return errors.New("api.mode must be one of openai|mock")
	}
	if cfg.API.Mode == "openai" {
		if cfg.API.BaseURL == "" {
			return errors.New("api.base_url must not be empty")
		}
		if cfg.API.Key == "" {
			return errors.New("api.key must be set (or export OPENAI_API_KEY)")
		}
	}
	if cfg.API.TimeoutMS <= 0 {
		return errors.New("api.timeout_ms must be positive")
	}
	if cfg.Merge.Command == "" {
		return errors.New("merge.command must not be empty")
	}
	if cfg.History.MaxRuns < 0 {
		return errors.New("history.max_runs must be >= 0")
	}
	if cfg.OCR.MaxTokens <= 0 {
		return errors.New("ocr.max_tokens must be positive")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
