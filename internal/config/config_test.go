package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.Voice != "alloy" || cfg.Speech.Model != "tts-1" || cfg.Speech.Format != "mp3" {
		t.Fatalf("unexpected speech defaults: %+v", cfg.Speech)
	}
	if cfg.Speech.Speed != 1.0 {
		t.Fatalf("expected neutral speed, got %v", cfg.Speech.Speed)
	}
	if cfg.Merge.Command != "ffmpeg" {
		t.Fatalf("expected ffmpeg merge default, got %q", cfg.Merge.Command)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readaloud.yaml")
	data := []byte("speech:\n  voice: onyx\n  speed: 1.5\nmerge:\n  command: \"ffmpeg -hide_banner\"\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.Voice != "onyx" {
		t.Fatalf("expected voice override, got %q", cfg.Speech.Voice)
	}
	if cfg.Speech.Speed != 1.5 {
		t.Fatalf("expected speed override, got %v", cfg.Speech.Speed)
	}
	if cfg.Merge.Command != "ffmpeg -hide_banner" {
		t.Fatalf("expected merge command override, got %q", cfg.Merge.Command)
	}
	// Untouched sections keep their defaults.
	if cfg.Speech.Model != "tts-1" {
		t.Fatalf("expected default model, got %q", cfg.Speech.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("READALOUD_VOICE", "nova")
	t.Setenv("READALOUD_MODEL", "tts-1-hd")
	t.Setenv("READALOUD_SPEED", "2.0")
	t.Setenv("READALOUD_API_KEY", "sk-test")
	t.Setenv("READALOUD_HISTORY_PATH", "./runs.db")
	t.Setenv("READALOUD_HISTORY_MAX_RUNS", "50")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.Voice != "nova" || cfg.Speech.Model != "tts-1-hd" {
		t.Fatalf("expected env overrides, got %+v", cfg.Speech)
	}
	if cfg.Speech.Speed != 2.0 {
		t.Fatalf("expected speed 2.0, got %v", cfg.Speech.Speed)
	}
	if cfg.API.Key != "sk-test" {
		t.Fatalf("expected api key override")
	}
	if cfg.History.Path != "./runs.db" || cfg.History.MaxRuns != 50 {
		t.Fatalf("expected history overrides, got %+v", cfg.History)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Default()
	base.API.Key = "sk-test"
	if err := Validate(base); err != nil {
		t.Fatalf("baseline should validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad voice", func(c *Config) { c.Speech.Voice = "darth" }},
		{"bad model", func(c *Config) { c.Speech.Model = "tts-9000" }},
		{"bad format", func(c *Config) { c.Speech.Format = "ogg" }},
		{"speed too low", func(c *Config) { c.Speech.Speed = 0.1 }},
		{"speed too high", func(c *Config) { c.Speech.Speed = 4.5 }},
		{"bad api mode", func(c *Config) { c.API.Mode = "azure" }},
		{"missing key", func(c *Config) { c.API.Key = "" }},
		{"empty merge command", func(c *Config) { c.Merge.Command = "" }},
		{"negative max runs", func(c *Config) { c.History.MaxRuns = -1 }},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestMockModeNeedsNoKey(t *testing.T) {
	cfg := Default()
	cfg.API.Mode = "mock"
	if err := Validate(cfg); err != nil {
		t.Fatalf("mock mode should not require a key: %v", err)
	}
}
