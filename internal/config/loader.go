package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/akrusz/meditation-pal/internal/facilitation"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "mock"},
	"tts": {"elevenlabs", "mock"},
	"llm": {"openai", "anthropic", "ollama", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// envRefPattern matches ${VAR} references in the raw config text.
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
//
// ${VAR} references anywhere in the document are replaced with the value of
// the named environment variable before decoding, so API keys can stay out of
// the config file. Unset variables expand to the empty string with a warning.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	expanded := envRefPattern.ReplaceAllStringFunc(string(raw), func(ref string) string {
		name := ref[2 : len(ref)-1]
		val, ok := os.LookupEnv(name)
		if !ok {
			slog.Warn("config references unset environment variable", "name", name)
		}
		return val
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameMS < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is negative", cfg.Audio.FrameMS))
	}

	// Turn taking
	tt := cfg.TurnTaking
	if tt.SpeechThreshold < 0 || tt.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("turn_taking.speech_threshold %.3f is out of range [0, 1]", tt.SpeechThreshold))
	}
	if tt.BargeInThreshold < 0 || tt.BargeInThreshold > 1 {
		errs = append(errs, fmt.Errorf("turn_taking.barge_in_threshold %.3f is out of range [0, 1]", tt.BargeInThreshold))
	}
	if tt.BargeInFrames < 0 {
		errs = append(errs, fmt.Errorf("turn_taking.barge_in_frames %d is negative", tt.BargeInFrames))
	}

	// Pacing
	if cfg.Pacing.ResponseDelayMS < 0 {
		errs = append(errs, fmt.Errorf("pacing.response_delay_ms %d is negative", cfg.Pacing.ResponseDelayMS))
	}
	if cfg.Pacing.ExtendedSilenceMS < 0 {
		errs = append(errs, fmt.Errorf("pacing.extended_silence_ms %d is negative", cfg.Pacing.ExtendedSilenceMS))
	}

	// Unknown provider names only warn, they never fail validation.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; spoken input cannot be transcribed")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the facilitator cannot generate replies")
	}
	if cfg.Providers.TTS.Name == "" && cfg.Facilitation.ClipDir == "" {
		slog.Warn("no TTS provider or clip directory configured; replies will be text only")
	}

	// The prompt builder rejects unknown dimension keys, so a typo in
	// focuses/qualities/verbosity fails here rather than at the first
	// session.
	if _, err := facilitation.NewBuilder(cfg.PromptConfig()); err != nil {
		errs = append(errs, fmt.Errorf("facilitation: %w", err))
	}
	if d := cfg.Facilitation.Directiveness; d < 0 || d > 10 {
		errs = append(errs, fmt.Errorf("facilitation.directiveness %d is out of range [0, 10]", d))
	}
	if v := cfg.Facilitation.Voice; v.Speed != 0 && (v.Speed < 0.5 || v.Speed > 2.0) {
		errs = append(errs, fmt.Errorf("facilitation.voice.speed %.2f is out of range [0.5, 2.0]", v.Speed))
	}
	if s := cfg.Facilitation.Voice.Stability; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("facilitation.voice.stability %.2f is out of range [0, 1]", s))
	}
	if s := cfg.Facilitation.Voice.SimilarityBoost; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("facilitation.voice.similarity_boost %.2f is out of range [0, 1]", s))
	}
	if cfg.Facilitation.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("facilitation.history_window %d is negative", cfg.Facilitation.HistoryWindow))
	}

	// Transcripts
	if cfg.Transcripts.PostgresDSN == "" {
		slog.Warn("transcripts.postgres_dsn is empty; session history will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
