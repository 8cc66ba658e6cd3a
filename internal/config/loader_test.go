package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/akrusz/meditation-pal/internal/config"
)

func TestLoadFromReader_EnvSubstitution(t *testing.T) {
	t.Setenv("MEDPAL_TEST_KEY", "sk-secret")
	yaml := `
providers:
  tts:
    name: elevenlabs
    api_key: "${MEDPAL_TEST_KEY}"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.APIKey != "sk-secret" {
		t.Errorf("api_key = %q, want substituted value", cfg.Providers.TTS.APIKey)
	}
}

func TestLoadFromReader_UnsetEnvExpandsEmpty(t *testing.T) {
	yaml := `
providers:
  llm:
    name: openai
    api_key: "${MEDPAL_DEFINITELY_UNSET}"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "" {
		t.Errorf("api_key = %q, want empty", cfg.Providers.LLM.APIKey)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: debug
audio:
  sample_rate: 16000
  frame_ms: 100
turn_taking:
  barge_in_threshold: 0.05
  cooldown_ms: 600
pacing:
  response_delay_ms: 1500
  extended_silence_ms: 90000
providers:
  stt:
    name: whisper
    model: models/ggml-base.en.bin
  tts:
    name: elevenlabs
    api_key: test-key
  llm:
    name: openai
    model: gpt-4o
facilitation:
  focuses: [body_sensations, emotions]
  qualities: [compassionate]
  directiveness: 5
  verbosity: medium
  voice:
    voice_id: abc123
    stability: 0.5
    similarity_boost: 0.75
transcripts:
  postgres_dsn: "postgres://localhost/test"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.STT.Model != "models/ggml-base.en.bin" {
		t.Errorf("stt model = %q", cfg.Providers.STT.Model)
	}
	if cfg.Facilitation.Voice.SimilarityBoost != 0.75 {
		t.Errorf("similarity_boost = %v", cfg.Facilitation.Voice.SimilarityBoost)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_adress: ":8080"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for bad log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_UnknownFocusRejected(t *testing.T) {
	t.Parallel()
	yaml := `
facilitation:
  focuses: [chakras]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown focus, got nil")
	}
	if !strings.Contains(err.Error(), "facilitation") {
		t.Errorf("error should mention facilitation, got: %v", err)
	}
}

func TestValidate_VoiceRanges(t *testing.T) {
	t.Parallel()
	yaml := `
facilitation:
  voice:
    speed: 3.0
    stability: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "speed") {
		t.Errorf("error should mention speed, got: %v", err)
	}
	if !strings.Contains(errStr, "stability") {
		t.Errorf("error should mention stability, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
pacing:
  response_delay_ms: -5
facilitation:
  directiveness: 15
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "response_delay_ms", "directiveness"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestControllerConfig_AppliesOverrides(t *testing.T) {
	t.Parallel()
	yaml := `
turn_taking:
  barge_in_threshold: 0.08
  barge_in_frames: 5
  cooldown_ms: 600
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := cfg.ControllerConfig()
	if tc.BargeInThreshold != 0.08 {
		t.Errorf("barge-in threshold = %v, want 0.08", tc.BargeInThreshold)
	}
	if tc.BargeInFrames != 5 {
		t.Errorf("barge-in frames = %d, want 5", tc.BargeInFrames)
	}
	if tc.Cooldown != 600*time.Millisecond {
		t.Errorf("cooldown = %v, want 600ms", tc.Cooldown)
	}
	// Untouched fields keep defaults.
	if tc.WatchdogWindow != 1500*time.Millisecond {
		t.Errorf("watchdog = %v, want default 1.5s", tc.WatchdogWindow)
	}
}

func TestPacerConfig_DefaultsWhenUnset(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("{}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pc := cfg.PacerConfig()
	if pc.ResponseDelay != 2*time.Second {
		t.Errorf("response delay = %v, want default 2s", pc.ResponseDelay)
	}
	if pc.ExtendedSilence != 60*time.Second {
		t.Errorf("extended silence = %v, want default 60s", pc.ExtendedSilence)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}
