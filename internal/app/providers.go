package app

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/akrusz/meditation-pal/internal/config"
	"github.com/akrusz/meditation-pal/pkg/provider/llm"
	"github.com/akrusz/meditation-pal/pkg/provider/llm/anyllm"
	llmmock "github.com/akrusz/meditation-pal/pkg/provider/llm/mock"
	"github.com/akrusz/meditation-pal/pkg/provider/llm/openai"
	"github.com/akrusz/meditation-pal/pkg/provider/stt"
	sttmock "github.com/akrusz/meditation-pal/pkg/provider/stt/mock"
	"github.com/akrusz/meditation-pal/pkg/provider/stt/whisper"
	"github.com/akrusz/meditation-pal/pkg/provider/tts"
	"github.com/akrusz/meditation-pal/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/akrusz/meditation-pal/pkg/provider/tts/mock"
)

// Providers holds one implementation per provider slot.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
	LLM llm.Provider
}

// NewProviders constructs provider implementations from config. Empty or
// "mock" provider names produce test doubles so the server can run without
// any external services.
func NewProviders(cfg *config.Config) (*Providers, error) {
	p := &Providers{}
	var err error

	if p.STT, err = newSTT(cfg.Providers.STT); err != nil {
		return nil, fmt.Errorf("app: stt provider: %w", err)
	}
	if p.TTS, err = newTTS(cfg.Providers.TTS, cfg.Facilitation.ClipDir); err != nil {
		return nil, fmt.Errorf("app: tts provider: %w", err)
	}
	if p.LLM, err = newLLM(cfg.Providers.LLM); err != nil {
		return nil, fmt.Errorf("app: llm provider: %w", err)
	}
	return p, nil
}

func newSTT(entry config.ProviderEntry) (stt.Provider, error) {
	switch entry.Name {
	case "whisper":
		opts := []whisper.Option{}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if threads := optInt(entry.Options, "threads"); threads > 0 {
			opts = append(opts, whisper.WithThreads(threads))
		}
		return whisper.New(entry.Model, opts...)
	case "mock", "":
		slog.Warn("using mock stt provider, transcripts will be empty")
		return &sttmock.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", entry.Name)
	}
}

func newTTS(entry config.ProviderEntry, clipDir string) (tts.Provider, error) {
	var backend tts.Provider
	switch entry.Name {
	case "elevenlabs":
		opts := []elevenlabs.Option{}
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		p, err := elevenlabs.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		backend = p
	case "mock", "":
		slog.Warn("using mock tts provider, facilitator audio will be silence")
		backend = &ttsmock.Provider{}
	default:
		return nil, fmt.Errorf("unknown provider %q", entry.Name)
	}

	// Recurring lines (openers, check-ins, closers) come from the clip
	// library when one is configured; everything else falls through to the
	// live backend.
	if clipDir != "" {
		return tts.NewLibrary(clipDir, 16000, backend)
	}
	return backend, nil
}

func newLLM(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		opts := []openai.Option{}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	case "anthropic":
		opts := []anyllmlib.Option{}
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		return anyllm.NewAnthropic(entry.Model, opts...)
	case "ollama":
		opts := []anyllmlib.Option{}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	case "mock", "":
		slog.Warn("using mock llm provider, facilitator replies are canned")
		return &llmmock.Provider{Reply: "I'm here with you. Take your time."}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", entry.Name)
	}
}

func optString(opts map[string]any, key string) string {
	if s, ok := opts[key].(string); ok {
		return s
	}
	return ""
}

func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
