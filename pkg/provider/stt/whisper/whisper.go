// Package whisper implements stt.Provider on the whisper.cpp CGO bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// The model is loaded once and shared; each Transcribe call creates its own
// whisper context, so concurrent calls (the speculative path plus a command
// candidate) do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/akrusz/meditation-pal/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const defaultLanguage = "en"

var _ stt.Provider = (*Provider)(nil)

// Provider runs whisper.cpp inference in-process.
type Provider struct {
	model    whisperlib.Model
	language string
	threads  int
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default language code for transcription (e.g., "en",
// "de"). Per-request hints take precedence.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithThreads caps the number of CPU threads per inference. Zero lets
// whisper.cpp decide.
func WithThreads(n int) Option {
	return func(p *Provider) { p.threads = n }
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs one inference over the snapshot. whisper.cpp cannot be
// interrupted mid-decode; ctx is only checked before starting, and a
// cancelled caller simply drops the result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	res := stt.Result{Generation: req.Generation, CommandOnly: req.CommandOnly}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("whisper: %w", err)
	}
	if len(req.Samples) == 0 {
		return res, nil
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return res, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return res, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}
	if p.threads > 0 {
		wctx.SetThreads(uint(p.threads))
	}

	start := time.Now()
	if err := wctx.Process(req.Samples, nil, nil, nil); err != nil {
		return res, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	res.Text = strings.Join(parts, " ")
	res.Latency = time.Since(start)
	return res, nil
}
