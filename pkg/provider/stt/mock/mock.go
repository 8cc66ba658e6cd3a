// Package mock provides a test double for the stt package interfaces.
//
// Use Provider to script transcripts per call and inspect what audio was
// submitted. Results echo the request's generation and command-only tags the
// way a real backend must.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/akrusz/meditation-pal/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe. Samples are not copied.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Texts is the sequence of transcripts returned by successive calls. Once
	// exhausted, further calls return Text.
	Texts []string

	// Text is the fallback transcript.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Delay blocks each call for the given duration before returning, for
	// exercising the slow-transcription and stale-result paths. The block
	// respects ctx cancellation.
	Delay time.Duration

	// Calls records every invocation.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted transcript.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: req})
	text := p.Text
	if len(p.Texts) > 0 {
		text = p.Texts[0]
		p.Texts = p.Texts[1:]
	}
	err := p.Err
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Result{Generation: req.Generation, CommandOnly: req.CommandOnly}, ctx.Err()
		}
	}
	res := stt.Result{
		Text:        text,
		Generation:  req.Generation,
		CommandOnly: req.CommandOnly,
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
