// Package mock provides a test double for the llm package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/akrusz/meditation-pal/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Replies is the sequence of assistant replies returned by successive
	// Complete calls. Once exhausted, further calls return Reply.
	Replies []string

	// Reply is the fallback assistant reply.
	Reply string

	// Err, if non-nil, is returned as the error from Complete and as the
	// start error from StreamCompletion.
	Err error

	// Requests records every request passed to Complete or StreamCompletion.
	Requests []llm.CompletionRequest
}

// Complete records the request and returns the next scripted reply.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	reply := p.Reply
	if len(p.Replies) > 0 {
		reply = p.Replies[0]
		p.Replies = p.Replies[1:]
	}
	return &llm.CompletionResponse{Content: reply}, nil
}

// StreamCompletion emits the next scripted reply as a single chunk followed
// by a stop chunk.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: resp.Content}
	ch <- llm.Chunk{FinishReason: "stop"}
	close(ch)
	return ch, nil
}

// LastRequest returns the most recent recorded request, or false when none.
func (p *Provider) LastRequest() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.Requests[len(p.Requests)-1], true
}
