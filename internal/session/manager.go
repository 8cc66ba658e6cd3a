package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akrusz/meditation-pal/internal/config"
	"github.com/akrusz/meditation-pal/internal/facilitation"
	"github.com/akrusz/meditation-pal/internal/observe"
	"github.com/akrusz/meditation-pal/internal/transcript"
	"github.com/akrusz/meditation-pal/pkg/provider/llm"
	"github.com/akrusz/meditation-pal/pkg/provider/stt"
	"github.com/akrusz/meditation-pal/pkg/provider/tts"
)

// Info holds metadata about an active session.
type Info struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	Config  *config.Config
	Prompts *facilitation.Builder
	STT     stt.Provider
	TTS     tts.Provider
	LLM     llm.Provider
	Store   transcript.Store
	Metrics *observe.Metrics
}

// Manager owns the lifecycle of live sessions. Each session runs on its own
// goroutine; the manager tracks them by ID. All exported methods are safe
// for concurrent use.
type Manager struct {
	cfg     *config.Config
	prompts *facilitation.Builder
	sttP    stt.Provider
	ttsP    tts.Provider
	llmP    llm.Provider
	store   transcript.Store
	metrics *observe.Metrics

	mu      sync.Mutex
	running map[string]*runningSession
}

type runningSession struct {
	session *Session
	info    Info
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:     cfg.Config,
		prompts: cfg.Prompts,
		sttP:    cfg.STT,
		ttsP:    cfg.TTS,
		llmP:    cfg.LLM,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		running: make(map[string]*runningSession),
	}
}

// Start creates a session under id and begins running it. Returns the live
// session so the transport can wire frames and events.
//
// Returns an error if a session with this ID is already active.
func (m *Manager) Start(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.running[id]; ok {
		return nil, fmt.Errorf("session %q is already active", id)
	}

	voice := tts.Voice{
		ID:              m.cfg.Facilitation.Voice.VoiceID,
		Stability:       m.cfg.Facilitation.Voice.Stability,
		SimilarityBoost: m.cfg.Facilitation.Voice.SimilarityBoost,
		Speed:           m.cfg.Facilitation.Voice.Speed,
	}

	sess, err := New(Config{
		ID:            id,
		Controller:    m.cfg.ControllerConfig(),
		Pacing:        m.cfg.PacerConfig(),
		Prompts:       m.prompts,
		Voice:         voice,
		HistoryWindow: m.cfg.Facilitation.HistoryWindow,
		STT:           m.sttP,
		TTS:           m.ttsP,
		LLM:           m.llmP,
		Store:         m.store,
		Metrics:       m.metrics,
	})
	if err != nil {
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rs := &runningSession{
		session: sess,
		info:    Info{SessionID: id, StartedAt: time.Now()},
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.running[id] = rs

	go func() {
		defer close(rs.done)
		if err := sess.Run(sessCtx); err != nil && sessCtx.Err() == nil {
			slog.Error("session terminated", "session_id", id, "err", err)
		}
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
	}()

	return sess, nil
}

// Get returns the live session with the given ID, or false.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.running[id]
	if !ok {
		return nil, false
	}
	return rs.session, true
}

// Stop winds down the session with the given ID and waits for it to finish.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	rs, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active session %q", id)
	}

	rs.session.End()
	select {
	case <-rs.done:
	case <-ctx.Done():
		rs.cancel()
		return ctx.Err()
	}
	return nil
}

// StopAll winds down every live session. Used during server shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*runningSession, 0, len(m.running))
	for _, rs := range m.running {
		all = append(all, rs)
	}
	m.mu.Unlock()

	for _, rs := range all {
		rs.session.End()
	}
	for _, rs := range all {
		select {
		case <-rs.done:
		case <-ctx.Done():
			rs.cancel()
		}
	}
}

// Active returns metadata for all live sessions.
func (m *Manager) Active() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.running))
	for _, rs := range m.running {
		out = append(out, rs.info)
	}
	return out
}
