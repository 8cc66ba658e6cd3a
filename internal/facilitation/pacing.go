// Package facilitation owns the conversational layer of a guided session:
// when the facilitator speaks (pacing), and what shapes its voice (prompt
// composition).
//
// Pacing is the most nuanced part. Distinct silences mean different things:
// a thinking pause and a contemplative dropping-in both want patience, a
// requested silent hold wants the facilitator to stay quiet until spoken to,
// and only a very long silence earns a gentle check-in.
package facilitation

import "time"

// ConversationState is the facilitator's view of the session.
type ConversationState int

const (
	// StateIdle: session not started.
	StateIdle ConversationState = iota
	// StateListening: actively listening to the participant.
	StateListening
	// StateProcessing: an utterance ended and is being transcribed or
	// answered.
	StateProcessing
	// StateResponding: the facilitator is speaking.
	StateResponding
	// StateSilentHold: extended silence mode, requested by the participant
	// via the hold signal.
	StateSilentHold
)

// String returns the lowercase state name for logs and metrics attributes.
func (s ConversationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateResponding:
		return "responding"
	case StateSilentHold:
		return "silent_hold"
	}
	return "unknown"
}

// TurnDecision is the pacer's answer to "should the facilitator speak now?".
type TurnDecision int

const (
	// DecisionWait: keep waiting.
	DecisionWait TurnDecision = iota
	// DecisionRespond: take the turn.
	DecisionRespond
	// DecisionCheckIn: offer a gentle check-in after a very long silence.
	DecisionCheckIn
	// DecisionHold: in silence mode, keep holding.
	DecisionHold
)

// String returns the lowercase decision name for logs.
func (d TurnDecision) String() string {
	switch d {
	case DecisionWait:
		return "wait"
	case DecisionRespond:
		return "respond"
	case DecisionCheckIn:
		return "check_in"
	case DecisionHold:
		return "hold"
	}
	return "unknown"
}

// PacingConfig tunes turn-taking dynamics.
type PacingConfig struct {
	// ResponseDelay is the pause after speech ends before a response is
	// considered. The turn-taking controller already enforces its own
	// silence window; this is the conversational-layer margin on top.
	ResponseDelay time.Duration

	// ExtendedSilence is how long before offering a gentle check-in.
	ExtendedSilence time.Duration
}

// DefaultPacingConfig returns the production tuning.
func DefaultPacingConfig() PacingConfig {
	return PacingConfig{
		ResponseDelay:   2 * time.Second,
		ExtendedSilence: 60 * time.Second,
	}
}

// Pacer controls turn-taking dynamics for one session. All methods take the
// caller's clock explicitly so tests never sleep. Not safe for concurrent
// use; the session loop owns it.
type Pacer struct {
	cfg PacingConfig

	state            ConversationState
	lastSpeechEnd    time.Time
	lastResponseTime time.Time
	holdStart        time.Time
	inHold           bool
}

// NewPacer creates a pacer. Zero-valued fields in cfg fall back to
// [DefaultPacingConfig].
func NewPacer(cfg PacingConfig) *Pacer {
	def := DefaultPacingConfig()
	if cfg.ResponseDelay <= 0 {
		cfg.ResponseDelay = def.ResponseDelay
	}
	if cfg.ExtendedSilence <= 0 {
		cfg.ExtendedSilence = def.ExtendedSilence
	}
	return &Pacer{cfg: cfg}
}

// State returns the current conversation state.
func (p *Pacer) State() ConversationState { return p.state }

// StartSession begins a new session.
func (p *Pacer) StartSession(now time.Time) {
	p.state = StateListening
	p.lastSpeechEnd = time.Time{}
	p.lastResponseTime = now
	p.inHold = false
}

// EndSession returns the pacer to idle.
func (p *Pacer) EndSession() { p.state = StateIdle }

// OnSpeechStart is called when the participant starts speaking.
func (p *Pacer) OnSpeechStart() {
	if p.state != StateIdle {
		p.state = StateListening
	}
}

// OnSpeechEnd is called when the participant stops speaking.
func (p *Pacer) OnSpeechEnd(now time.Time) {
	p.lastSpeechEnd = now
	p.state = StateProcessing
}

// OnTranscript processes a finished transcript. Speech auto-exits a silent
// hold; entering one is the model's call, made after its response via
// [ParseHoldSignal] and [Pacer.EnterHold].
func (p *Pacer) OnTranscript() TurnDecision {
	if p.inHold {
		p.ExitHold()
	}
	return DecisionRespond
}

// ShouldRespond checks timing-based decisions. Call it periodically during
// silence.
func (p *Pacer) ShouldRespond(now time.Time) TurnDecision {
	if p.inHold {
		if now.Sub(p.holdStart) >= p.cfg.ExtendedSilence {
			return DecisionCheckIn
		}
		return DecisionHold
	}

	if !p.lastSpeechEnd.IsZero() && now.Sub(p.lastSpeechEnd) >= p.cfg.ResponseDelay {
		return DecisionRespond
	}

	if now.Sub(p.lastResponseTime) >= p.cfg.ExtendedSilence {
		return DecisionCheckIn
	}
	return DecisionWait
}

// OnResponseStart is called when the facilitator starts speaking.
func (p *Pacer) OnResponseStart() { p.state = StateResponding }

// OnResponseEnd is called when the facilitator finishes speaking.
func (p *Pacer) OnResponseEnd(now time.Time) {
	if !p.inHold {
		p.state = StateListening
	}
	p.lastResponseTime = now
	p.lastSpeechEnd = time.Time{}
}

// EnterHold activates extended silence mode, after the model returned a hold
// signal.
func (p *Pacer) EnterHold(now time.Time) {
	p.state = StateSilentHold
	p.holdStart = now
	p.inHold = true
}

// ExitHold leaves silence mode, when the participant speaks again.
func (p *Pacer) ExitHold() {
	p.state = StateListening
	p.inHold = false
}

// InHold reports whether extended silence mode is active.
func (p *Pacer) InHold() bool { return p.inHold }

// SilenceDuration returns how long the current silence has lasted.
func (p *Pacer) SilenceDuration(now time.Time) time.Duration {
	switch {
	case p.inHold:
		return now.Sub(p.holdStart)
	case !p.lastSpeechEnd.IsZero():
		return now.Sub(p.lastSpeechEnd)
	default:
		return now.Sub(p.lastResponseTime)
	}
}
