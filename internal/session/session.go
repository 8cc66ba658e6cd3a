// Package session runs one live practice session: it pumps captured audio
// frames through the turn-taking controller, dispatches transcription and
// reply generation to the providers, and reports everything the client needs
// to hear or display as a stream of events.
//
// All controller and pacer state is confined to the goroutine running
// [Session.Run]. Provider calls happen on worker goroutines; their results
// are marshaled back onto the run loop between frames.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akrusz/meditation-pal/internal/facilitation"
	"github.com/akrusz/meditation-pal/internal/observe"
	"github.com/akrusz/meditation-pal/internal/transcript"
	"github.com/akrusz/meditation-pal/internal/turntaking"
	"github.com/akrusz/meditation-pal/internal/vad"
	"github.com/akrusz/meditation-pal/pkg/audio"
	"github.com/akrusz/meditation-pal/pkg/provider/llm"
	"github.com/akrusz/meditation-pal/pkg/provider/stt"
	"github.com/akrusz/meditation-pal/pkg/provider/tts"
)

const (
	// frameBuf absorbs network jitter between the transport and the pump.
	frameBuf = 32

	// eventBuf is the outbound event channel depth.
	eventBuf = 64

	// tickInterval drives pacing decisions and the slow-transcription check
	// while no frames or results are arriving.
	tickInterval = 250 * time.Millisecond

	// slowTranscriptionAfter is how long a transcription may stay in flight
	// before a warning is logged.
	slowTranscriptionAfter = 15 * time.Second

	// defaultHistoryWindow is the number of recent exchanges sent to the LLM.
	defaultHistoryWindow = 20
)

// EventKind identifies what a session [Event] carries.
type EventKind int

const (
	// EventUserTranscript carries the finalized transcript of a listener
	// utterance.
	EventUserTranscript EventKind = iota

	// EventFacilitatorText carries the facilitator's reply text.
	EventFacilitatorText

	// EventFacilitatorAudio carries a synthesized clip to play.
	EventFacilitatorAudio

	// EventPlaybackCancel tells the client to stop playing immediately; the
	// listener started talking over the facilitator.
	EventPlaybackCancel

	// EventMuteChanged reports a microphone mute toggle.
	EventMuteChanged

	// EventBusy reports that transcription has been in flight for longer
	// than expected, so the client can show a waiting indicator.
	EventBusy

	// EventEnded reports that the session is over. It is the last event.
	EventEnded
)

// String returns the event kind name for logs.
func (k EventKind) String() string {
	switch k {
	case EventUserTranscript:
		return "user_transcript"
	case EventFacilitatorText:
		return "facilitator_text"
	case EventFacilitatorAudio:
		return "facilitator_audio"
	case EventPlaybackCancel:
		return "playback_cancel"
	case EventMuteChanged:
		return "mute_changed"
	case EventBusy:
		return "busy"
	case EventEnded:
		return "ended"
	}
	return "unknown"
}

// Event is one item on the session's outbound stream.
type Event struct {
	Kind  EventKind
	Text  string
	Clip  tts.Clip
	Muted bool
}

// Config assembles a session's dependencies and tuning.
type Config struct {
	// ID is the caller-assigned session identifier.
	ID string

	// Controller tunes the turn-taking state machine.
	Controller turntaking.Config

	// Pacing tunes the conversational rhythm.
	Pacing facilitation.PacingConfig

	// Prompts shapes the facilitator's voice. Required.
	Prompts *facilitation.Builder

	// Voice is the TTS voice profile.
	Voice tts.Voice

	// HistoryWindow is how many recent exchanges are sent to the LLM.
	// Zero means the default of 20.
	HistoryWindow int

	// STT transcribes utterances. Required.
	STT stt.Provider

	// TTS synthesizes replies. Nil means text-only sessions.
	TTS tts.Provider

	// LLM generates replies. Required.
	LLM llm.Provider

	// Store persists the transcript. Required.
	Store transcript.Store

	// Metrics records instrumentation. Nil means the package default.
	Metrics *observe.Metrics
}

// Session is one live practice session. Construct with [New], drive with
// [Session.Run], feed with [Session.PushFrame], and consume [Session.Events].
type Session struct {
	id      string
	ctrl    *turntaking.Controller
	pacer   *facilitation.Pacer
	prompts *facilitation.Builder
	voice   tts.Voice
	window  int

	sttP    stt.Provider
	ttsP    tts.Provider
	llmP    llm.Provider
	store   transcript.Store
	metrics *observe.Metrics

	frames  chan audio.Frame
	results chan turntaking.TranscriptResult
	calls   chan func()
	events  chan Event
	quit    chan struct{}

	// Run-loop state. Touched only by the goroutine inside Run.
	runCtx        context.Context
	prevVAD       vad.State
	pendingText   string
	responding    bool
	respondCancel context.CancelFunc
	sttInFlight   int
	oldestSubmit  time.Time
	slowWarned    bool
	endPending    bool
	ended         bool
}

// New validates cfg and builds a session. Run must be called to start it.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.ID == "":
		return nil, errors.New("session: ID is required")
	case cfg.Prompts == nil:
		return nil, errors.New("session: prompt builder is required")
	case cfg.STT == nil:
		return nil, errors.New("session: STT provider is required")
	case cfg.LLM == nil:
		return nil, errors.New("session: LLM provider is required")
	case cfg.Store == nil:
		return nil, errors.New("session: transcript store is required")
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	return &Session{
		id:      cfg.ID,
		ctrl:    turntaking.NewController(cfg.Controller),
		pacer:   facilitation.NewPacer(cfg.Pacing),
		prompts: cfg.Prompts,
		voice:   cfg.Voice,
		window:  cfg.HistoryWindow,
		sttP:    cfg.STT,
		ttsP:    cfg.TTS,
		llmP:    cfg.LLM,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		frames:  make(chan audio.Frame, frameBuf),
		results: make(chan turntaking.TranscriptResult, 4),
		calls:   make(chan func(), 16),
		events:  make(chan Event, eventBuf),
		quit:    make(chan struct{}),
	}, nil
}

// Events returns the session's outbound event stream. The channel is closed
// after [EventEnded] when Run returns.
func (s *Session) Events() <-chan Event { return s.events }

// PushFrame hands one captured frame to the session. Blocks if the pump is
// saturated, applying backpressure to the transport.
func (s *Session) PushFrame(ctx context.Context, frame audio.Frame) error {
	select {
	case s.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PlaybackFinished tells the session the client played a clip to the end.
func (s *Session) PlaybackFinished() {
	s.do(func() {
		s.ctrl.PlaybackFinished()
		s.pacer.OnResponseEnd(time.Now())
	})
}

// PlaybackProgress forwards the client's playback self-report.
func (s *Session) PlaybackProgress(playing bool) {
	s.do(func() { s.ctrl.ReportPlaybackProgress(playing) })
}

// End asks the session to wind down after the current loop iteration.
func (s *Session) End() {
	s.do(func() { s.ended = true })
}

// do marshals fn onto the run loop. Safe to call from any goroutine; the
// call is dropped if the session has already stopped.
func (s *Session) do(fn func()) {
	select {
	case s.calls <- fn:
	case <-s.quit:
	}
}

// Run drives the session until ctx is cancelled or the listener ends it.
// It owns all controller and pacer state; everything else reaches that state
// through the channels serviced here.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.runCtx = runCtx

	now := time.Now()
	if err := s.store.CreateSession(ctx, s.id, now); err != nil {
		close(s.quit)
		close(s.events)
		return fmt.Errorf("session %s: %w", s.id, err)
	}
	s.pacer.StartSession(now)
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	slog.Info("session started", "session_id", s.id)
	s.speakLine(s.prompts.Opener())

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(context.WithoutCancel(ctx))
			return ctx.Err()
		case frame := <-s.frames:
			s.handleFrame(runCtx, frame)
		case res := <-s.results:
			s.handleResult(runCtx, res)
		case fn := <-s.calls:
			fn()
		case <-ticker.C:
			s.tick(runCtx)
		}
		if s.ended {
			s.finish(ctx)
			return nil
		}
	}
}

// finish stamps the session end and closes the event stream.
func (s *Session) finish(ctx context.Context) {
	close(s.quit)
	s.pacer.EndSession()
	if err := s.store.EndSession(ctx, s.id, time.Now()); err != nil {
		slog.Warn("session end not recorded", "session_id", s.id, "err", err)
	}
	s.emit(Event{Kind: EventEnded})
	close(s.events)
	slog.Info("session ended", "session_id", s.id)
}

// emit pushes an event to the client without blocking the pump forever: a
// stalled consumer drops the event rather than wedging turn taking.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		slog.Warn("event dropped, consumer stalled", "session_id", s.id, "kind", ev.Kind)
	}
}

// handleFrame runs one frame through the controller and executes the actions
// it returns.
func (s *Session) handleFrame(ctx context.Context, frame audio.Frame) {
	actions := s.ctrl.OnFrame(frame)

	cur := s.ctrl.VADState()
	if cur != s.prevVAD {
		s.metrics.RecordVADTransition(ctx, s.prevVAD.String(), cur.String())
		if cur == vad.StateSpeaking {
			s.pacer.OnSpeechStart()
		}
	}
	s.prevVAD = cur

	for _, act := range actions {
		switch act.Kind {
		case turntaking.ActionCancelPlayback:
			s.metrics.BargeIns.Add(ctx, 1)
			if s.respondCancel != nil {
				s.respondCancel()
			}
			s.responding = false
			s.emit(Event{Kind: EventPlaybackCancel})
			s.pacer.OnResponseEnd(time.Now())
			slog.Info("barge-in", "session_id", s.id)

		case turntaking.ActionSubmitSpeculative:
			s.dispatchSTT(ctx, act.Request)

		case turntaking.ActionSubmitUtterance, turntaking.ActionSubmitCommand:
			s.pacer.OnSpeechEnd(time.Now())
			s.dispatchSTT(ctx, act.Request)
			if !act.Request.CommandOnly {
				s.metrics.UtteranceDuration.Record(ctx, act.Request.Duration.Seconds())
			}

		case turntaking.ActionFinalizeUtterance:
			s.pacer.OnSpeechEnd(time.Now())
			s.metrics.RecordSpeculativeResult(ctx, "used")
			s.finalizeUser(ctx, act.Text)

		case turntaking.ActionWatchdogReset:
			s.metrics.WatchdogResets.Add(ctx, 1)
			slog.Warn("playback watchdog reset", "session_id", s.id)
		}
	}
}

// dispatchSTT runs one transcription request on a worker goroutine and feeds
// the result back into the run loop.
func (s *Session) dispatchSTT(ctx context.Context, req *turntaking.TranscribeRequest) {
	if s.sttInFlight == 0 {
		s.oldestSubmit = time.Now()
		s.slowWarned = false
	}
	s.sttInFlight++

	go func() {
		start := time.Now()
		res, err := s.sttP.Transcribe(ctx, stt.Request{
			Samples:     req.Samples,
			SampleRate:  req.SampleRate,
			Generation:  req.Generation,
			CommandOnly: req.CommandOnly,
		})
		s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			s.metrics.RecordProviderError(ctx, "stt", "transcribe")
		}
		s.metrics.RecordProviderRequest(ctx, "stt", "transcribe", status)

		out := turntaking.TranscriptResult{
			Generation:  req.Generation,
			Text:        res.Text,
			CommandOnly: req.CommandOnly,
			Err:         err,
		}
		select {
		case s.results <- out:
		case <-s.quit:
		}
	}()
}

// handleResult feeds a transcription result to the controller and acts on
// the outcome.
func (s *Session) handleResult(ctx context.Context, res turntaking.TranscriptResult) {
	s.sttInFlight--
	if s.sttInFlight <= 0 {
		s.sttInFlight = 0
		s.slowWarned = false
	}

	outcome := s.ctrl.OnTranscript(res)
	switch outcome.Kind {
	case turntaking.OutcomeFinalText:
		s.finalizeUser(ctx, outcome.Text)
	case turntaking.OutcomeCached:
		s.metrics.RecordSpeculativeResult(ctx, "cached")
	case turntaking.OutcomeStale:
		s.metrics.RecordSpeculativeResult(ctx, "stale")
		slog.Debug("stale transcription dropped", "session_id", s.id, "generation", res.Generation)
	case turntaking.OutcomeResume:
		s.metrics.RecordSpeculativeResult(ctx, "resume")
		if res.Err != nil {
			slog.Warn("transcription failed, resuming listening", "session_id", s.id, "err", res.Err)
		}
	case turntaking.OutcomeCommand:
		s.handleCommand(ctx, outcome.Command)
	}
}

// finalizeUser records a finished listener utterance and queues a reply.
// The reply itself waits for the pacer: a couple of seconds of shared
// silence before speaking is part of the practice.
func (s *Session) finalizeUser(ctx context.Context, text string) {
	if text == "" {
		return
	}
	s.emit(Event{Kind: EventUserTranscript, Text: text})
	if err := s.store.Append(ctx, s.id, transcript.Exchange{
		Role:      transcript.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	}); err != nil {
		slog.Warn("transcript append failed", "session_id", s.id, "err", err)
	}
	s.pacer.OnTranscript()
	s.pendingText = text
}

// handleCommand executes a recognised spoken control word.
func (s *Session) handleCommand(ctx context.Context, cmd turntaking.Command) {
	s.metrics.RecordControlCommand(ctx, cmd.String())
	slog.Info("control command", "session_id", s.id, "command", cmd)

	switch cmd {
	case turntaking.CommandMute:
		s.ctrl.SetMuted(true)
		s.emit(Event{Kind: EventMuteChanged, Muted: true})
	case turntaking.CommandResume:
		s.ctrl.SetMuted(false)
		s.emit(Event{Kind: EventMuteChanged, Muted: false})
	case turntaking.CommandEnd:
		// The session winds down once the goodbye has been delivered.
		s.endPending = true
		s.speakLine(s.prompts.Closer())
	}
}

// tick drives pacing while the channels are quiet.
func (s *Session) tick(ctx context.Context) {
	now := time.Now()

	if s.sttInFlight > 0 && !s.slowWarned && now.Sub(s.oldestSubmit) > slowTranscriptionAfter {
		s.slowWarned = true
		slog.Warn("transcription running slow",
			"session_id", s.id,
			"waiting", now.Sub(s.oldestSubmit).Round(time.Second),
		)
		s.emit(Event{Kind: EventBusy, Text: "still listening, transcription is taking a moment"})
	}

	if s.responding {
		return
	}
	switch s.pacer.ShouldRespond(now) {
	case facilitation.DecisionRespond:
		if s.pendingText != "" {
			text := s.pendingText
			s.pendingText = ""
			s.respond(text)
		}
	case facilitation.DecisionCheckIn:
		s.pacer.OnResponseStart()
		s.speakLine(s.prompts.CheckIn())
	}
}

// respond generates and delivers the facilitator's reply to text. The LLM
// and TTS calls run on a worker goroutine; state updates are marshaled back.
func (s *Session) respond(text string) {
	s.responding = true
	s.pacer.OnResponseStart()

	ctx, cancel := context.WithCancel(s.runCtx)
	s.respondCancel = cancel

	// The context is released on the run loop (speechDone or the delivery
	// closure), not here: deliver hands its final step back to the loop, and
	// cancelling before that step runs would void the reply.
	go func() {
		start := time.Now()

		reply, err := s.generateReply(ctx, text)
		if err != nil {
			slog.Error("reply generation failed", "session_id", s.id, "err", err)
			s.do(s.speechDone)
			return
		}

		signal, cleaned := facilitation.ParseHoldSignal(reply)
		if signal == facilitation.HoldActivate {
			s.do(func() { s.pacer.EnterHold(time.Now()) })
		}
		if cleaned == "" {
			// A bare hold marker: settle into silence without a word.
			s.do(s.speechDone)
			return
		}

		s.deliver(ctx, cleaned, start)
	}()
}

// generateReply runs the LLM with the rolling conversation window.
func (s *Session) generateReply(ctx context.Context, text string) (string, error) {
	history, err := s.store.Recent(ctx, s.id, s.window)
	if err != nil {
		slog.Warn("history fetch failed, replying without context", "session_id", s.id, "err", err)
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, ex := range history {
		msgs = append(msgs, llm.Message{Role: string(ex.Role), Content: ex.Text})
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Content != text {
		msgs = append(msgs, llm.Message{Role: "user", Content: text})
	}

	start := time.Now()
	resp, err := s.llmP.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: s.prompts.SystemPrompt(),
		Messages:     msgs,
	})
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", "complete")
		s.metrics.RecordProviderRequest(ctx, "llm", "complete", "error")
		return "", fmt.Errorf("complete: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, "llm", "complete", "ok")
	return resp.Content, nil
}

// speakLine delivers a canned facilitator line (opener, check-in, goodbye)
// without involving the LLM.
func (s *Session) speakLine(text string) {
	s.responding = true
	ctx, cancel := context.WithCancel(s.runCtx)
	s.respondCancel = cancel
	go s.deliver(ctx, text, time.Now())
}

// deliver persists, synthesizes, and emits one facilitator line, then hands
// playback bookkeeping back to the run loop. Runs on a worker goroutine.
func (s *Session) deliver(ctx context.Context, text string, started time.Time) {
	if err := s.store.Append(ctx, s.id, transcript.Exchange{
		Role:      transcript.RoleAssistant,
		Text:      text,
		Timestamp: time.Now(),
	}); err != nil {
		slog.Warn("transcript append failed", "session_id", s.id, "err", err)
	}

	var clip tts.Clip
	var haveClip bool
	if s.ttsP != nil {
		start := time.Now()
		c, err := s.ttsP.Synthesize(ctx, text, s.voice)
		s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			s.metrics.RecordProviderError(ctx, "tts", "synthesize")
			s.metrics.RecordProviderRequest(ctx, "tts", "synthesize", "error")
			slog.Error("synthesis failed, sending text only", "session_id", s.id, "err", err)
		} else {
			s.metrics.RecordProviderRequest(ctx, "tts", "synthesize", "ok")
			clip, haveClip = c, true
		}
	}

	if ctx.Err() != nil {
		// Barge-in or shutdown while synthesizing; the reply is void.
		return
	}
	s.metrics.ResponseDuration.Record(ctx, time.Since(started).Seconds())

	s.do(func() {
		if ctx.Err() != nil {
			s.speechDone()
			return
		}
		s.emit(Event{Kind: EventFacilitatorText, Text: text})
		if haveClip {
			s.emit(Event{Kind: EventFacilitatorAudio, Text: text, Clip: clip})
			s.ctrl.PlaybackStarted()
		} else {
			s.pacer.OnResponseEnd(time.Now())
		}
		s.responding = false
		if s.respondCancel != nil {
			s.respondCancel()
			s.respondCancel = nil
		}
		if s.endPending {
			s.ended = true
		}
	})
}

// speechDone clears the in-flight reply state on the run loop after a reply
// was abandoned or delivered without audio.
func (s *Session) speechDone() {
	s.responding = false
	if s.respondCancel != nil {
		s.respondCancel()
		s.respondCancel = nil
	}
	s.pacer.OnResponseEnd(time.Now())
	if s.endPending {
		s.ended = true
	}
}
