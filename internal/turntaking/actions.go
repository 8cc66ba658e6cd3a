package turntaking

import "time"

// ActionKind tags the side effect a [Controller.OnFrame] call is asking the
// session loop to perform. The controller itself performs no I/O; separating
// classification from effects keeps the state machine testable without a
// network or an audio device.
type ActionKind int

const (
	// ActionCancelPlayback instructs the playback backend to stop synthesized
	// speech immediately (barge-in).
	ActionCancelPlayback ActionKind = iota

	// ActionSubmitSpeculative submits the in-progress utterance for
	// transcription while capture continues. The result may be cached or
	// discarded depending on what the speaker does next.
	ActionSubmitSpeculative

	// ActionSubmitUtterance submits a finalized utterance for transcription.
	// Emitted only when no speculative request covered the utterance.
	ActionSubmitUtterance

	// ActionSubmitCommand submits a short burst as a command-only candidate:
	// the transcript is checked for a control word and otherwise discarded.
	ActionSubmitCommand

	// ActionFinalizeUtterance delivers transcript text for an utterance whose
	// speculative result was already cached when the silence window fired.
	ActionFinalizeUtterance

	// ActionWatchdogReset reports that the stuck-playback watchdog forced
	// the playback belief back to idle. Diagnostic: the session should log
	// it and bump the trip counter.
	ActionWatchdogReset
)

// String returns the lowercase action name for logs and metrics attributes.
func (k ActionKind) String() string {
	switch k {
	case ActionCancelPlayback:
		return "cancel_playback"
	case ActionSubmitSpeculative:
		return "submit_speculative"
	case ActionSubmitUtterance:
		return "submit_utterance"
	case ActionSubmitCommand:
		return "submit_command"
	case ActionFinalizeUtterance:
		return "finalize_utterance"
	case ActionWatchdogReset:
		return "watchdog_reset"
	}
	return "unknown"
}

// Action is one tagged side effect returned by [Controller.OnFrame].
type Action struct {
	Kind ActionKind

	// Request carries the audio payload for the three submit kinds; nil
	// otherwise.
	Request *TranscribeRequest

	// Text carries the transcript for ActionFinalizeUtterance.
	Text string
}

// TranscribeRequest is a snapshot of assembled utterance audio bound for the
// transcription backend, tagged with the generation that must match on the
// way back.
type TranscribeRequest struct {
	// Generation identifies the utterance attempt. A response whose
	// generation no longer matches the controller's current generation is
	// silently dropped.
	Generation uint64

	// Samples is the resampled mono audio payload. Ownership transfers to
	// the coordinator; the live frame buffer is unaffected.
	Samples []float32

	// SampleRate of Samples, after resampling to the transcription target.
	SampleRate int

	// CommandOnly marks the request as a control-word candidate whose
	// transcript must never enter the conversation.
	CommandOnly bool

	// Duration is the utterance span covered by Samples.
	Duration time.Duration

	// SubmittedAt is the frame-relative time of submission, used for the
	// slow-transcription diagnostic.
	SubmittedAt time.Duration
}

// TranscriptResult is an asynchronous transcription response marshaled back
// into the frame loop by the session.
type TranscriptResult struct {
	Generation  uint64
	Text        string
	CommandOnly bool
	Err         error
}

// OutcomeKind tags what the controller decided to do with a transcription
// result.
type OutcomeKind int

const (
	// OutcomeStale: generation mismatch; dropped without logging (expected
	// and frequent).
	OutcomeStale OutcomeKind = iota

	// OutcomeCached: speculative result arrived before the silence window
	// fired; held for reuse.
	OutcomeCached

	// OutcomeFinalText: the utterance is complete and this text is its
	// transcript; hand it to the conversation.
	OutcomeFinalText

	// OutcomeCommand: a command-only transcript matched a control word.
	OutcomeCommand

	// OutcomeResume: empty transcript or backend error; nothing actionable,
	// keep listening.
	OutcomeResume
)

// String returns the lowercase outcome name for logs and metrics attributes.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeStale:
		return "stale"
	case OutcomeCached:
		return "cached"
	case OutcomeFinalText:
		return "final_text"
	case OutcomeCommand:
		return "command"
	case OutcomeResume:
		return "resume"
	}
	return "unknown"
}

// Outcome is the controller's decision for one transcription result.
type Outcome struct {
	Kind OutcomeKind

	// Text is set for OutcomeFinalText.
	Text string

	// Command is set for OutcomeCommand.
	Command Command
}
