package turntaking

// speculator tracks the lifecycle of speculative transcription for one
// session. Transcription is started at the base silence window, before the
// adaptive window confirms the utterance is over; if the speaker resumes, the
// in-flight result is invalidated by bumping the generation rather than by
// cancelling the request. The backend call always runs to completion; its
// result is simply dropped on arrival when the generation no longer matches.
type speculator struct {
	generation uint64

	// submitted is true once a speculative request covers the current
	// utterance; at most one is ever in flight per generation.
	submitted bool

	// awaitingFinal is true when the adaptive window fired while the
	// speculative request was still in flight: the utterance is over and the
	// next matching result is its transcript.
	awaitingFinal bool

	// cached holds a speculative result that arrived before the adaptive
	// window fired, keyed by the generation it was produced for.
	cachedGen  uint64
	cachedText string
	hasCached  bool
}

func newSpeculator() *speculator {
	return &speculator{generation: 1}
}

// currentGeneration returns the generation new requests must be tagged with.
func (s *speculator) currentGeneration() uint64 { return s.generation }

// needsSpeculative reports whether the current utterance attempt has no
// speculative request covering it yet.
func (s *speculator) needsSpeculative() bool { return !s.submitted }

// markSubmitted records that a speculative request for the current generation
// left the building.
func (s *speculator) markSubmitted() {
	s.submitted = true
}

// invalidate reacts to resumed speech: the utterance grew past the snapshot,
// so any in-flight or cached result for it is now wrong. Exactly one
// generation bump per resume, no matter how many results are outstanding.
func (s *speculator) invalidate() {
	s.generation++
	s.submitted = false
	s.awaitingFinal = false
	s.hasCached = false
	s.cachedText = ""
}

// utteranceEnded is called when the adaptive silence window fires. It returns
// the cached transcript when the speculative result already arrived, or sets
// the awaiting flag when it is still in flight. needSubmit reports that no
// speculative request ever covered this utterance and a fresh one is needed.
func (s *speculator) utteranceEnded() (text string, haveText bool, needSubmit bool) {
	if s.hasCached && s.cachedGen == s.generation {
		text = s.cachedText
		s.advance()
		return text, true, false
	}
	if s.submitted {
		s.awaitingFinal = true
		return "", false, false
	}
	return "", false, true
}

// markFinalSubmitted records a non-speculative submission for an utterance
// the speculative path never covered; the next matching result finalizes it.
func (s *speculator) markFinalSubmitted() {
	s.submitted = true
	s.awaitingFinal = true
}

// onResult classifies an arriving transcription result. Command-only results
// are handled by the caller before this point.
func (s *speculator) onResult(res TranscriptResult) Outcome {
	if res.Generation != s.generation {
		return Outcome{Kind: OutcomeStale}
	}
	if res.Err != nil || res.Text == "" {
		// The utterance produced nothing usable. Listening continues with a
		// fresh generation; an empty transcript must not reach the
		// conversation.
		s.advance()
		return Outcome{Kind: OutcomeResume}
	}
	if s.awaitingFinal {
		s.advance()
		return Outcome{Kind: OutcomeFinalText, Text: res.Text}
	}
	// Arrived ahead of the adaptive window; hold it in case the silence
	// holds too.
	s.cachedGen = res.Generation
	s.cachedText = res.Text
	s.hasCached = true
	return Outcome{Kind: OutcomeCached}
}

// advance moves to a fresh generation after an utterance is fully resolved.
func (s *speculator) advance() {
	s.generation++
	s.submitted = false
	s.awaitingFinal = false
	s.hasCached = false
	s.cachedText = ""
}

// reset restores the initial state for a new session.
func (s *speculator) reset() {
	s.generation++
	s.submitted = false
	s.awaitingFinal = false
	s.hasCached = false
	s.cachedText = ""
}
