// Control-word recognition for command-only transcripts.
//
// Short bursts of speech that never reach the minimum utterance length are
// transcribed anyway and checked here against a small vocabulary of session
// controls. Recognition is deliberately forgiving: speech recognition on a
// one-word clip is noisy ("mute" comes back as "moot" or "newt"), so exact
// matching is backed by Double Metaphone codes and a Jaro-Winkler floor.
package turntaking

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Command is a recognized session control word.
type Command int

const (
	CommandNone Command = iota
	// CommandMute stops feeding microphone audio into the detector until
	// resumed.
	CommandMute
	// CommandResume re-enables microphone capture after a mute.
	CommandResume
	// CommandEnd closes the session gracefully.
	CommandEnd
)

// String returns the lowercase command name for logs.
func (c Command) String() string {
	switch c {
	case CommandMute:
		return "mute"
	case CommandResume:
		return "resume"
	case CommandEnd:
		return "end"
	}
	return "none"
}

// commandVocabulary maps spoken phrases to commands. Multi-word phrases are
// matched as a whole after normalization.
var commandVocabulary = map[string]Command{
	"mute":            CommandMute,
	"stop listening":  CommandMute,
	"resume":          CommandResume,
	"unmute":          CommandResume,
	"start listening": CommandResume,
	"end session":     CommandEnd,
	"goodbye":         CommandEnd,
}

const commandFuzzyThreshold = 0.88

// ParseCommand normalizes a command-only transcript and matches it against
// the control vocabulary. Returns CommandNone when the transcript is not a
// control phrase; the caller must then discard it without acting on it.
func ParseCommand(transcript string) Command {
	text := normalizeTranscript(transcript)
	if text == "" {
		return CommandNone
	}

	if cmd, ok := commandVocabulary[text]; ok {
		return cmd
	}

	// Phonetic pass: a single-word transcript may be a mangled rendering of
	// a single-word command.
	primary, secondary := matchr.DoubleMetaphone(text)
	for phrase, cmd := range commandVocabulary {
		if strings.ContainsRune(phrase, ' ') {
			continue
		}
		p, s := matchr.DoubleMetaphone(phrase)
		if p != "" && (p == primary || p == secondary) {
			return cmd
		}
		if s != "" && (s == primary || s == secondary) {
			return cmd
		}
	}

	// Fuzzy pass catches near-misses the metaphone codes disagree on.
	for phrase, cmd := range commandVocabulary {
		if matchr.JaroWinkler(text, phrase, false) >= commandFuzzyThreshold {
			return cmd
		}
	}
	return CommandNone
}

// normalizeTranscript lowercases, strips punctuation, and collapses
// whitespace so recognizer decorations ("Mute.", " mute ") compare equal.
func normalizeTranscript(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
