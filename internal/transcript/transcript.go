// Package transcript defines the persistent session record: which sessions
// happened and what was said in them, by both sides. The session layer writes
// as the conversation unfolds; the web layer reads for the history API.
package transcript

import (
	"context"
	"time"
)

// Session is one practice session.
type Session struct {
	// ID is the caller-assigned session identifier.
	ID string

	// StartedAt and EndedAt bound the session; EndedAt is zero while the
	// session is live.
	StartedAt time.Time
	EndedAt   time.Time

	// Exchanges is the number of recorded exchanges; populated by List.
	Exchanges int
}

// Role identifies who produced an exchange.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Exchange is one utterance in a session, from either side.
type Exchange struct {
	// Role is who spoke.
	Role Role

	// Text is the transcript or reply text.
	Text string

	// Timestamp is when the exchange was recorded.
	Timestamp time.Time

	// SpeechDuration is the capture-side utterance length for user
	// exchanges; zero for assistant exchanges.
	SpeechDuration time.Duration
}

// Store is the persistence boundary for session transcripts.
//
// Implementations must be safe for concurrent use; a live session appends
// while the history API reads.
type Store interface {
	// CreateSession records the start of a session. Creating an ID that
	// already exists is an error.
	CreateSession(ctx context.Context, id string, startedAt time.Time) error

	// EndSession stamps the session's end time. Ending an unknown or
	// already-ended session is an error.
	EndSession(ctx context.Context, id string, endedAt time.Time) error

	// Append records one exchange under the session.
	Append(ctx context.Context, sessionID string, ex Exchange) error

	// Exchanges returns a session's exchanges in chronological order.
	Exchanges(ctx context.Context, sessionID string) ([]Exchange, error)

	// Recent returns the last n exchanges of a session in chronological
	// order, for the rolling conversation window.
	Recent(ctx context.Context, sessionID string, n int) ([]Exchange, error)

	// List returns sessions ordered most recent first, up to limit.
	List(ctx context.Context, limit int) ([]Session, error)

	// Delete removes a session and its exchanges.
	Delete(ctx context.Context, sessionID string) error
}
