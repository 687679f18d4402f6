// Package transcript defines the speaker-tagged transcript record produced
// by a call and the sinks that persist it.
//
// A transcript is an ordered, append-only sequence of [Entry] values. The
// relay accumulates entries in arrival order during the call and hands the
// full sequence to a [Sink] exactly once at finalize. Sinks write a complete
// snapshot per call (full overwrite, not append) so a partially written
// transcript is never observable.
package transcript

import (
	"context"
	"errors"
)

// Speaker identifies which side of the call produced an utterance.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Entry is one utterance in a call transcript.
type Entry struct {
	// Speaker is "user" (the caller) or "assistant" (the AI interviewer).
	Speaker Speaker `json:"speaker"`

	// Text is the completed transcription of the utterance.
	Text string `json:"text"`
}

// ErrNoSnapshot is returned by Latest methods when no call has been
// finalized yet. The read endpoints map it to 404.
var ErrNoSnapshot = errors.New("transcript: no snapshot available")

// Sink persists one immutable transcript snapshot per finalized call.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// WriteSnapshot persists the full ordered transcript for callID.
	// Called exactly once per call; a repeated call for the same callID
	// overwrites the previous snapshot.
	WriteSnapshot(ctx context.Context, callID string, entries []Entry) error

	// Latest returns the most recently written snapshot.
	// Returns ErrNoSnapshot when nothing has been written yet.
	Latest(ctx context.Context) ([]Entry, error)
}

// ReportStore persists the summarization output derived from a transcript.
type ReportStore interface {
	// WriteReport stores the raw report body for callID.
	WriteReport(ctx context.Context, callID string, report []byte) error

	// LatestReport returns the most recently written report body.
	// Returns ErrNoSnapshot when no report exists.
	LatestReport(ctx context.Context) ([]byte, error)
}
