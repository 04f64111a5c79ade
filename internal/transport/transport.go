// Package transport defines the boundary between the download manager and whatever moves
// bytes over the network.
package transport

import (
	"context"

	"github.com/google/uuid"
)

// Handle identifies one transfer for its whole lifetime, including across pause and resume.
type Handle string

// NewHandle mints a fresh transfer handle.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

func (h Handle) String() string {
	return string(h)
}

// ResumeToken carries what a transport needs to continue a transfer where it stopped.
type ResumeToken struct {
	URL         string
	PartialPath string
	Offset      int64
}

// EventKind distinguishes transfer events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	}

	return "unknown"
}

// Event is emitted by a transport for a transfer. Progress events carry byte counts, completed
// events carry the temporary file path and failed events carry the error plus whatever resume
// token could be salvaged.
type Event struct {
	Kind     EventKind
	Handle   Handle
	Written  int64
	Expected int64
	TempPath string
	Err      error
	Token    *ResumeToken
}

// Transport starts, cancels and resumes transfers. Each started transfer produces progress
// events and exactly one completed or failed event unless it is cancelled first; cancelled
// transfers produce no terminal event.
type Transport interface {
	Start(ctx context.Context, h Handle, url string) error
	// Cancel stops the transfer. With keepResumeData it returns a token to continue later, or
	// nil when the transfer cannot be resumed.
	Cancel(ctx context.Context, h Handle, keepResumeData bool) (*ResumeToken, error)
	Resume(ctx context.Context, h Handle, token *ResumeToken) error
	// Discard releases the partial data behind a token that will never be resumed.
	Discard(token *ResumeToken) error
	Events() <-chan Event
}
