package transport

import (
	"context"

	"github.com/italolelis/downtube/internal/telemetry"
)

// InstrumentedTransport wraps a Transport with telemetry.
type InstrumentedTransport struct {
	transport Transport
	telemetry *telemetry.Telemetry
}

var _ Transport = (*InstrumentedTransport)(nil)

// NewInstrumentedTransport creates a new instrumented transport.
func NewInstrumentedTransport(t Transport, tel *telemetry.Telemetry) *InstrumentedTransport {
	return &InstrumentedTransport{
		transport: t,
		telemetry: tel,
	}
}

// Start starts a transfer with telemetry.
func (t *InstrumentedTransport) Start(ctx context.Context, h Handle, url string) error {
	return t.telemetry.InstrumentTransportOperation(ctx, "start", func(ctx context.Context) error {
		return t.transport.Start(ctx, h, url)
	})
}

// Cancel cancels a transfer with telemetry.
func (t *InstrumentedTransport) Cancel(ctx context.Context, h Handle, keepResumeData bool) (*ResumeToken, error) {
	var token *ResumeToken

	operation := "cancel"
	if keepResumeData {
		operation = "pause"
	}

	err := t.telemetry.InstrumentTransportOperation(ctx, operation, func(ctx context.Context) error {
		var err error

		token, err = t.transport.Cancel(ctx, h, keepResumeData)

		return err
	})

	return token, err
}

// Resume resumes a transfer with telemetry.
func (t *InstrumentedTransport) Resume(ctx context.Context, h Handle, token *ResumeToken) error {
	return t.telemetry.InstrumentTransportOperation(ctx, "resume", func(ctx context.Context) error {
		return t.transport.Resume(ctx, h, token)
	})
}

// Discard drops retained resume data with telemetry.
func (t *InstrumentedTransport) Discard(token *ResumeToken) error {
	return t.telemetry.InstrumentTransportOperation(context.Background(), "discard", func(context.Context) error {
		return t.transport.Discard(token)
	})
}

func (t *InstrumentedTransport) Events() <-chan Event {
	return t.transport.Events()
}
