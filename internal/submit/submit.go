// internal/submit/submit.go
//
// Knit – Submission sinks.
//
// Context
//   Once a form passes validation the controller packs the raw values, the
//   optional CRM-shaped lead, and a little timing metadata into an Envelope
//   and hands it to a Sink.  The default sinks are an HTTP POST to the
//   form's endpoint and a simulated network delay for forms without one.
//   A Store sink that archives envelopes in SQL, plus Multi for fan-out,
//   round out the set.
//
// Style
//   Two-space sentence spacing, concise inline notes.
//
//------------------------------------------------------------------------------

package submit

import (
	"context"
	"time"

	"github.com/yanizio/knit/internal/lead"
)

// Metadata travels alongside every submission.
type Metadata struct {
	FormName       string `json:"formName"`
	SubmissionTime string `json:"submissionTime"`
	TimeToSubmit   int64  `json:"timeToSubmit"` // whole seconds
}

// Envelope is the JSON body POSTed to a form endpoint.  CRMData is omitted
// when formatting was not requested or fell back to raw values.
type Envelope struct {
	FormData map[string]any `json:"formData"`
	CRMData  lead.Lead      `json:"crmData,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// NewMetadata stamps submittedAt and the elapsed time since startedAt.
func NewMetadata(formName string, startedAt, submittedAt time.Time) Metadata {
	secs := int64(submittedAt.Sub(startedAt) / time.Second)
	if secs < 0 || startedAt.IsZero() {
		secs = 0
	}
	return Metadata{
		FormName:       formName,
		SubmissionTime: lead.Timestamp(submittedAt),
		TimeToSubmit:   secs,
	}
}

// Sink delivers one envelope.  A non-nil error means the submission failed
// and the user may retry.
type Sink interface {
	Submit(ctx context.Context, env Envelope) error
}

// SinkFunc adapts a plain function.
type SinkFunc func(ctx context.Context, env Envelope) error

// Submit implements Sink.
func (f SinkFunc) Submit(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Multi runs every sink in order and stops at the first error.
type Multi []Sink

// Submit implements Sink.
func (m Multi) Submit(ctx context.Context, env Envelope) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Submit(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// DefaultDelay models network latency for forms without an endpoint.
const DefaultDelay = 1500 * time.Millisecond

// Simulated waits Delay (DefaultDelay when zero) and succeeds.  A cancelled
// context aborts the wait with ctx.Err().
type Simulated struct{ Delay time.Duration }

// Submit implements Sink.
func (s Simulated) Submit(ctx context.Context, _ Envelope) error {
	d := s.Delay
	if d <= 0 {
		d = DefaultDelay
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
