// internal/analytics/analytics.go
//
// Knit – Funnel analytics.
//
// Context
//   The form controller reports its lifecycle through one small interface
//   instead of calling a global hook from scattered places.  Backends here
//   log the event (zap), count it (Prometheus), fan it out (Multi), drop it
//   (Nop), or capture it for assertions (Recorder).
//
//   Emit must never block the caller for long and never fails: analytics is
//   best-effort by contract.
//
//------------------------------------------------------------------------------

package analytics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Event names emitted by the form controller.
const (
	FormStarted           = "form_started"
	FormValidationFailed  = "form_validation_failed"
	FormSubmissionStarted = "form_submission_started"
	FormSubmitted         = "form_submitted"
	FormSubmissionFailed  = "form_submission_failed"
	FormAbandoned         = "form_abandoned"
	SpamDetected          = "spam_detected"
)

// Emitter accepts (eventName, eventData) pairs.
type Emitter interface {
	Emit(ctx context.Context, name string, data map[string]any)
}

// EmitterFunc adapts a plain function.
type EmitterFunc func(ctx context.Context, name string, data map[string]any)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, name string, data map[string]any) {
	f(ctx, name, data)
}

// Nop discards everything.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, string, map[string]any) {}

// -----------------------------------------------------------------------------
// Log
// -----------------------------------------------------------------------------

// Log writes each event as one INFO line.
type Log struct{ L *zap.SugaredLogger }

// Emit implements Emitter.
func (l Log) Emit(_ context.Context, name string, data map[string]any) {
	lg := l.L
	if lg == nil {
		lg = zap.S()
	}
	kv := make([]any, 0, 2+len(data)*2)
	kv = append(kv, "event", name)
	for k, v := range data {
		kv = append(kv, k, v)
	}
	lg.Infow("analytics event", kv...)
}

// -----------------------------------------------------------------------------
// Prometheus
// -----------------------------------------------------------------------------

// Prometheus counts events by name and form.
type Prometheus struct {
	events *prometheus.CounterVec
}

// NewPrometheus registers the counter with reg (DefaultRegisterer if nil).
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knit",
			Subsystem: "forms",
			Name:      "events_total",
			Help:      "Form lifecycle analytics events.",
		}, []string{"event", "form"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(p.events)
	return p
}

// Emit implements Emitter.  The form label comes from data["formName"].
func (p *Prometheus) Emit(_ context.Context, name string, data map[string]any) {
	if p == nil {
		return
	}
	form, _ := data["formName"].(string)
	p.events.WithLabelValues(name, form).Inc()
}

// -----------------------------------------------------------------------------
// Multi
// -----------------------------------------------------------------------------

// Multi forwards to every non-nil emitter in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ctx context.Context, name string, data map[string]any) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, name, data)
		}
	}
}

// -----------------------------------------------------------------------------
// Recorder
// -----------------------------------------------------------------------------

// Event is one captured emission.
type Event struct {
	Name string
	Data map[string]any
}

// Recorder keeps every event in memory.  Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, name string, data map[string]any) {
	cp := make(map[string]any, len(data))
	for k, v := range data {
		cp[k] = v
	}
	r.mu.Lock()
	r.events = append(r.events, Event{Name: name, Data: cp})
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Name
	}
	return out
}

// Count returns how many times name was recorded.
func (r *Recorder) Count(name string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Name == name {
			n++
		}
	}
	return n
}
