// internal/form/controller.go
//
// Knit – Forms subsystem: per-instance state controller.
//
// Context
//   One Controller owns the live state of one form instance: field values,
//   validation errors, the touched set, submission flags, and the timers
//   behind funnel analytics.  The API layer drives it with one call per user
//   event (change, submit, reset, abandon, unload, teardown).
//
// Workflow
//   •  HandleChange clears the field's error, stores the value, and only
//      re-validates when the field had been touched before.
//   •  HandleSubmit runs honeypot → whole-form validation → optional CRM
//      formatting (with raw fallback) → sink, and always clears the
//      submitting flag on the way out.
//   •  TrackAbandonment, Unload, and Close share one single-fire guard.
//
// Notes
//   •  All state is guarded by mu.  The sink runs with mu released so
//      Snapshot keeps answering (isSubmitting = true) during a slow POST.
//   •  form_started fires once per instance and always precedes any
//      submit-related event.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/knit/internal/analytics"
	"github.com/yanizio/knit/internal/lead"
	"github.com/yanizio/knit/internal/submit"
	"github.com/yanizio/knit/internal/validation"
)

// MsgSubmitFailed is stored under the _form key when the sink fails.
const MsgSubmitFailed = "Something went wrong submitting the form.  Please try again."

// ErrUnknownField is returned by HandleChange for a name the form does not
// declare.
var ErrUnknownField = errors.New("form: unknown field")

// Status is the outcome of HandleSubmit.
type Status string

const (
	StatusBusy      Status = "busy"      // a submission is already in flight
	StatusSpam      Status = "spam"      // honeypot tripped, silently dropped
	StatusInvalid   Status = "invalid"   // validation failed, nothing sent
	StatusSubmitted Status = "submitted" // sink accepted the envelope
	StatusFailed    Status = "failed"    // sink returned an error
)

// Result reports what HandleSubmit did.
type Result struct {
	Status Status            `json:"status"`
	Errors validation.Errors `json:"errors,omitempty"`
	Focus  string            `json:"focus,omitempty"` // first failing field
	Lead   lead.Lead         `json:"-"`               // formatted lead, nil on fallback
	Err    error             `json:"-"`               // sink error for StatusFailed
}

// Focuser moves input focus to a field and scrolls it into view.
type Focuser interface {
	Focus(field string)
}

// FocuserFunc adapts a plain function.
type FocuserFunc func(field string)

// Focus implements Focuser.
func (f FocuserFunc) Focus(field string) { f(field) }

// Options wires a Controller to its collaborators.  Zero values select
// sensible defaults.
type Options struct {
	Emitter        analytics.Emitter // nil → analytics.Nop
	Sink           submit.Sink       // nil → HTTP when Endpoint set, else Simulated
	Endpoint       string            // overrides Definition.Endpoint
	SimulatedDelay time.Duration     // 0 → submit.DefaultDelay
	Env            lead.Environment  // ambient context for CRM formatting
	Focuser        Focuser
	Clock          func() time.Time
	Logger         *zap.SugaredLogger
}

// SubmitConfig carries per-call submit options.
type SubmitConfig struct {
	FormatForCRM bool
	Env          lead.Environment // overrides Options.Env for this call
	OnSuccess    func(submit.Envelope)
	OnError      func(error)
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	FormID       string            `json:"formId"`
	Values       map[string]any    `json:"values"`
	Errors       validation.Errors `json:"errors"`
	Touched      []string          `json:"touched"`
	IsSubmitting bool              `json:"isSubmitting"`
	IsSubmitted  bool              `json:"isSubmitted"`
}

// Controller is safe for concurrent use.
type Controller struct {
	def  *Definition
	opts Options
	sink submit.Sink
	log  *zap.SugaredLogger

	mu         sync.Mutex
	values     map[string]any
	errors     validation.Errors
	touched    map[string]bool
	edited     map[string]bool // fields changed by the user, feeds fieldsFilled
	submitting bool
	submitted  bool
	started    bool      // form_started emitted
	startedAt  time.Time // first interaction, restarted by Reset
	abandoned  bool      // form_abandoned emitted
	generation uint64    // bumped by Reset
}

// New builds a controller for def seeded from def.InitialValues().
func New(def *Definition, opts Options) *Controller {
	if opts.Emitter == nil {
		opts.Emitter = analytics.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.S()
	}
	if opts.Endpoint == "" {
		opts.Endpoint = def.Endpoint
	}

	sink := opts.Sink
	switch {
	case sink != nil:
	case opts.Endpoint != "":
		sink = &submit.HTTP{URL: opts.Endpoint}
	default:
		sink = submit.Simulated{Delay: opts.SimulatedDelay}
	}

	c := &Controller{
		def:     def,
		opts:    opts,
		sink:    sink,
		log:     opts.Logger.With("form", def.ID),
		values:  def.InitialValues(),
		errors:  validation.Errors{},
		touched: make(map[string]bool),
		edited:  make(map[string]bool),
	}
	c.startedAt = opts.Clock()
	return c
}

// Definition returns the form definition.
func (c *Controller) Definition() *Definition { return c.def }

// Snapshot returns a deep-enough copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	vals := make(map[string]any, len(c.values))
	for k, v := range c.values {
		if k == c.def.Honeypot {
			continue
		}
		vals[k] = v
	}
	touched := make([]string, 0, len(c.touched))
	for k := range c.touched {
		touched = append(touched, k)
	}
	sort.Strings(touched)
	return Snapshot{
		FormID:       c.def.ID,
		Values:       vals,
		Errors:       c.errors.Clone(),
		Touched:      touched,
		IsSubmitting: c.submitting,
		IsSubmitted:  c.submitted,
	}
}

// -----------------------------------------------------------------------------
// Change
// -----------------------------------------------------------------------------

// HandleChange records a new value for field.
func (c *Controller) HandleChange(ctx context.Context, field string, value any) error {
	if !c.def.hasField(field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.markStartedLocked(ctx)

	// Error clears before the value lands so a corrected field never shows
	// a stale message.
	delete(c.errors, field)
	c.values[field] = value

	wasTouched := c.touched[field]
	c.touched[field] = true
	c.edited[field] = true

	if wasTouched {
		if rule, ok := c.def.rules[field]; ok {
			if msg := validation.ValidateField(value, rule); msg != "" {
				c.errors[field] = msg
			}
		}
	}
	return nil
}

// markStartedLocked emits form_started on the first interaction.
func (c *Controller) markStartedLocked(ctx context.Context) {
	if c.started {
		return
	}
	c.started = true
	c.startedAt = c.opts.Clock()
	c.emit(ctx, analytics.FormStarted, nil)
}

// -----------------------------------------------------------------------------
// Submit
// -----------------------------------------------------------------------------

// HandleSubmit validates and delivers the current values.  Submission is not
// cancellable once started: the sink runs on a context detached from ctx's
// cancellation.
func (c *Controller) HandleSubmit(ctx context.Context, cfg SubmitConfig) Result {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return Result{Status: StatusBusy}
	}

	c.markStartedLocked(ctx)

	if honeypotTripped(c.values[c.def.Honeypot]) {
		c.mu.Unlock()
		c.log.Infow("honeypot tripped, submission dropped")
		c.emit(ctx, analytics.SpamDetected, nil)
		return Result{Status: StatusSpam}
	}

	errs := validation.ValidateAll(c.values, c.def.rules)
	if len(errs) > 0 {
		c.errors = errs
		for f := range c.def.rules {
			c.touched[f] = true
		}
		focus := c.firstFailing(errs)
		out := errs.Clone()
		c.mu.Unlock()

		if c.opts.Focuser != nil && focus != "" {
			c.opts.Focuser.Focus(focus)
		}
		c.emit(ctx, analytics.FormValidationFailed, map[string]any{
			"errorFields": out.Fields(),
			"errorCount":  len(out),
		})
		return Result{Status: StatusInvalid, Errors: out, Focus: focus}
	}

	c.submitting = true
	delete(c.errors, validation.FormErrorKey)
	formData := make(map[string]any, len(c.values))
	for k, v := range c.values {
		if k != c.def.Honeypot {
			formData[k] = v
		}
	}
	startedAt := c.startedAt
	gen := c.generation
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	now := c.opts.Clock()
	meta := submit.NewMetadata(c.def.ID, startedAt, now)
	c.emit(ctx, analytics.FormSubmissionStarted, map[string]any{
		"timeToSubmit": meta.TimeToSubmit,
	})

	var crm lead.Lead
	if cfg.FormatForCRM {
		crm = c.formatLead(formData, cfg.Env)
	}

	env := submit.Envelope{FormData: formData, CRMData: crm, Metadata: meta}
	if err := c.sink.Submit(context.WithoutCancel(ctx), env); err != nil {
		c.log.Warnw("form submission failed", "error", err)
		var out validation.Errors
		c.mu.Lock()
		if c.generation == gen {
			c.errors[validation.FormErrorKey] = MsgSubmitFailed
			out = c.errors.Clone()
		}
		c.mu.Unlock()

		c.emit(ctx, analytics.FormSubmissionFailed, map[string]any{"error": err.Error()})
		if cfg.OnError != nil {
			cfg.OnError(err)
		}
		return Result{Status: StatusFailed, Errors: out, Lead: crm, Err: err}
	}

	// A Reset during the POST started a new attempt; it stays unsubmitted.
	c.mu.Lock()
	if c.generation == gen {
		c.submitted = true
	}
	c.mu.Unlock()

	c.emit(ctx, analytics.FormSubmitted, map[string]any{
		"timeToSubmit": meta.TimeToSubmit,
		"crmFormatted": crm != nil,
	})
	if cfg.OnSuccess != nil {
		cfg.OnSuccess(env)
	}
	return Result{Status: StatusSubmitted, Lead: crm}
}

// formatLead runs the formatter and its self-check.  Any failure is logged
// and yields nil so the caller falls back to raw values.
func (c *Controller) formatLead(values map[string]any, override lead.Environment) lead.Lead {
	env := override
	if env == nil {
		env = c.opts.Env
	}
	l, err := lead.Format(c.def.FormType, values, env)
	if err != nil {
		c.log.Warnw("lead formatting failed, submitting raw values", "error", err)
		return nil
	}
	if res := lead.ValidateLead(l); !res.Valid {
		c.log.Warnw("formatted lead failed validation, submitting raw values",
			"errors", strings.Join(res.Errors, "; "))
		return nil
	}
	return l
}

// firstFailing picks the first field in declaration order that has an
// error.
func (c *Controller) firstFailing(errs validation.Errors) string {
	for _, f := range c.def.Fields {
		if _, bad := errs[f.Name]; bad {
			return f.Name
		}
	}
	if names := errs.Fields(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// honeypotTripped reports whether the decoy field carries any value.
func honeypotTripped(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	default:
		return fmt.Sprint(t) != ""
	}
}

// -----------------------------------------------------------------------------
// Reset and abandonment
// -----------------------------------------------------------------------------

// Reset restores the initial values, clears errors, touched, and
// isSubmitted, and restarts the interaction timer.  The abandonment guard
// and the form_started flag survive.  A submission still in flight finishes
// but no longer marks the form submitted.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = c.def.InitialValues()
	c.errors = validation.Errors{}
	c.touched = make(map[string]bool)
	c.edited = make(map[string]bool)
	c.submitted = false
	c.generation++
	c.startedAt = c.opts.Clock()
}

// TrackAbandonment emits form_abandoned when the form was touched but never
// submitted.  fieldsFilled counts only fields the user changed, not the ones
// a failed submit marked touched.  It reports whether the event fired.
func (c *Controller) TrackAbandonment(ctx context.Context) bool {
	return c.abandon(ctx, "explicit")
}

// Unload is the page-unload trigger.
func (c *Controller) Unload(ctx context.Context) bool {
	return c.abandon(ctx, "unload")
}

// Close is the teardown trigger.  The registry calls it on delete and on
// eviction.
func (c *Controller) Close(ctx context.Context) bool {
	return c.abandon(ctx, "teardown")
}

func (c *Controller) abandon(ctx context.Context, trigger string) bool {
	c.mu.Lock()
	if c.abandoned || c.submitted || len(c.touched) == 0 {
		c.mu.Unlock()
		return false
	}
	c.abandoned = true
	filled := len(c.edited)
	spent := int64(c.opts.Clock().Sub(c.startedAt) / time.Second)
	c.mu.Unlock()

	c.emit(ctx, analytics.FormAbandoned, map[string]any{
		"fieldsFilled": filled,
		"timeSpent":    spent,
		"trigger":      trigger,
	})
	return true
}

// emit stamps formName and forwards to the emitter.
func (c *Controller) emit(ctx context.Context, name string, data map[string]any) {
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["formName"] = c.def.ID
	c.opts.Emitter.Emit(ctx, name, payload)
}
