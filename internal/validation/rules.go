// internal/validation/rules.go
//
// Knit – Validation engine: rule descriptors.
//
// Context
//   Every lead-capture form declares a RuleSet once, at definition time.  A
//   Rule is an immutable descriptor; the engine in validate.go evaluates it
//   against whatever value the controller currently holds for that field.
//   Rule sets come from two places: Go literals (tests, tooling) and the
//   YAML form definitions loaded by internal/form.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package validation

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"unicode"
)

// FormErrorKey is the reserved ErrorMap key for whole-form errors.
const FormErrorKey = "_form"

// CustomFunc inspects a value and returns a user-facing error message, or ""
// when the value is acceptable.  A non-empty return IS the message shown.
type CustomFunc func(value any) string

// Rule describes the constraints for one field.  Zero values mean "unset".
//
// Pattern must be built with Pattern (or otherwise anchored) because the
// engine requires a full match.  When Custom is set it has the final word
// over Pattern; see ValidateField.
type Rule struct {
	Required  bool
	Email     bool
	MinLength int
	MaxLength int
	OneOf     []string // allowed values for a closed select, nil accepts any
	Pattern   *regexp.Regexp
	Custom    CustomFunc
}

// RuleSet maps field name → Rule.  Shared by reference for a form's lifetime.
type RuleSet map[string]Rule

// Errors maps field name → message.  FormErrorKey holds whole-form errors.
type Errors map[string]string

// Fields returns the field names carrying errors, sorted for stable output.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.  Nil stays nil.
func (e Errors) Clone() Errors {
	if e == nil {
		return nil
	}
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Pattern compiles expr so that it must match the entire value.  It panics on
// a bad expression, like regexp.MustCompile, since patterns are static.
func Pattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(`^(?:` + expr + `)$`)
}

// CompilePattern is the error-returning variant used by the YAML loader.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return re, nil
}

// -----------------------------------------------------------------------------
// Named custom validators
// -----------------------------------------------------------------------------

var (
	customMu sync.RWMutex
	customs  = map[string]CustomFunc{
		"phone": phoneDigits,
	}
)

// RegisterCustom makes fn available to YAML definitions under name.  A later
// registration replaces an earlier one.
func RegisterCustom(name string, fn CustomFunc) {
	customMu.Lock()
	customs[name] = fn
	customMu.Unlock()
}

// Custom returns the named validator.  The boolean is false when unknown.
func Custom(name string) (CustomFunc, bool) {
	customMu.RLock()
	defer customMu.RUnlock()
	fn, ok := customs[name]
	return fn, ok
}

// phoneDigits accepts 10 to 15 digits regardless of punctuation.  Phone
// fields pair it with a loose Pattern; since Custom overrides Pattern, this
// check is the field's real authority.
func phoneDigits(v any) string {
	s, ok := v.(string)
	if !ok {
		return "Please enter a valid phone number"
	}
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	if n < 10 || n > 15 {
		return "Please enter a valid phone number"
	}
	return ""
}
