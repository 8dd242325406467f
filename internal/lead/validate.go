// internal/lead/validate.go
//
// Output-shape check for formatted leads.
//
// Context
// -------
// The validation engine checks raw input; this file checks the record the
// formatter produced.  Valid raw input can still map to a malformed lead if
// a mapping is wrong, so the controller runs ValidateLead before every
// hand-off and falls back to raw values when it fails.
package lead

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/yanizio/knit/internal/validation"
)

// Result is the outcome of ValidateLead.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Messages reported by ValidateLead.
const (
	ErrMsgEmail     = "Valid email is required"
	ErrMsgFirstName = "First name is required"
	ErrMsgLastName  = "Last name is required"
	ErrMsgPhone     = "Invalid phone number format"
	ErrMsgWebsite   = "Invalid website URL"
)

var (
	phoneChars = regexp.MustCompile(`^[0-9\s()+\-]+$`)
	checker    = validator.New()
)

// ValidateLead re-checks a formatted lead.  A nil lead is invalid.
func ValidateLead(l Lead) Result {
	if l == nil {
		return Result{Errors: []string{ErrMsgEmail, ErrMsgFirstName, ErrMsgLastName}}
	}
	b := l.Contact()
	errs := make([]string, 0, 2)

	if !validation.IsEmail(b.Email) {
		errs = append(errs, ErrMsgEmail)
	}
	if b.FirstName == "" {
		errs = append(errs, ErrMsgFirstName)
	}
	if b.LastName == "" {
		errs = append(errs, ErrMsgLastName)
	}
	if b.Phone != "" && !phoneChars.MatchString(b.Phone) {
		errs = append(errs, ErrMsgPhone)
	}
	if b.Website != "" && checker.Var(b.Website, "url") != nil {
		errs = append(errs, ErrMsgWebsite)
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}
