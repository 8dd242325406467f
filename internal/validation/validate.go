// internal/validation/validate.go
//
// Knit – Validation engine: rule evaluation.
//
// Context
//   Pure functions, no package state beyond the read-mostly custom registry.
//   The controller calls ValidateField on change and ValidateAll on submit.
//
// Evaluation order
//   required → (skip when empty and optional) → email → minLength →
//   maxLength → oneOf → pattern → custom.
//
//   Email, length, and oneOf failures short-circuit.  Pattern is different: when a
//   Custom func is declared, Custom always runs once the earlier rules pass
//   and its result replaces the pattern verdict, pass or fail.  A phone
//   field with a loose pattern plus a digit-count custom check is therefore
//   decided by the custom check alone.
//
//------------------------------------------------------------------------------

package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Default messages.
const (
	MsgRequired = "This field is required"
	MsgEmail    = "Please enter a valid email address"
	MsgPattern  = "Please enter a valid value"
	MsgChoice   = "Please choose one of the available options"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmail reports whether s looks like local@domain.tld.  No RFC 5322.
func IsEmail(s string) bool { return emailRe.MatchString(s) }

// ValidateField evaluates rule against value and returns the first error
// message, or "" when the value conforms.
func ValidateField(value any, rule Rule) string {
	if rule.Required && missing(value) {
		return MsgRequired
	}
	// Absent and optional is fine; nothing else is evaluated.
	if isEmpty(value) {
		return ""
	}

	s, isString := value.(string)

	if rule.Email && (!isString || !IsEmail(strings.TrimSpace(s))) {
		return MsgEmail
	}
	if isString {
		n := utf8.RuneCountInString(s)
		if rule.MinLength > 0 && n < rule.MinLength {
			return fmt.Sprintf("Must be at least %d characters", rule.MinLength)
		}
		if rule.MaxLength > 0 && n > rule.MaxLength {
			return fmt.Sprintf("Must be no more than %d characters", rule.MaxLength)
		}
	}
	if len(rule.OneOf) > 0 && (!isString || !slices.Contains(rule.OneOf, strings.TrimSpace(s))) {
		return MsgChoice
	}

	patternMsg := ""
	if rule.Pattern != nil && (!isString || !rule.Pattern.MatchString(s)) {
		patternMsg = MsgPattern
	}
	if rule.Custom != nil {
		return rule.Custom(value)
	}
	return patternMsg
}

// ValidateAll runs ValidateField for every field declared in rules.  Keys in
// values that have no rule are ignored.  The result is never nil.
func ValidateAll(values map[string]any, rules RuleSet) Errors {
	errs := make(Errors)
	for name, rule := range rules {
		if msg := ValidateField(values[name], rule); msg != "" {
			errs[name] = msg
		}
	}
	return errs
}

// IsValid reports whether ValidateAll yields no errors.
func IsValid(values map[string]any, rules RuleSet) bool {
	return len(ValidateAll(values, rules)) == 0
}

// -----------------------------------------------------------------------------
// Emptiness helpers
// -----------------------------------------------------------------------------

// missing implements the required check: false booleans, blank strings,
// nil, and other zero values fail.
func missing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return reflect.ValueOf(v).IsZero()
	}
}

// isEmpty decides whether an optional field is "absent".  It shares the
// required semantics so the two checks never disagree.
func isEmpty(v any) bool { return missing(v) }
