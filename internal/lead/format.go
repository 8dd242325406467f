// internal/lead/format.go
//
// Knit – Lead formatter.
//
// Context
// -------
// The formatter turns raw form input plus the ambient Environment into one
// Lead variant.  It reads the environment and the session bucket and writes
// nothing except the session bootstrap keys (id, landing page, start time)
// when they do not exist yet.
//
// Workflow
// --------
//  1. Gather ambient blocks: UTM, device, session, geo, timestamp.
//  2. Map the raw fields for the specific form type (name splitting,
//     vertical lookup, consent policy).
//  3. Score the lead.
//
// The output is not trusted blindly; ValidateLead (validate.go) re-checks
// it before the controller hands it to a sink.
package lead

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoEnvironment is returned when Format is called without context.
	ErrNoEnvironment = errors.New("lead: nil environment")

	// ErrMissingName is returned when a full-name field is blank.
	ErrMissingName = errors.New("lead: name is required")

	// ErrUnknownFormType is returned by Format for an unrecognised tag.
	ErrUnknownFormType = errors.New("lead: unknown form type")
)

// Consent methods.
const (
	ConsentExplicit = "explicit"
	ConsentImplied  = "implied"
)

// DefaultLeadSource is used when no utm_source is present.
const DefaultLeadSource = "website"

// verticalInfo is one row of the vertical lookup table.
type verticalInfo struct {
	Industry        string
	ProductInterest string
}

// FallbackInterest is the product interest for unmapped verticals.
const FallbackInterest = "Both Solutions"

var verticals = map[string]verticalInfo{
	"education":     {Industry: "Education", ProductInterest: "knit Edu"},
	"life-services": {Industry: "Life Services", ProductInterest: "knit Life"},
	"both":          {Industry: "Education & Life Services", ProductInterest: FallbackInterest},
}

// LookupVertical maps a vertical selection to industry and product interest.
// Unknown verticals are accepted: the raw label becomes the industry and the
// interest falls back to FallbackInterest.
func LookupVertical(v string) (industry, interest string) {
	if vi, ok := verticals[strings.ToLower(strings.TrimSpace(v))]; ok {
		return vi.Industry, vi.ProductInterest
	}
	return strings.TrimSpace(v), FallbackInterest
}

// -----------------------------------------------------------------------------
// Raw input shapes
// -----------------------------------------------------------------------------

// DemoRequestInput is the raw "book a demo" form.
type DemoRequestInput struct {
	Name          string
	Email         string
	Phone         string
	Company       string
	Website       string
	JobTitle      string
	CompanySize   string
	Vertical      string
	PreferredTime string
	Message       string
	Newsletter    bool
	AcceptTerms   bool
}

// GeneralInquiryInput is the raw contact form.
type GeneralInquiryInput struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Company     string
	Interest    string
	Message     string
	Newsletter  bool
	AcceptTerms bool
}

// PartnerApplicationInput is the raw partner program form.
type PartnerApplicationInput struct {
	Name            string
	Email           string
	Phone           string
	Company         string
	Website         string
	CompanySize     string
	PartnershipType string
	ClientCount     string
	Message         string
	AcceptTerms     bool
}

// -----------------------------------------------------------------------------
// Formatters
// -----------------------------------------------------------------------------

// FormatDemoRequest builds a DemoRequestLead.
func FormatDemoRequest(in DemoRequestInput, env Environment) (*DemoRequestLead, error) {
	if env == nil {
		return nil, ErrNoEnvironment
	}
	first, last, err := SplitName(in.Name)
	if err != nil {
		return nil, err
	}
	industry, interest := LookupVertical(in.Vertical)

	amb := gather(env)
	consentMethod := ConsentImplied
	if in.AcceptTerms {
		consentMethod = ConsentExplicit
	}

	l := &DemoRequestLead{
		Base: amb.base(FormDemoRequest, contactFields{
			first: first, last: last,
			email: in.Email, phone: in.Phone, company: in.Company,
			website: in.Website, jobTitle: in.JobTitle,
			companySize: in.CompanySize, industry: industry, message: in.Message,
		}),
		Vertical:        strings.TrimSpace(in.Vertical),
		ProductInterest: interest,
		PreferredTime:   strings.TrimSpace(in.PreferredTime),
	}
	l.Consent = BuildConsent(in.Newsletter, in.AcceptTerms, consentMethod, amb.now)
	l.LeadScore = CalculateLeadScore(amb.scoreInput(&l.Base))
	return l, nil
}

// FormatGeneralInquiry builds a GeneralInquiryLead.  Names arrive already
// split; the interest field passes through as the inquiry type.
func FormatGeneralInquiry(in GeneralInquiryInput, env Environment) (*GeneralInquiryLead, error) {
	if env == nil {
		return nil, ErrNoEnvironment
	}

	amb := gather(env)
	consentMethod := ConsentImplied
	if in.AcceptTerms {
		consentMethod = ConsentExplicit
	}

	l := &GeneralInquiryLead{
		Base: amb.base(FormGeneralInquiry, contactFields{
			first: in.FirstName, last: in.LastName,
			email: in.Email, phone: in.Phone, company: in.Company,
			message: in.Message,
		}),
		InquiryType: in.Interest,
	}
	l.Consent = BuildConsent(in.Newsletter, in.AcceptTerms, consentMethod, amb.now)
	l.LeadScore = CalculateLeadScore(amb.scoreInput(&l.Base))
	return l, nil
}

// FormatPartnerApplication builds a PartnerApplicationLead.  Consent is
// always explicit and follows the terms checkbox; the score carries the
// partner bonus.
func FormatPartnerApplication(in PartnerApplicationInput, env Environment) (*PartnerApplicationLead, error) {
	if env == nil {
		return nil, ErrNoEnvironment
	}
	first, last, err := SplitName(in.Name)
	if err != nil {
		return nil, err
	}

	amb := gather(env)
	l := &PartnerApplicationLead{
		Base: amb.base(FormPartnerApplication, contactFields{
			first: first, last: last,
			email: in.Email, phone: in.Phone, company: in.Company,
			website: in.Website, companySize: in.CompanySize, message: in.Message,
		}),
		PartnershipType: strings.TrimSpace(in.PartnershipType),
		ClientCount:     strings.TrimSpace(in.ClientCount),
	}
	l.Consent = BuildConsent(in.AcceptTerms, in.AcceptTerms, ConsentExplicit, amb.now)
	l.LeadScore = partnerScore(amb.scoreInput(&l.Base))
	return l, nil
}

// Format dispatches on formType, reading raw values by their form field
// names.
func Format(formType FormType, values map[string]any, env Environment) (Lead, error) {
	switch formType {
	case FormDemoRequest:
		return FormatDemoRequest(DemoRequestInput{
			Name:          str(values, "name"),
			Email:         str(values, "email"),
			Phone:         str(values, "phone"),
			Company:       str(values, "company"),
			Website:       str(values, "website"),
			JobTitle:      str(values, "jobTitle"),
			CompanySize:   str(values, "companySize"),
			Vertical:      str(values, "vertical"),
			PreferredTime: str(values, "preferredTime"),
			Message:       str(values, "message"),
			Newsletter:    flag(values, "newsletter"),
			AcceptTerms:   flag(values, "acceptTerms"),
		}, env)
	case FormGeneralInquiry:
		return FormatGeneralInquiry(GeneralInquiryInput{
			FirstName:   str(values, "firstName"),
			LastName:    str(values, "lastName"),
			Email:       str(values, "email"),
			Phone:       str(values, "phone"),
			Company:     str(values, "company"),
			Interest:    str(values, "interest"),
			Message:     str(values, "message"),
			Newsletter:  flag(values, "newsletter"),
			AcceptTerms: flag(values, "acceptTerms"),
		}, env)
	case FormPartnerApplication:
		return FormatPartnerApplication(PartnerApplicationInput{
			Name:            str(values, "name"),
			Email:           str(values, "email"),
			Phone:           str(values, "phone"),
			Company:         str(values, "company"),
			Website:         str(values, "website"),
			CompanySize:     str(values, "companySize"),
			PartnershipType: str(values, "partnershipType"),
			ClientCount:     str(values, "clientCount"),
			Message:         str(values, "message"),
			AcceptTerms:     flag(values, "acceptTerms"),
		}, env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormType, formType)
	}
}

// SplitName splits a full name on the first whitespace run.  A single token
// fills both first and last name.
func SplitName(full string) (first, last string, err error) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", "", ErrMissingName
	}
	first = parts[0]
	if len(parts) == 1 {
		return first, first, nil
	}
	return first, strings.Join(parts[1:], " "), nil
}

// -----------------------------------------------------------------------------
// Shared helpers
// -----------------------------------------------------------------------------

// ambient is the per-call snapshot of everything Environment offers.
type ambient struct {
	utm     UTM
	device  DeviceInfo
	session SessionInfo
	geo     *Location
	now     time.Time
}

func gather(env Environment) ambient {
	return ambient{
		utm:     ParseUTM(env.PageURL()),
		device:  DetectDevice(env),
		session: CurrentSession(env),
		geo:     env.Location(),
		now:     env.Now(),
	}
}

type contactFields struct {
	first, last, email, phone, company, website string
	jobTitle, companySize, industry, message    string
}

func (a ambient) base(t FormType, c contactFields) Base {
	source := a.utm.Source
	if source == "" {
		source = DefaultLeadSource
	}
	var geo *Location
	if a.geo != nil && (a.geo.Country != "" || a.geo.City != "") {
		g := *a.geo
		geo = &g
	}
	return Base{
		FormType:    t,
		FirstName:   strings.TrimSpace(c.first),
		LastName:    strings.TrimSpace(c.last),
		Email:       strings.ToLower(strings.TrimSpace(c.email)),
		Phone:       strings.TrimSpace(c.phone),
		Company:     strings.TrimSpace(c.company),
		Website:     normalizeWebsite(c.website),
		JobTitle:    strings.TrimSpace(c.jobTitle),
		CompanySize: strings.TrimSpace(c.companySize),
		Industry:    c.industry,
		Message:     strings.TrimSpace(c.message),
		LeadSource:  source,
		UTM:         a.utm,
		Device:      a.device,
		Session:     a.session,
		Location:    geo,
		SubmittedAt: Timestamp(a.now),
	}
}

func (a ambient) scoreInput(b *Base) ScoreInput {
	return ScoreInput{
		CompanySize: b.CompanySize,
		HasWebsite:  b.Website != "",
		HasPhone:    b.Phone != "",
		HasCampaign: a.utm.Campaign != "",
		TimeOnSite:  a.session.TimeOnSite,
		PageViews:   a.session.PageViews,
	}
}

// normalizeWebsite prefixes https:// when the visitor typed a bare host.
func normalizeWebsite(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "://") {
		return s
	}
	return "https://" + s
}

// str returns values[key] as a trimmed string.
func str(values map[string]any, key string) string {
	switch v := values[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// flag interprets checkbox values: true, "true", "on", "1", "yes".
func flag(values map[string]any, key string) bool {
	switch v := values[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "1", "yes":
			return true
		}
	}
	return false
}
