// internal/lead/types.go
//
// Knit – Lead records.
//
// Context
// -------
// A Lead is the CRM-ready record produced from one successful form
// submission.  There is one variant per form type and the variant struct is
// the only place its specific fields live, so a DemoRequestLead can never
// carry an inquiryType and vice versa.  Consumers switch on the concrete type
// or on Type().
//
// Leads are built once, synchronously, by the formatter in format.go and are
// never mutated afterwards.
package lead

// FormType tags the Lead variant.
type FormType string

const (
	FormDemoRequest        FormType = "demo_request"
	FormGeneralInquiry     FormType = "general_inquiry"
	FormPartnerApplication FormType = "partner_application"
)

// Valid reports whether t names a known variant.
func (t FormType) Valid() bool {
	switch t {
	case FormDemoRequest, FormGeneralInquiry, FormPartnerApplication:
		return true
	}
	return false
}

// Lead is the tagged union over the three variants.
type Lead interface {
	Type() FormType
	Contact() *Base
}

// UTM holds campaign attribution.  Absent parameters stay empty and are
// dropped from JSON.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Content  string `json:"utm_content,omitempty"`
}

// DeviceInfo is derived from the User-Agent.
type DeviceInfo struct {
	UserAgent      string `json:"userAgent"`
	Platform       string `json:"platform,omitempty"`
	IsMobile       bool   `json:"isMobile"`
	IsTablet       bool   `json:"isTablet"`
	IsDesktop      bool   `json:"isDesktop"`
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
}

// SessionInfo describes the browsing session the submission came from.
type SessionInfo struct {
	SessionID   string `json:"sessionId"`
	LandingPage string `json:"landingPage"`
	Referrer    string `json:"referrer,omitempty"`
	TimeOnSite  int    `json:"timeOnSite"` // seconds since session start
	PageViews   int    `json:"pageViews"`
}

// Consent records what the visitor agreed to.  Terms, privacy, and data
// processing are collected through one checkbox, so they always agree.
type Consent struct {
	MarketingConsent      bool   `json:"marketingConsent"`
	TermsAccepted         bool   `json:"termsAccepted"`
	PrivacyPolicyAccepted bool   `json:"privacyPolicyAccepted"`
	DataProcessingConsent bool   `json:"dataProcessingConsent"`
	ConsentMethod         string `json:"consentMethod"`
	ConsentTimestamp      string `json:"consentTimestamp"`
}

// Location is a best-effort geo hint from the client IP.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

// Base holds the fields every variant shares.
type Base struct {
	FormType    FormType    `json:"formType"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone,omitempty"`
	Company     string      `json:"company,omitempty"`
	Website     string      `json:"website,omitempty"`
	JobTitle    string      `json:"jobTitle,omitempty"`
	CompanySize string      `json:"companySize,omitempty"`
	Industry    string      `json:"industry,omitempty"`
	Message     string      `json:"message,omitempty"`
	LeadSource  string      `json:"leadSource"`
	LeadScore   int         `json:"leadScore"`
	UTM         UTM         `json:"utm"`
	Device      DeviceInfo  `json:"device"`
	Session     SessionInfo `json:"session"`
	Consent     Consent     `json:"consent"`
	Location    *Location   `json:"location,omitempty"`
	SubmittedAt string      `json:"submittedAt"`
}

// Contact implements Lead.
func (b *Base) Contact() *Base { return b }

// DemoRequestLead comes from the "book a demo" form.
type DemoRequestLead struct {
	Base
	Vertical        string `json:"vertical"`
	ProductInterest string `json:"productInterest"`
	PreferredTime   string `json:"preferredTime,omitempty"`
}

// Type implements Lead.
func (*DemoRequestLead) Type() FormType { return FormDemoRequest }

// GeneralInquiryLead comes from the contact form.
type GeneralInquiryLead struct {
	Base
	InquiryType string `json:"inquiryType"`
}

// Type implements Lead.
func (*GeneralInquiryLead) Type() FormType { return FormGeneralInquiry }

// PartnerApplicationLead comes from the partner program form.
type PartnerApplicationLead struct {
	Base
	PartnershipType string `json:"partnershipType"`
	ClientCount     string `json:"clientCount,omitempty"`
}

// Type implements Lead.
func (*PartnerApplicationLead) Type() FormType { return FormPartnerApplication }
