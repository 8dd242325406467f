package lead

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36"

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newEnv(pageURL string) *StaticEnv {
	return &StaticEnv{
		URL:   pageURL,
		UA:    chromeUA,
		Clock: func() time.Time { return fixedNow },
	}
}

func TestSplitName(t *testing.T) {
	first, last, err := SplitName("Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	first, last, err = SplitName("Jane")
	require.NoError(t, err)
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Jane", last)

	first, last, err = SplitName("  Mary   Ann Smith ")
	require.NoError(t, err)
	assert.Equal(t, "Mary", first)
	assert.Equal(t, "Ann Smith", last)

	_, _, err = SplitName("   ")
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestLookupVertical(t *testing.T) {
	ind, interest := LookupVertical("education")
	assert.Equal(t, "Education", ind)
	assert.Equal(t, "knit Edu", interest)

	ind, interest = LookupVertical("Life-Services")
	assert.Equal(t, "Life Services", ind)
	assert.Equal(t, "knit Life", interest)

	ind, interest = LookupVertical("healthcare")
	assert.Equal(t, "healthcare", ind)
	assert.Equal(t, FallbackInterest, interest)
}

func TestFormatDemoRequest(t *testing.T) {
	env := newEnv("https://knit.example/demo?utm_source=google&utm_campaign=spring")

	l, err := FormatDemoRequest(DemoRequestInput{
		Name:        "John Smith",
		Email:       "John@X.com ",
		Company:     "Acme",
		Website:     "acme.com",
		CompanySize: "51-200",
		Vertical:    "education",
		Newsletter:  true,
		AcceptTerms: true,
	}, env)
	require.NoError(t, err)

	assert.Equal(t, FormDemoRequest, l.Type())
	assert.Equal(t, "John", l.FirstName)
	assert.Equal(t, "Smith", l.LastName)
	assert.Equal(t, "john@x.com", l.Email)
	assert.Equal(t, "https://acme.com", l.Website)
	assert.Equal(t, "Education", l.Industry)
	assert.Equal(t, "knit Edu", l.ProductInterest)
	assert.Equal(t, "google", l.LeadSource)
	assert.Equal(t, "spring", l.UTM.Campaign)
	assert.Empty(t, l.UTM.Medium)

	assert.True(t, l.Consent.MarketingConsent)
	assert.True(t, l.Consent.TermsAccepted)
	assert.True(t, l.Consent.PrivacyPolicyAccepted)
	assert.True(t, l.Consent.DataProcessingConsent)
	assert.Equal(t, ConsentExplicit, l.Consent.ConsentMethod)
	assert.Equal(t, "2026-03-14T15:09:26.000Z", l.Consent.ConsentTimestamp)

	// 50 base + 15 size + 10 website + 10 campaign.
	assert.Equal(t, 85, l.LeadScore)
	assert.True(t, ValidateLead(l).Valid)
}

func TestFormatDemoRequest_UnknownVerticalFallsBack(t *testing.T) {
	l, err := FormatDemoRequest(DemoRequestInput{
		Name: "Ana", Email: "ana@x.io", Vertical: "other",
	}, newEnv("https://knit.example/"))
	require.NoError(t, err)
	assert.Equal(t, FallbackInterest, l.ProductInterest)
	assert.Equal(t, "Ana", l.LastName)
	assert.Equal(t, DefaultLeadSource, l.LeadSource)
	assert.Equal(t, ConsentImplied, l.Consent.ConsentMethod)
}

func TestFormatDemoRequest_Errors(t *testing.T) {
	_, err := FormatDemoRequest(DemoRequestInput{Name: "x"}, nil)
	assert.ErrorIs(t, err, ErrNoEnvironment)

	_, err = FormatDemoRequest(DemoRequestInput{Name: ""}, newEnv(""))
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestFormatGeneralInquiry(t *testing.T) {
	l, err := FormatGeneralInquiry(GeneralInquiryInput{
		FirstName: "Lee", LastName: "Park", Email: "lee@park.dev",
		Interest: "pricing", AcceptTerms: true,
	}, newEnv("https://knit.example/contact"))
	require.NoError(t, err)

	assert.Equal(t, FormGeneralInquiry, l.Type())
	assert.Equal(t, "pricing", l.InquiryType)
	assert.Equal(t, "Lee", l.FirstName)
	assert.Equal(t, 50, l.LeadScore)
	assert.False(t, l.Consent.MarketingConsent)
}

func TestFormatPartnerApplication(t *testing.T) {
	l, err := FormatPartnerApplication(PartnerApplicationInput{
		Name: "Sam", Email: "sam@partner.co", CompanySize: "1000+",
		Website: "https://partner.co", Phone: "+1 555 000 1111",
		PartnershipType: "referral", AcceptTerms: false,
	}, newEnv("https://knit.example/partners?utm_campaign=p"))
	require.NoError(t, err)

	assert.Equal(t, FormPartnerApplication, l.Type())
	assert.Equal(t, "referral", l.PartnershipType)
	assert.Equal(t, ConsentExplicit, l.Consent.ConsentMethod)
	assert.False(t, l.Consent.TermsAccepted)
	assert.False(t, l.Consent.MarketingConsent)
	// 50 + 30 + 10 + 5 + 10 = 105 → clamp, bonus keeps it at the cap.
	assert.Equal(t, 100, l.LeadScore)
}

func TestFormatPartnerApplication_Bonus(t *testing.T) {
	l, err := FormatPartnerApplication(PartnerApplicationInput{
		Name: "Sam Lee", Email: "sam@partner.co",
	}, newEnv("https://knit.example/partners"))
	require.NoError(t, err)
	assert.Equal(t, 60, l.LeadScore)
}

func TestFormat_Dispatch(t *testing.T) {
	env := newEnv("https://knit.example/")

	l, err := Format(FormDemoRequest, map[string]any{
		"name": "John Smith", "email": "john@x.com", "company": "Acme",
		"vertical": "education", "acceptTerms": "on",
	}, env)
	require.NoError(t, err)
	demo, ok := l.(*DemoRequestLead)
	require.True(t, ok)
	assert.Equal(t, "knit Edu", demo.ProductInterest)
	assert.True(t, demo.Consent.TermsAccepted)

	l, err = Format(FormGeneralInquiry, map[string]any{
		"firstName": "A", "lastName": "B", "email": "a@b.co", "interest": "support",
	}, env)
	require.NoError(t, err)
	assert.IsType(t, &GeneralInquiryLead{}, l)

	l, err = Format(FormPartnerApplication, map[string]any{
		"name": "C D", "email": "c@d.co", "acceptTerms": true,
	}, env)
	require.NoError(t, err)
	assert.IsType(t, &PartnerApplicationLead{}, l)

	_, err = Format("nope", nil, env)
	assert.True(t, errors.Is(err, ErrUnknownFormType))
}

func TestLeadJSON_VariantFieldsOnlyOnVariant(t *testing.T) {
	env := newEnv("https://knit.example/")

	demo, err := FormatDemoRequest(DemoRequestInput{Name: "A B", Email: "a@b.co"}, env)
	require.NoError(t, err)
	raw, err := json.Marshal(demo)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "demo_request", m["formType"])
	assert.Contains(t, m, "productInterest")
	assert.NotContains(t, m, "inquiryType")
	assert.NotContains(t, m, "partnershipType")

	utm, ok := m["utm"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, utm, "absent UTM keys are omitted")
}

func TestCurrentSession_PersistsAcrossCalls(t *testing.T) {
	store := NewMapStorage()
	now := fixedNow
	env := &StaticEnv{
		URL:   "https://knit.example/landing?utm_source=x",
		Store: store,
		Clock: func() time.Time { return now },
	}

	first := CurrentSession(env)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, "https://knit.example/landing?utm_source=x", first.LandingPage)
	assert.Equal(t, 0, first.TimeOnSite)
	assert.Equal(t, 1, first.PageViews)

	// Navigate elsewhere three minutes later.
	env.URL = "https://knit.example/pricing"
	now = now.Add(3 * time.Minute)
	TrackPageView(store)
	TrackPageView(store)

	second := CurrentSession(env)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.LandingPage, second.LandingPage)
	assert.Equal(t, 180, second.TimeOnSite)
	assert.Equal(t, 2, second.PageViews)
}

func TestTrackPageView(t *testing.T) {
	store := NewMapStorage()
	assert.Equal(t, 1, TrackPageView(store))
	assert.Equal(t, 2, TrackPageView(store))
	assert.Equal(t, 3, TrackPageView(store))

	store.Set(KeyPageViews, "garbage")
	assert.Equal(t, 2, TrackPageView(store))
}

func TestEngagementRaisesScore(t *testing.T) {
	store := NewMapStorage()
	store.Set(KeySessionStart, strconv.FormatInt(fixedNow.Add(-5*time.Minute).UnixMilli(), 10))
	store.Set(KeyPageViews, "4")
	env := newEnv("https://knit.example/")
	env.Store = store

	l, err := FormatGeneralInquiry(GeneralInquiryInput{
		FirstName: "A", LastName: "B", Email: "a@b.co",
	}, env)
	require.NoError(t, err)
	assert.Equal(t, 300, l.Session.TimeOnSite)
	// 50 base + 10 time on site + 5 pages.
	assert.Equal(t, 65, l.LeadScore)
}

func TestDetectDevice(t *testing.T) {
	d := DetectDevice(&StaticEnv{UA: chromeUA, Plat: "Win32"})
	assert.True(t, d.IsDesktop)
	assert.False(t, d.IsMobile)
	assert.Equal(t, "Chrome", d.Browser)
	assert.Equal(t, "Win32", d.Platform)
	assert.Equal(t, chromeUA, d.UserAgent)
}

func TestLocationCopied(t *testing.T) {
	env := newEnv("https://knit.example/")
	env.Geo = &Location{Country: "US", City: "Austin"}

	l, err := FormatGeneralInquiry(GeneralInquiryInput{FirstName: "A", LastName: "B", Email: "a@b.co"}, env)
	require.NoError(t, err)
	require.NotNil(t, l.Location)
	assert.Equal(t, "US", l.Location.Country)

	env.Geo = &Location{}
	l, err = FormatGeneralInquiry(GeneralInquiryInput{FirstName: "A", LastName: "B", Email: "a@b.co"}, env)
	require.NoError(t, err)
	assert.Nil(t, l.Location)
}
