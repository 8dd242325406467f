// internal/lead/ambient.go
//
// Ambient enrichment blocks: UTM, device, session, and consent.  Each helper
// is computed fresh on every formatting call.

package lead

import (
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/yanizio/knit/internal/ua"
)

// Session bucket keys.
const (
	KeySessionID    = "knit_session_id"
	KeyLandingPage  = "knit_landing_page"
	KeySessionStart = "knit_session_start"
	KeyPageViews    = "knit_page_views"
)

// isoMillis matches the browser's Date.toISOString output.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Timestamp renders t in the ISO-8601 form used throughout lead payloads.
func Timestamp(t time.Time) string { return t.UTC().Format(isoMillis) }

// ParseUTM reads the five standard utm_* parameters from u.
func ParseUTM(u *url.URL) UTM {
	if u == nil {
		return UTM{}
	}
	q := u.Query()
	return UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
}

// DetectDevice classifies the visitor's device from its User-Agent.
func DetectDevice(env Environment) DeviceInfo {
	raw := env.UserAgent()
	info := ua.Parse(raw)

	platform := env.Platform()
	if platform == "" {
		platform = info.Platform
	}
	return DeviceInfo{
		UserAgent:      raw,
		Platform:       platform,
		IsMobile:       info.IsMobile(),
		IsTablet:       info.IsTablet(),
		IsDesktop:      info.IsDesktop(),
		Browser:        info.Browser,
		BrowserVersion: info.Version,
	}
}

// CurrentSession returns the session block, creating the session id,
// landing page, and start time on first use.  Re-reading never overwrites.
func CurrentSession(env Environment) SessionInfo {
	st := env.Storage()
	now := env.Now()

	id, ok := st.Get(KeySessionID)
	if !ok || id == "" {
		id = "sess_" + uuid.NewString()
		st.Set(KeySessionID, id)
	}

	landing, ok := st.Get(KeyLandingPage)
	if !ok {
		if u := env.PageURL(); u != nil {
			landing = u.String()
		}
		st.Set(KeyLandingPage, landing)
	}

	start := now
	if raw, ok := st.Get(KeySessionStart); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			start = time.UnixMilli(ms)
		}
	} else {
		st.Set(KeySessionStart, strconv.FormatInt(now.UnixMilli(), 10))
	}

	elapsed := int(now.Sub(start) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	return SessionInfo{
		SessionID:   id,
		LandingPage: landing,
		Referrer:    env.Referrer(),
		TimeOnSite:  elapsed,
		PageViews:   pageViews(st),
	}
}

// TrackPageView increments the session's page-view counter and returns the
// new value.  Callers invoke it once per page load.
func TrackPageView(st Storage) int {
	n := pageViews(st)
	if _, ok := st.Get(KeyPageViews); ok {
		n++
	}
	st.Set(KeyPageViews, strconv.Itoa(n))
	return n
}

// pageViews reads the counter.  A missing or garbled value counts as the
// current page only.
func pageViews(st Storage) int {
	raw, ok := st.Get(KeyPageViews)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// BuildConsent ties terms, privacy, and data processing to acceptedTerms.
func BuildConsent(newsletter, acceptedTerms bool, method string, now time.Time) Consent {
	return Consent{
		MarketingConsent:      newsletter,
		TermsAccepted:         acceptedTerms,
		PrivacyPolicyAccepted: acceptedTerms,
		DataProcessingConsent: acceptedTerms,
		ConsentMethod:         method,
		ConsentTimestamp:      Timestamp(now),
	}
}
