//
//  internal/requestinfo/requestinfo.go
//
//  Lightweight types and helpers that collect per-request metadata
//  (user-agent fingerprint, IP + geolocation, page URL, and timestamp).
//  These structs are inert.  They contain no pointers to database
//  handles or large buffers, so they are safe to log or JSON-encode.
//
//  Dependencies
//  • internal/ua                        (UA parsing, wraps uasurfer)
//  • github.com/oschwald/geoip2-golang  (MaxMind lookup)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/yanizio/knit/internal/lead"
	"github.com/yanizio/knit/internal/session"
	"github.com/yanizio/knit/internal/ua"
)

// Headers the presentation layer sends from the browser.
const (
	HeaderPageURL      = "X-Page-Url"         // location.href of the page hosting the form
	HeaderPageReferrer = "X-Page-Referrer"    // document.referrer of that page
	HeaderPlatform     = "Sec-CH-UA-Platform" // client hint, quoted
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// Geo holds IP-based geolocation hints.
// These are best-effort and may be empty if the DB has no match.
type Geo struct {
	IP         net.IP // Original client address
	CountryISO string // "US", "CA", "FR", ...
	City       string // "Chicago", "Paris", ...
}

// RequestInfo is attached to the request context by Enrich.
type RequestInfo struct {
	UA        ua.Info
	Geo       Geo
	PageURL   *url.URL // page hosting the form, not the API path
	Referrer  string
	Platform  string
	Timestamp time.Time
}

//
//  -----------------------------
//  Package-level state
//  -----------------------------
//

// geoReader is a singleton MaxMind handle.  It is safe for concurrent
// reads, which is all we ever perform.
var (
	geoMu     sync.RWMutex
	geoReader *geoip2.Reader
)

// InitGeo opens the GeoLite2-City database.  Without it, Geo carries only
// the client IP.
func InitGeo(dbPath string) error {
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("requestinfo: cannot open GeoLite2 DB: %w", err)
	}
	geoMu.Lock()
	old := geoReader
	geoReader = r
	geoMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// CloseGeo releases the MaxMind handle.
func CloseGeo() {
	geoMu.Lock()
	defer geoMu.Unlock()
	if geoReader != nil {
		_ = geoReader.Close()
		geoReader = nil
	}
}

//
//  -----------------------------
//  Public helper: FromContext
//  -----------------------------
//

type ctxKey struct{} // unexported, collision-proof

// FromContext returns the pointer previously stored by Enrich.
// It returns nil if the middleware has not run.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// Build computes RequestInfo for r without touching the context.
func Build(r *http.Request) *RequestInfo {
	ip := clientIP(r)
	return &RequestInfo{
		UA:        ua.Parse(r.UserAgent()),
		Geo:       lookupGeo(ip),
		PageURL:   pageURL(r),
		Referrer:  r.Header.Get(HeaderPageReferrer),
		Platform:  strings.Trim(r.Header.Get(HeaderPlatform), `"`),
		Timestamp: time.Now().UTC(),
	}
}

//
//  -----------------------------
//  lead.Environment adapter
//  -----------------------------
//

// httpEnv answers the formatter's ambient questions from one request.
type httpEnv struct {
	info  *RequestInfo
	store lead.Storage
}

// Environment adapts r (its RequestInfo and session bucket) to
// lead.Environment.  Without the session middleware the storage is a
// throwaway map, so session values will not persist.
func Environment(r *http.Request) lead.Environment {
	info := FromContext(r.Context())
	if info == nil {
		info = Build(r)
	}
	var st lead.Storage = lead.NewMapStorage()
	if b := session.FromContext(r.Context()); b != nil {
		st = b
	}
	return &httpEnv{info: info, store: st}
}

func (e *httpEnv) PageURL() *url.URL     { return e.info.PageURL }
func (e *httpEnv) Referrer() string      { return e.info.Referrer }
func (e *httpEnv) UserAgent() string     { return e.info.UA.Raw }
func (e *httpEnv) Platform() string      { return e.info.Platform }
func (e *httpEnv) Storage() lead.Storage { return e.store }
func (e *httpEnv) Now() time.Time        { return time.Now() }

// Location implements lead.Environment.  Nil when geo is unknown.
func (e *httpEnv) Location() *lead.Location {
	if e.info.Geo.CountryISO == "" && e.info.Geo.City == "" {
		return nil
	}
	return &lead.Location{Country: e.info.Geo.CountryISO, City: e.info.Geo.City}
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// pageURL prefers the page address the browser reported, then Referer,
// then the request's own absolute URL.
func pageURL(r *http.Request) *url.URL {
	for _, raw := range []string{r.Header.Get(HeaderPageURL), r.Referer()} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			return u
		}
	}
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			u.Scheme = "https"
		}
	}
	return &u
}

// lookupGeo returns best-effort Geo data using the global reader.
func lookupGeo(ip net.IP) Geo {
	geoMu.RLock()
	defer geoMu.RUnlock()
	if geoReader == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := geoReader.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{
		IP:         ip,
		CountryISO: rec.Country.IsoCode,
		City:       rec.City.Names["en"],
	}
}
