// internal/ua/ua.go
//
// User‑Agent parsing helpers.
//
// This wrapper isolates the third‑party `github.com/avct/uasurfer` API so
// the rest of the codebase never sees its enums or structs.  Lead
// enrichment only needs a coarse device class plus a best-effort browser
// name and version for the four browsers sales cares about.
package ua

import (
	"fmt"
	"strconv"
	"strings"

	surfer "github.com/avct/uasurfer"
)

// Browser names reported in Info.Browser.  Anything else is left blank.
const (
	Chrome  = "Chrome"
	Firefox = "Firefox"
	Safari  = "Safari"
	Edge    = "Edge"
)

// Info carries the UA attributes used by the lead formatter.
//
// Example (Chrome on macOS):
//
//	Browser   "Chrome"
//	Version   "125.0.6422"
//	OS        "MacOSX"
//	Device    "Desktop"
//	Platform  "Mac"
//	IsBot     false
//	Raw       "Mozilla/5.0 (Macintosh;…"
//
// Device will be one of: "Desktop", "Mobile", "Tablet", or "Other".
type Info struct {
	Browser  string
	Version  string
	OS       string
	Device   string
	Platform string
	IsBot    bool
	Raw      string
}

// IsMobile reports a phone-class device.
func (i Info) IsMobile() bool { return i.Device == "Mobile" }

// IsTablet reports a tablet.
func (i Info) IsTablet() bool { return i.Device == "Tablet" }

// IsDesktop is true for everything that is neither phone nor tablet.
func (i Info) IsDesktop() bool { return !i.IsMobile() && !i.IsTablet() }

// Parse converts a raw header into an Info struct.
func Parse(raw string) Info {
	u := surfer.Parse(raw)

	info := Info{
		OS:       strings.TrimPrefix(u.OS.Name.String(), "OS"),
		Platform: strings.TrimPrefix(u.OS.Platform.String(), "Platform"),
		IsBot:    u.IsBot(),
		Raw:      raw,
	}

	switch u.DeviceType {
	case surfer.DeviceTablet:
		info.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		info.Device = "Mobile"
	case surfer.DeviceComputer:
		info.Device = "Desktop"
	default:
		info.Device = "Other"
	}

	// Chromium Edge identifies itself with an "Edg/" token on top of the
	// Chrome one, so it is checked first.
	if v, ok := tokenVersion(raw, "Edg/", "Edge/", "EdgA/", "EdgiOS/"); ok {
		info.Browser, info.Version = Edge, v
		return info
	}

	switch u.Browser.Name {
	case surfer.BrowserChrome:
		info.Browser = Chrome
	case surfer.BrowserFirefox:
		info.Browser = Firefox
	case surfer.BrowserSafari:
		info.Browser = Safari
	default:
		return info
	}
	info.Version = versionToString(u.Browser.Version)
	return info
}

// tokenVersion finds the first of tokens in raw and returns the dotted
// version that follows it.
func tokenVersion(raw string, tokens ...string) (string, bool) {
	for _, tok := range tokens {
		i := strings.Index(raw, tok)
		if i < 0 {
			continue
		}
		rest := raw[i+len(tok):]
		end := strings.IndexFunc(rest, func(r rune) bool {
			return r != '.' && (r < '0' || r > '9')
		})
		if end >= 0 {
			rest = rest[:end]
		}
		return rest, true
	}
	return "", false
}

// versionToString renders a semantic version in dotted form while trimming
// trailing zeros, e.g. 17.0.0 → "17", 17.3.0 → "17.3", 17.3.1 → "17.3.1".
func versionToString(v surfer.Version) string {
	if v.Major == 0 && v.Minor == 0 && v.Patch == 0 {
		return ""
	}
	if v.Patch != 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	if v.Minor != 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(int(v.Major))
}
