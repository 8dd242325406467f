package ua

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36"
	edgeWindows = chromeWindows + " Edg/120.0.2210.77"
	iPhoneSafari = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	iPadSafari = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
	firefoxLinux = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

func TestParse_ChromeDesktop(t *testing.T) {
	info := Parse(chromeWindows)

	assert.Equal(t, Chrome, info.Browser)
	assert.True(t, strings.HasPrefix(info.Version, "120"), "version %q", info.Version)
	assert.Equal(t, "Desktop", info.Device)
	assert.True(t, info.IsDesktop())
	assert.False(t, info.IsMobile())
	assert.Equal(t, chromeWindows, info.Raw)
}

func TestParse_EdgeBeatsChrome(t *testing.T) {
	info := Parse(edgeWindows)

	assert.Equal(t, Edge, info.Browser)
	assert.Equal(t, "120.0.2210.77", info.Version)
}

func TestParse_Phone(t *testing.T) {
	info := Parse(iPhoneSafari)

	assert.Equal(t, Safari, info.Browser)
	assert.True(t, info.IsMobile())
	assert.False(t, info.IsTablet())
	assert.False(t, info.IsDesktop())
}

func TestParse_Tablet(t *testing.T) {
	info := Parse(iPadSafari)

	assert.True(t, info.IsTablet())
	assert.False(t, info.IsDesktop())
}

func TestParse_Firefox(t *testing.T) {
	info := Parse(firefoxLinux)

	assert.Equal(t, Firefox, info.Browser)
	assert.True(t, strings.HasPrefix(info.Version, "121"), "version %q", info.Version)
}

func TestParse_Unknown(t *testing.T) {
	info := Parse("curl/8.4.0")

	assert.Empty(t, info.Browser)
	assert.Empty(t, info.Version)
	assert.True(t, info.IsDesktop())
}

func TestTokenVersion(t *testing.T) {
	v, ok := tokenVersion("x EdgA/119.0.1 y", "Edg/", "EdgA/")
	assert.True(t, ok)
	assert.Equal(t, "119.0.1", v)

	_, ok = tokenVersion("nothing here", "Edg/")
	assert.False(t, ok)
}
