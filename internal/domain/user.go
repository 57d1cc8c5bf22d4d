package domain

import "strings"

// User is an immutable signup candidate, enriched once by geoip/device
// lookups before a single evaluation pass against the rule catalogue.
//
// Field tags match the upstream signup feed's wire shape (spec §6):
// camelCase, fingerPrint/suspIp spelled exactly as the feed sends them.
type User struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	IP          string   `json:"ip"`
	UserAgent   string   `json:"userAgent"`
	FingerPrint string   `json:"fingerPrint"`
	SuspIP      bool     `json:"suspIp"`
	GeoIP       *GeoInfo `json:"geoip,omitempty"`
	Device      *Device  `json:"device,omitempty"`
}

// GeoInfo is the subset of a GeoIP lookup result the rule engine cares about.
type GeoInfo struct {
	Country      string   `json:"country"`
	City         string   `json:"city"`
	Subdivisions []string `json:"subdivisions"`
}

// Device is derived from the raw User-Agent string per spec §4.2.
type Device struct {
	Device string `json:"device"`
	OS     string `json:"os"`
	Client string `json:"client"`
}

// LowerUsername returns the username lowercased, the identity used by the
// recency buffer and by rule caught-list deduplication (§3.1, §3.2).
func (u User) LowerUsername() string {
	return strings.ToLower(u.Username)
}

// HasSubdivision reports whether s (case-insensitive) is one of the user's
// GeoIP subdivisions. The script sandbox's has_subdivision helper does the
// same case-insensitive comparison over the subdivisions list itself and
// does not call this method.
func (u User) HasSubdivision(s string) bool {
	if u.GeoIP == nil {
		return false
	}
	for _, sub := range u.GeoIP.Subdivisions {
		if strings.EqualFold(sub, s) {
			return true
		}
	}
	return false
}

const (
	placeholderPrint   = "<NO PRINT>"
	placeholderCountry = "<NO COUNTRY>"
	placeholderCity    = "<NO CITY>"
	placeholderUA      = "<NO USERAGENT>"
	placeholderDevice  = "<NO DEVICE>"
	placeholderOS      = "<NO OS>"
	placeholderClient  = "<NO CLIENT>"
)

// ScriptPrint returns the fingerprint or its placeholder, for the script sandbox's fp().
func (u User) ScriptPrint() string {
	if u.FingerPrint == "" {
		return placeholderPrint
	}
	return u.FingerPrint
}

// ScriptCountry returns the GeoIP country or its placeholder.
func (u User) ScriptCountry() string {
	if u.GeoIP == nil || u.GeoIP.Country == "" {
		return placeholderCountry
	}
	return u.GeoIP.Country
}

// ScriptCity returns the GeoIP city or its placeholder.
func (u User) ScriptCity() string {
	if u.GeoIP == nil || u.GeoIP.City == "" {
		return placeholderCity
	}
	return u.GeoIP.City
}

// ScriptUA returns the user agent or its placeholder.
func (u User) ScriptUA() string {
	if u.UserAgent == "" {
		return placeholderUA
	}
	return u.UserAgent
}

// ScriptDevice returns the derived device label or its placeholder.
func (u User) ScriptDevice() string {
	if u.Device == nil || u.Device.Device == "" {
		return placeholderDevice
	}
	return u.Device.Device
}

// ScriptOS returns the derived OS label or its placeholder.
func (u User) ScriptOS() string {
	if u.Device == nil || u.Device.OS == "" {
		return placeholderOS
	}
	return u.Device.OS
}

// ScriptClient returns the derived client label or its placeholder.
func (u User) ScriptClient() string {
	if u.Device == nil || u.Device.Client == "" {
		return placeholderClient
	}
	return u.Device.Client
}
