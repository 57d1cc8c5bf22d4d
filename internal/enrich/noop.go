package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/signupwatch/daemon/internal/domain"
)

// StaticGeoIPLookup resolves IPs against a small on-disk JSON map of
// CIDR -> GeoInfo, configured via --geoip-db (spec §6 names the GeoIP
// database as an externally supplied resource, not a bundled library). This
// is the minimal local stand-in described in DESIGN.md: no GeoIP client
// library exists anywhere in the retrieval pack.
type StaticGeoIPLookup struct {
	entries []geoEntry
}

type geoEntry struct {
	network *net.IPNet
	info    domain.GeoInfo
}

type geoFileEntry struct {
	CIDR         string   `json:"cidr"`
	Country      string   `json:"country"`
	City         string   `json:"city"`
	Subdivisions []string `json:"subdivisions"`
}

// LoadStaticGeoIPLookup reads a JSON array of {cidr, country, city,
// subdivisions} entries from path.
func LoadStaticGeoIPLookup(path string) (*StaticGeoIPLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("enrich: read geoip db %s: %w", path, err)
	}
	var raw []geoFileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("enrich: decode geoip db %s: %w", path, err)
	}
	entries := make([]geoEntry, 0, len(raw))
	for _, r := range raw {
		_, network, err := net.ParseCIDR(r.CIDR)
		if err != nil {
			return nil, fmt.Errorf("enrich: geoip db entry %q: %w", r.CIDR, err)
		}
		entries = append(entries, geoEntry{
			network: network,
			info: domain.GeoInfo{
				Country:      r.Country,
				City:         r.City,
				Subdivisions: r.Subdivisions,
			},
		})
	}
	return &StaticGeoIPLookup{entries: entries}, nil
}

// Lookup returns the first matching entry's GeoInfo, or an error if ip
// matches nothing in the table.
func (s *StaticGeoIPLookup) Lookup(_ context.Context, ip string) (domain.GeoInfo, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return domain.GeoInfo{}, fmt.Errorf("enrich: invalid ip %q", ip)
	}
	for _, e := range s.entries {
		if e.network.Contains(parsed) {
			return e.info, nil
		}
	}
	return domain.GeoInfo{}, fmt.Errorf("enrich: no geoip entry for %s", ip)
}

// DisabledGeoIPLookup always fails, for the --geoip-db="" case: criteria
// that don't reference GeoIP fields still evaluate correctly against a user
// with a nil GeoIP (spec §4.2's placeholder-string contract), so running
// without a database is a valid, if degraded, configuration rather than a
// startup error.
type DisabledGeoIPLookup struct{}

func (DisabledGeoIPLookup) Lookup(_ context.Context, ip string) (domain.GeoInfo, error) {
	return domain.GeoInfo{}, fmt.Errorf("enrich: geoip disabled, no database configured")
}
