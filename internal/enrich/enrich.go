// Package enrich fills in the two derived fields of a domain.User — GeoIP
// data and parsed device/client info — before the user reaches the rule
// evaluator.
//
// Grounded on the teacher's internal/service/peer_enricher.go ResolvePeers:
// an errgroup.WithContext fan-out over independent lookups, backed by a
// hashicorp/golang-lru/v2 cache-aside layer for the (comparatively) slow
// GeoIP call.
package enrich

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/signupwatch/daemon/internal/criterion"
	"github.com/signupwatch/daemon/internal/domain"
)

// GeoIPLookup resolves an IP to GeoInfo. Spec §1 places the GeoIP database
// itself outside the daemon's scope as an external collaborator; no GeoIP
// client library appears anywhere in the retrieval pack, so this is a
// narrow interface with a minimal local implementation rather than a
// fabricated dependency.
type GeoIPLookup interface {
	Lookup(ctx context.Context, ip string) (domain.GeoInfo, error)
}

// Enricher fills User.GeoIP and User.Device.
type Enricher struct {
	geo   GeoIPLookup
	cache *lru.Cache[string, domain.GeoInfo]
}

// New builds an Enricher. cacheSize bounds the GeoIP result cache; the
// teacher sizes its peer cache at 10,000 (internal/service/peer_enricher.go)
// and this daemon follows the same order of magnitude.
func New(geo GeoIPLookup, cacheSize int) (*Enricher, error) {
	c, err := lru.New[string, domain.GeoInfo](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("enrich: new cache: %w", err)
	}
	return &Enricher{geo: geo, cache: c}, nil
}

// Enrich resolves GeoIP and device info concurrently and returns a copy of
// user with both fields populated. GeoIP failures are logged by the caller
// and simply leave User.GeoIP nil — moderation rules that don't reference
// GeoIP still evaluate correctly (spec §4.2 placeholder-string contract).
func (e *Enricher) Enrich(ctx context.Context, user domain.User) (domain.User, error) {
	g, ctx := errgroup.WithContext(ctx)

	var geo domain.GeoInfo
	var geoErr error
	g.Go(func() error {
		geo, geoErr = e.lookupGeoIP(ctx, user.IP)
		return nil // geoErr is reported to the caller, not treated as fatal
	})

	var device domain.Device
	g.Go(func() error {
		device = criterion.ParseUserAgent(user.UserAgent)
		return nil
	})

	if err := g.Wait(); err != nil {
		return user, fmt.Errorf("enrich: %w", err)
	}

	enriched := user
	enriched.Device = &device
	if geoErr == nil {
		enriched.GeoIP = &geo
	}
	return enriched, geoErr
}

func (e *Enricher) lookupGeoIP(ctx context.Context, ip string) (domain.GeoInfo, error) {
	if cached, ok := e.cache.Get(ip); ok {
		return cached, nil
	}
	geo, err := e.geo.Lookup(ctx, ip)
	if err != nil {
		return domain.GeoInfo{}, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	e.cache.Add(ip, geo)
	return geo, nil
}
