package enrich

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/config"
)

// geoIPCacheSize bounds the Enricher's GeoIP result cache, matching the
// teacher's peer cache order of magnitude (see enrich.go's New doc
// comment).
const geoIPCacheSize = 10_000

// Module provides the GeoIP/device Enricher wired to either a static
// CIDR-table lookup (Config.GeoIPDBPath set) or a disabled stand-in
// (unset) — never a hard startup failure for a daemon not given a
// database.
var Module = fx.Module("enrich",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) (GeoIPLookup, error) {
			if cfg.GeoIPDBPath == "" {
				logger.Warn("enrich: no geoip-db configured, geoip enrichment disabled")
				return DisabledGeoIPLookup{}, nil
			}
			return LoadStaticGeoIPLookup(cfg.GeoIPDBPath)
		},
		func(geo GeoIPLookup) (*Enricher, error) {
			return New(geo, geoIPCacheSize)
		},
	),
)
