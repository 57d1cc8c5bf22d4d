package recency

import "go.uber.org/fx"

// Module provides the dispatcher's two recency structures: the
// sliding-window signup Buffer and the per-username NotifiedRing, both
// unconfigured (spec's fixed capacities apply, see recency.go).
var Module = fx.Module("recency",
	fx.Provide(
		NewBuffer,
		NewNotifiedRing,
	),
)
