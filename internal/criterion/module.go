package criterion

import "go.uber.org/fx"

// Module provides the CEL sandbox Scripter, annotated to its interface so
// the dispatcher depends on the narrow Scripter contract rather than the
// concrete CELScripter type.
var Module = fx.Module("criterion",
	fx.Provide(
		fx.Annotate(
			NewCELScripter,
			fx.As(new(Scripter)),
		),
	),
)
