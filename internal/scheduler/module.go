package scheduler

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/modclient"
)

// Module provides the action Scheduler over the moderation client,
// annotated to the narrow Poster interface the Scheduler actually depends
// on.
var Module = fx.Module("scheduler",
	fx.Provide(
		fx.Annotate(
			func(client *modclient.Client) Poster { return client },
			fx.As(new(Poster)),
		),
		New,
	),
)
