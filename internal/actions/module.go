package actions

import (
	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/config"
)

// Module provides the moderation endpoint templates, built from
// Config.ModerationBaseURL against the seven literal paths spec §6 names.
var Module = fx.Module("actions",
	fx.Provide(
		func(cfg *config.Config) Endpoints {
			base := cfg.ModerationBaseURL
			return Endpoints{
				ShadowbanURLTemplate:       base + "/mod/%s/troll/true",
				EngineMarkURLTemplate:      base + "/mod/%s/engine/true",
				BoostMarkURLTemplate:       base + "/mod/%s/booster/true",
				IPBanURLTemplate:           base + "/mod/%s/ban/true",
				CloseURLTemplate:           base + "/mod/%s/close",
				AltURLTemplate:             base + "/mod/%s/alt/true",
				EnableChatPanicURLTemplate: base + "/mod/chat-panic",
			}
		},
	),
)
