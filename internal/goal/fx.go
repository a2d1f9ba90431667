package goal

import "go.uber.org/fx"

var Module = fx.Module("goal",
	fx.Provide(NewService),
)
