package achievement

import "go.uber.org/fx"

var Module = fx.Module("achievement",
	fx.Provide(NewService),
)
