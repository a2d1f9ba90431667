package meal

import "go.uber.org/fx"

var Module = fx.Module("meal",
	fx.Provide(NewService),
)
