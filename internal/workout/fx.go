package workout

import "go.uber.org/fx"

var Module = fx.Module("workout",
	fx.Provide(NewService),
)
