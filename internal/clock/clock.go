package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock time so derivation logic can be tested
// against fixed dates.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewSystem() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
