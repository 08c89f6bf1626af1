package server

import (
	"context"
	"time"

	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/notify"
)

// Pinger checks database connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Counter reports table sizes.
type Counter interface {
	Counts(ctx context.Context) (db.Counts, error)
}

// CycleSource exposes the notifier's most recent cycle.
type CycleSource interface {
	LastCycle() (notify.CycleReport, bool)
}

// Deps are the handlers' collaborators. Stats and Cycles may be nil.
type Deps struct {
	DB           Pinger
	Stats        Counter
	Cycles       CycleSource
	PollInterval time.Duration
	Now          func() time.Time
}

// Handlers holds the route implementations.
type Handlers struct {
	deps Deps
}

func NewHandlers(deps Deps) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = time.Minute
	}
	return &Handlers{deps: deps}
}

// stallAfter is how old the last cycle may get before the notifier counts as stuck.
func (h *Handlers) stallAfter() time.Duration {
	return 3*h.deps.PollInterval + time.Minute
}
