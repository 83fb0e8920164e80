package system

import "time"

// Phase defines execution ordering within a single host tick.
type Phase int

const (
	PhaseEvents  Phase = iota // 0: swap + dispatch the event bus
	PhaseUpdate               // 1: host-side bookkeeping
	PhasePersist              // 2: checkpoint requests
	PhaseReport               // 3: periodic stats
)

// System is one piece of host work run by the Runner each tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
