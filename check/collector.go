package check

import (
	"log"

	"github.com/sarchlab/akita/v4/sim"
)

// Collector is a hook that retains reported violations. The checker itself
// stores nothing; attach a Collector when a record of the run is wanted.
type Collector struct {
	Events []Violation
}

// Func implements sim.Hook.
func (c *Collector) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosTimingViolation {
		return
	}
	v, ok := ctx.Item.(Violation)
	if !ok {
		return
	}
	c.Events = append(c.Events, v)
}

// CountByConstraint returns the number of collected violations per
// constraint name.
func (c *Collector) CountByConstraint() map[string]int {
	counts := map[string]int{}
	for _, v := range c.Events {
		counts[v.Constraint]++
	}
	return counts
}

// ViolationLogger is a hook that writes every reported violation to a
// logger.
type ViolationLogger struct {
	*log.Logger
}

// NewViolationLogger creates a logging hook.
func NewViolationLogger(logger *log.Logger) *ViolationLogger {
	return &ViolationLogger{Logger: logger}
}

// Func implements sim.Hook.
func (l *ViolationLogger) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosTimingViolation {
		return
	}
	if v, ok := ctx.Item.(Violation); ok {
		l.Printf("dfi: %s", v)
	}
}
