// Package harness wires a full PHY timing simulation session: clock plan,
// rate-converted PHY engine, traffic source, and timings checker, all
// advancing in lockstep on an Akita event engine.
package harness

import (
	"fmt"
	"log"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dfisim/check"
	"github.com/sarchlab/dfisim/clocks"
	"github.com/sarchlab/dfisim/device"
	"github.com/sarchlab/dfisim/phy"
)

// Builder configures and builds a Harness.
type Builder struct {
	engine sim.Engine

	sysClkFreqHz int64
	ratios       clocks.RatioConfig
	module       *device.Module
	timings      *device.TimingsConfig
	refreshMode  check.RefreshMode
	nPhases      int
	maskedWrite  bool
	resetCount   int

	cycleBudget     uint64
	checksAfterInit bool
	violateEvery    int64
	verbose         bool
	logger          *log.Logger
}

// MakeBuilder creates a builder with the default configuration: 100 MHz
// system clock, WCK:CK ratio 2, no rate conversion, the built-in LPDDR5
// module, masked writes, and a 100k cycle budget.
func MakeBuilder() Builder {
	return Builder{
		sysClkFreqHz: 100_000_000,
		ratios:       clocks.RatioConfig{WCKCKRatio: 2, ConverterRatio: 1},
		nPhases:      1,
		maskedWrite:  true,
		cycleBudget:  100_000,
		logger:       log.Default(),
	}
}

// WithEngine sets an external event engine. Without one, the harness owns a
// serial engine.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithSysClkFreq sets the base system clock frequency in Hz.
func (b Builder) WithSysClkFreq(hz int64) Builder {
	b.sysClkFreqHz = hz
	return b
}

// WithWCKCKRatio sets the device WCK:CK ratio, 2 or 4.
func (b Builder) WithWCKCKRatio(ratio int) Builder {
	b.ratios.WCKCKRatio = ratio
	return b
}

// WithConverterRatio sets the DFI rate conversion ratio.
func (b Builder) WithConverterRatio(ratio int) Builder {
	b.ratios.ConverterRatio = ratio
	return b
}

// WithModule sets the simulated device module.
func (b Builder) WithModule(module *device.Module) Builder {
	b.module = module
	return b
}

// WithTimingsConfig overrides timing parameters of the module's table.
func (b Builder) WithTimingsConfig(config *device.TimingsConfig) Builder {
	b.timings = config
	return b
}

// WithRefreshMode selects the refresh-interval constraint.
func (b Builder) WithRefreshMode(mode check.RefreshMode) Builder {
	b.refreshMode = mode
	return b
}

// WithNPhases sets the number of DFI phases per controller cycle.
func (b Builder) WithNPhases(n int) Builder {
	b.nPhases = n
	return b
}

// WithMaskedWrite selects masked or plain writes for generated traffic.
func (b Builder) WithMaskedWrite(masked bool) Builder {
	b.maskedWrite = masked
	return b
}

// WithSerdesResetCount sets the number of initial PHY cycles the wrapped
// engine is held in reset.
func (b Builder) WithSerdesResetCount(count int) Builder {
	b.resetCount = count
	return b
}

// WithCycleBudget sets the number of PHY-domain cycles to simulate.
func (b Builder) WithCycleBudget(cycles uint64) Builder {
	b.cycleBudget = cycles
	return b
}

// WithChecksAfterInit keeps the violation reporting gate closed until the
// traffic source signals initialization complete, masking expected bring-up
// transients.
func (b Builder) WithChecksAfterInit() Builder {
	b.checksAfterInit = true
	return b
}

// WithViolationPeriod makes the traffic source deliberately violate the row
// cycle time once every n bursts. Zero disables injection.
func (b Builder) WithViolationPeriod(n int64) Builder {
	b.violateEvery = n
	return b
}

// WithVerbose enables per-command trace logging.
func (b Builder) WithVerbose() Builder {
	b.verbose = true
	return b
}

// WithLogger sets the logger for traces and violations.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and assembles the session.
func (b Builder) Build(name string) (*Harness, error) {
	module := b.module
	if module == nil {
		var err error
		module, err = device.LPDDR5x16()
		if err != nil {
			return nil, err
		}
	}

	table := module.Timings
	if b.timings != nil {
		var err error
		table, err = b.timings.Apply(table)
		if err != nil {
			return nil, err
		}
	}

	plan, err := clocks.NewPlan(b.sysClkFreqHz, b.ratios)
	if err != nil {
		return nil, err
	}

	baseFreq := plan.BaseFreq()
	engineConfig := phy.Config{
		SysClkFreq:  baseFreq,
		Clocks:      plan,
		Geometry:    module.Geometry,
		Family:      module.Family,
		WCKCKRatio:  b.ratios.WCKCKRatio,
		MaskedWrite: b.maskedWrite,
		NPhases:     b.nPhases,
	}

	converter, err := phy.Wrap(
		phy.SimPHYFactory,
		engineConfig,
		b.ratios.ConverterRatio,
		phy.ForwardedAttrs,
		plan.ConverterMapping(),
		b.resetCount,
	)
	if err != nil {
		return nil, err
	}

	checkerOptions := []check.Option{
		check.WithRefreshMode(b.refreshMode),
		check.WithLogger(b.logger),
	}
	if b.verbose {
		checkerOptions = append(checkerOptions, check.WithVerbose())
	}
	if b.checksAfterInit {
		checkerOptions = append(checkerOptions,
			check.WithReportingEnabled(false))
	}

	// The checker observes the wrapped engine's bus, which runs at the
	// converted rate.
	convertedFreq := baseFreq * sim.Freq(b.ratios.ConverterRatio)
	checker, err := check.New(
		table,
		module.Geometry,
		convertedFreq,
		converter.NPhases(),
		checkerOptions...,
	)
	if err != nil {
		return nil, err
	}

	engine := b.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}

	h := &Harness{
		engine:          engine,
		plan:            plan,
		converter:       converter,
		checker:         checker,
		cycleBudget:     b.cycleBudget,
		checksAfterInit: b.checksAfterInit,
	}
	h.generator = NewPatternGenerator(
		checker,
		module.Geometry,
		converter.NPhases(),
		b.maskedWrite && module.Family.HasMaskedWrite(),
		b.violateEvery,
	)
	checker.AcceptHook(&h.collector)

	// The session advances one PHY-domain cycle per tick: the wrapped
	// engine, the traffic source, and the checker all observe the bus at
	// the converted rate.
	h.ticking = sim.NewTickingComponent(name, engine, convertedFreq, h)

	return h, nil
}

// Harness is one simulation session. It advances the traffic source, the
// rate-converted PHY, and the checker in lockstep, one controller cycle per
// tick, until the cycle budget runs out or the traffic source finishes.
type Harness struct {
	engine    sim.Engine
	ticking   *sim.TickingComponent
	plan      *clocks.Plan
	converter *phy.RateConverter
	checker   *check.Checker
	generator TrafficGenerator
	collector check.Collector

	cycleBudget     uint64
	cyclesRun       uint64
	checksAfterInit bool
	gateOpened      bool
}

// Plan returns the session clock plan.
func (h *Harness) Plan() *clocks.Plan {
	return h.plan
}

// PHY returns the rate-converted engine under observation.
func (h *Harness) PHY() *phy.RateConverter {
	return h.converter
}

// Checker returns the timings checker.
func (h *Harness) Checker() *check.Checker {
	return h.checker
}

// SetTrafficGenerator replaces the default pattern generator.
func (h *Harness) SetTrafficGenerator(gen TrafficGenerator) {
	h.generator = gen
}

// Tick runs one PHY-domain cycle. It implements sim.Ticker.
func (h *Harness) Tick() bool {
	if h.cyclesRun >= h.cycleBudget || h.generator.Done() {
		return false
	}

	// The completion signal opens the reporting gate at the start of the
	// cycle, the same edge the checker samples it on.
	if h.checksAfterInit && !h.gateOpened && h.generator.InitDone() {
		h.checker.SetReportingEnabled(true)
		h.gateOpened = true
	}

	bus := h.converter.Bus()
	bus.Nop()
	h.generator.Drive(bus)

	h.converter.Tick()
	h.checker.CheckCycle(bus)

	h.cyclesRun++
	return true
}

// Report summarizes one finished run.
type Report struct {
	// Cycles is the number of PHY-domain cycles simulated.
	Cycles uint64
	// Commands is the number of non-NOP commands checked.
	Commands uint64
	// ViolationsDetected counts all detected violations, gated or not.
	ViolationsDetected uint64
	// ViolationsReported counts violations emitted through the gate.
	ViolationsReported uint64
	// ByConstraint breaks reported violations down per constraint.
	ByConstraint map[string]int
}

// Run drives the session to completion and returns the report.
func (h *Harness) Run() (Report, error) {
	h.ticking.TickNow()
	if err := h.engine.Run(); err != nil {
		return Report{}, fmt.Errorf("harness: engine run: %w", err)
	}

	stats := h.checker.Stats()
	return Report{
		Cycles:             h.cyclesRun,
		Commands:           stats.Commands,
		ViolationsDetected: stats.Detected,
		ViolationsReported: stats.Reported,
		ByConstraint:       h.collector.CountByConstraint(),
	}, nil
}
