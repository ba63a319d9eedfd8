// Package phy models the memory PHY of the simulation: the pad bundle facing
// the device, a cycle-level simulation PHY engine, and the DFI rate converter
// that lets an engine authored for a 1:1 clock ratio run at an N:1 ratio.
package phy

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dfisim/clocks"
	"github.com/sarchlab/dfisim/device"
	"github.com/sarchlab/dfisim/dfi"
)

// Pads is the physical pin bundle of the PHY, sampled once per PHY cycle.
type Pads struct {
	ResetN bool
	CSn    bool
	CA     int
	DQ     uint64
	DMI    uint8
	RDQS   uint8
}

// Nop drives the pads to their idle levels.
func (p *Pads) Nop() {
	p.CSn = true
	p.CA = 0
	p.DQ = 0
	p.DMI = 0
	p.RDQS = 0
}

// Latency is a serialization or deserialization latency, counted in taps of
// a named clock domain.
type Latency struct {
	// Domain names the clock domain the taps are counted in.
	Domain string
	// Taps is the number of domain cycles.
	Taps int
}

// ClockProvider resolves clock-domain names to domain specs. The plan from
// the clocks package implements it; the rate converter wraps it to remap
// the names an engine references onto higher-frequency domains.
type ClockProvider interface {
	ByName(name string) (clocks.DomainSpec, bool)
}

// Engine is the capability interface every PHY engine exposes. The accessor
// set is fixed: wrapping an engine re-exposes exactly these members, so a
// caller cannot distinguish a wrapped engine from an unwrapped one.
type Engine interface {
	Pads() *Pads
	Bus() *dfi.Bus
	Memtype() device.Family
	NRanks() int
	DataBits() int
	AddressBits() int
	BankBits() int
	NPhases() int
	SerLatency() Latency
	DesLatency() Latency
	Clocks() ClockProvider

	// Tick advances the engine by one of its own clock cycles.
	Tick()
	// Reset returns the engine to its power-up state.
	Reset()
}

// Config carries the construction parameters of a PHY engine.
type Config struct {
	// SysClkFreq is the frequency the engine runs at.
	SysClkFreq sim.Freq
	// Clocks resolves the clock-domain roles the engine references.
	Clocks ClockProvider
	// Geometry is the attached device geometry.
	Geometry device.Geometry
	// Family is the attached device family.
	Family device.Family
	// WCKCKRatio is the device WCK:CK ratio, 2 or 4.
	WCKCKRatio int
	// MaskedWrite selects masked writes as the engine's write command.
	MaskedWrite bool
	// NPhases is the number of DFI phases per engine cycle.
	NPhases int
}

// EngineFactory builds a PHY engine from a config. The rate converter uses
// it to instantiate the inner engine at the scaled frequency.
type EngineFactory func(Config) (Engine, error)
