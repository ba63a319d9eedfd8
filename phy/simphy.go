package phy

import (
	"fmt"

	"github.com/sarchlab/dfisim/clocks"
	"github.com/sarchlab/dfisim/device"
	"github.com/sarchlab/dfisim/dfi"
)

// SimPHY is a cycle-level simulation PHY. It consumes the DFI bus each cycle
// and serializes the command phases onto the pad bundle through a short
// delay line that models serializer latency. It is authored for a 1:1
// controller-to-PHY clock ratio; the rate converter wraps it to run faster.
type SimPHY struct {
	config Config

	bus  *dfi.Bus
	pads Pads

	serLatency Latency
	desLatency Latency

	// delayLine holds pad snapshots in flight through the serializer.
	delayLine []Pads

	stats Statistics
}

// Statistics holds PHY activity counters.
type Statistics struct {
	// Cycles is the number of engine cycles simulated.
	Cycles uint64
	// Commands is the number of non-NOP command phases serialized.
	Commands uint64
}

var _ Engine = (*SimPHY)(nil)

// SimPHYFactory builds a SimPHY as an Engine, for use with the rate
// converter.
func SimPHYFactory(config Config) (Engine, error) {
	return NewSimPHY(config)
}

// NewSimPHY creates a simulation PHY.
func NewSimPHY(config Config) (*SimPHY, error) {
	if err := config.Geometry.Validate(); err != nil {
		return nil, err
	}
	if config.WCKCKRatio != 2 && config.WCKCKRatio != 4 {
		return nil, fmt.Errorf(
			"phy: wck:ck ratio must be 2 or 4, got %d", config.WCKCKRatio)
	}
	if config.NPhases < 1 {
		config.NPhases = 1
	}
	if config.Clocks == nil {
		return nil, fmt.Errorf("phy: clock provider is required")
	}

	// The engine is authored for a 1:1 ratio and references its
	// serialization domains by their 1:1 names. A rate converter remaps
	// these onto the matching higher-frequency domains.
	wckDomain := fmt.Sprintf("sys%dx", 2*config.WCKCKRatio)
	for _, name := range []string{clocks.RoleSys, "sys2x", wckDomain} {
		if _, ok := config.Clocks.ByName(name); !ok {
			return nil, fmt.Errorf("phy: clock provider lacks the %s domain",
				name)
		}
	}

	p := &SimPHY{
		config:     config,
		bus:        dfi.NewBus(config.NPhases),
		serLatency: Latency{Domain: clocks.RoleSys, Taps: 1},
		desLatency: Latency{Domain: wckDomain, Taps: 2},
	}
	p.Reset()

	return p, nil
}

// Pads returns the physical pin bundle.
func (p *SimPHY) Pads() *Pads {
	return &p.pads
}

// Bus returns the DFI command/address bus the controller drives.
func (p *SimPHY) Bus() *dfi.Bus {
	return p.bus
}

// Memtype returns the attached device family.
func (p *SimPHY) Memtype() device.Family {
	return p.config.Family
}

// NRanks returns the number of ranks.
func (p *SimPHY) NRanks() int {
	return p.config.Geometry.Ranks
}

// DataBits returns the DQ bus width.
func (p *SimPHY) DataBits() int {
	return 16
}

// AddressBits returns the width of the multiplexed address bus.
func (p *SimPHY) AddressBits() int {
	if p.config.Geometry.RowBits > p.config.Geometry.ColBits {
		return p.config.Geometry.RowBits
	}
	return p.config.Geometry.ColBits
}

// BankBits returns the bank address width.
func (p *SimPHY) BankBits() int {
	return p.config.Geometry.BankBits
}

// NPhases returns the number of DFI phases per engine cycle.
func (p *SimPHY) NPhases() int {
	return p.bus.NPhases()
}

// SerLatency returns the serializer latency.
func (p *SimPHY) SerLatency() Latency {
	return p.serLatency
}

// DesLatency returns the deserializer latency.
func (p *SimPHY) DesLatency() Latency {
	return p.desLatency
}

// Clocks returns the clock provider the engine references domains through.
func (p *SimPHY) Clocks() ClockProvider {
	return p.config.Clocks
}

// Stats returns the PHY activity counters.
func (p *SimPHY) Stats() Statistics {
	return p.stats
}

// Tick advances the PHY by one engine cycle: the current bus content enters
// the serializer delay line and the oldest snapshot drives the pads.
func (p *SimPHY) Tick() {
	p.stats.Cycles++

	next := p.encodePads()
	p.delayLine = append(p.delayLine, next)

	p.pads = p.delayLine[0]
	p.delayLine = p.delayLine[1:]
}

// encodePads samples the command phases of the bus into a pad snapshot.
// With several phases per cycle the earliest selected phase wins the CA bus;
// finer sub-cycle multiplexing belongs to the wrapped serialization domains.
func (p *SimPHY) encodePads() Pads {
	pads := Pads{ResetN: true}
	pads.Nop()

	for i := range p.bus.Phases {
		phase := &p.bus.Phases[i]
		if phase.Decode() == dfi.CmdNOP {
			continue
		}

		p.stats.Commands++
		if pads.CSn {
			pads.CSn = false
			pads.CA = phase.Bank<<p.AddressBits() | phase.Address
		}
	}

	return pads
}

// Reset returns the PHY to its power-up state: bus deselected, pads idle,
// delay line filled with idle snapshots.
func (p *SimPHY) Reset() {
	p.bus.Nop()
	p.pads = Pads{ResetN: false}
	p.pads.Nop()

	p.delayLine = make([]Pads, p.serLatency.Taps)
	for i := range p.delayLine {
		p.delayLine[i] = Pads{ResetN: true}
		p.delayLine[i].Nop()
	}

	p.stats = Statistics{}
}
