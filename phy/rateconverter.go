package phy

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dfisim/clocks"
	"github.com/sarchlab/dfisim/device"
	"github.com/sarchlab/dfisim/dfi"
)

// Forwarded member names a RateConverter knows how to re-expose. The list is
// checked at construction so a typo in a forwarding request is a
// configuration error, not a silently missing member.
const (
	AttrPads        = "pads"
	AttrBus         = "dfi"
	AttrMemtype     = "memtype"
	AttrNRanks      = "nranks"
	AttrDataBits    = "databits"
	AttrAddressBits = "addressbits"
	AttrBankBits    = "bankbits"
	AttrNPhases     = "nphases"
	AttrSerLatency  = "ser_latency"
	AttrDesLatency  = "des_latency"
	AttrClocks      = "clocks"
)

// ForwardedAttrs is the full forwarding list, covering every Engine
// accessor.
var ForwardedAttrs = []string{
	AttrPads,
	AttrBus,
	AttrMemtype,
	AttrNRanks,
	AttrDataBits,
	AttrAddressBits,
	AttrBankBits,
	AttrNPhases,
	AttrSerLatency,
	AttrDesLatency,
	AttrClocks,
}

var knownAttrs = func() map[string]bool {
	m := make(map[string]bool, len(ForwardedAttrs))
	for _, a := range ForwardedAttrs {
		m[a] = true
	}
	return m
}()

// remappedClocks applies a name-to-name mapping in front of a clock
// provider, so an engine that asks for its 1:1 serialization domains is
// served the matching higher-frequency domains.
type remappedClocks struct {
	inner   ClockProvider
	mapping map[string]string
}

func (r remappedClocks) ByName(name string) (clocks.DomainSpec, bool) {
	if to, ok := r.mapping[name]; ok {
		name = to
	}
	return r.inner.ByName(name)
}

// RateConverter wraps a PHY engine authored for a 1:1 controller-to-PHY
// clock ratio so it runs at ratio PHY cycles per controller cycle. It owns
// the inner engine, re-exposes its members unchanged, and redirects every
// clock-domain reference onto the corresponding higher-frequency domain.
// With ratio 1 it degenerates to an identity passthrough.
type RateConverter struct {
	inner Engine
	ratio int

	// resetCount is the number of initial engine cycles held in reset
	// before the inner engine is released, aligning reset deassertion
	// across domains running at different rates.
	resetCount int
	resetLeft  int
}

// Wrap instantiates an engine through the factory at ratio times the
// configured frequency, with its clock references remapped through
// clockMapping, and returns the converter that owns it.
//
// forwarded must name only known attributes; it exists so a caller states
// explicitly which members it relies on, and a stale name fails fast.
// clockMapping maps domain roles the inner engine references to the roles
// it must use when running faster; mapped-from roles that the provider does
// not resolve after remapping are configuration errors.
func Wrap(
	factory EngineFactory,
	config Config,
	ratio int,
	forwarded []string,
	clockMapping map[string]string,
	resetCount int,
) (*RateConverter, error) {
	if ratio < 1 {
		return nil, fmt.Errorf("phy: converter ratio must be positive, got %d",
			ratio)
	}
	if resetCount < 0 {
		return nil, fmt.Errorf("phy: reset count must be non-negative, got %d",
			resetCount)
	}
	for _, attr := range forwarded {
		if !knownAttrs[attr] {
			return nil, fmt.Errorf("phy: unknown forwarded attribute %q", attr)
		}
	}

	if ratio > 1 {
		config.SysClkFreq = config.SysClkFreq * sim.Freq(ratio)
		if len(clockMapping) > 0 {
			remapped := remappedClocks{
				inner:   config.Clocks,
				mapping: clockMapping,
			}
			for from := range clockMapping {
				if _, ok := remapped.ByName(from); !ok {
					return nil, fmt.Errorf(
						"phy: clock mapping for %q resolves to no domain", from)
				}
			}
			config.Clocks = remapped
		}
	}

	inner, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("phy: building inner engine: %w", err)
	}

	return &RateConverter{
		inner:      inner,
		ratio:      ratio,
		resetCount: resetCount,
		resetLeft:  resetCount,
	}, nil
}

// Ratio returns the conversion ratio.
func (c *RateConverter) Ratio() int {
	return c.ratio
}

// Inner returns the wrapped engine.
func (c *RateConverter) Inner() Engine {
	return c.inner
}

// Pads returns the inner engine's pad bundle.
func (c *RateConverter) Pads() *Pads { return c.inner.Pads() }

// Bus returns the inner engine's DFI bus.
func (c *RateConverter) Bus() *dfi.Bus { return c.inner.Bus() }

// Memtype returns the inner engine's device family.
func (c *RateConverter) Memtype() device.Family { return c.inner.Memtype() }

// NRanks returns the inner engine's rank count.
func (c *RateConverter) NRanks() int { return c.inner.NRanks() }

// DataBits returns the inner engine's DQ width.
func (c *RateConverter) DataBits() int { return c.inner.DataBits() }

// AddressBits returns the inner engine's address width.
func (c *RateConverter) AddressBits() int { return c.inner.AddressBits() }

// BankBits returns the inner engine's bank address width.
func (c *RateConverter) BankBits() int { return c.inner.BankBits() }

// NPhases returns the inner engine's phase count.
func (c *RateConverter) NPhases() int { return c.inner.NPhases() }

// SerLatency returns the inner engine's serializer latency.
func (c *RateConverter) SerLatency() Latency { return c.inner.SerLatency() }

// DesLatency returns the inner engine's deserializer latency.
func (c *RateConverter) DesLatency() Latency { return c.inner.DesLatency() }

// Clocks returns the inner engine's (remapped) clock provider.
func (c *RateConverter) Clocks() ClockProvider { return c.inner.Clocks() }

// Tick advances the wrapped engine by one of its cycles. During the reset
// alignment window the inner engine is held in reset and does not advance.
func (c *RateConverter) Tick() {
	if c.resetLeft > 0 {
		c.resetLeft--
		return
	}
	c.inner.Tick()
}

// Reset restarts the reset alignment window and resets the inner engine.
func (c *RateConverter) Reset() {
	c.resetLeft = c.resetCount
	c.inner.Reset()
}

var _ Engine = (*RateConverter)(nil)
