// Package clocks derives the multi-domain clock plan of the PHY simulation
// from the base system frequency and a small set of integer ratios.
//
// The simulation backend models a double-data-rate signal with two
// single-edge clock domains, one per edge, so every derived rate appears
// twice in the plan: once at phase 0 and once at phase 180.
package clocks

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// Clock domain roles. A role names the function a domain serves; several
// roles may share one physical domain when their multipliers coincide.
const (
	// RoleSys is the base controller-domain clock.
	RoleSys = "sys"
	// RolePHY is the PHY-domain clock after DFI rate conversion.
	RolePHY = "phy"
	// RoleCK is the memory command clock.
	RoleCK = "ck"
	// RoleCKDDR is the double-rate command clock.
	RoleCKDDR = "ck_ddr"
	// RoleCADDR is the quad-rate command/address clock. Address lines are
	// sampled at twice the double-rate clock to model quad-data-rate
	// address multiplexing.
	RoleCADDR = "ca_ddr"
	// RoleWCKDDR is the double-rate write clock.
	RoleWCKDDR = "wck_ddr"
)

// RatioConfig carries the two integer ratios that shape the clock plan and
// the rate converter.
type RatioConfig struct {
	// WCKCKRatio is the WCK:CK ratio of the device, 2 or 4.
	WCKCKRatio int
	// ConverterRatio is the DFI rate conversion ratio between the
	// controller clock and the PHY clock. 1 disables conversion.
	ConverterRatio int
}

// Validate checks the ratio preconditions.
func (r RatioConfig) Validate() error {
	if r.WCKCKRatio != 2 && r.WCKCKRatio != 4 {
		return fmt.Errorf("clocks: wck:ck ratio must be 2 or 4, got %d",
			r.WCKCKRatio)
	}
	if r.ConverterRatio < 1 {
		return fmt.Errorf("clocks: converter ratio must be positive, got %d",
			r.ConverterRatio)
	}
	return nil
}

// DomainSpec describes one derived clock domain.
type DomainSpec struct {
	// Name uniquely identifies the domain within a plan. It embeds the
	// multiplier, e.g. "sys4x" or "sys4x_180".
	Name string
	// Freq is the domain frequency.
	Freq sim.Freq
	// PhaseDeg is the phase offset, 0 or 180.
	PhaseDeg int
	// Multiplier is the integer ratio of Freq to the base frequency.
	Multiplier int
}

// domainName builds the canonical name of a derived domain for a multiplier
// and phase, e.g. "sys2x" or "sys2x_180".
func domainName(multiplier, phaseDeg int) string {
	name := fmt.Sprintf("sys%dx", multiplier)
	if phaseDeg != 0 {
		name = fmt.Sprintf("%s_%d", name, phaseDeg)
	}
	return name
}

// Plan is the immutable set of clock domains for one simulation session,
// with role lookup. Created once at configuration time.
type Plan struct {
	baseFreq sim.Freq
	ratios   RatioConfig

	// roles maps a role to the multiplier of its domain.
	roles map[string]int
	// order lists roles in definition order.
	order []string
	// domains maps domain name to its spec.
	domains map[string]DomainSpec
	// names lists domain names in creation order.
	names []string
}

// NewPlan derives the clock plan for the given base frequency and ratios.
//
// Derived multipliers relative to the converter ratio c and the wck:ck
// ratio w: phy and ck at c, ck_ddr at 2c, ca_ddr at 4c, wck_ddr at 2wc.
// Every distinct multiplier yields a phase-0 and a phase-180 domain.
func NewPlan(baseFreqHz int64, ratios RatioConfig) (*Plan, error) {
	if baseFreqHz <= 0 {
		return nil, fmt.Errorf(
			"clocks: base frequency must be positive, got %d", baseFreqHz)
	}
	if err := ratios.Validate(); err != nil {
		return nil, err
	}

	c := ratios.ConverterRatio
	w := ratios.WCKCKRatio

	p := &Plan{
		baseFreq: sim.Freq(baseFreqHz) * sim.Hz,
		ratios:   ratios,
		roles:    map[string]int{},
		domains:  map[string]DomainSpec{},
	}

	p.addBase()
	p.addRole(RolePHY, c)
	p.addRole(RoleCK, c)
	p.addRole(RoleCKDDR, 2*c)
	p.addRole(RoleCADDR, 4*c)
	p.addRole(RoleWCKDDR, 2*w*c)

	return p, nil
}

// addBase registers the base system clock. Unlike derived domains it has no
// phase-180 twin and its name carries no multiplier suffix.
func (p *Plan) addBase() {
	p.roles[RoleSys] = 1
	p.order = append(p.order, RoleSys)
	p.domains[RoleSys] = DomainSpec{
		Name:       RoleSys,
		Freq:       p.baseFreq,
		PhaseDeg:   0,
		Multiplier: 1,
	}
	p.names = append(p.names, RoleSys)
}

// addRole binds a role to a multiplier, creating the domain pair for the
// multiplier if it does not exist yet.
func (p *Plan) addRole(role string, multiplier int) {
	p.roles[role] = multiplier
	p.order = append(p.order, role)

	for _, phase := range []int{0, 180} {
		name := domainName(multiplier, phase)
		if _, ok := p.domains[name]; ok {
			continue
		}
		p.domains[name] = DomainSpec{
			Name:       name,
			Freq:       p.baseFreq * sim.Freq(multiplier),
			PhaseDeg:   phase,
			Multiplier: multiplier,
		}
		p.names = append(p.names, name)
	}
}

// BaseFreq returns the base system frequency.
func (p *Plan) BaseFreq() sim.Freq {
	return p.baseFreq
}

// Ratios returns the ratio configuration the plan was derived from.
func (p *Plan) Ratios() RatioConfig {
	return p.ratios
}

// Roles returns the logical roles in definition order.
func (p *Plan) Roles() []string {
	roles := make([]string, len(p.order))
	copy(roles, p.order)
	return roles
}

// Domains returns all domain specs in creation order.
func (p *Plan) Domains() []DomainSpec {
	specs := make([]DomainSpec, 0, len(p.names))
	for _, name := range p.names {
		specs = append(specs, p.domains[name])
	}
	return specs
}

// Domain returns the phase-0 domain spec serving a role.
func (p *Plan) Domain(role string) (DomainSpec, bool) {
	return p.domainFor(role, 0)
}

// DomainPhase180 returns the phase-180 domain spec serving a role.
func (p *Plan) DomainPhase180(role string) (DomainSpec, bool) {
	return p.domainFor(role, 180)
}

func (p *Plan) domainFor(role string, phaseDeg int) (DomainSpec, bool) {
	if role == RoleSys {
		if phaseDeg != 0 {
			return DomainSpec{}, false
		}
		return p.domains[RoleSys], true
	}

	multiplier, ok := p.roles[role]
	if !ok {
		return DomainSpec{}, false
	}
	spec, ok := p.domains[domainName(multiplier, phaseDeg)]
	return spec, ok
}

// ByName returns the domain spec with the given name.
func (p *Plan) ByName(name string) (DomainSpec, bool) {
	spec, ok := p.domains[name]
	return spec, ok
}

// ConverterMapping derives the clock-domain remapping a rate converter with
// the plan's converter ratio must apply to an inner engine authored for a
// 1:1 ratio: sys moves to the PHY-rate domain, and every serialization
// domain the engine references moves to the matching higher-rate domain.
func (p *Plan) ConverterMapping() map[string]string {
	c := p.ratios.ConverterRatio
	w := p.ratios.WCKCKRatio

	mapping := map[string]string{
		RoleSys: domainName(c, 0),
	}
	for _, r := range []int{2, 2 * w} {
		mapping[domainName(r, 0)] = domainName(c*r, 0)
		mapping[domainName(r, 180)] = domainName(c*r, 180)
	}
	return mapping
}
