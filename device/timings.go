// Package device provides DRAM device descriptions: timing parameter tables,
// geometry, and built-in example modules.
//
// Timing parameters follow the datasheet convention of a (cycle count,
// nanosecond bound) pair where either side may be absent. The effective
// requirement at a given clock period is the larger of the two once the time
// bound is converted to cycles.
package device

import (
	"fmt"
	"math"
)

// Family identifies a DRAM device family. Some timing constraints only apply
// to certain families.
type Family int

const (
	// FamilyDDR4 is standard DDR4 SDRAM.
	FamilyDDR4 Family = iota
	// FamilyLPDDR4 is low-power DDR4.
	FamilyLPDDR4
	// FamilyLPDDR5 is low-power DDR5.
	FamilyLPDDR5
)

// String returns the family name as used in datasheets.
func (f Family) String() string {
	switch f {
	case FamilyDDR4:
		return "DDR4"
	case FamilyLPDDR4:
		return "LPDDR4"
	case FamilyLPDDR5:
		return "LPDDR5"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// HasMaskedWrite returns true if the family distinguishes masked writes from
// plain writes for column-to-column timing.
func (f Family) HasMaskedWrite() bool {
	return f == FamilyLPDDR4 || f == FamilyLPDDR5
}

// HasZQCalibration returns true if the family issues ZQ calibration commands
// on the command bus.
func (f Family) HasZQCalibration() bool {
	return f != FamilyLPDDR5
}

// TimingParameter is a single named timing constraint expressed as a cycle
// count, a time bound in nanoseconds, or both.
type TimingParameter struct {
	Name string

	Cycles    int
	HasCycles bool

	Nanoseconds    float64
	HasNanoseconds bool
}

// Cyc creates a cycle-only timing parameter.
func Cyc(name string, cycles int) TimingParameter {
	return TimingParameter{Name: name, Cycles: cycles, HasCycles: true}
}

// NS creates a time-only timing parameter.
func NS(name string, ns float64) TimingParameter {
	return TimingParameter{Name: name, Nanoseconds: ns, HasNanoseconds: true}
}

// CycNS creates a timing parameter with both a cycle count and a time bound.
func CycNS(name string, cycles int, ns float64) TimingParameter {
	return TimingParameter{
		Name:           name,
		Cycles:         cycles,
		HasCycles:      true,
		Nanoseconds:    ns,
		HasNanoseconds: true,
	}
}

// Valid returns true if at least one of the cycle count and the time bound is
// present and neither is negative.
func (p TimingParameter) Valid() bool {
	if !p.HasCycles && !p.HasNanoseconds {
		return false
	}
	if p.HasCycles && p.Cycles < 0 {
		return false
	}
	if p.HasNanoseconds && p.Nanoseconds < 0 {
		return false
	}
	return true
}

// CyclesAt returns the binding cycle requirement at clock period tCK (in
// nanoseconds): the larger of the explicit cycle count and the time bound
// converted to cycles, rounded up.
func (p TimingParameter) CyclesAt(tCK float64) int {
	cycles := 0
	if p.HasCycles {
		cycles = p.Cycles
	}
	if p.HasNanoseconds {
		fromTime := int(math.Ceil(p.Nanoseconds / tCK))
		if fromTime > cycles {
			cycles = fromTime
		}
	}
	return cycles
}

// Canonical timing parameter names.
const (
	TREFI = "tREFI"
	TWTR  = "tWTR"
	TCCD  = "tCCD"
	TCCDM = "tCCD.MW" // masked-write column-to-column delay
	TRRD  = "tRRD"
	TZQCS = "tZQCS"
	TRP   = "tRP"
	TRCD  = "tRCD"
	TWR   = "tWR"
	TRFC  = "tRFC"
	TFAW  = "tFAW"
	TRAS  = "tRAS"
	TRC   = "tRC"
)

// TechnologyTimings are the timing parameters defined at the technology level
// of a device, shared by all speed grades.
type TechnologyTimings struct {
	TREFI TimingParameter
	TWTR  TimingParameter
	TCCD  TimingParameter
	TCCDM TimingParameter
	TRRD  TimingParameter
	TZQCS TimingParameter
}

// SpeedgradeTimings are the timing parameters that vary per speed grade.
type SpeedgradeTimings struct {
	TRP  TimingParameter
	TRCD TimingParameter
	TWR  TimingParameter
	TRFC TimingParameter
	TFAW TimingParameter
	TRAS TimingParameter
}

// TRC returns the row cycle time, derived as tRAS + tRP when not specified
// directly by the datasheet.
func (s SpeedgradeTimings) TRC() TimingParameter {
	p := TimingParameter{Name: TRC}
	if s.TRAS.HasCycles || s.TRP.HasCycles {
		p.HasCycles = true
		p.Cycles = s.TRAS.Cycles + s.TRP.Cycles
	}
	if s.TRAS.HasNanoseconds || s.TRP.HasNanoseconds {
		p.HasNanoseconds = true
		p.Nanoseconds = s.TRAS.Nanoseconds + s.TRP.Nanoseconds
	}
	return p
}

// Table is an immutable registry of timing parameters for one device,
// keyed by canonical parameter name.
type Table struct {
	family Family
	params map[string]TimingParameter
}

// mandatory lists the parameters every table must carry, regardless of
// family.
var mandatory = []string{
	TREFI, TWTR, TCCD, TRRD, TRP, TRCD, TWR, TRFC, TFAW, TRAS,
}

// NewTable builds a timing table from technology and speed grade timings.
// It returns an error if any mandatory parameter is missing or malformed.
func NewTable(
	family Family,
	tech TechnologyTimings,
	grade SpeedgradeTimings,
) (*Table, error) {
	params := map[string]TimingParameter{
		TREFI: tech.TREFI,
		TWTR:  tech.TWTR,
		TCCD:  tech.TCCD,
		TCCDM: tech.TCCDM,
		TRRD:  tech.TRRD,
		TZQCS: tech.TZQCS,
		TRP:   grade.TRP,
		TRCD:  grade.TRCD,
		TWR:   grade.TWR,
		TRFC:  grade.TRFC,
		TFAW:  grade.TFAW,
		TRAS:  grade.TRAS,
		TRC:   grade.TRC(),
	}

	for name, p := range params {
		p.Name = name
		params[name] = p
	}

	t := &Table{family: family, params: params}

	for _, name := range mandatory {
		if !params[name].Valid() {
			return nil, fmt.Errorf(
				"device: missing mandatory timing parameter %s", name)
		}
	}
	if family.HasMaskedWrite() && !params[TCCDM].Valid() {
		return nil, fmt.Errorf(
			"device: %s requires masked-write tCCD", family)
	}
	if family.HasZQCalibration() && !params[TZQCS].Valid() {
		return nil, fmt.Errorf(
			"device: %s requires tZQCS", family)
	}

	return t, nil
}

// Family returns the device family the table describes.
func (t *Table) Family() Family {
	return t.family
}

// Get returns the timing parameter with the given canonical name. The second
// return value is false if the parameter is absent or not defined for this
// device.
func (t *Table) Get(name string) (TimingParameter, bool) {
	p, ok := t.params[name]
	if !ok || !p.Valid() {
		return TimingParameter{}, false
	}
	return p, true
}

// MustGet returns the timing parameter with the given name, panicking if it
// is absent. Use only for parameters validated as mandatory.
func (t *Table) MustGet(name string) TimingParameter {
	p, ok := t.Get(name)
	if !ok {
		panic(fmt.Sprintf("device: timing parameter %s not in table", name))
	}
	return p
}

// Geometry describes the addressable organization of a device.
type Geometry struct {
	// BankBits is the width of the bank address.
	BankBits int
	// RowBits is the width of the row address.
	RowBits int
	// ColBits is the width of the column address.
	ColBits int
	// Ranks is the number of ranks.
	Ranks int
}

// NumBanks returns the number of banks per rank.
func (g Geometry) NumBanks() int {
	return 1 << g.BankBits
}

// Validate checks that the geometry is usable.
func (g Geometry) Validate() error {
	if g.BankBits <= 0 || g.RowBits <= 0 || g.ColBits <= 0 {
		return fmt.Errorf(
			"device: geometry widths must be positive, got bank=%d row=%d col=%d",
			g.BankBits, g.RowBits, g.ColBits)
	}
	if g.Ranks <= 0 {
		return fmt.Errorf("device: rank count must be positive, got %d", g.Ranks)
	}
	return nil
}
