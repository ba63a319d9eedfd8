// Package dfi models the DFI command/address interface between a memory
// controller and the PHY: the per-phase control strobes, the address bus,
// and the decoding of strobe patterns into commands.
package dfi

import "fmt"

// Command is a decoded DFI command.
type Command int

const (
	// CmdNOP is a deselected or unrecognized phase. Unrecognized strobe
	// patterns are treated as benign, not faulted.
	CmdNOP Command = iota
	// CmdACT activates a row in a bank.
	CmdACT
	// CmdPRE precharges a bank.
	CmdPRE
	// CmdRD is a column read.
	CmdRD
	// CmdWR is a plain column write.
	CmdWR
	// CmdMWR is a masked column write.
	CmdMWR
	// CmdREF is a refresh.
	CmdREF
	// CmdZQCS is a short ZQ calibration.
	CmdZQCS
	// CmdMRS is a mode register write.
	CmdMRS
)

// String returns the datasheet mnemonic of the command.
func (c Command) String() string {
	switch c {
	case CmdNOP:
		return "NOP"
	case CmdACT:
		return "ACT"
	case CmdPRE:
		return "PRE"
	case CmdRD:
		return "RD"
	case CmdWR:
		return "WR"
	case CmdMWR:
		return "MWR"
	case CmdREF:
		return "REF"
	case CmdZQCS:
		return "ZQCS"
	case CmdMRS:
		return "MRS"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// IsColumn returns true for commands that occupy the column data path.
func (c Command) IsColumn() bool {
	return c == CmdRD || c == CmdWR || c == CmdMWR
}

// IsWrite returns true for plain and masked writes.
func (c Command) IsWrite() bool {
	return c == CmdWR || c == CmdMWR
}

// Phase is the control/address signal group of one DFI phase. Strobes are
// active low, following the SDRAM command truth table: a phase issues a
// command only when CSn is asserted (false).
type Phase struct {
	CSn  bool
	RASn bool
	CASn bool
	WEn  bool

	// Rank, Bank and Address carry the rank id, bank id and the row or
	// column address. Their effective widths are geometry-derived and
	// enforced by the bus owner, not here.
	Rank    int
	Bank    int
	Address int

	// WrDataEn and RdDataEn flag the data phases associated with a
	// column command.
	WrDataEn bool
	RdDataEn bool
	// WrMaskEn marks a write as masked. Masked writes have their own
	// column-to-column timing on LPDDR4/LPDDR5.
	WrMaskEn bool
}

// Nop resets the phase to a deselected state.
func (p *Phase) Nop() {
	*p = Phase{CSn: true, RASn: true, CASn: true, WEn: true}
}

// Decode maps the strobe pattern of the phase to a command.
func (p Phase) Decode() Command {
	if p.CSn {
		return CmdNOP
	}

	switch {
	case !p.RASn && p.CASn && p.WEn:
		return CmdACT
	case !p.RASn && p.CASn && !p.WEn:
		return CmdPRE
	case p.RASn && !p.CASn && p.WEn:
		return CmdRD
	case p.RASn && !p.CASn && !p.WEn:
		if p.WrMaskEn {
			return CmdMWR
		}
		return CmdWR
	case !p.RASn && !p.CASn && p.WEn:
		return CmdREF
	case p.RASn && p.CASn && !p.WEn:
		return CmdZQCS
	case !p.RASn && !p.CASn && !p.WEn:
		return CmdMRS
	default:
		return CmdNOP
	}
}

// Bus is the multi-phase DFI command/address bus. One controller cycle
// carries one slot per phase.
type Bus struct {
	Phases []Phase
}

// NewBus creates a bus with the given number of phases, all deselected.
func NewBus(nPhases int) *Bus {
	if nPhases < 1 {
		panic(fmt.Sprintf("dfi: phase count must be positive, got %d", nPhases))
	}

	b := &Bus{Phases: make([]Phase, nPhases)}
	b.Nop()
	return b
}

// NPhases returns the number of phases per controller cycle.
func (b *Bus) NPhases() int {
	return len(b.Phases)
}

// Nop deselects every phase.
func (b *Bus) Nop() {
	for i := range b.Phases {
		b.Phases[i].Nop()
	}
}

// issue encodes a command onto the phase, keeping the bank/address fields.
func (p *Phase) issue(rasn, casn, wen bool) {
	p.CSn = false
	p.RASn = rasn
	p.CASn = casn
	p.WEn = wen
}

// Activate encodes an ACT to the given bank and row on the phase.
func (p *Phase) Activate(bank, row int) {
	p.Nop()
	p.issue(false, true, true)
	p.Bank = bank
	p.Address = row
}

// Precharge encodes a PRE to the given bank on the phase.
func (p *Phase) Precharge(bank int) {
	p.Nop()
	p.issue(false, true, false)
	p.Bank = bank
}

// Read encodes a RD to the given bank and column on the phase.
func (p *Phase) Read(bank, col int) {
	p.Nop()
	p.issue(true, false, true)
	p.Bank = bank
	p.Address = col
	p.RdDataEn = true
}

// Write encodes a WR or, when masked is set, an MWR on the phase.
func (p *Phase) Write(bank, col int, masked bool) {
	p.Nop()
	p.issue(true, false, false)
	p.Bank = bank
	p.Address = col
	p.WrDataEn = true
	p.WrMaskEn = masked
}

// Refresh encodes a REF on the phase.
func (p *Phase) Refresh() {
	p.Nop()
	p.issue(false, false, true)
}

// ZQCalibrate encodes a ZQCS on the phase.
func (p *Phase) ZQCalibrate() {
	p.Nop()
	p.issue(true, true, false)
}
