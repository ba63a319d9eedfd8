// Package check provides the DFI timings checker: a stateful monitor that
// replays the command/address bus against a device timing table and flags
// violations with cycle-level precision.
//
// Cycles are counted in phase slots: with N phases per controller cycle,
// phase p of controller cycle k occupies slot N*k+p, and all distances are
// measured in slots at the phase clock period.
package check

import (
	"fmt"
	"log"
	"math"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dfisim/device"
	"github.com/sarchlab/dfisim/dfi"
)

// HookPosTimingViolation is the hook position invoked for every reported
// timing violation. The hook context item is the Violation.
var HookPosTimingViolation = &sim.HookPos{Name: "TimingViolation"}

// RefreshMode selects which refresh-interval constraint is active.
type RefreshMode int

const (
	// RefreshCoarse checks the all-bank average refresh interval.
	RefreshCoarse RefreshMode = iota
	// RefreshFine checks the fine-granularity (per-bank) refresh
	// interval, tREFI scaled down by the fine refresh divisor.
	RefreshFine
)

// fineRefreshDivisor scales tREFI down in fine refresh mode.
const fineRefreshDivisor = 8

// ScopeKind tells whether a violation is attributed to a bank or to a rank.
type ScopeKind int

const (
	// ScopeBank attributes a violation to one bank of one rank.
	ScopeBank ScopeKind = iota
	// ScopeRank attributes a violation to a whole rank.
	ScopeRank
)

// Scope identifies the bank or rank a violation is attributed to.
type Scope struct {
	Kind ScopeKind
	Rank int
	Bank int
}

// BankScope builds a bank-scoped identifier.
func BankScope(rank, bank int) Scope {
	return Scope{Kind: ScopeBank, Rank: rank, Bank: bank}
}

// RankScope builds a rank-scoped identifier.
func RankScope(rank int) Scope {
	return Scope{Kind: ScopeRank, Rank: rank}
}

// String returns "rankR" or "rankR.bankB".
func (s Scope) String() string {
	if s.Kind == ScopeRank {
		return fmt.Sprintf("rank%d", s.Rank)
	}
	return fmt.Sprintf("rank%d.bank%d", s.Rank, s.Bank)
}

// Violation is one detected timing violation. It is transient: the checker
// emits it through its hooks and retains nothing.
type Violation struct {
	// Cycle is the phase slot the violating command was observed in.
	Cycle int64
	// Scope is the bank or rank the violation is attributed to.
	Scope Scope
	// Constraint is the canonical name of the violated parameter.
	Constraint string
	// Observed is the observed command distance in slots. For interval
	// constraints (tREFI, tZQCS) it is the observed interval.
	Observed int64
	// Required is the binding requirement in slots.
	Required int64
}

// String formats the violation for logs.
func (v Violation) String() string {
	return fmt.Sprintf("cycle %d: %s violation on %s: observed %d, required %d",
		v.Cycle, v.Constraint, v.Scope, v.Observed, v.Required)
}

// never is the sentinel slot for "no prior command".
const never = math.MinInt64 / 2

// bankState tracks the most recent command slots of one bank.
type bankState struct {
	lastActivate  int64
	lastPrecharge int64
	lastRead      int64
	lastWrite     int64
}

// activateWindow is the number of activates spanning the tFAW window.
const activateWindow = 4

// rankState tracks the most recent command slots of one rank.
type rankState struct {
	// activates is a ring buffer of the most recent activate slots,
	// newest first loses meaning: head points at the next write slot.
	activates [activateWindow]int64
	head      int
	count     int

	lastActivate     int64
	lastActivateBank int
	lastWrite        int64
	lastColumn       int64
	lastRefresh      int64
	lastZQCS         int64
}

// nthNewestActivate returns the n-th most recent activate slot (0 = newest).
func (r *rankState) nthNewestActivate(n int) (int64, bool) {
	if n >= r.count {
		return 0, false
	}
	idx := (r.head - 1 - n + 2*activateWindow) % activateWindow
	return r.activates[idx], true
}

// pushActivate records an activate slot in the ring buffer.
func (r *rankState) pushActivate(slot int64) {
	r.activates[r.head] = slot
	r.head = (r.head + 1) % activateWindow
	if r.count < activateWindow {
		r.count++
	}
}

func newBankState() bankState {
	return bankState{
		lastActivate:  never,
		lastPrecharge: never,
		lastRead:      never,
		lastWrite:     never,
	}
}

func newRankState() rankState {
	return rankState{
		lastActivate: never,
		lastWrite:    never,
		lastColumn:   never,
		lastRefresh:  never,
		lastZQCS:     never,
	}
}

// bounds holds the binding cycle requirements of every constraint at the
// session's phase clock period, resolved once at construction.
type bounds struct {
	rc   int64
	ras  int64
	rp   int64
	rcd  int64
	wr   int64
	wtr  int64
	ccd  int64
	ccdm int64
	rrd  int64
	faw  int64
	rfc  int64
	refi int64
	zqcs int64
}

// Statistics holds checker activity counters.
type Statistics struct {
	// Cycles is the number of controller cycles checked.
	Cycles uint64
	// Commands is the number of non-NOP commands decoded.
	Commands uint64
	// Detected is the number of violations detected, gated or not.
	Detected uint64
	// Reported is the number of violations emitted through hooks.
	Reported uint64
}

// Checker validates the DFI command stream against a device timing table.
// It exclusively owns all per-bank and per-rank timing state.
//
// Violations are reported, never fatal: the simulation continues so later
// violations remain observable. Reporting is gated by an enable flag that
// may change at runtime, letting a caller mask expected transients during
// device initialization. Gating suppresses emission only; detection counters
// still advance.
type Checker struct {
	sim.HookableBase

	table       *device.Table
	geom        device.Geometry
	refreshMode RefreshMode
	nPhases     int
	tCK         float64

	bounds bounds

	// banks is indexed rank*NumBanks+bank, ranks by rank id. Fixed
	// arenas, no allocation in the per-cycle path.
	banks []bankState
	ranks []rankState

	// cycle is the slot of phase 0 of the next controller cycle.
	cycle int64

	reportingEnabled bool
	verbose          bool
	logger           *log.Logger

	// pending accumulates state updates within one controller cycle so
	// every phase is evaluated against the pre-cycle snapshot. Updates
	// commit atomically at end-of-cycle.
	pending []pendingUpdate

	stats Statistics
}

// pendingUpdate is one decoded command awaiting end-of-cycle state commit.
type pendingUpdate struct {
	cmd  dfi.Command
	rank int
	bank int
	slot int64
}

// Option configures a Checker.
type Option func(*Checker)

// WithRefreshMode selects the refresh-interval constraint.
func WithRefreshMode(mode RefreshMode) Option {
	return func(c *Checker) {
		c.refreshMode = mode
	}
}

// WithVerbose makes the checker log every accepted command, for tracing.
func WithVerbose() Option {
	return func(c *Checker) {
		c.verbose = true
	}
}

// WithLogger sets the logger used for verbose tracing and reported
// violations.
func WithLogger(logger *log.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithReportingEnabled sets the initial state of the reporting gate. It
// defaults to enabled.
func WithReportingEnabled(enabled bool) Option {
	return func(c *Checker) {
		c.reportingEnabled = enabled
	}
}

// New creates a checker for a device described by the timing table and
// geometry, monitoring a bus with nPhases phases at the given controller
// clock frequency. The phase clock period used for binding-cycle conversion
// is the controller period divided by the phase count.
func New(
	table *device.Table,
	geom device.Geometry,
	sysClkFreq sim.Freq,
	nPhases int,
	options ...Option,
) (*Checker, error) {
	if table == nil {
		return nil, fmt.Errorf("check: timing table is required")
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if sysClkFreq <= 0 {
		return nil, fmt.Errorf("check: clock frequency must be positive")
	}
	if nPhases < 1 {
		return nil, fmt.Errorf("check: phase count must be positive, got %d",
			nPhases)
	}

	c := &Checker{
		table:            table,
		geom:             geom,
		nPhases:          nPhases,
		tCK:              (1e9 / float64(sysClkFreq)) / float64(nPhases),
		reportingEnabled: true,
		logger:           log.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	if err := c.resolveBounds(); err != nil {
		return nil, err
	}

	c.banks = make([]bankState, geom.Ranks*geom.NumBanks())
	c.ranks = make([]rankState, geom.Ranks)
	c.pending = make([]pendingUpdate, 0, nPhases)
	c.Reset()

	return c, nil
}

// resolveBounds converts every applicable timing parameter to its binding
// slot count at the session's phase clock period.
func (c *Checker) resolveBounds() error {
	get := func(name string) (int64, error) {
		p, ok := c.table.Get(name)
		if !ok {
			return 0, fmt.Errorf("check: timing table lacks %s", name)
		}
		return int64(p.CyclesAt(c.tCK)), nil
	}

	var err error
	resolve := func(dst *int64, name string) {
		if err != nil {
			return
		}
		*dst, err = get(name)
	}

	resolve(&c.bounds.rc, device.TRC)
	resolve(&c.bounds.ras, device.TRAS)
	resolve(&c.bounds.rp, device.TRP)
	resolve(&c.bounds.rcd, device.TRCD)
	resolve(&c.bounds.wr, device.TWR)
	resolve(&c.bounds.wtr, device.TWTR)
	resolve(&c.bounds.ccd, device.TCCD)
	resolve(&c.bounds.rrd, device.TRRD)
	resolve(&c.bounds.faw, device.TFAW)
	resolve(&c.bounds.rfc, device.TRFC)
	resolve(&c.bounds.refi, device.TREFI)
	if err != nil {
		return err
	}

	if c.table.Family().HasMaskedWrite() {
		resolve(&c.bounds.ccdm, device.TCCDM)
	} else {
		c.bounds.ccdm = c.bounds.ccd
	}
	if c.table.Family().HasZQCalibration() {
		resolve(&c.bounds.zqcs, device.TZQCS)
	}
	if err != nil {
		return err
	}

	if c.refreshMode == RefreshFine {
		c.bounds.refi /= fineRefreshDivisor
	}

	return nil
}

// Reset returns all bank and rank state to "no prior command" and restarts
// the cycle counter. The reporting gate is left unchanged.
func (c *Checker) Reset() {
	for i := range c.banks {
		c.banks[i] = newBankState()
	}
	for i := range c.ranks {
		c.ranks[i] = newRankState()
	}
	c.cycle = 0
	c.pending = c.pending[:0]
	c.stats = Statistics{}
}

// SetReportingEnabled opens or closes the violation reporting gate. The gate
// is sampled at the start of each controller cycle, the same edge the
// checker commits its own state on, so a toggle takes effect from the next
// full cycle and is never retroactive.
func (c *Checker) SetReportingEnabled(enabled bool) {
	c.reportingEnabled = enabled
}

// ReportingEnabled returns the current state of the reporting gate.
func (c *Checker) ReportingEnabled() bool {
	return c.reportingEnabled
}

// Cycle returns the slot the next controller cycle starts at.
func (c *Checker) Cycle() int64 {
	return c.cycle
}

// TCK returns the phase clock period in nanoseconds used for binding-cycle
// conversion.
func (c *Checker) TCK() float64 {
	return c.tCK
}

// Stats returns the checker activity counters.
func (c *Checker) Stats() Statistics {
	return c.stats
}

// Bound returns the binding slot requirement resolved for a constraint at
// the session's phase clock period. The second return value is false for
// constraints not applicable to the device.
func (c *Checker) Bound(name string) (int64, bool) {
	switch name {
	case device.TRC:
		return c.bounds.rc, true
	case device.TRAS:
		return c.bounds.ras, true
	case device.TRP:
		return c.bounds.rp, true
	case device.TRCD:
		return c.bounds.rcd, true
	case device.TWR:
		return c.bounds.wr, true
	case device.TWTR:
		return c.bounds.wtr, true
	case device.TCCD:
		return c.bounds.ccd, true
	case device.TCCDM:
		return c.bounds.ccdm, c.table.Family().HasMaskedWrite()
	case device.TRRD:
		return c.bounds.rrd, true
	case device.TFAW:
		return c.bounds.faw, true
	case device.TRFC:
		return c.bounds.rfc, true
	case device.TREFI:
		return c.bounds.refi, true
	case device.TZQCS:
		return c.bounds.zqcs, c.table.Family().HasZQCalibration()
	default:
		return 0, false
	}
}

// CheckCycle validates one controller cycle of the bus. Every phase is
// decoded and evaluated against the pre-cycle state snapshot, then all state
// updates commit atomically, so the verdict does not depend on phase order
// within the cycle.
func (c *Checker) CheckCycle(bus *dfi.Bus) {
	if bus.NPhases() != c.nPhases {
		panic(fmt.Sprintf("check: bus has %d phases, checker expects %d",
			bus.NPhases(), c.nPhases))
	}

	report := c.reportingEnabled
	c.stats.Cycles++

	for i := range bus.Phases {
		phase := &bus.Phases[i]
		cmd := phase.Decode()
		if cmd == dfi.CmdNOP {
			continue
		}

		slot := c.cycle + int64(i)
		c.checkCommand(cmd, phase.Rank, phase.Bank, slot, report)
		c.pending = append(c.pending, pendingUpdate{
			cmd:  cmd,
			rank: phase.Rank,
			bank: phase.Bank,
			slot: slot,
		})
	}

	for _, u := range c.pending {
		c.commit(u)
	}
	c.pending = c.pending[:0]

	c.cycle += int64(c.nPhases)
}

// bank returns the pre-cycle state of a bank.
func (c *Checker) bank(rank, bank int) *bankState {
	return &c.banks[rank*c.geom.NumBanks()+bank]
}

// checkCommand evaluates every constraint applicable to one decoded command
// against the pre-cycle snapshot.
func (c *Checker) checkCommand(
	cmd dfi.Command,
	rank, bank int,
	slot int64,
	report bool,
) {
	if rank < 0 || rank >= c.geom.Ranks ||
		bank < 0 || bank >= c.geom.NumBanks() {
		panic(fmt.Sprintf("check: command targets rank %d bank %d outside geometry",
			rank, bank))
	}

	c.stats.Commands++

	b := c.bank(rank, bank)
	r := &c.ranks[rank]
	violated := false

	minGap := func(name string, last, required int64, scope Scope) {
		if last == never || slot-last >= required {
			return
		}
		violated = true
		c.emit(Violation{
			Cycle:      slot,
			Scope:      scope,
			Constraint: name,
			Observed:   slot - last,
			Required:   required,
		}, report)
	}
	maxGap := func(name string, last, bound int64, scope Scope) {
		if last == never || slot-last <= bound {
			return
		}
		violated = true
		c.emit(Violation{
			Cycle:      slot,
			Scope:      scope,
			Constraint: name,
			Observed:   slot - last,
			Required:   bound,
		}, report)
	}

	bankScope := BankScope(rank, bank)
	rankScope := RankScope(rank)

	switch cmd {
	case dfi.CmdACT:
		minGap(device.TRC, b.lastActivate, c.bounds.rc, bankScope)
		minGap(device.TRP, b.lastPrecharge, c.bounds.rp, bankScope)
		minGap(device.TRFC, r.lastRefresh, c.bounds.rfc, rankScope)
		if r.lastActivate != never && r.lastActivateBank != bank {
			minGap(device.TRRD, r.lastActivate, c.bounds.rrd, rankScope)
		}
		c.checkActivateWindow(r, rank, slot, &violated, report)

	case dfi.CmdPRE:
		minGap(device.TRAS, b.lastActivate, c.bounds.ras, bankScope)
		minGap(device.TWR, b.lastWrite, c.bounds.wr, bankScope)

	case dfi.CmdRD:
		minGap(device.TRCD, b.lastActivate, c.bounds.rcd, bankScope)
		minGap(device.TWTR, r.lastWrite, c.bounds.wtr, rankScope)
		minGap(device.TCCD, r.lastColumn, c.bounds.ccd, rankScope)

	case dfi.CmdWR:
		minGap(device.TRCD, b.lastActivate, c.bounds.rcd, bankScope)
		minGap(device.TCCD, r.lastColumn, c.bounds.ccd, rankScope)

	case dfi.CmdMWR:
		minGap(device.TRCD, b.lastActivate, c.bounds.rcd, bankScope)
		minGap(device.TCCDM, r.lastColumn, c.bounds.ccdm, rankScope)

	case dfi.CmdREF:
		maxGap(device.TREFI, r.lastRefresh, c.bounds.refi, rankScope)

	case dfi.CmdZQCS:
		if c.table.Family().HasZQCalibration() {
			maxGap(device.TZQCS, r.lastZQCS, c.bounds.zqcs, rankScope)
		}

	case dfi.CmdMRS:
		// Mode register writes carry no pairwise timing here.
	}

	if c.verbose && !violated {
		c.logger.Printf("dfi: cycle %d: %s rank%d bank%d accepted",
			slot, cmd, rank, bank)
	}
}

// checkActivateWindow enforces the four-activate-window constraint: the
// current activate plus the three most recent ones must span at least tFAW.
func (c *Checker) checkActivateWindow(
	r *rankState,
	rank int,
	slot int64,
	violated *bool,
	report bool,
) {
	oldest, ok := r.nthNewestActivate(activateWindow - 2)
	if !ok {
		return
	}
	if slot-oldest >= c.bounds.faw {
		return
	}

	*violated = true
	c.emit(Violation{
		Cycle:      slot,
		Scope:      RankScope(rank),
		Constraint: device.TFAW,
		Observed:   slot - oldest,
		Required:   c.bounds.faw,
	}, report)
}

// emit counts a detected violation and, if the gate was open at the start of
// the cycle, reports it through the hooks and the logger.
func (c *Checker) emit(v Violation, report bool) {
	c.stats.Detected++
	if !report {
		return
	}

	c.stats.Reported++
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosTimingViolation,
		Item:   v,
	})
	if c.verbose {
		c.logger.Printf("dfi: %s", v)
	}
}

// commit applies one decoded command's state update. Called for all phases
// after every phase of the cycle has been checked.
func (c *Checker) commit(u pendingUpdate) {
	b := c.bank(u.rank, u.bank)
	r := &c.ranks[u.rank]

	switch u.cmd {
	case dfi.CmdACT:
		b.lastActivate = u.slot
		r.lastActivate = u.slot
		r.lastActivateBank = u.bank
		r.pushActivate(u.slot)
	case dfi.CmdPRE:
		b.lastPrecharge = u.slot
	case dfi.CmdRD:
		b.lastRead = u.slot
		r.lastColumn = u.slot
	case dfi.CmdWR, dfi.CmdMWR:
		b.lastWrite = u.slot
		r.lastWrite = u.slot
		r.lastColumn = u.slot
	case dfi.CmdREF:
		r.lastRefresh = u.slot
	case dfi.CmdZQCS:
		r.lastZQCS = u.slot
	}
}
