package harness

import (
	"github.com/sarchlab/dfisim/check"
	"github.com/sarchlab/dfisim/device"
	"github.com/sarchlab/dfisim/dfi"
)

// TrafficGenerator stands in for the memory controller: it encodes the
// commands of one controller cycle onto the DFI bus.
type TrafficGenerator interface {
	// Drive encodes the current cycle's commands. The bus arrives
	// deselected.
	Drive(bus *dfi.Bus)
	// InitDone reports that the initialization phase of the script has
	// completed. It is the harness's completion signal for opening the
	// violation reporting gate.
	InitDone() bool
	// Done reports that the script has finished.
	Done() bool
}

// PatternGenerator plays a device bring-up phase followed by steady
// activate/write/read/precharge traffic across banks, spaced so that a
// well-timed run stays violation free. A violation period can be configured
// to deliberately under-space every n-th activate, for exercising the
// checker.
type PatternGenerator struct {
	geom        device.Geometry
	maskedWrite bool

	// safeGap is the command spacing (in controller cycles) that
	// satisfies every minimum-separation constraint.
	safeGap int64
	// refreshEvery is the refresh cadence in controller cycles, inside
	// the average refresh interval.
	refreshEvery int64
	// initCycles is the length of the bring-up phase.
	initCycles int64

	// violateEvery, when positive, follows every n-th activate with a
	// second activate of the same bank on the next cycle, well inside
	// the row cycle time.
	violateEvery int64

	cycle       int64
	nextIssue   int64
	sinceRef    int64
	burst       int64
	step        int
	doubleAct   bool
	lastActBank int
	lastActRow  int
	lastActRank int
	done        bool
}

// steady-state script steps, one command each.
const (
	stepActivate = iota
	stepWrite
	stepWriteSecond
	stepRead
	stepPrecharge
	numSteps
)

// NewPatternGenerator builds a generator whose spacing is derived from the
// checker's resolved binding requirements, so generator and checker always
// agree on what well-timed means.
func NewPatternGenerator(
	checker *check.Checker,
	geom device.Geometry,
	nPhases int,
	maskedWrite bool,
	violateEvery int64,
) *PatternGenerator {
	maxBound := int64(0)
	for _, name := range []string{
		device.TRC, device.TRAS, device.TRP, device.TRCD, device.TWR,
		device.TWTR, device.TCCD, device.TCCDM, device.TRRD, device.TFAW,
		device.TRFC,
	} {
		if b, ok := checker.Bound(name); ok && b > maxBound {
			maxBound = b
		}
	}

	// Bounds are in phase slots; commands are issued on phase 0, so
	// round the spacing up to whole controller cycles.
	safeGap := (maxBound + int64(nPhases) - 1) / int64(nPhases)
	if safeGap < 1 {
		safeGap = 1
	}

	refi, _ := checker.Bound(device.TREFI)
	refreshEvery := refi / int64(nPhases) / 2
	if refreshEvery < 1 {
		refreshEvery = 1
	}

	return &PatternGenerator{
		geom:         geom,
		maskedWrite:  maskedWrite,
		safeGap:      safeGap,
		refreshEvery: refreshEvery,
		initCycles:   2 * safeGap,
		violateEvery: violateEvery,
		nextIssue:    2 * safeGap,
	}
}

// InitDone reports completion of the bring-up phase.
func (g *PatternGenerator) InitDone() bool {
	return g.cycle >= g.initCycles
}

// Done always returns false: the generator produces traffic for as long as
// the cycle budget lets it run.
func (g *PatternGenerator) Done() bool {
	return g.done
}

// Drive encodes the current cycle's command, if one is due, on phase 0.
func (g *PatternGenerator) Drive(bus *dfi.Bus) {
	defer func() {
		g.cycle++
		g.sinceRef++
	}()

	if g.cycle < g.initCycles {
		return
	}

	phase := &bus.Phases[0]

	// A pending double activate fires on the cycle right after the
	// original, regardless of the normal cadence.
	if g.doubleAct {
		phase.Activate(g.lastActBank, g.lastActRow)
		phase.Rank = g.lastActRank
		g.doubleAct = false
		return
	}

	if g.cycle < g.nextIssue {
		return
	}

	// Refreshes preempt the next due command. A refresh constrains only
	// the following activate (tRFC), which the issue spacing already
	// covers, so it is safe at any point of the burst.
	if g.sinceRef >= g.refreshEvery {
		phase.Refresh()
		g.sinceRef = 0
		g.nextIssue = g.cycle + g.safeGap
		return
	}

	rank := int(g.burst) / g.geom.NumBanks() % g.geom.Ranks
	bank := int(g.burst) % g.geom.NumBanks()
	row := int(g.burst) % (1 << g.geom.RowBits)
	col := int(g.burst) % (1 << g.geom.ColBits)

	switch g.step {
	case stepActivate:
		phase.Activate(bank, row)
		g.lastActBank = bank
		g.lastActRow = row
		g.lastActRank = rank
		if g.violateEvery > 0 && (g.burst+1)%g.violateEvery == 0 {
			g.doubleAct = true
		}
	case stepWrite, stepWriteSecond:
		phase.Write(bank, col, g.maskedWrite)
	case stepRead:
		phase.Read(bank, col)
	case stepPrecharge:
		phase.Precharge(bank)
	}
	phase.Rank = rank

	if g.step == stepPrecharge {
		g.burst++
	}

	g.step = (g.step + 1) % numSteps
	g.nextIssue = g.cycle + g.safeGap
}

var _ TrafficGenerator = (*PatternGenerator)(nil)
