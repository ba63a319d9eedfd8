package check_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dfisim/check"
	"github.com/sarchlab/dfisim/device"
	"github.com/sarchlab/dfisim/dfi"
)

// testTable builds a cycle-only table so that at 1 GHz and one phase every
// bound equals its cycle count, keeping the scenarios below hand-checkable.
func testTable(family device.Family) *device.Table {
	tech := device.TechnologyTimings{
		TREFI: device.Cyc(device.TREFI, 100),
		TWTR:  device.Cyc(device.TWTR, 10),
		TCCD:  device.Cyc(device.TCCD, 4),
		TCCDM: device.Cyc(device.TCCDM, 8),
		TRRD:  device.Cyc(device.TRRD, 2),
		TZQCS: device.Cyc(device.TZQCS, 200),
	}
	grade := device.SpeedgradeTimings{
		TRP:  device.Cyc(device.TRP, 6),
		TRCD: device.Cyc(device.TRCD, 5),
		TWR:  device.Cyc(device.TWR, 8),
		TRFC: device.Cyc(device.TRFC, 20),
		TFAW: device.Cyc(device.TFAW, 16),
		TRAS: device.Cyc(device.TRAS, 12),
	}

	table, err := device.NewTable(family, tech, grade)
	Expect(err).ToNot(HaveOccurred())
	return table
}

var testGeometry = device.Geometry{BankBits: 2, RowBits: 4, ColBits: 4, Ranks: 2}

// driver issues commands at absolute phase slots, padding with idle cycles.
type driver struct {
	checker *check.Checker
	bus     *dfi.Bus
}

func newDriver(checker *check.Checker, nPhases int) *driver {
	return &driver{checker: checker, bus: dfi.NewBus(nPhases)}
}

// idleUntil runs idle cycles until the next cycle starts at the given slot.
func (d *driver) idleUntil(slot int64) {
	for d.checker.Cycle() < slot {
		d.bus.Nop()
		d.checker.CheckCycle(d.bus)
	}
	Expect(d.checker.Cycle()).To(Equal(slot))
}

// issueAt encodes one command on phase 0 of the cycle starting at slot.
func (d *driver) issueAt(slot int64, encode func(p *dfi.Phase)) {
	d.idleUntil(slot)
	d.bus.Nop()
	encode(&d.bus.Phases[0])
	d.checker.CheckCycle(d.bus)
}

var _ = Describe("Checker", func() {
	var (
		checker   *check.Checker
		collector *check.Collector
		d         *driver
	)

	makeChecker := func(family device.Family, options ...check.Option) {
		var err error
		checker, err = check.New(
			testTable(family), testGeometry, 1*sim.GHz, 1, options...)
		Expect(err).ToNot(HaveOccurred())

		collector = &check.Collector{}
		checker.AcceptHook(collector)
		d = newDriver(checker, 1)
	}

	BeforeEach(func() {
		makeChecker(device.FamilyLPDDR4)
	})

	Context("bound resolution", func() {
		It("should derive the row cycle time from tRAS and tRP", func() {
			rc, ok := checker.Bound(device.TRC)
			Expect(ok).To(BeTrue())
			Expect(rc).To(Equal(int64(18)))
		})

		It("should resolve the masked-write column delay separately", func() {
			ccdm, ok := checker.Bound(device.TCCDM)
			Expect(ok).To(BeTrue())
			Expect(ccdm).To(Equal(int64(8)))

			ccd, ok := checker.Bound(device.TCCD)
			Expect(ok).To(BeTrue())
			Expect(ccd).To(Equal(int64(4)))
		})

		It("should convert at the phase clock period", func() {
			Expect(checker.TCK()).To(BeNumerically("~", 1.0, 1e-12))
		})

		It("should scale tREFI down in fine refresh mode", func() {
			makeChecker(device.FamilyLPDDR4,
				check.WithRefreshMode(check.RefreshFine))

			refi, ok := checker.Bound(device.TREFI)
			Expect(ok).To(BeTrue())
			Expect(refi).To(Equal(int64(12)))
		})
	})

	Context("a well-spaced command stream", func() {
		It("should report nothing", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(5, func(p *dfi.Phase) { p.Read(0, 2) })
			d.issueAt(9, func(p *dfi.Phase) { p.Read(0, 3) })
			d.issueAt(19, func(p *dfi.Phase) { p.Write(0, 4, false) })
			d.issueAt(29, func(p *dfi.Phase) { p.Read(0, 5) })
			d.issueAt(40, func(p *dfi.Phase) { p.Precharge(0) })
			d.issueAt(50, func(p *dfi.Phase) { p.Activate(0, 1) })

			Expect(checker.Stats().Detected).To(Equal(uint64(0)))
			Expect(collector.Events).To(BeEmpty())
		})
	})

	Context("row timing", func() {
		It("should flag an activate inside the row cycle time", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(10, func(p *dfi.Phase) { p.Activate(0, 1) })

			Expect(collector.Events).To(HaveLen(1))
			v := collector.Events[0]
			Expect(v.Constraint).To(Equal(device.TRC))
			Expect(v.Scope).To(Equal(check.BankScope(0, 0)))
			Expect(v.Cycle).To(Equal(int64(10)))
			Expect(v.Observed).To(Equal(int64(10)))
			Expect(v.Required).To(Equal(int64(18)))
		})

		It("should flag a precharge before the minimum row open time", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Activate(1, 1) })
			d.issueAt(7, func(p *dfi.Phase) { p.Precharge(1) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TRAS: 1}))
		})

		It("should flag an activate before the precharge completes", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(20, func(p *dfi.Phase) { p.Precharge(0) })
			d.issueAt(23, func(p *dfi.Phase) { p.Activate(0, 1) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TRP: 1}))
		})

		It("should flag a column command before the row is open", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(3, func(p *dfi.Phase) { p.Read(0, 2) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TRCD: 1}))
		})

		It("should flag activates to different banks inside tRRD", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(1, func(p *dfi.Phase) { p.Activate(1, 1) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TRRD: 1}))
			Expect(collector.Events[0].Scope).To(Equal(check.RankScope(0)))
		})

		It("should keep rank timing state per rank", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(1, func(p *dfi.Phase) {
				p.Activate(1, 1)
				p.Rank = 1
			})

			Expect(checker.Stats().Detected).To(Equal(uint64(0)))
		})
	})

	Context("the four-activate window", func() {
		It("should flag a fourth activate inside tFAW", func() {
			for i, slot := range []int64{0, 2, 4, 6} {
				bank := i
				d.issueAt(slot, func(p *dfi.Phase) { p.Activate(bank, 1) })
			}

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TFAW: 1}))
			v := collector.Events[0]
			Expect(v.Scope).To(Equal(check.RankScope(0)))
			Expect(v.Observed).To(Equal(int64(6)))
			Expect(v.Required).To(Equal(int64(16)))
		})

		It("should accept four activates spanning at least tFAW", func() {
			for i, slot := range []int64{0, 6, 12, 18} {
				bank := i
				d.issueAt(slot, func(p *dfi.Phase) { p.Activate(bank, 1) })
			}

			Expect(checker.Stats().Detected).To(Equal(uint64(0)))
		})
	})

	Context("write timing", func() {
		It("should flag a precharge inside the write recovery time", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(5, func(p *dfi.Phase) { p.Write(0, 2, false) })
			d.issueAt(12, func(p *dfi.Phase) { p.Precharge(0) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TWR: 1}))
		})

		It("should flag a read too soon after a write", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Write(0, 2, false) })
			d.issueAt(6, func(p *dfi.Phase) { p.Read(0, 3) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TWTR: 1}))
			Expect(collector.Events[0].Observed).To(Equal(int64(6)))
		})

		It("should flag back-to-back column commands inside tCCD", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Read(0, 2) })
			d.issueAt(2, func(p *dfi.Phase) { p.Read(1, 3) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TCCD: 1}))
		})

		It("should hold masked writes to the longer column delay", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Write(0, 2, false) })
			d.issueAt(5, func(p *dfi.Phase) { p.Write(0, 3, true) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TCCDM: 1}))
			Expect(collector.Events[0].Observed).To(Equal(int64(5)))
			Expect(collector.Events[0].Required).To(Equal(int64(8)))
		})

		It("should accept a plain write at the plain column delay", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Write(0, 2, false) })
			d.issueAt(5, func(p *dfi.Phase) { p.Write(0, 3, false) })

			Expect(checker.Stats().Detected).To(Equal(uint64(0)))
		})
	})

	Context("refresh intervals", func() {
		It("should flag a refresh arriving later than tREFI", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Refresh() })
			d.issueAt(150, func(p *dfi.Phase) { p.Refresh() })
			d.issueAt(200, func(p *dfi.Phase) { p.Refresh() })

			Expect(collector.Events).To(HaveLen(1))
			v := collector.Events[0]
			Expect(v.Constraint).To(Equal(device.TREFI))
			Expect(v.Observed).To(Equal(int64(150)))
			Expect(v.Required).To(Equal(int64(100)))
		})

		It("should flag an activate inside the refresh cycle time", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.Refresh() })
			d.issueAt(10, func(p *dfi.Phase) { p.Activate(0, 1) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TRFC: 1}))
		})
	})

	Context("ZQ calibration", func() {
		It("should flag a late calibration on families that calibrate", func() {
			d.issueAt(0, func(p *dfi.Phase) { p.ZQCalibrate() })
			d.issueAt(250, func(p *dfi.Phase) { p.ZQCalibrate() })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TZQCS: 1}))
		})

		It("should ignore calibration commands on LPDDR5", func() {
			makeChecker(device.FamilyLPDDR5)

			_, ok := checker.Bound(device.TZQCS)
			Expect(ok).To(BeFalse())

			d.issueAt(0, func(p *dfi.Phase) { p.ZQCalibrate() })
			d.issueAt(250, func(p *dfi.Phase) { p.ZQCalibrate() })

			Expect(checker.Stats().Detected).To(Equal(uint64(0)))
		})
	})

	Context("the reporting gate", func() {
		It("should count gated violations without emitting them", func() {
			makeChecker(device.FamilyLPDDR4,
				check.WithReportingEnabled(false))

			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(1, func(p *dfi.Phase) { p.Activate(0, 1) })

			Expect(checker.Stats().Detected).To(Equal(uint64(1)))
			Expect(checker.Stats().Reported).To(Equal(uint64(0)))
			Expect(collector.Events).To(BeEmpty())
		})

		It("should apply a toggle from the next cycle, never retroactively", func() {
			makeChecker(device.FamilyLPDDR4,
				check.WithReportingEnabled(false))

			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(1, func(p *dfi.Phase) { p.Activate(0, 1) })
			Expect(collector.Events).To(BeEmpty())

			checker.SetReportingEnabled(true)

			d.issueAt(30, func(p *dfi.Phase) { p.Activate(1, 1) })
			d.issueAt(31, func(p *dfi.Phase) { p.Activate(1, 1) })

			Expect(checker.Stats().Detected).To(Equal(uint64(2)))
			Expect(checker.Stats().Reported).To(Equal(uint64(1)))
			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TRC: 1}))
		})
	})

	Context("multi-phase cycles", func() {
		BeforeEach(func() {
			var err error
			checker, err = check.New(
				testTable(device.FamilyLPDDR4), testGeometry, 1*sim.GHz, 2)
			Expect(err).ToNot(HaveOccurred())

			collector = &check.Collector{}
			checker.AcceptHook(collector)
			d = newDriver(checker, 2)
		})

		It("should evaluate phases against the pre-cycle snapshot", func() {
			d.bus.Nop()
			d.bus.Phases[0].Write(0, 2, false)
			d.bus.Phases[1].Read(0, 3)
			checker.CheckCycle(d.bus)

			Expect(checker.Stats().Detected).To(Equal(uint64(0)),
				"a same-cycle read must not see the same-cycle write")
		})

		It("should count slot distances across cycle boundaries", func() {
			d.bus.Nop()
			d.bus.Phases[0].Write(0, 2, false)
			d.bus.Phases[1].Read(0, 3)
			checker.CheckCycle(d.bus)

			d.issueAt(6, func(p *dfi.Phase) { p.Read(0, 4) })

			Expect(collector.CountByConstraint()).To(
				Equal(map[string]int{device.TWTR: 1}))
			Expect(collector.Events[0].Observed).To(Equal(int64(6)))
		})

		It("should reject a bus with the wrong phase count", func() {
			wrong := dfi.NewBus(1)
			Expect(func() { checker.CheckCycle(wrong) }).To(Panic())
		})
	})

	Context("misuse", func() {
		It("should panic on a command outside the geometry", func() {
			d.bus.Nop()
			d.bus.Phases[0].Activate(testGeometry.NumBanks(), 1)

			Expect(func() { checker.CheckCycle(d.bus) }).To(Panic())
		})

		It("should reject construction without a table", func() {
			_, err := check.New(nil, testGeometry, 1*sim.GHz, 1)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a non-positive phase count", func() {
			_, err := check.New(
				testTable(device.FamilyLPDDR4), testGeometry, 1*sim.GHz, 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("reset", func() {
		It("should forget all prior commands but keep the gate", func() {
			checker.SetReportingEnabled(false)

			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			d.issueAt(1, func(p *dfi.Phase) { p.Activate(0, 1) })
			Expect(checker.Stats().Detected).To(Equal(uint64(1)))

			checker.Reset()
			d = newDriver(checker, 1)

			Expect(checker.Cycle()).To(Equal(int64(0)))
			Expect(checker.Stats()).To(Equal(check.Statistics{}))
			Expect(checker.ReportingEnabled()).To(BeFalse())

			d.issueAt(0, func(p *dfi.Phase) { p.Activate(0, 1) })
			Expect(checker.Stats().Detected).To(Equal(uint64(0)))
		})
	})
})
