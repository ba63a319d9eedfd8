package phy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dfisim/clocks"
	"github.com/sarchlab/dfisim/phy"
)

var _ = Describe("RateConverter", func() {
	Context("with ratio 1", func() {
		var (
			plan      *clocks.Plan
			converter *phy.RateConverter
			bare      *phy.SimPHY
		)

		BeforeEach(func() {
			plan = mustPlan(clocks.RatioConfig{WCKCKRatio: 2, ConverterRatio: 1})

			var err error
			converter, err = phy.Wrap(
				phy.SimPHYFactory, simConfig(plan), 1,
				phy.ForwardedAttrs, plan.ConverterMapping(), 0)
			Expect(err).ToNot(HaveOccurred())

			bare, err = phy.NewSimPHY(simConfig(plan))
			Expect(err).ToNot(HaveOccurred())
		})

		It("should be indistinguishable from the bare engine", func() {
			Expect(converter.Memtype()).To(Equal(bare.Memtype()))
			Expect(converter.NRanks()).To(Equal(bare.NRanks()))
			Expect(converter.DataBits()).To(Equal(bare.DataBits()))
			Expect(converter.AddressBits()).To(Equal(bare.AddressBits()))
			Expect(converter.BankBits()).To(Equal(bare.BankBits()))
			Expect(converter.NPhases()).To(Equal(bare.NPhases()))
			Expect(converter.SerLatency()).To(Equal(bare.SerLatency()))
			Expect(converter.DesLatency()).To(Equal(bare.DesLatency()))
		})

		It("should leave clock references unmapped", func() {
			spec, ok := converter.Clocks().ByName(clocks.RoleSys)
			Expect(ok).To(BeTrue())
			Expect(spec.Name).To(Equal(clocks.RoleSys))
			Expect(spec.Freq).To(Equal(plan.BaseFreq()))
		})

		It("should drive the same pad sequence as the bare engine", func() {
			converter.Bus().Phases[0].Activate(2, 7)
			bare.Bus().Phases[0].Activate(2, 7)

			for i := 0; i < 3; i++ {
				converter.Tick()
				bare.Tick()
				Expect(*converter.Pads()).To(Equal(*bare.Pads()))
			}
		})
	})

	Context("with ratio 2", func() {
		var (
			plan      *clocks.Plan
			converter *phy.RateConverter
		)

		BeforeEach(func() {
			plan = mustPlan(clocks.RatioConfig{WCKCKRatio: 2, ConverterRatio: 2})

			var err error
			converter, err = phy.Wrap(
				phy.SimPHYFactory, simConfig(plan), 2,
				phy.ForwardedAttrs, plan.ConverterMapping(), 0)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should report the conversion ratio", func() {
			Expect(converter.Ratio()).To(Equal(2))
		})

		It("should remap the base clock reference onto the faster domain", func() {
			spec, ok := converter.Clocks().ByName(clocks.RoleSys)
			Expect(ok).To(BeTrue())
			Expect(spec.Name).To(Equal("sys2x"))
			Expect(spec.Freq).To(Equal(plan.BaseFreq() * sim.Freq(2)))
		})

		It("should remap derived serialization domains", func() {
			spec, ok := converter.Clocks().ByName("sys2x")
			Expect(ok).To(BeTrue())
			Expect(spec.Name).To(Equal("sys4x"))

			spec, ok = converter.Clocks().ByName("sys4x")
			Expect(ok).To(BeTrue())
			Expect(spec.Name).To(Equal("sys8x"))
		})

		It("should keep latencies in the inner engine's own tap counts", func() {
			Expect(converter.SerLatency().Taps).To(Equal(1))
			Expect(converter.DesLatency().Taps).To(Equal(2))
		})
	})

	Context("reset alignment", func() {
		It("should hold the inner engine for the configured cycle count", func() {
			plan := mustPlan(clocks.RatioConfig{WCKCKRatio: 2, ConverterRatio: 1})

			converter, err := phy.Wrap(
				phy.SimPHYFactory, simConfig(plan), 1,
				phy.ForwardedAttrs, nil, 3)
			Expect(err).ToNot(HaveOccurred())

			converter.Bus().Phases[0].Activate(1, 4)

			// Three ticks are swallowed by the reset window, then the
			// single-tap serializer needs two more to surface the command.
			for i := 0; i < 4; i++ {
				converter.Tick()
				Expect(converter.Pads().CSn).To(BeTrue())
			}

			converter.Tick()
			Expect(converter.Pads().CSn).To(BeFalse())
		})

		It("should restart the window on reset", func() {
			plan := mustPlan(clocks.RatioConfig{WCKCKRatio: 2, ConverterRatio: 1})

			converter, err := phy.Wrap(
				phy.SimPHYFactory, simConfig(plan), 1,
				phy.ForwardedAttrs, nil, 2)
			Expect(err).ToNot(HaveOccurred())

			for i := 0; i < 4; i++ {
				converter.Tick()
			}
			converter.Reset()

			converter.Bus().Phases[0].Activate(1, 4)
			for i := 0; i < 3; i++ {
				converter.Tick()
				Expect(converter.Pads().CSn).To(BeTrue())
			}
		})
	})

	Context("configuration errors", func() {
		var plan *clocks.Plan

		BeforeEach(func() {
			plan = mustPlan(clocks.RatioConfig{WCKCKRatio: 2, ConverterRatio: 2})
		})

		It("should reject an unknown forwarded attribute", func() {
			_, err := phy.Wrap(
				phy.SimPHYFactory, simConfig(plan), 2,
				[]string{phy.AttrPads, "rdphase"}, plan.ConverterMapping(), 0)
			Expect(err).To(MatchError(ContainSubstring("rdphase")))
		})

		It("should reject a non-positive ratio", func() {
			_, err := phy.Wrap(
				phy.SimPHYFactory, simConfig(plan), 0,
				phy.ForwardedAttrs, plan.ConverterMapping(), 0)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a negative reset count", func() {
			_, err := phy.Wrap(
				phy.SimPHYFactory, simConfig(plan), 1,
				phy.ForwardedAttrs, plan.ConverterMapping(), -1)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a mapping onto a missing domain", func() {
			mapping := map[string]string{clocks.RoleSys: "sys32x"}

			_, err := phy.Wrap(
				phy.SimPHYFactory, simConfig(plan), 2,
				phy.ForwardedAttrs, mapping, 0)
			Expect(err).To(HaveOccurred())
		})
	})
})
