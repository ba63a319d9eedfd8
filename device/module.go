package device

// Module bundles everything the simulation needs to know about one DRAM part:
// family, geometry, and the timing table for the selected speed grade.
type Module struct {
	Name     string
	Family   Family
	Geometry Geometry
	Timings  *Table
}

// LPDDR5x16 returns the description of an 8Gb x16 LPDDR5 part
// (32Mb x 16DQ x 16 banks, 16B mode), the default device for simulation.
func LPDDR5x16() (*Module, error) {
	tech := TechnologyTimings{
		// 32ms retention across 8192 refresh commands.
		TREFI: NS(TREFI, 32e6/8192),
		TWTR:  CycNS(TWTR, 4, 12),
		TCCD:  Cyc(TCCD, 8),
		TCCDM: Cyc(TCCDM, 32),
		TRRD:  CycNS(TRRD, 2, 5),
		TZQCS: CycNS(TZQCS, 128, 80),
	}
	grade := SpeedgradeTimings{
		TRP:  CycNS(TRP, 2, 21),
		TRCD: CycNS(TRCD, 2, 18),
		TWR:  CycNS(TWR, 3, 34),
		TRFC: NS(TRFC, 210),
		TFAW: NS(TFAW, 20),
		TRAS: CycNS(TRAS, 3, 42),
	}

	table, err := NewTable(FamilyLPDDR5, tech, grade)
	if err != nil {
		return nil, err
	}

	return &Module{
		Name:   "LPDDR5-8Gb-x16",
		Family: FamilyLPDDR5,
		Geometry: Geometry{
			BankBits: 4,
			RowBits:  15,
			ColBits:  10,
			Ranks:    1,
		},
		Timings: table,
	}, nil
}
