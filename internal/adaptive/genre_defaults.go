package adaptive

import "github.com/farcloser/auralis/internal/types"

// genreDefault is one row of the fixed genre-default table referenced by
// the design step 1. BandTargetPct gives the expected share of energy
// in each of the seven frequency blocks (sub-bass..air, same order as
// types.Fingerprint's band fields) for "well mastered" material of that
// genre; it is the reference the per-band EQ nudge compares against.
type genreDefault struct {
	TargetLUFS         float64
	CompressionRatio   float64
	LimiterThresholdDB float64
	BandTargetPct      [7]float64
}

// genreDefaults is a fixed design table, not a tunable; every genre maps
// to exactly one row and "unknown" always resolves to the balanced row.
var genreDefaults = map[types.Genre]genreDefault{
	types.GenreRock: {
		TargetLUFS: -14, CompressionRatio: 3.0, LimiterThresholdDB: -0.3,
		BandTargetPct: [7]float64{0.05, 0.18, 0.16, 0.22, 0.17, 0.13, 0.09},
	},
	types.GenrePop: {
		TargetLUFS: -13, CompressionRatio: 3.5, LimiterThresholdDB: -0.2,
		BandTargetPct: [7]float64{0.06, 0.17, 0.15, 0.22, 0.18, 0.14, 0.08},
	},
	types.GenreProgRock: {
		TargetLUFS: -16, CompressionRatio: 2.0, LimiterThresholdDB: -0.5,
		BandTargetPct: [7]float64{0.05, 0.16, 0.17, 0.21, 0.17, 0.14, 0.10},
	},
	types.GenreMetal: {
		TargetLUFS: -10, CompressionRatio: 4.5, LimiterThresholdDB: -0.1,
		BandTargetPct: [7]float64{0.06, 0.20, 0.17, 0.20, 0.17, 0.12, 0.08},
	},
	types.GenreElectronic: {
		TargetLUFS: -11, CompressionRatio: 3.5, LimiterThresholdDB: -0.2,
		BandTargetPct: [7]float64{0.10, 0.20, 0.14, 0.18, 0.16, 0.13, 0.09},
	},
	types.GenreJazz: {
		TargetLUFS: -18, CompressionRatio: 1.8, LimiterThresholdDB: -0.5,
		BandTargetPct: [7]float64{0.04, 0.14, 0.17, 0.22, 0.18, 0.15, 0.10},
	},
	types.GenreClassical: {
		TargetLUFS: -20, CompressionRatio: 1.3, LimiterThresholdDB: -0.8,
		BandTargetPct: [7]float64{0.03, 0.12, 0.16, 0.22, 0.19, 0.16, 0.12},
	},
	types.GenreUnknown: {
		TargetLUFS: -16, CompressionRatio: 2.5, LimiterThresholdDB: -0.3,
		BandTargetPct: [7]float64{0.05, 0.16, 0.16, 0.21, 0.17, 0.14, 0.11},
	},
}

func defaultsFor(genre types.Genre) genreDefault {
	if d, ok := genreDefaults[genre]; ok {
		return d
	}

	return genreDefaults[types.GenreUnknown]
}
