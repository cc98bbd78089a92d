// Package config holds the configuration surface named in the design
// Mirrors a similar AnalysisOptions/DefaultAnalysisOptions pattern: a
// single struct plus a constructor carrying the documented defaults.
package config

import "time"

// PreFilterWindows are the tolerance windows the similarity engine's
// pre-filter (4.D) uses before falling back to an exhaustive pass.
type PreFilterWindows struct {
	LUFSToleranceDB    float64
	CrestToleranceDB   float64
	BassPctTolerance   float64
	TempoToleranceBPM  float64
}

// Config is the complete set of recognised Auralis options.
type Config struct {
	ChunkDurationSec float64

	L1BudgetMB  int
	L2BudgetMB  int
	L3RetainMB  int

	PrebufferChunks  int
	PrebufferWorkers int

	TranscodeWorkers     int
	TranscodeBitrateKbps int

	ChunkRequestDeadline time.Duration

	PeakCeilingDBFS   float64
	TargetLUFSDefault float64

	PreFilter PreFilterWindows
}

// DefaultConfig returns the documented defaults from the design
func DefaultConfig() Config {
	return Config{
		ChunkDurationSec: 30,

		L1BudgetMB: 256,
		L2BudgetMB: 4096,
		L3RetainMB: 4096,

		PrebufferChunks:  3,
		PrebufferWorkers: 2,

		TranscodeWorkers:     2,
		TranscodeBitrateKbps: 128,

		ChunkRequestDeadline: 5 * time.Second,

		PeakCeilingDBFS:   -0.3,
		TargetLUFSDefault: -16,

		PreFilter: PreFilterWindows{
			LUFSToleranceDB:   3,
			CrestToleranceDB:  2,
			BassPctTolerance:  0.08,
			TempoToleranceBPM: 15,
		},
	}
}
