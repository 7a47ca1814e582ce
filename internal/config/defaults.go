package config

// DefaultConfig returns the built-in configuration. The stage parameters and
// pool capacity match the values the pipeline has always run with.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		Root:           ".",
		PoolCapacity:   128,
		PollIntervalMS: 50,
		IdleSleepMS:    200,
		Screen: StageConfig{
			Fmax:     0.10,
			MaxSteps: 30,
		},
		Refine: StageConfig{
			Fmax:     0.01,
			MaxSteps: 400,
		},
		Engine: EngineConfig{
			Command: "relaxer",
			Model:   "GRACE-2L-OMAT",
			Device:  "cpu",
		},
	}
}
