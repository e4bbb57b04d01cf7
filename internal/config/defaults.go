package config

// DefaultOptions returns the built-in defaults described in spec §4.6/§6.
// Callers get a fresh copy each time; mutating the result does not affect
// subsequent calls.
func DefaultOptions() Options {
	return Options{
		Sources:           "both",
		Parallelism:       0, // resolved to logical CPU count by the scheduler
		FileConcurrency:   0, // resolved to min(4, file count) by the scheduler
		ReadBufferBytes:   1 << 20,
		WriteBufferBytes:  256 << 10,
		MemoryBudgetBytes: 0, // resolved by the throttle to 75% of an assumed 8 GiB
		WorkDir:           ".etl-work",
		Progress:          false,
		ProgressLabel:     "",
		AllowPseudoUsers:  false,
		ExcludeCommonBots: false,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}
