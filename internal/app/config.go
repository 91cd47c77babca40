package app

import "time"

// Config contains the runtime knobs for scan orchestration. Poll cadence
// follows the engine's expectations: the crawl phase is short and polled
// tightly, the attack phase is long and polled at a relaxed interval.
type Config struct {
	// SpiderPollInterval is the wait between crawl-phase status polls.
	SpiderPollInterval time.Duration

	// ActivePollInterval is the wait between attack-phase status polls.
	ActivePollInterval time.Duration

	// SpiderMaxWait bounds the total crawl-phase wait before the job fails.
	SpiderMaxWait time.Duration

	// ActiveMaxWait bounds the total attack-phase wait before the job fails.
	ActiveMaxWait time.Duration

	// MaxPollFailures is how many consecutive status-poll transport errors
	// are tolerated before the phase is abandoned.
	MaxPollFailures int

	// MaxConcurrentScans bounds simultaneously running orchestrator runs.
	// Submissions beyond the bound stay pending until a slot frees.
	MaxConcurrentScans int64
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SpiderPollInterval: 2 * time.Second,
		ActivePollInterval: 5 * time.Second,
		SpiderMaxWait:      10 * time.Minute,
		ActiveMaxWait:      30 * time.Minute,
		MaxPollFailures:    3,
		MaxConcurrentScans: 4,
	}
}
