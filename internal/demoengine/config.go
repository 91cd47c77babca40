package demoengine

import "time"

// Config holds configuration for the demo scan engine.
type Config struct {
	// Port is the port on which the demo engine listens.
	Port int

	// APIKey, when non-empty, must be presented as the apikey query
	// parameter on every call.
	APIKey string

	// SpiderDuration is how long a simulated crawl phase takes.
	SpiderDuration time.Duration

	// ActiveDuration is how long a simulated attack phase takes.
	ActiveDuration time.Duration

	// MaxPages bounds how many pages the crawl visits for passive checks.
	MaxPages int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		SpiderDuration: 5 * time.Second,
		ActiveDuration: 15 * time.Second,
		MaxPages:       25,
	}
}
