package zap

import "time"

// Config holds everything needed to reach one ZAP instance. Passed explicitly
// into NewClient; there is no package-level engine state.
type Config struct {
	// BaseURL is the root of the ZAP JSON API, e.g. "http://localhost:8080".
	// A trailing slash is tolerated.
	BaseURL string

	// APIKey is sent as the apikey query parameter when non-empty.
	APIKey string

	// Timeout bounds each individual API request.
	Timeout time.Duration
}

// DefaultConfig returns a Config pointing at a local ZAP on its default port.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 30 * time.Second,
	}
}
