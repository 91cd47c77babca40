package interfaces

import (
	"context"

	"github.com/Sharonmee/OpenEye/internal/scan"
)

// Engine is the cross-package contract for the external scan engine.
// The orchestrator drives phases through it; implementations live in
// internal/zap (real engine) and internal/testutil (stubs).
// Implementations must be safe for concurrent use.
type Engine interface {
	// Probe reports whether the engine is reachable. It must swallow
	// transport failures and return false rather than an error.
	Probe(ctx context.Context) bool

	// StartSpider begins the crawl phase for target and returns an opaque
	// handle for status polling.
	StartSpider(ctx context.Context, target string, maxChildren int) (string, error)

	// SpiderStatus returns crawl progress in [0,100] for a handle.
	SpiderStatus(ctx context.Context, handle string) (int, error)

	// StartActiveScan begins the attack phase for target under the named
	// scan policy and returns an opaque handle.
	StartActiveScan(ctx context.Context, target string, policy string) (string, error)

	// ActiveScanStatus returns attack progress in [0,100] for a handle.
	ActiveScanStatus(ctx context.Context, handle string) (int, error)

	// Alerts returns whatever findings the engine has accumulated for
	// baseURL at call time; only treated as final after phase completion.
	Alerts(ctx context.Context, baseURL string) ([]scan.Alert, error)

	// StopSpider and StopActiveScan abort a running phase remotely.
	// Best-effort: callers log and ignore failures.
	StopSpider(ctx context.Context, handle string) error
	StopActiveScan(ctx context.Context, handle string) error
}
