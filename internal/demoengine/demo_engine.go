// Package demoengine is a stand-in scan engine speaking the same JSON wire
// protocol as ZAP. It crawls the target for real and raises findings from
// passive response checks, so the full scan pipeline can be demonstrated
// without a ZAP install. The attack phase is simulated on a timer.
package demoengine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/scan"
)

// DemoEngine is a simple HTTP server exposing the engine API.
type DemoEngine struct {
	cfg    Config
	logger logging.Logger
	client *http.Client

	mu     sync.Mutex
	scans  map[string]*phase
	alerts map[string][]scan.Alert // keyed by target URL
	nextID int
}

// phase tracks one started spider or active scan.
type phase struct {
	kind    string // "spider" or "ascan"
	target  string
	started time.Time
	length  time.Duration
	stopped bool
	done    bool
}

// NewDemoEngine creates a new demo engine instance.
func NewDemoEngine(cfg Config, logger logging.Logger) *DemoEngine {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}
	if cfg.SpiderDuration <= 0 {
		cfg.SpiderDuration = DefaultConfig().SpiderDuration
	}
	if cfg.ActiveDuration <= 0 {
		cfg.ActiveDuration = DefaultConfig().ActiveDuration
	}
	return &DemoEngine{
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "demoengine"}),
		client: &http.Client{Timeout: 10 * time.Second},
		scans:  make(map[string]*phase),
		alerts: make(map[string][]scan.Alert),
	}
}

// Handler returns the engine API as an http.Handler.
func (e *DemoEngine) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/JSON/core/view/version/", e.auth(e.versionHandler))
	mux.HandleFunc("/JSON/core/view/alerts/", e.auth(e.alertsHandler))

	mux.HandleFunc("/JSON/spider/action/scan/", e.auth(e.startHandler("spider")))
	mux.HandleFunc("/JSON/spider/view/status/", e.auth(e.statusHandler("spider")))
	mux.HandleFunc("/JSON/spider/action/stop/", e.auth(e.stopHandler("spider")))

	mux.HandleFunc("/JSON/ascan/action/scan/", e.auth(e.startHandler("ascan")))
	mux.HandleFunc("/JSON/ascan/view/status/", e.auth(e.statusHandler("ascan")))
	mux.HandleFunc("/JSON/ascan/action/stop/", e.auth(e.stopHandler("ascan")))

	return mux
}

// Start starts the demo engine server.
func (e *DemoEngine) Start() error {
	addr := fmt.Sprintf(":%d", e.cfg.Port)
	fmt.Printf("Demo engine starting on http://localhost%s\n", addr)
	return http.ListenAndServe(addr, e.Handler())
}

// auth enforces the apikey query parameter when one is configured.
func (e *DemoEngine) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if e.cfg.APIKey != "" && r.URL.Query().Get("apikey") != e.cfg.APIKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (e *DemoEngine) versionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": "demo-2.14.0"})
}

// startHandler launches a phase for the url query parameter and returns its
// numeric handle in the "scan" field, matching the engine wire format.
func (e *DemoEngine) startHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			http.Error(w, "Missing url parameter", http.StatusBadRequest)
			return
		}

		length := e.cfg.SpiderDuration
		if kind == "ascan" {
			length = e.cfg.ActiveDuration
		}

		e.mu.Lock()
		e.nextID++
		handle := strconv.Itoa(e.nextID)
		p := &phase{kind: kind, target: target, started: time.Now(), length: length}
		e.scans[handle] = p
		e.mu.Unlock()

		if kind == "spider" {
			go e.crawl(p, handle, target)
		}

		e.logger.Info("phase started",
			logging.Field{Key: "kind", Value: kind},
			logging.Field{Key: "handle", Value: handle},
			logging.Field{Key: "target", Value: target})
		writeJSON(w, map[string]string{"scan": handle})
	}
}

// statusHandler reports phase progress as a stringified percentage, the way
// the real engine does.
func (e *DemoEngine) statusHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := r.URL.Query().Get("scanId")

		e.mu.Lock()
		p, ok := e.scans[handle]
		e.mu.Unlock()
		if !ok || p.kind != kind {
			http.Error(w, "Unknown scan", http.StatusNotFound)
			return
		}

		writeJSON(w, map[string]string{"status": strconv.Itoa(e.progress(p))})
	}
}

func (e *DemoEngine) stopHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := r.URL.Query().Get("scanId")

		e.mu.Lock()
		if p, ok := e.scans[handle]; ok && p.kind == kind {
			p.stopped = true
		}
		e.mu.Unlock()

		writeJSON(w, map[string]string{"Result": "OK"})
	}
}

// progress derives a percentage from elapsed time. A crawl holds at 99 until
// its page walk finishes so alerts are always in place by the time the phase
// reads 100.
func (e *DemoEngine) progress(p *phase) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.stopped {
		return 100
	}

	pct := int(time.Since(p.started) * 100 / p.length)
	if pct > 100 {
		pct = 100
	}
	if p.kind == "spider" && !p.done && pct >= 100 {
		pct = 99
	}
	return pct
}

func (e *DemoEngine) alertsHandler(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("baseurl")

	e.mu.Lock()
	var out []scan.Alert
	if base == "" {
		for _, as := range e.alerts {
			out = append(out, as...)
		}
	} else {
		out = append(out, e.alerts[base]...)
	}
	e.mu.Unlock()

	if out == nil {
		out = []scan.Alert{}
	}
	writeJSON(w, map[string]any{"alerts": out})
}
