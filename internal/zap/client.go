// Package zap is a thin client for the ZAP JSON API. Each call is stateless;
// retry policy belongs to the orchestrator, not here.
package zap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/scan"
)

var (
	// ErrEngineRejected means the engine answered but refused to start a
	// phase (no scan handle in the response).
	ErrEngineRejected = errors.New("engine rejected scan request")

	// ErrEngineUnreachable wraps a transport failure on a status or alert
	// query. The caller decides whether to retry.
	ErrEngineUnreachable = errors.New("engine unreachable")
)

// Client implements interfaces.Engine against a ZAP instance.
type Client struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

// NewClient builds a Client from cfg. httpClient may be nil, in which case a
// default client with cfg.Timeout is used.
func NewClient(cfg Config, logger logging.Logger, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With(logging.Field{Key: "component", Value: "zap"}),
	}
}

// get performs one API request and decodes the flat JSON object ZAP returns.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (map[string]json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	if c.cfg.APIKey != "" {
		params.Set("apikey", c.cfg.APIKey)
	}

	u := c.cfg.BaseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: engine returned %d for %s", ErrEngineUnreachable, resp.StatusCode, endpoint)
	}

	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON from %s: %v", ErrEngineUnreachable, endpoint, err)
	}
	return out, nil
}

// stringField decodes a field that ZAP may serialize as a string or number.
func stringField(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Probe reports whether ZAP is up. Transport failures yield false, never an
// error.
func (c *Client) Probe(ctx context.Context) bool {
	out, err := c.get(ctx, "/JSON/core/view/version/", nil)
	if err != nil {
		c.logger.Debug("engine probe failed", logging.Field{Key: "error", Value: err.Error()})
		return false
	}
	return stringField(out, "version") != ""
}

// StartSpider starts the crawl phase and returns the spider scan handle.
func (c *Client) StartSpider(ctx context.Context, target string, maxChildren int) (string, error) {
	params := url.Values{}
	params.Set("url", target)
	params.Set("maxChildren", strconv.Itoa(maxChildren))
	params.Set("recurse", "true")

	out, err := c.get(ctx, "/JSON/spider/action/scan/", params)
	if err != nil {
		return "", err
	}
	handle := stringField(out, "scan")
	if handle == "" {
		return "", fmt.Errorf("%w: no spider handle for %s", ErrEngineRejected, target)
	}
	c.logger.Info("spider started",
		logging.Field{Key: "target", Value: target},
		logging.Field{Key: "handle", Value: handle})
	return handle, nil
}

// SpiderStatus returns crawl progress in [0,100].
func (c *Client) SpiderStatus(ctx context.Context, handle string) (int, error) {
	return c.status(ctx, "/JSON/spider/view/status/", handle)
}

// StartActiveScan starts the attack phase and returns the ascan handle.
func (c *Client) StartActiveScan(ctx context.Context, target string, policy string) (string, error) {
	params := url.Values{}
	params.Set("url", target)
	params.Set("scanPolicyName", policy)
	params.Set("recurse", "true")

	out, err := c.get(ctx, "/JSON/ascan/action/scan/", params)
	if err != nil {
		return "", err
	}
	handle := stringField(out, "scan")
	if handle == "" {
		return "", fmt.Errorf("%w: no active scan handle for %s", ErrEngineRejected, target)
	}
	c.logger.Info("active scan started",
		logging.Field{Key: "target", Value: target},
		logging.Field{Key: "handle", Value: handle})
	return handle, nil
}

// ActiveScanStatus returns attack progress in [0,100].
func (c *Client) ActiveScanStatus(ctx context.Context, handle string) (int, error) {
	return c.status(ctx, "/JSON/ascan/view/status/", handle)
}

func (c *Client) status(ctx context.Context, endpoint, handle string) (int, error) {
	params := url.Values{}
	params.Set("scanId", handle)

	out, err := c.get(ctx, endpoint, params)
	if err != nil {
		return 0, err
	}
	raw := stringField(out, "status")
	if raw == "" {
		// The engine omits the field for a scan it has no progress on yet.
		return 0, nil
	}
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed status %q from %s", ErrEngineUnreachable, raw, endpoint)
	}
	return clampPercent(p), nil
}

// Alerts returns the findings ZAP has accumulated for baseURL so far.
func (c *Client) Alerts(ctx context.Context, baseURL string) ([]scan.Alert, error) {
	params := url.Values{}
	if baseURL != "" {
		params.Set("baseurl", baseURL)
	}

	out, err := c.get(ctx, "/JSON/core/view/alerts/", params)
	if err != nil {
		return nil, err
	}
	raw, ok := out["alerts"]
	if !ok {
		return nil, nil
	}
	var alerts []scan.Alert
	if err := json.Unmarshal(raw, &alerts); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	return alerts, nil
}

// StopSpider aborts a running crawl. Best-effort; callers ignore failures.
func (c *Client) StopSpider(ctx context.Context, handle string) error {
	params := url.Values{}
	params.Set("scanId", handle)
	_, err := c.get(ctx, "/JSON/spider/action/stop/", params)
	return err
}

// StopActiveScan aborts a running attack phase. Best-effort as above.
func (c *Client) StopActiveScan(ctx context.Context, handle string) error {
	params := url.Values{}
	params.Set("scanId", handle)
	_, err := c.get(ctx, "/JSON/ascan/action/stop/", params)
	return err
}
