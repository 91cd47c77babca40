package server

// StartScanRequest is the payload for launching a scan against a target URL.
type StartScanRequest struct {
	TargetURL   string `json:"target_url" example:"https://example.com"`
	Tool        string `json:"tool" example:"zap"`
	MaxChildren int    `json:"max_children" example:"10"`
	ScanPolicy  string `json:"scan_policy" example:"Default Policy"`
}

// CancelScanResponse acknowledges a cancellation request. The scan reaches
// the cancelled state asynchronously.
type CancelScanResponse struct {
	Acknowledged bool `json:"acknowledged" example:"true"`
}

// EngineHealthResponse reports scan engine liveness.
type EngineHealthResponse struct {
	Engine    string `json:"engine" example:"zap"`
	Available bool   `json:"available" example:"true"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"scan not found"`
}
