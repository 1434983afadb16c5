package observability

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// Transport tags every outbound request with a request id and logs its
// outcome.
type Transport struct {
	base    http.RoundTripper
	logger  *Logger
	metrics *Metrics
}

func NewTransport(base http.RoundTripper, logger *Logger, metrics *Metrics) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, logger: logger, metrics: metrics}
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	req := r
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		req = r.Clone(r.Context())
		req.Header.Set(RequestIDHeader, requestID)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		t.metrics.ObserveRequest(req.Method, 0, elapsed)
		t.logger.Warn("http_request_failed", map[string]any{
			"method":      req.Method,
			"path":        req.URL.Path,
			"request_id":  requestID,
			"duration_ms": elapsed.Milliseconds(),
			"error":       err.Error(),
		})
		return nil, err
	}

	t.metrics.ObserveRequest(req.Method, resp.StatusCode, elapsed)
	t.logger.Info("http_request", map[string]any{
		"method":      req.Method,
		"path":        req.URL.Path,
		"status":      resp.StatusCode,
		"request_id":  requestID,
		"duration_ms": elapsed.Milliseconds(),
	})
	return resp, nil
}
