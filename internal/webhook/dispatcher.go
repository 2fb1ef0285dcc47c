package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/webdash/storefront/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxResponseBody = 64 << 10

// Request describes one outbound webhook call. Method is POST (default) or GET.
type Request struct {
	URL     string
	Method  string
	Data    map[string]any
	Headers map[string]string
}

// Result classifies the outcome. Status is 0 when no HTTP response arrived,
// in which case Body holds the transport error message.
type Result struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Body    string `json:"body"`
}

type Dispatcher struct {
	client *http.Client
	log    *zap.Logger
}

// NewDispatcher builds a dispatcher whose client gives up after timeout.
func NewDispatcher(timeout time.Duration, log *zap.Logger) *Dispatcher {
	return NewDispatcherWithClient(&http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, log)
}

func NewDispatcherWithClient(client *http.Client, log *zap.Logger) *Dispatcher {
	return &Dispatcher{client: client, log: logger.OrNop(log)}
}

// Fire sends one request. It never returns an error: transport failures
// come back as Result{Success: false, Status: 0}.
func (d *Dispatcher) Fire(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Success: false, Status: 0, Body: fmt.Sprint(r)}
		}
	}()

	httpReq, err := d.newRequest(ctx, req)
	if err != nil {
		return Result{Success: false, Status: 0, Body: err.Error()}
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		d.log.Warn("webhook call failed", zap.String("url", req.URL), zap.Error(err))
		return Result{Success: false, Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		d.log.Debug("failed to read webhook response body", zap.Error(err))
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !success {
		d.log.Warn("webhook returned non-2xx",
			zap.String("url", req.URL),
			zap.Int("status", resp.StatusCode))
	}
	return Result{Success: success, Status: resp.StatusCode, Body: string(body)}
}

func (d *Dispatcher) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	switch method {
	case http.MethodGet:
	case http.MethodPost:
		data := req.Data
		if data == nil {
			data = map[string]any{}
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode webhook payload: %w", err)
		}
		body = bytes.NewReader(payload)
	default:
		return nil, fmt.Errorf("unsupported webhook method %q", req.Method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}
