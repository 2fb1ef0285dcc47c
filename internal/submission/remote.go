package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var ErrRemoteRejected = errors.New("remote submission api reported failure")

// PublicSubmission is the body of a public (site slug) submission.
type PublicSubmission struct {
	FormComponentID string         `json:"formComponentId"`
	FormLabel       string         `json:"formLabel"`
	PageTitle       string         `json:"pageTitle"`
	Data            map[string]any `json:"data"`
	Source          string         `json:"source,omitempty"`
}

// RemoteAPI is the backend submission API.
type RemoteAPI interface {
	SubmitPublic(ctx context.Context, siteSlug string, sub PublicSubmission) error
	List(ctx context.Context, siteID string) ([]domain.FormSubmission, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context, siteID, formID string) error
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type RemoteConfig struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32        // consecutive failures that open the breaker
	BreakerTimeout  time.Duration // how long the breaker stays open
}

// RemoteClient talks to the submission API through a circuit breaker so a
// dead backend fails fast into the local ledger.
type RemoteClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*envelope]
	log     *zap.Logger
}

func NewRemoteClient(cfg RemoteConfig, log *zap.Logger) *RemoteClient {
	return NewRemoteClientWithHTTP(cfg, &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, log)
}

func NewRemoteClientWithHTTP(cfg RemoteConfig, client *http.Client, log *zap.Logger) *RemoteClient {
	log = logger.OrNop(log)
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	breaker := gobreaker.NewCircuitBreaker[*envelope](gobreaker.Settings{
		Name:    "submission-api",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &RemoteClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		breaker: breaker,
		log:     log,
	}
}

func (c *RemoteClient) SubmitPublic(ctx context.Context, siteSlug string, sub PublicSubmission) error {
	if siteSlug == "" {
		return errors.New("site slug is required")
	}
	_, err := c.call(ctx, http.MethodPost, "/public/sites/"+url.PathEscape(siteSlug)+"/submissions", sub)
	return err
}

func (c *RemoteClient) List(ctx context.Context, siteID string) ([]domain.FormSubmission, error) {
	env, err := c.call(ctx, http.MethodGet, "/sites/"+url.PathEscape(siteID)+"/submissions", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Submissions []domain.FormSubmission `json:"submissions"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode submissions: %w", err)
		}
	}
	if payload.Submissions == nil {
		payload.Submissions = []domain.FormSubmission{}
	}
	return payload.Submissions, nil
}

func (c *RemoteClient) Delete(ctx context.Context, id string) error {
	_, err := c.call(ctx, http.MethodDelete, "/submissions/"+url.PathEscape(id), nil)
	return err
}

func (c *RemoteClient) Clear(ctx context.Context, siteID, formID string) error {
	path := "/sites/" + url.PathEscape(siteID) + "/submissions"
	if formID != "" {
		path += "?formId=" + url.QueryEscape(formID)
	}
	_, err := c.call(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *RemoteClient) call(ctx context.Context, method, path string, body any) (*envelope, error) {
	return c.breaker.Execute(func() (*envelope, error) {
		return c.do(ctx, method, path, body)
	})
}

func (c *RemoteClient) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submission api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return nil, fmt.Errorf("submission api %s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return nil, fmt.Errorf("%w: status %d %s", ErrRemoteRejected, resp.StatusCode, env.Error)
	}
	return &env, nil
}
