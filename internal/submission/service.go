package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/logger"
	"github.com/webdash/storefront/internal/webhook"
	"go.uber.org/zap"
)

// WebhookFirer sends one outbound webhook call.
type WebhookFirer interface {
	Fire(ctx context.Context, req webhook.Request) webhook.Result
}

type WebhookTarget struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type Options struct {
	SiteID    string
	SiteSlug  string
	FormID    string
	FormLabel string
	PageTitle string
	Source    string
	Data      map[string]any
	Webhook   *WebhookTarget
	// SkipCollection disables history persistence for this submission.
	SkipCollection bool
}

type Result struct {
	Success         bool                 `json:"success"`
	WebhookStatus   domain.WebhookStatus `json:"webhookStatus,omitempty"`
	WebhookResponse string               `json:"webhookResponse,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// RetryPolicy applies to every webhook call made by the service.
// Attempts counts retries after the first call. Attempts: 0 makes a single
// webhook call per submission.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

type Service struct {
	webhooks WebhookFirer
	remote   RemoteAPI
	ledger   Ledger
	retry    RetryPolicy
	log      *zap.Logger
	now      func() time.Time
}

// NewService wires the orchestrator. remote may be nil, in which case every
// collected submission goes to the ledger.
func NewService(webhooks WebhookFirer, remote RemoteAPI, ledger Ledger, retry RetryPolicy, log *zap.Logger) *Service {
	if retry.Attempts < 0 {
		retry.Attempts = 0
	}
	return &Service{
		webhooks: webhooks,
		remote:   remote,
		ledger:   ledger,
		retry:    retry,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
}

// Submit fires the webhook (if any) and records the submission. Overall
// success depends only on the webhook outcome; persistence failures are logged.
func (s *Service) Submit(ctx context.Context, opts Options) Result {
	var res Result

	if opts.Webhook != nil && opts.Webhook.URL != "" {
		ok, body := s.fireWithRetry(ctx, opts)
		res.WebhookResponse = body
		if ok {
			res.WebhookStatus = domain.WebhookStatusSuccess
		} else {
			res.WebhookStatus = domain.WebhookStatusFailed
			res.Error = "webhook delivery failed"
		}
	}

	if !opts.SkipCollection {
		s.persist(ctx, opts, res)
	}

	res.Success = res.WebhookStatus != domain.WebhookStatusFailed
	return res
}

func (s *Service) fireWithRetry(ctx context.Context, opts Options) (bool, string) {
	req := webhook.Request{
		URL:     opts.Webhook.URL,
		Method:  opts.Webhook.Method,
		Data:    opts.Data,
		Headers: opts.Webhook.Headers,
	}

	var body string
	for attempt := 0; attempt <= s.retry.Attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(s.retry.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, body
			case <-timer.C:
			}
		}

		ok, b := s.fireOnce(ctx, req)
		if ok {
			return true, b
		}
		body = b
		s.log.Warn("webhook attempt failed",
			zap.String("form_id", opts.FormID),
			zap.Int("attempt", attempt+1),
			zap.String("response", b))
	}
	return false, body
}

func (s *Service) fireOnce(ctx context.Context, req webhook.Request) (ok bool, body string) {
	defer func() {
		if r := recover(); r != nil {
			ok, body = false, fmt.Sprint(r)
		}
	}()
	result := s.webhooks.Fire(ctx, req)
	return result.Success, result.Body
}

func (s *Service) persist(ctx context.Context, opts Options, res Result) {
	if s.remote != nil && opts.SiteSlug != "" {
		err := s.remote.SubmitPublic(ctx, opts.SiteSlug, PublicSubmission{
			FormComponentID: opts.FormID,
			FormLabel:       opts.FormLabel,
			PageTitle:       opts.PageTitle,
			Data:            opts.Data,
			Source:          opts.Source,
		})
		if err == nil {
			return
		}
		s.log.Warn("remote submission failed, using local ledger",
			zap.String("site_slug", opts.SiteSlug),
			zap.String("form_id", opts.FormID),
			zap.Error(err))
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	sub := domain.FormSubmission{
		ID:              id.String(),
		SiteID:          opts.SiteID,
		FormID:          opts.FormID,
		FormLabel:       opts.FormLabel,
		PageTitle:       opts.PageTitle,
		Data:            opts.Data,
		SubmittedAt:     s.now().UTC(),
		WebhookStatus:   res.WebhookStatus,
		WebhookResponse: res.WebhookResponse,
		Source:          opts.Source,
	}
	if err := s.ledger.Append(ctx, sub); err != nil {
		s.log.Error("failed to record submission locally",
			zap.String("submission_id", sub.ID),
			zap.Error(err))
	}
}

// List returns the site's submission history from the remote API, falling
// back to the local ledger when the API is unavailable.
func (s *Service) List(ctx context.Context, siteID string) ([]domain.FormSubmission, error) {
	if s.remote != nil {
		subs, err := s.remote.List(ctx, siteID)
		if err == nil {
			return subs, nil
		}
		s.log.Warn("remote submission list failed, using local ledger",
			zap.String("site_id", siteID), zap.Error(err))
	}
	return s.ledger.List(ctx, siteID)
}

// Delete removes a submission from whichever store holds it.
func (s *Service) Delete(ctx context.Context, id string) error {
	remoteOK := false
	if s.remote != nil {
		if err := s.remote.Delete(ctx, id); err != nil {
			s.log.Debug("remote submission delete failed", zap.String("submission_id", id), zap.Error(err))
		} else {
			remoteOK = true
		}
	}

	err := s.ledger.Delete(ctx, id)
	if errors.Is(err, ErrSubmissionNotFound) && remoteOK {
		return nil
	}
	return err
}

func (s *Service) Clear(ctx context.Context, siteID, formID string) error {
	if s.remote != nil {
		if err := s.remote.Clear(ctx, siteID, formID); err != nil {
			s.log.Warn("remote submission clear failed",
				zap.String("site_id", siteID),
				zap.String("form_id", formID),
				zap.Error(err))
		}
	}
	return s.ledger.Clear(ctx, siteID, formID)
}
