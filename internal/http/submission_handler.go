package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/logger"
	"github.com/webdash/storefront/internal/service"
	"github.com/webdash/storefront/internal/submission"
	"go.uber.org/zap"
)

// SubmissionService is the form pipeline plus its history.
type SubmissionService interface {
	Submit(ctx context.Context, opts submission.Options) submission.Result
	List(ctx context.Context, siteID string) ([]domain.FormSubmission, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context, siteID, formID string) error
}

type SubmissionHandler struct {
	hub         *service.Hub
	submissions SubmissionService
	validate    *validator.Validate
	timeout     time.Duration
}

func NewSubmissionHandler(hub *service.Hub, submissions SubmissionService, timeout time.Duration) *SubmissionHandler {
	return &SubmissionHandler{
		hub:         hub,
		submissions: submissions,
		validate:    newValidator(),
		timeout:     timeout,
	}
}

type WebhookDTO struct {
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method" validate:"omitempty,oneof=GET POST"`
	Headers map[string]string `json:"headers"`
}

func (d *WebhookDTO) target() *submission.WebhookTarget {
	if d == nil {
		return nil
	}
	return &submission.WebhookTarget{URL: d.URL, Method: d.Method, Headers: d.Headers}
}

type SubmitFormRequestDTO struct {
	SiteID         string         `json:"site_id" validate:"required"`
	SiteSlug       string         `json:"site_slug"`
	FormLabel      string         `json:"form_label" validate:"max=200"`
	PageTitle      string         `json:"page_title" validate:"max=200"`
	Source         string         `json:"source"`
	Data           map[string]any `json:"data" validate:"required"`
	Webhook        *WebhookDTO    `json:"webhook"`
	SkipCollection bool           `json:"skip_collection"`
}

type CustomerDTO struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes" validate:"max=2000"`
}

type CheckoutRequestDTO struct {
	SiteID    string      `json:"site_id" validate:"required"`
	SiteSlug  string      `json:"site_slug"`
	PageTitle string      `json:"page_title"`
	Customer  CustomerDTO `json:"customer"`
	Webhook   *WebhookDTO `json:"webhook"`
}

// resultStatus maps a submission result to the response code; a failed
// webhook is reported as a bad gateway with the result as body.
func resultStatus(res submission.Result) int {
	if res.Success {
		return http.StatusOK
	}
	return http.StatusBadGateway
}

func (h *SubmissionHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SubmitFormRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	res := h.submissions.Submit(ctx, submission.Options{
		SiteID:         req.SiteID,
		SiteSlug:       req.SiteSlug,
		FormID:         chi.URLParam(r, "form_id"),
		FormLabel:      req.FormLabel,
		PageTitle:      req.PageTitle,
		Source:         req.Source,
		Data:           req.Data,
		Webhook:        req.Webhook.target(),
		SkipCollection: req.SkipCollection,
	})
	respondJSON(w, resultStatus(res), res)
}

func (h *SubmissionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sid := getSessionID(r.Context())
	if sid == "" {
		respondError(w, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	var req CheckoutRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	store := h.hub.Open(ctx, sid)
	defer store.Close()

	res, err := service.Checkout(ctx, store, h.submissions, service.CheckoutRequest{
		SiteID:    req.SiteID,
		SiteSlug:  req.SiteSlug,
		PageTitle: req.PageTitle,
		Source:    "checkout",
		Customer: map[string]any{
			"name":    req.Customer.Name,
			"email":   req.Customer.Email,
			"phone":   req.Customer.Phone,
			"address": req.Customer.Address,
			"notes":   req.Customer.Notes,
		},
		Webhook: req.Webhook.target(),
	})
	if errors.Is(err, service.ErrEmptyCart) {
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
		return
	}
	if err != nil {
		logger.FromContext(ctx).Error("checkout failed", zap.String("session_id", sid), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	respondJSON(w, resultStatus(res), res)
}

func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	subs, err := h.submissions.List(ctx, chi.URLParam(r, "site_id"))
	if err != nil {
		logger.FromContext(ctx).Error("failed to list submissions", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "submission history unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (h *SubmissionHandler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.submissions.Delete(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, submission.ErrSubmissionNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete submission", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "submission history unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubmissionHandler) ClearSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.submissions.Clear(ctx, chi.URLParam(r, "site_id"), r.URL.Query().Get("form_id"))
	if err != nil {
		logger.FromContext(ctx).Error("failed to clear submissions", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "submission history unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
