package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/webdash/storefront/internal/logger"
	"github.com/webdash/storefront/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Hub            *service.Hub
	Submissions    SubmissionService
	Sessions       sessions.Store
	Log            *zap.Logger
	RequestTimeout time.Duration
	MaxBodySize    int64
}

// NewRouter builds the storefront API. Everything except /health lives
// under /api/v1 and requires a session cookie, which is issued on demand.
func NewRouter(cfg RouterConfig) http.Handler {
	log := logger.OrNop(cfg.Log)

	cartHandler := NewCartHandler(cfg.Hub, cfg.RequestTimeout)
	submissionHandler := NewSubmissionHandler(cfg.Hub, cfg.Submissions, cfg.RequestTimeout)
	eventsHandler := NewEventsHandler(cfg.Hub, log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(BodyLimit(cfg.MaxBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.Sessions, log))

		// long-lived stream, kept out of the request timeout
		r.Get("/events", eventsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
				r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", cartHandler.GetWishlist)
				r.Post("/", cartHandler.AddToWishlist)
				r.Post("/toggle", cartHandler.ToggleWishlist)
				r.Delete("/{product_id}", cartHandler.RemoveFromWishlist)
				r.Post("/{product_id}/move-to-cart", cartHandler.MoveToCart)
			})

			r.Post("/forms/{form_id}/submit", submissionHandler.SubmitForm)
			r.Post("/checkout", submissionHandler.Checkout)

			r.Get("/sites/{site_id}/submissions", submissionHandler.ListSubmissions)
			r.Delete("/sites/{site_id}/submissions", submissionHandler.ClearSubmissions)
			r.Delete("/submissions/{id}", submissionHandler.DeleteSubmission)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
