package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/webdash/storefront/internal/events"
	"github.com/webdash/storefront/internal/service"
	"go.uber.org/zap"
)

const keepAliveInterval = 25 * time.Second

// EventsHandler streams change signals for the visitor's session as
// server-sent events. Events carry no payload; clients re-fetch state.
type EventsHandler struct {
	hub *service.Hub
	log *zap.Logger
}

func NewEventsHandler(hub *service.Hub, log *zap.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, log: log}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sid := getSessionID(r.Context())
	if sid == "" {
		respondError(w, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	topics := make(chan events.Topic, 16)
	sub := h.hub.Bus().Subscribe(sid, func(_ context.Context, topic events.Topic) {
		select {
		case topics <- topic:
		default:
			// slow reader; a pending signal already forces a re-fetch
		}
	})
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Debug("event stream not flushable", zap.Error(err))
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case topic := <-topics:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: {}\n\n", eventName(topic)); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// eventName turns "ecommerce-cart-updated" into "cart-updated".
func eventName(topic events.Topic) string {
	return strings.TrimPrefix(string(topic), "ecommerce-")
}
