package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/events"
	"github.com/webdash/storefront/internal/service"
	"github.com/webdash/storefront/internal/statestore"
	"github.com/webdash/storefront/internal/submission"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSubmissions struct {
	mu      sync.RWMutex
	result  submission.Result
	got     []submission.Options
	stored  []domain.FormSubmission
	listErr error
}

func (s *stubSubmissions) Submit(_ context.Context, opts submission.Options) submission.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, opts)
	return s.result
}

func (s *stubSubmissions) List(_ context.Context, siteID string) ([]domain.FormSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.FormSubmission
	for _, sub := range s.stored {
		if sub.SiteID == siteID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *stubSubmissions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.stored {
		if sub.ID == id {
			s.stored = append(s.stored[:i], s.stored[i+1:]...)
			return nil
		}
	}
	return submission.ErrSubmissionNotFound
}

func (s *stubSubmissions) Clear(_ context.Context, siteID, formID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.stored[:0]
	for _, sub := range s.stored {
		if sub.SiteID != siteID || (formID != "" && sub.FormID != formID) {
			kept = append(kept, sub)
		}
	}
	s.stored = kept
	return nil
}

type testAPI struct {
	srv    *httptest.Server
	client *http.Client
	hub    *service.Hub
	subs   *stubSubmissions
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithLogger(t, nil)
}

func newTestAPIWithLogger(t *testing.T, log *zap.Logger) *testAPI {
	t.Helper()
	hub := service.NewHub(statestore.NewMemoryStore(), events.NewBus(nil), nil)
	subs := &stubSubmissions{result: submission.Result{Success: true}}

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Hub:            hub,
		Submissions:    subs,
		Sessions:       sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
		Log:            log,
		RequestTimeout: 5 * time.Second,
		MaxBodySize:    1 << 20,
	}))
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, client: newClient(t), hub: hub, subs: subs}
}

func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func (a *testAPI) do(t *testing.T, client *http.Client, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeState(t *testing.T, resp *http.Response) StateResponse {
	t.Helper()
	var state StateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(t, api.client, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCart_RoundTrip(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, api.client, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product":  map[string]any{"id": "p1", "title": "Blue Mug", "displayPrice": "$10.00"},
		"quantity": 2,
		"variant":  "blue",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	state := decodeState(t, resp)
	require.Len(t, state.Cart, 1)
	assert.Equal(t, "p1", state.Cart[0].ProductID)
	assert.Equal(t, "blue", state.Cart[0].Variant)
	assert.Equal(t, 20.0, state.CartTotal)

	resp = api.do(t, api.client, http.MethodPut, "/api/v1/cart/items/p1", map[string]any{"quantity": 5, "variant": "blue"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, decodeState(t, resp).CartCount)

	resp = api.do(t, api.client, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, decodeState(t, resp).CartCount)

	resp = api.do(t, api.client, http.MethodDelete, "/api/v1/cart/items/p1?variant=blue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeState(t, resp).Cart)
}

func TestCart_DerivedIDIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	api := newTestAPIWithLogger(t, zap.New(core))

	resp := api.do(t, api.client, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product": map[string]any{"productId": "p1", "name": "Mug", "price": "$3"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Zero(t, logs.Len())

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product": map[string]any{"name": "Blue Mug", "price": "$12.99"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/wishlist", map[string]any{
		"product": map[string]any{"name": "Teapot", "price": "$20"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	warned := logs.FilterMessage("product has no backend id, using derived id").All()
	require.Len(t, warned, 2)
	assert.Equal(t, "preview-blue-mug-1299", warned[0].ContextMap()["product_id"])
	assert.Equal(t, "Teapot", warned[1].ContextMap()["name"])
}

func TestCart_SessionsAreIsolated(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, api.client, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product": map[string]any{"productId": "p1", "name": "Mug", "price": "$3"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	other := newClient(t)
	resp = api.do(t, other, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeState(t, resp).Cart)
}

func TestCart_Validation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad json", http.MethodPost, "/api/v1/cart/items", "{", http.StatusBadRequest, "invalid_request"},
		{"missing product", http.MethodPost, "/api/v1/cart/items", map[string]any{"quantity": 1}, http.StatusBadRequest, "validation_failed"},
		{"quantity too large", http.MethodPost, "/api/v1/cart/items", map[string]any{"product": map[string]any{"name": "x"}, "quantity": 5000}, http.StatusBadRequest, "validation_failed"},
		{"product without name", http.MethodPost, "/api/v1/cart/items", map[string]any{"product": map[string]any{"price": "$1"}}, http.StatusBadRequest, "invalid_product"},
		{"update missing quantity", http.MethodPut, "/api/v1/cart/items/p1", map[string]any{}, http.StatusBadRequest, "validation_failed"},
		{"update unknown line", http.MethodPut, "/api/v1/cart/items/nope", map[string]any{"quantity": 1}, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(t, api.client, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.Equal(t, tt.code, errResp.Code)
		})
	}
}

func TestCart_UpdateMatchesVariant(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, api.client, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product":  map[string]any{"id": "p1", "name": "Mug", "price": "$2"},
		"quantity": 2,
		"variant":  "red",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodPut, "/api/v1/cart/items/p1", map[string]any{"quantity": 4, "variant": "green"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodPut, "/api/v1/cart/items/p1", map[string]any{"quantity": 4})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "the no-variant line does not exist")

	resp = api.do(t, api.client, http.MethodPut, "/api/v1/cart/items/p1", map[string]any{"quantity": -1, "variant": "red"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeState(t, resp).Cart)
}

func TestWishlist_ToggleAndMove(t *testing.T) {
	api := newTestAPI(t)
	product := map[string]any{"product": map[string]any{"id": "w1", "name": "Scarf", "price": "$5.50", "stock": 3}}

	resp := api.do(t, api.client, http.MethodPost, "/api/v1/wishlist", product)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, decodeState(t, resp).WishlistCount)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/wishlist/toggle", product)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, decodeState(t, resp).WishlistCount)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/wishlist/toggle", product)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decodeState(t, resp).WishlistCount)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/wishlist/w1/move-to-cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var moved MoveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&moved))
	assert.True(t, moved.Moved)
	assert.Equal(t, 1, moved.CartCount)
	assert.Zero(t, moved.WishlistCount)
}

func TestWishlist_MoveOutOfStock(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, api.client, http.MethodPost, "/api/v1/wishlist", map[string]any{
		"product": map[string]any{"id": "w1", "name": "Scarf", "price": "$5.50", "inStock": false},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/wishlist/w1/move-to-cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var moved MoveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&moved))
	assert.False(t, moved.Moved)
	assert.Equal(t, 1, moved.WishlistCount)
	assert.Empty(t, moved.Cart)

	resp = api.do(t, api.client, http.MethodDelete, "/api/v1/wishlist/w1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, decodeState(t, resp).WishlistCount)
}

func TestSubmitForm(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, api.client, http.MethodPost, "/api/v1/forms/contact/submit", map[string]any{
		"site_id": "site1",
		"data":    map[string]any{"email": "a@b.c"},
		"webhook": map[string]any{"url": "https://hooks.example.com/x", "method": "POST"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, api.subs.got, 1)
	opts := api.subs.got[0]
	assert.Equal(t, "contact", opts.FormID)
	assert.Equal(t, "site1", opts.SiteID)
	require.NotNil(t, opts.Webhook)
	assert.Equal(t, "https://hooks.example.com/x", opts.Webhook.URL)

	api.subs.result = submission.Result{Success: false, WebhookStatus: domain.WebhookStatusFailed}
	resp = api.do(t, api.client, http.MethodPost, "/api/v1/forms/contact/submit", map[string]any{
		"site_id": "site1",
		"data":    map[string]any{},
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/forms/contact/submit", map[string]any{
		"site_id": "site1",
		"data":    map[string]any{},
		"webhook": map[string]any{"url": "not a url", "method": "PATCH"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp struct {
		Details []ValidationDetail `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Len(t, errResp.Details, 2)
}

func TestCheckout(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]any{
		"site_id":  "site1",
		"customer": map[string]any{"name": "Ada", "email": "ada@example.com"},
	}

	resp := api.do(t, api.client, http.MethodPost, "/api/v1/checkout", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/checkout", map[string]any{
		"site_id":  "site1",
		"customer": map[string]any{"name": "Ada", "email": "nope"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product": map[string]any{"id": "p1", "name": "Mug", "price": "$10.00"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/checkout", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, api.subs.got, 1)
	assert.Equal(t, service.CheckoutFormID, api.subs.got[0].FormID)
	assert.Equal(t, "ada@example.com", api.subs.got[0].Data["email"])

	resp = api.do(t, api.client, http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, decodeState(t, resp).Cart)
}

func TestSubmissionHistory(t *testing.T) {
	api := newTestAPI(t)
	api.subs.stored = []domain.FormSubmission{
		{ID: "a", SiteID: "site1", FormID: "contact"},
		{ID: "b", SiteID: "site1", FormID: "newsletter"},
		{ID: "c", SiteID: "site2", FormID: "contact"},
	}

	resp := api.do(t, api.client, http.MethodGet, "/api/v1/sites/site1/submissions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Submissions []domain.FormSubmission `json:"submissions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Submissions, 2)

	resp = api.do(t, api.client, http.MethodDelete, "/api/v1/submissions/a", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = api.do(t, api.client, http.MethodDelete, "/api/v1/submissions/a", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.do(t, api.client, http.MethodDelete, "/api/v1/sites/site1/submissions?form_id=newsletter", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, api.subs.stored, 1)
	assert.Equal(t, "c", api.subs.stored[0].ID)
}

func TestEvents_StreamsSignals(t *testing.T) {
	api := newTestAPI(t)

	// first request issues the session cookie
	resp := api.do(t, api.client, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	stream, err := api.client.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	lines := make(chan string, 8)
	go func() {
		scanner := bufio.NewScanner(stream.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	resp = api.do(t, api.client, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product": map[string]any{"id": "p1", "name": "Mug", "price": "$1"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	timeout := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if strings.HasPrefix(line, "event: ") {
				assert.Equal(t, "event: cart-updated", line)
				return
			}
		case <-timeout:
			t.Fatal("no event received")
		}
	}
}
