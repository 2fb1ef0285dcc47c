package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/logger"
	"github.com/webdash/storefront/internal/service"
	"go.uber.org/zap"
)

// CartHandler serves the visitor's cart and wishlist.
type CartHandler struct {
	hub      *service.Hub
	validate *validator.Validate
	timeout  time.Duration
}

func NewCartHandler(hub *service.Hub, timeout time.Duration) *CartHandler {
	return &CartHandler{
		hub:      hub,
		validate: newValidator(),
		timeout:  timeout,
	}
}

// AddItemRequestDTO carries a product payload in any of the accepted field
// spellings (productId/product_id/id, name/title, price/displayPrice, ...).
type AddItemRequestDTO struct {
	Product  map[string]any `json:"product" validate:"required"`
	Quantity int            `json:"quantity" validate:"omitempty,min=1,max=999"`
	Variant  string         `json:"variant"`
}

// UpdateQuantityRequestDTO sets a line's quantity; zero or less removes it.
type UpdateQuantityRequestDTO struct {
	Quantity *int   `json:"quantity" validate:"required,max=999"`
	Variant  string `json:"variant"`
}

type WishlistRequestDTO struct {
	Product map[string]any `json:"product" validate:"required"`
}

type StateResponse struct {
	Cart          []domain.CartItem     `json:"cart"`
	Wishlist      []domain.WishlistItem `json:"wishlist"`
	CartCount     int                   `json:"cartCount"`
	CartTotal     float64               `json:"cartTotal"`
	WishlistCount int                   `json:"wishlistCount"`
}

type MoveResponse struct {
	Moved bool `json:"moved"`
	StateResponse
}

func newStateResponse(s *service.Store) StateResponse {
	snap := s.Snapshot()
	return StateResponse{
		Cart:          snap.Cart,
		Wishlist:      snap.Wishlist,
		CartCount:     snap.CartCount(),
		CartTotal:     snap.CartTotal(),
		WishlistCount: snap.WishlistCount(),
	}
}

// normalizeProduct maps the payload to the canonical record, responding 400
// on failure. Ids built from name and price are not authoritative and are
// logged so missing backend ids can be found.
func normalizeProduct(ctx context.Context, w http.ResponseWriter, payload map[string]any) (domain.NormalizedProduct, error) {
	product, err := domain.NormalizeProduct(payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product", err.Error())
		return product, err
	}
	if product.Derived {
		logger.FromContext(ctx).Warn("product has no backend id, using derived id",
			zap.String("product_id", product.Item.ProductID),
			zap.String("name", product.Item.Name))
	}
	return product, nil
}

// open returns the visitor's store handle, or responds 401 and returns nil.
func (h *CartHandler) open(ctx context.Context, w http.ResponseWriter) *service.Store {
	sid := getSessionID(ctx)
	if sid == "" {
		respondError(w, http.StatusUnauthorized, "no_session", "missing session")
		return nil
	}
	return h.hub.Open(ctx, sid)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.open(ctx, w)
	if store == nil {
		return
	}
	defer store.Close()

	respondJSON(w, http.StatusOK, newStateResponse(store))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	product, err := normalizeProduct(ctx, w, req.Product)
	if err != nil {
		return
	}
	item := product.Item
	if req.Variant != "" {
		item.Variant = req.Variant
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	store := h.open(ctx, w)
	if store == nil {
		return
	}
	defer store.Close()

	store.AddToCart(ctx, item, quantity)
	respondJSON(w, http.StatusCreated, newStateResponse(store))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	store := h.open(ctx, w)
	if store == nil {
		return
	}
	defer store.Close()

	if !store.HasCartLine(productID, req.Variant) {
		respondError(w, http.StatusNotFound, "not_found", domain.ErrItemNotFound.Error())
		return
	}
	store.UpdateCartQuantity(ctx, productID, *req.Quantity, req.Variant)
	respondJSON(w, http.StatusOK, newStateResponse(store))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.open(ctx, w)
	if store == nil {
		return
	}
	defer store.Close()

	store.RemoveFromCart(ctx, chi.URLParam(r, "product_id"), r.URL.Query().Get("variant"))
	respondJSON(w, http.StatusOK, newStateResponse(store))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.open(ctx, w)
	if store == nil {
		return
	}
	defer store.Close()

	store.ClearCart(ctx)
	respondJSON(w, http.StatusOK, newStateResponse(store))
}

func (h *CartHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	h.GetCart(w, r)
}

func (h *CartHandler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	h.wishlistWrite(w, r, http.StatusCreated, (*service.Store).AddToWishlist)
}

func (h *CartHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	h.wishlistWrite(w, r, http.StatusOK, (*service.Store).ToggleWishlist)
}

func (h *CartHandler) wishlistWrite(w http.ResponseWriter, r *http.Request, status int,
	op func(*service.Store, context.Context, domain.WishlistItem)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req WishlistRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}
	product, err := normalizeProduct(ctx, w, req.Product)
	if err != nil {
		return
	}

	store := h.open(ctx, w)
	if store == nil {
		return
	}
	defer store.Close()

	op(store, ctx, product.WishlistItem())
	respondJSON(w, status, newStateResponse(store))
}

func (h *CartHandler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.open(ctx, w)
	if store == nil {
		return
	}
	defer store.Close()

	store.RemoveFromWishlist(ctx, chi.URLParam(r, "product_id"))
	respondJSON(w, http.StatusOK, newStateResponse(store))
}

func (h *CartHandler) MoveToCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store := h.open(ctx, w)
	if store == nil {
		return
	}
	defer store.Close()

	moved := store.MoveWishlistToCart(ctx, chi.URLParam(r, "product_id"))
	respondJSON(w, http.StatusOK, MoveResponse{Moved: moved, StateResponse: newStateResponse(store)})
}
