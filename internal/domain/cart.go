package domain

// CartItem is one cart line. A line is identified by (ProductID, Variant);
// an empty Variant is the "no variant" line.
type CartItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	OldPrice  string `json:"oldPrice,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
}

type WishlistItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	OldPrice  string `json:"oldPrice,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
	InStock   *bool  `json:"inStock,omitempty"`
}

// OutOfStock reports whether the item is explicitly marked as unavailable.
// Unknown stock counts as available.
func (w WishlistItem) OutOfStock() bool {
	return w.InStock != nil && !*w.InStock
}

// State is the persisted unit: every mutation rewrites the whole snapshot.
type State struct {
	Cart     []CartItem     `json:"cart"`
	Wishlist []WishlistItem `json:"wishlist"`
}

func EmptyState() State {
	return State{
		Cart:     []CartItem{},
		Wishlist: []WishlistItem{},
	}
}

// Normalize replaces nil collections with empty ones so the snapshot always
// serializes as {"cart":[],"wishlist":[]}.
func (s State) Normalize() State {
	if s.Cart == nil {
		s.Cart = []CartItem{}
	}
	if s.Wishlist == nil {
		s.Wishlist = []WishlistItem{}
	}
	return s
}
