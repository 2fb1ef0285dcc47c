package domain

import "github.com/shopspring/decimal"

// clone copies both collections so transformations never write into a
// snapshot another reader may still hold.
func (s State) clone() State {
	out := State{
		Cart:     make([]CartItem, len(s.Cart)),
		Wishlist: make([]WishlistItem, len(s.Wishlist)),
	}
	copy(out.Cart, s.Cart)
	copy(out.Wishlist, s.Wishlist)
	return out
}

// AddToCart merges quantity into the (ProductID, Variant) line or appends a
// new line. No upper bound is enforced.
func (s State) AddToCart(item CartItem, quantity int) State {
	out := s.clone()
	for i := range out.Cart {
		if out.Cart[i].ProductID == item.ProductID && out.Cart[i].Variant == item.Variant {
			out.Cart[i].Quantity += quantity
			return out
		}
	}
	item.Quantity = quantity
	out.Cart = append(out.Cart, item)
	return out
}

// RemoveFromCart drops every line matching the exact (productID, variant) pair.
func (s State) RemoveFromCart(productID, variant string) State {
	out := s.clone()
	kept := out.Cart[:0]
	for _, line := range out.Cart {
		if line.ProductID == productID && line.Variant == variant {
			continue
		}
		kept = append(kept, line)
	}
	out.Cart = kept
	return out
}

// UpdateCartQuantity sets the matching line to quantity; quantity <= 0 removes it.
func (s State) UpdateCartQuantity(productID string, quantity int, variant string) State {
	if quantity <= 0 {
		return s.RemoveFromCart(productID, variant)
	}
	out := s.clone()
	for i := range out.Cart {
		if out.Cart[i].ProductID == productID && out.Cart[i].Variant == variant {
			out.Cart[i].Quantity = quantity
		}
	}
	return out
}

// SubtractCartLines takes each line's quantity off the matching
// (ProductID, Variant) line and drops lines that reach zero. Lines not in
// the given set, or quantity added to them since, stay in the cart.
func (s State) SubtractCartLines(lines []CartItem) State {
	out := s.clone()
	for _, sub := range lines {
		for i := range out.Cart {
			if out.Cart[i].ProductID == sub.ProductID && out.Cart[i].Variant == sub.Variant {
				out.Cart[i].Quantity -= sub.Quantity
				break
			}
		}
	}
	kept := out.Cart[:0]
	for _, line := range out.Cart {
		if line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	out.Cart = kept
	return out
}

func (s State) ClearCart() State {
	out := s.clone()
	out.Cart = []CartItem{}
	return out
}

// IsInCart ignores variants.
func (s State) IsInCart(productID string) bool {
	for _, line := range s.Cart {
		if line.ProductID == productID {
			return true
		}
	}
	return false
}

// HasCartLine matches the exact (productID, variant) pair.
func (s State) HasCartLine(productID, variant string) bool {
	for _, line := range s.Cart {
		if line.ProductID == productID && line.Variant == variant {
			return true
		}
	}
	return false
}

// AddToWishlist is idempotent; an existing entry keeps its fields.
func (s State) AddToWishlist(item WishlistItem) State {
	if s.IsInWishlist(item.ProductID) {
		return s.clone()
	}
	out := s.clone()
	out.Wishlist = append(out.Wishlist, item)
	return out
}

func (s State) RemoveFromWishlist(productID string) State {
	out := s.clone()
	kept := out.Wishlist[:0]
	for _, w := range out.Wishlist {
		if w.ProductID != productID {
			kept = append(kept, w)
		}
	}
	out.Wishlist = kept
	return out
}

func (s State) ToggleWishlist(item WishlistItem) State {
	if s.IsInWishlist(item.ProductID) {
		return s.RemoveFromWishlist(item.ProductID)
	}
	return s.AddToWishlist(item)
}

func (s State) IsInWishlist(productID string) bool {
	_, ok := s.FindWishlist(productID)
	return ok
}

func (s State) FindWishlist(productID string) (WishlistItem, bool) {
	for _, w := range s.Wishlist {
		if w.ProductID == productID {
			return w, true
		}
	}
	return WishlistItem{}, false
}

// CartCount is the sum of line quantities.
func (s State) CartCount() int {
	n := 0
	for _, line := range s.Cart {
		n += line.Quantity
	}
	return n
}

// CartTotal sums ParsePrice(price) * quantity over all lines. Summation runs
// in decimal so "$10.00" x 2 + "$5.50" comes out as exactly 25.5.
func (s State) CartTotal() float64 {
	total := decimal.Zero
	for _, line := range s.Cart {
		price := decimal.NewFromFloat(ParsePrice(line.Price))
		total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	f, _ := total.Float64()
	return f
}

func (s State) WishlistCount() int {
	return len(s.Wishlist)
}

// CartLineFromWishlist is the cart line a wishlist entry becomes when moved:
// quantity 1 and no variant.
func CartLineFromWishlist(w WishlistItem) CartItem {
	return CartItem{
		ProductID: w.ProductID,
		Name:      w.Name,
		Price:     w.Price,
		OldPrice:  w.OldPrice,
		ImageURL:  w.ImageURL,
		Quantity:  1,
	}
}
