package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Accepted input aliases for product payloads. Everything past this boundary
// uses the canonical CartItem / WishlistItem fields.
var (
	productIDKeys = []string{"productId", "product_id", "id", "articleId"}
	nameKeys      = []string{"name", "title", "productName"}
	priceKeys     = []string{"price", "displayPrice", "priceLabel"}
	oldPriceKeys  = []string{"oldPrice", "old_price", "compareAtPrice"}
	imageKeys     = []string{"imageUrl", "image_url", "image", "thumbnail"}
	variantKeys   = []string{"variant", "selectedVariant"}
	inStockKeys   = []string{"inStock", "in_stock"}
	stockQtyKeys  = []string{"stockQuantity", "stock"}
)

// NormalizedProduct is the canonical record produced from a loose payload.
type NormalizedProduct struct {
	Item    CartItem
	InStock *bool
	// Derived is true when the id was built by DeriveProductID.
	Derived bool
}

func (p NormalizedProduct) WishlistItem() WishlistItem {
	return WishlistItem{
		ProductID: p.Item.ProductID,
		Name:      p.Item.Name,
		Price:     p.Item.Price,
		OldPrice:  p.Item.OldPrice,
		ImageURL:  p.Item.ImageURL,
		InStock:   p.InStock,
	}
}

// NormalizeProduct maps a product payload with any of the accepted aliases to
// the canonical shape. A payload without a name is rejected.
func NormalizeProduct(payload map[string]any) (NormalizedProduct, error) {
	var p NormalizedProduct

	p.Item.Name = firstString(payload, nameKeys)
	if strings.TrimSpace(p.Item.Name) == "" {
		return p, ErrMissingName
	}
	p.Item.Price = firstPrice(payload, priceKeys)
	p.Item.OldPrice = firstPrice(payload, oldPriceKeys)
	p.Item.ImageURL = firstString(payload, imageKeys)
	p.Item.Variant = firstString(payload, variantKeys)

	p.Item.ProductID = firstString(payload, productIDKeys)
	if p.Item.ProductID == "" {
		p.Item.ProductID = DeriveProductID(p.Item.Name, p.Item.Price)
		p.Derived = true
	}

	if v, ok := firstBool(payload, inStockKeys); ok {
		p.InStock = &v
	} else if n, ok := firstNumber(payload, stockQtyKeys); ok {
		v := n > 0
		p.InStock = &v
	}
	return p, nil
}

func firstString(payload map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return ""
}

// firstPrice keeps display strings as-is and formats bare numbers with two decimals.
func firstPrice(payload map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.2f", v)
		case int:
			return fmt.Sprintf("%d.00", v)
		}
	}
	return ""
}

func firstBool(payload map[string]any, keys []string) (bool, bool) {
	for _, k := range keys {
		if v, ok := payload[k].(bool); ok {
			return v, true
		}
	}
	return false, false
}

func firstNumber(payload map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
