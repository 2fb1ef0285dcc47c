package service

import (
	"context"
	"errors"

	"github.com/webdash/storefront/internal/submission"
)

const CheckoutFormID = "checkout"

var ErrEmptyCart = errors.New("cart is empty")

// FormSubmitter runs one form submission end to end.
type FormSubmitter interface {
	Submit(ctx context.Context, opts submission.Options) submission.Result
}

type CheckoutRequest struct {
	SiteID    string
	SiteSlug  string
	PageTitle string
	Source    string
	// Customer holds the checkout form fields (name, email, address, ...).
	Customer map[string]any
	Webhook  *submission.WebhookTarget
}

// Checkout submits the cart as a checkout form and, when the submission
// succeeds, removes the submitted lines. Lines added while the submission was
// in flight stay in the cart. A failed submission leaves the cart untouched.
func Checkout(ctx context.Context, store *Store, form FormSubmitter, req CheckoutRequest) (submission.Result, error) {
	store.Refresh(ctx)
	snap := store.Snapshot()
	if len(snap.Cart) == 0 {
		return submission.Result{}, ErrEmptyCart
	}

	data := make(map[string]any, len(req.Customer)+3)
	for k, v := range req.Customer {
		data[k] = v
	}
	items := make([]map[string]any, 0, len(snap.Cart))
	for _, line := range snap.Cart {
		item := map[string]any{
			"productId": line.ProductID,
			"name":      line.Name,
			"price":     line.Price,
			"quantity":  line.Quantity,
		}
		if line.Variant != "" {
			item["variant"] = line.Variant
		}
		items = append(items, item)
	}
	data["items"] = items
	data["cartCount"] = snap.CartCount()
	data["cartTotal"] = snap.CartTotal()

	res := form.Submit(ctx, submission.Options{
		SiteID:    req.SiteID,
		SiteSlug:  req.SiteSlug,
		FormID:    CheckoutFormID,
		FormLabel: "Checkout",
		PageTitle: req.PageTitle,
		Source:    req.Source,
		Data:      data,
		Webhook:   req.Webhook,
	})
	if res.Success {
		store.RemoveCartLines(ctx, snap.Cart)
	}
	return res, nil
}
