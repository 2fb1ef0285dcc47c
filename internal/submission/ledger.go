package submission

import (
	"context"
	"errors"

	"github.com/webdash/storefront/internal/domain"
)

// MaxLedgerEntries caps the local ledger; older entries are evicted.
const MaxLedgerEntries = 500

var ErrSubmissionNotFound = errors.New("submission not found")

// Ledger is the local, capped submission history. List returns newest first.
type Ledger interface {
	Append(ctx context.Context, sub domain.FormSubmission) error
	List(ctx context.Context, siteID string) ([]domain.FormSubmission, error)
	Delete(ctx context.Context, id string) error
	// Clear removes every entry of siteID, or only those of formID when set.
	Clear(ctx context.Context, siteID, formID string) error
}
