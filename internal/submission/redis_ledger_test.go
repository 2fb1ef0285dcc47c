package submission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webdash/storefront/internal/domain"
)

func setupRedisLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLedger(client, "test:", nil), mr
}

func newSubmission(id, siteID, formID string) domain.FormSubmission {
	return domain.FormSubmission{
		ID:          id,
		SiteID:      siteID,
		FormID:      formID,
		FormLabel:   "Contact",
		PageTitle:   "Home",
		Data:        map[string]any{"email": "a@b.c"},
		SubmittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRedisLedger_NewestFirst(t *testing.T) {
	ledger, _ := setupRedisLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Append(ctx, newSubmission("a", "site1", "contact")))
	require.NoError(t, ledger.Append(ctx, newSubmission("b", "site1", "contact")))

	got, err := ledger.List(ctx, "site1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "a@b.c", got[1].Data["email"])
}

func TestRedisLedger_Cap(t *testing.T) {
	ledger, _ := setupRedisLedger(t)
	ctx := context.Background()

	for i := 0; i <= MaxLedgerEntries; i++ {
		require.NoError(t, ledger.Append(ctx, newSubmission(fmt.Sprintf("s%d", i), "site1", "contact")))
	}

	got, err := ledger.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, MaxLedgerEntries)
	assert.Equal(t, fmt.Sprintf("s%d", MaxLedgerEntries), got[0].ID)
	assert.Equal(t, "s1", got[len(got)-1].ID, "oldest entry evicted")
}

func TestRedisLedger_ListFiltersBySite(t *testing.T) {
	ledger, _ := setupRedisLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Append(ctx, newSubmission("a", "site1", "contact")))
	require.NoError(t, ledger.Append(ctx, newSubmission("b", "site2", "contact")))

	got, err := ledger.List(ctx, "site2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestRedisLedger_Delete(t *testing.T) {
	ledger, _ := setupRedisLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Append(ctx, newSubmission("a", "site1", "contact")))
	require.NoError(t, ledger.Delete(ctx, "a"))

	err := ledger.Delete(ctx, "a")
	assert.ErrorIs(t, err, ErrSubmissionNotFound)

	got, err := ledger.List(ctx, "site1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisLedger_Clear(t *testing.T) {
	ledger, _ := setupRedisLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Append(ctx, newSubmission("a", "site1", "contact")))
	require.NoError(t, ledger.Append(ctx, newSubmission("b", "site1", "newsletter")))
	require.NoError(t, ledger.Append(ctx, newSubmission("c", "site2", "contact")))

	require.NoError(t, ledger.Clear(ctx, "site1", "contact"))
	got, err := ledger.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	require.NoError(t, ledger.Clear(ctx, "site1", ""))
	got, err = ledger.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "site2", got[0].SiteID)
}

func TestRedisLedger_CorruptBlob(t *testing.T) {
	ledger, mr := setupRedisLedger(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:form-submissions", "{not json"))

	got, err := ledger.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, ledger.Append(ctx, newSubmission("a", "site1", "contact")))
	got, err = ledger.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRedisLedger_BackendDown(t *testing.T) {
	ledger, mr := setupRedisLedger(t)
	mr.Close()

	err := ledger.Append(context.Background(), newSubmission("a", "site1", "contact"))
	assert.Error(t, err)
}
