package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/webdash/storefront/internal/domain"
	"github.com/webdash/storefront/internal/logger"
	"go.uber.org/zap"
)

// RedisLedger keeps the whole ledger as one JSON array under a single key.
// Writes replace the blob; the mutex serializes them inside this process.
type RedisLedger struct {
	client *redis.Client
	key    string
	log    *zap.Logger
	mu     sync.Mutex
}

func NewRedisLedger(client *redis.Client, prefix string, log *zap.Logger) *RedisLedger {
	return &RedisLedger{
		client: client,
		key:    prefix + "form-submissions",
		log:    logger.OrNop(log),
	}
}

func (l *RedisLedger) Append(ctx context.Context, sub domain.FormSubmission) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read(ctx)
	if err != nil {
		return err
	}
	entries = append([]domain.FormSubmission{sub}, entries...)
	if len(entries) > MaxLedgerEntries {
		entries = entries[:MaxLedgerEntries]
	}
	return l.write(ctx, entries)
}

func (l *RedisLedger) List(ctx context.Context, siteID string) ([]domain.FormSubmission, error) {
	entries, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	if siteID == "" {
		return entries, nil
	}
	out := make([]domain.FormSubmission, 0, len(entries))
	for _, e := range entries {
		if e.SiteID == siteID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *RedisLedger) Delete(ctx context.Context, id string) error {
	return l.rewrite(ctx, func(e domain.FormSubmission) bool { return e.ID == id }, true)
}

func (l *RedisLedger) Clear(ctx context.Context, siteID, formID string) error {
	return l.rewrite(ctx, func(e domain.FormSubmission) bool {
		return e.SiteID == siteID && (formID == "" || e.FormID == formID)
	}, false)
}

// rewrite drops every entry matching drop. With mustMatch it reports
// ErrSubmissionNotFound when nothing was dropped.
func (l *RedisLedger) rewrite(ctx context.Context, drop func(domain.FormSubmission) bool, mustMatch bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	if mustMatch && len(kept) == len(entries) {
		return ErrSubmissionNotFound
	}
	return l.write(ctx, kept)
}

// read treats an absent or corrupt blob as an empty ledger.
func (l *RedisLedger) read(ctx context.Context) ([]domain.FormSubmission, error) {
	data, err := l.client.Get(ctx, l.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.FormSubmission{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var entries []domain.FormSubmission
	if err := json.Unmarshal(data, &entries); err != nil {
		l.log.Warn("corrupt submission ledger, starting empty", zap.Error(err))
		return []domain.FormSubmission{}, nil
	}
	return entries, nil
}

func (l *RedisLedger) write(ctx context.Context, entries []domain.FormSubmission) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal ledger failed: %w", err)
	}
	if err := l.client.Set(ctx, l.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
