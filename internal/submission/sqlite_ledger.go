package submission

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/webdash/storefront/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteLedger stores the submission history in a local SQLite file.
type SQLiteLedger struct {
	db *sql.DB
}

func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// one writer keeps SQLite from returning SQLITE_BUSY under concurrent appends
	db.SetMaxOpenConns(1)

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(l.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Append(ctx context.Context, sub domain.FormSubmission) error {
	data, err := json.Marshal(sub.Data)
	if err != nil {
		return fmt.Errorf("marshal submission data failed: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO form_submissions
			(id, site_id, form_id, form_label, page_title, data, submitted_at, webhook_status, webhook_response, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID, sub.SiteID, sub.FormID, sub.FormLabel, sub.PageTitle, string(data),
		sub.SubmittedAt.UTC().Format(time.RFC3339Nano),
		string(sub.WebhookStatus), sub.WebhookResponse, sub.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM form_submissions
		WHERE seq NOT IN (SELECT seq FROM form_submissions ORDER BY seq DESC LIMIT ?)
	`, MaxLedgerEntries)
	if err != nil {
		return fmt.Errorf("failed to trim ledger: %w", err)
	}

	return tx.Commit()
}

func (l *SQLiteLedger) List(ctx context.Context, siteID string) ([]domain.FormSubmission, error) {
	query := `
		SELECT id, site_id, form_id, form_label, page_title, data, submitted_at, webhook_status, webhook_response, source
		FROM form_submissions
	`
	var args []any
	if siteID != "" {
		query += " WHERE site_id = ?"
		args = append(args, siteID)
	}
	query += " ORDER BY seq DESC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	out := []domain.FormSubmission{}
	for rows.Next() {
		var (
			s           domain.FormSubmission
			data        string
			submittedAt string
			status      string
		)
		if err := rows.Scan(&s.ID, &s.SiteID, &s.FormID, &s.FormLabel, &s.PageTitle,
			&data, &submittedAt, &status, &s.WebhookResponse, &s.Source); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &s.Data); err != nil {
			return nil, fmt.Errorf("failed to decode submission data: %w", err)
		}
		if s.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt); err != nil {
			return nil, fmt.Errorf("failed to parse submitted_at: %w", err)
		}
		s.WebhookStatus = domain.WebhookStatus(status)
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (l *SQLiteLedger) Delete(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM form_submissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func (l *SQLiteLedger) Clear(ctx context.Context, siteID, formID string) error {
	query := `DELETE FROM form_submissions WHERE site_id = ?`
	args := []any{siteID}
	if formID != "" {
		query += " AND form_id = ?"
		args = append(args, formID)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear submissions: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
