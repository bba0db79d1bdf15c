package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/weathermail/weathermail/models"
)

// ErrNotFound is returned when no subscriber exists for the given email.
// Connectivity and query failures are returned as distinct wrapped errors so
// callers can tell "missing record" apart from "store unavailable".
var ErrNotFound = errors.New("subscriber not found")

// SubscriberRepository persists subscribers in the `subscribers` table,
// keyed by normalized email. Expected schema:
//
//	CREATE TABLE subscribers (
//	    email           TEXT PRIMARY KEY,
//	    city            TEXT NOT NULL,
//	    subscribed_at   TIMESTAMPTZ NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL,
//	    paused          BOOLEAN NOT NULL DEFAULT FALSE,
//	    pause_reason    TEXT NOT NULL DEFAULT '',
//	    last_sent_at    TIMESTAMPTZ,
//	    welcome_sent_at TIMESTAMPTZ
//	);
//	CREATE INDEX subscribers_paused_idx ON subscribers (paused);
type SubscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// NormalizeEmail returns the canonical form of an email address: trimmed and
// lower-cased. Every repository method normalizes its email argument, so
// callers may pass user input directly.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const subscriberColumns = `email, city, subscribed_at, updated_at, paused, pause_reason, last_sent_at, welcome_sent_at`

// Ping reports whether the underlying database is currently reachable.
func (r *SubscriberRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Upsert creates a subscriber for the normalized email or, if one already
// exists, updates its city and updated_at in place. Paused state and
// timestamps of an existing record are left untouched. Returns whether the
// record was newly created alongside the stored record.
func (r *SubscriberRepository) Upsert(ctx context.Context, email, city string) (bool, *models.Subscriber, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO subscribers (email, city, subscribed_at, updated_at, paused, pause_reason)
		VALUES ($1, $2, $3, $3, FALSE, '')
		ON CONFLICT (email) DO UPDATE SET city = EXCLUDED.city, updated_at = EXCLUDED.updated_at
		RETURNING ` + subscriberColumns + `, (xmax = 0) AS is_new
	`
	row := r.db.QueryRowContext(ctx, query, NormalizeEmail(email), strings.TrimSpace(city), now)

	var sub models.Subscriber
	var isNew bool
	if err := scanSubscriber(row, &sub, &isNew); err != nil {
		return false, nil, fmt.Errorf("failed to upsert subscriber: %w", err)
	}
	return isNew, &sub, nil
}

// Remove deletes the record for the normalized email. It is the compensating
// action for a failed welcome dispatch and is a no-op when no record exists.
func (r *SubscriberRepository) Remove(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE email = $1`, NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	return nil
}

// FindByEmail returns the subscriber for the normalized email, or ErrNotFound.
func (r *SubscriberRepository) FindByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE email = $1`
	row := r.db.QueryRowContext(ctx, query, NormalizeEmail(email))

	var sub models.Subscriber
	if err := scanSubscriber(row, &sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscriber by email: %w", err)
	}
	return &sub, nil
}

// SetPaused updates the paused flag and pause reason, refreshing updated_at.
// When pausing without an explicit reason a generic one is recorded; the
// reason is always cleared on resume. Returns ErrNotFound for unknown emails.
func (r *SubscriberRepository) SetPaused(ctx context.Context, email string, paused bool, reason string) (*models.Subscriber, error) {
	if paused && strings.TrimSpace(reason) == "" {
		reason = "Paused by admin"
	}
	if !paused {
		reason = ""
	}

	query := `
		UPDATE subscribers
		SET paused = $2, pause_reason = $3, updated_at = $4
		WHERE email = $1
		RETURNING ` + subscriberColumns
	row := r.db.QueryRowContext(ctx, query, NormalizeEmail(email), paused, strings.TrimSpace(reason), time.Now().UTC())

	var sub models.Subscriber
	if err := scanSubscriber(row, &sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update paused state: %w", err)
	}
	return &sub, nil
}

// ListPage holds one page of subscribers plus the total count of records
// matching the filter irrespective of the pagination window.
type ListPage struct {
	Subscribers []models.Subscriber
	Total       int
}

// List returns subscribers ordered by subscribed_at descending. When
// includePaused is false only non-paused records are considered, for both
// the page contents and the total.
func (r *SubscriberRepository) List(ctx context.Context, includePaused bool, limit, offset int) (*ListPage, error) {
	countQuery := `SELECT COUNT(*) FROM subscribers WHERE ($1 OR paused = FALSE)`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, includePaused).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}

	query := `
		SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE ($1 OR paused = FALSE)
		ORDER BY subscribed_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, includePaused, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	subscribers, err := collectSubscribers(rows)
	if err != nil {
		return nil, err
	}
	return &ListPage{Subscribers: subscribers, Total: total}, nil
}

// ListActive returns all subscribers eligible for the daily digest, i.e.
// those whose paused flag is false.
func (r *SubscriberRepository) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE paused = FALSE ORDER BY subscribed_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active subscribers: %w", err)
	}
	defer rows.Close()

	return collectSubscribers(rows)
}

// MarkWelcomeSent stamps welcome_sent_at to now. Idempotent: a no-op when the
// record has vanished concurrently.
func (r *SubscriberRepository) MarkWelcomeSent(ctx context.Context, email string) error {
	return r.stamp(ctx, email, "welcome_sent_at")
}

// MarkDigestSent stamps last_sent_at to now. Idempotent: a no-op when the
// record has vanished concurrently.
func (r *SubscriberRepository) MarkDigestSent(ctx context.Context, email string) error {
	return r.stamp(ctx, email, "last_sent_at")
}

func (r *SubscriberRepository) stamp(ctx context.Context, email, column string) error {
	// column is always one of the two fixed timestamp columns above.
	query := fmt.Sprintf(`UPDATE subscribers SET %s = $2, updated_at = $2 WHERE email = $1`, column)
	_, err := r.db.ExecContext(ctx, query, NormalizeEmail(email), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to stamp %s: %w", column, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner, sub *models.Subscriber, extra ...any) error {
	dest := []any{
		&sub.Email,
		&sub.City,
		&sub.SubscribedAt,
		&sub.UpdatedAt,
		&sub.Paused,
		&sub.PauseReason,
		&sub.LastSentAt,
		&sub.WelcomeSentAt,
	}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

func collectSubscribers(rows *sql.Rows) ([]models.Subscriber, error) {
	var subscribers []models.Subscriber
	for rows.Next() {
		var sub models.Subscriber
		if err := scanSubscriber(rows, &sub); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber row: %w", err)
		}
		subscribers = append(subscribers, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriber rows: %w", err)
	}
	return subscribers, nil
}
