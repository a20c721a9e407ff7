// Package postgres provides a PostgreSQL-backed feature store. It implements
// only the storage primitives; the group, permission, and enablement
// operations are derived by [store.Derive], exactly as for the in-memory
// backend.
//
// Atomicity of the read-modify-write primitive is delegated to the database:
// UpdateFeature runs SELECT ... FOR UPDATE, the transform, and the UPDATE in
// a single transaction, so concurrent transforms against the same uid
// serialize on the row lock.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/featflip/featflip/internal/feature"
	"github.com/featflip/featflip/internal/store"
)

const uniqueViolation = "23505"

// Event is an audit record of one feature mutation.
type Event struct {
	EventID   uuid.UUID       `json:"event_id"`
	Uid       string          `json:"uid"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	eventCreated = "created"
	eventUpdated = "updated"
	eventDeleted = "deleted"
)

// Backend implements the feature storage primitives on a pgxpool.
type Backend struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL-backed feature store over pool. The features and
// feature_events tables must exist; see the migrations directory.
func New(pool *pgxpool.Pool) store.FeatureStore {
	return store.Derive(NewBackend(pool))
}

// NewBackend creates the raw primitive backend, mostly useful for tests.
func NewBackend(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

func (b *Backend) Get(ctx context.Context, uid string) (*feature.Feature, error) {
	var doc []byte
	err := b.pool.QueryRow(ctx, `SELECT doc FROM features WHERE uid = $1`, uid).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feature %q: %w", uid, err)
	}
	return decodeFeature(uid, doc)
}

func (b *Backend) Require(ctx context.Context, uid string) (*feature.Feature, error) {
	f, err := b.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, uid)
	}
	return f, nil
}

func (b *Backend) Contains(ctx context.Context, uid string) (bool, error) {
	var exists bool
	err := b.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM features WHERE uid = $1)`, uid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("contains feature %q: %w", uid, err)
	}
	return exists, nil
}

func (b *Backend) Create(ctx context.Context, f *feature.Feature) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode feature %q: %w", f.Uid(), err)
	}

	return b.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO features (uid, enabled, group_name, doc)
			VALUES ($1, $2, $3, $4)
		`, f.Uid(), f.IsEnabled(), nullableGroup(f), doc)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", store.ErrAlreadyExists, f.Uid())
		}
		if err != nil {
			return fmt.Errorf("create feature %q: %w", f.Uid(), err)
		}
		return recordEvent(ctx, tx, f.Uid(), eventCreated, doc)
	})
}

func (b *Backend) CreateOrUpdate(ctx context.Context, f *feature.Feature) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode feature %q: %w", f.Uid(), err)
	}

	return b.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO features (uid, enabled, group_name, doc)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (uid) DO UPDATE
			SET enabled = EXCLUDED.enabled,
			    group_name = EXCLUDED.group_name,
			    doc = EXCLUDED.doc,
			    updated_at = now()
		`, f.Uid(), f.IsEnabled(), nullableGroup(f), doc)
		if err != nil {
			return fmt.Errorf("upsert feature %q: %w", f.Uid(), err)
		}
		return recordEvent(ctx, tx, f.Uid(), eventUpdated, doc)
	})
}

func (b *Backend) Update(ctx context.Context, f *feature.Feature) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode feature %q: %w", f.Uid(), err)
	}

	return b.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE features
			SET enabled = $2, group_name = $3, doc = $4, updated_at = now()
			WHERE uid = $1
		`, f.Uid(), f.IsEnabled(), nullableGroup(f), doc)
		if err != nil {
			return fmt.Errorf("update feature %q: %w", f.Uid(), err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %q", store.ErrNotFound, f.Uid())
		}
		return recordEvent(ctx, tx, f.Uid(), eventUpdated, doc)
	})
}

func (b *Backend) Delete(ctx context.Context, uid string) error {
	return b.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM features WHERE uid = $1`, uid)
		if err != nil {
			return fmt.Errorf("delete feature %q: %w", uid, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %q", store.ErrNotFound, uid)
		}
		return recordEvent(ctx, tx, uid, eventDeleted, nil)
	})
}

func (b *Backend) Toggle(ctx context.Context, uid string) error {
	_, err := b.UpdateFeature(ctx, uid, func(f *feature.Feature) (*feature.Feature, error) {
		return f.Toggled(), nil
	})
	return err
}

func (b *Backend) UpdateFeature(ctx context.Context, uid string, transform store.Transform) (*feature.Feature, error) {
	var next *feature.Feature
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		var doc []byte
		err := tx.QueryRow(ctx, `SELECT doc FROM features WHERE uid = $1 FOR UPDATE`, uid).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %q", store.ErrNotFound, uid)
		}
		if err != nil {
			return fmt.Errorf("lock feature %q: %w", uid, err)
		}

		current, err := decodeFeature(uid, doc)
		if err != nil {
			return err
		}
		next, err = transform(current)
		if err != nil {
			return err
		}
		if next == nil || next.Uid() != uid {
			return fmt.Errorf("%w: %q", store.ErrUidMismatch, uid)
		}

		nextDoc, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode feature %q: %w", uid, err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE features
			SET enabled = $2, group_name = $3, doc = $4, updated_at = now()
			WHERE uid = $1
		`, uid, next.IsEnabled(), nullableGroup(next), nextDoc)
		if err != nil {
			return fmt.Errorf("store feature %q: %w", uid, err)
		}
		return recordEvent(ctx, tx, uid, eventUpdated, nextDoc)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (b *Backend) GetAll(ctx context.Context) (map[string]*feature.Feature, error) {
	rows, err := b.pool.Query(ctx, `SELECT uid, doc FROM features`)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	all := make(map[string]*feature.Feature)
	for rows.Next() {
		var (
			uid string
			doc []byte
		)
		if err := rows.Scan(&uid, &doc); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		f, err := decodeFeature(uid, doc)
		if err != nil {
			return nil, err
		}
		all[uid] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	return all, nil
}

func (b *Backend) Clear(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, `DELETE FROM features`); err != nil {
		return fmt.Errorf("clear features: %w", err)
	}
	return nil
}

func (b *Backend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.pool.QueryRow(ctx, `SELECT count(*) FROM features`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count features: %w", err)
	}
	return n, nil
}

func (b *Backend) IsEmpty(ctx context.Context) (bool, error) {
	n, err := b.Count(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// ListEventsSince returns the audit events recorded after the given time, in
// chronological order.
func (b *Backend) ListEventsSince(ctx context.Context, since time.Time) ([]Event, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT event_id, uid, event_type, payload, created_at
		FROM feature_events
		WHERE created_at > $1
		ORDER BY created_at
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.EventID, &e.Uid, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (b *Backend) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func recordEvent(ctx context.Context, tx pgx.Tx, uid, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO feature_events (event_id, uid, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), uid, eventType, payload)
	if err != nil {
		return fmt.Errorf("record %s event for %q: %w", eventType, uid, err)
	}
	return nil
}

func decodeFeature(uid string, doc []byte) (*feature.Feature, error) {
	f := new(feature.Feature)
	if err := json.Unmarshal(doc, f); err != nil {
		return nil, fmt.Errorf("decode feature %q: %w", uid, err)
	}
	return f, nil
}

func nullableGroup(f *feature.Feature) *string {
	if !f.HasGroup() {
		return nil
	}
	g := f.Group()
	return &g
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
