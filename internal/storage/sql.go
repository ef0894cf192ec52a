package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"livecast/internal/lifecycle"
	logx "livecast/pkg/logx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS broadcasts (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		scheduled_at      BIGINT,
		started_at        BIGINT,
		duration_min      DOUBLE PRECISION,
		ended_at          BIGINT,
		status_updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS broadcasts_status_scheduled ON broadcasts (status, scheduled_at)`,
}

const columns = `id, name, status, scheduled_at, started_at, duration_min, ended_at, status_updated_at`

// row is the stored shape of a broadcast, shared by the sql and file drivers.
type row struct {
	ID              string   `db:"id" json:"id"`
	Name            string   `db:"name" json:"name,omitempty"`
	Status          string   `db:"status" json:"status"`
	ScheduledAt     *int64   `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt       *int64   `db:"started_at" json:"started_at,omitempty"`
	DurationMin     *float64 `db:"duration_min" json:"duration_min,omitempty"`
	EndedAt         *int64   `db:"ended_at" json:"ended_at,omitempty"`
	StatusUpdatedAt int64    `db:"status_updated_at" json:"status_updated_at"`
}

func toRow(b lifecycle.Broadcast) row {
	return row{
		ID:              b.ID,
		Name:            b.Name,
		Status:          string(b.Status),
		ScheduledAt:     millis(b.ScheduledAt),
		StartedAt:       millis(b.StartedAt),
		DurationMin:     b.DurationMinutes,
		EndedAt:         millis(b.EndedAt),
		StatusUpdatedAt: b.StatusUpdatedAt.UnixMilli(),
	}
}

func (r row) broadcast() lifecycle.Broadcast {
	return lifecycle.Broadcast{
		ID:              r.ID,
		Name:            r.Name,
		Status:          lifecycle.Status(r.Status),
		ScheduledAt:     fromMillis(r.ScheduledAt),
		StartedAt:       fromMillis(r.StartedAt),
		DurationMinutes: r.DurationMin,
		EndedAt:         fromMillis(r.EndedAt),
		StatusUpdatedAt: time.UnixMilli(r.StatusUpdatedAt),
	}
}

// sqlStore is shared by the sqlite and postgres drivers. Queries are written
// with '?' placeholders and rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) selectRows(ctx context.Context, query string, args ...any) ([]lifecycle.Broadcast, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]lifecycle.Broadcast, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.broadcast())
	}
	return out, nil
}

func (s *sqlStore) FindDueInRange(ctx context.Context, from, to time.Time) ([]lifecycle.Broadcast, error) {
	return s.selectRows(ctx,
		`SELECT `+columns+` FROM broadcasts
		 WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at >= ? AND scheduled_at <= ?
		 ORDER BY scheduled_at, id`,
		string(lifecycle.StatusScheduled), from.UnixMilli(), to.UnixMilli())
}

func (s *sqlStore) FindActive(ctx context.Context) ([]lifecycle.Broadcast, error) {
	return s.selectRows(ctx,
		`SELECT `+columns+` FROM broadcasts WHERE status = ? ORDER BY started_at, id`,
		string(lifecycle.StatusLive))
}

func (s *sqlStore) List(ctx context.Context) ([]lifecycle.Broadcast, error) {
	return s.selectRows(ctx, `SELECT `+columns+` FROM broadcasts ORDER BY id`)
}

func (s *sqlStore) Get(ctx context.Context, id string) (lifecycle.Broadcast, error) {
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+columns+` FROM broadcasts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.Broadcast{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return lifecycle.Broadcast{}, err
	}
	return r.broadcast(), nil
}

func (s *sqlStore) Upsert(ctx context.Context, b lifecycle.Broadcast) error {
	if err := validate(b); err != nil {
		return err
	}
	if b.StatusUpdatedAt.IsZero() {
		b.StatusUpdatedAt = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO broadcasts (`+columns+`)
		 VALUES (:id, :name, :status, :scheduled_at, :started_at, :duration_min, :ended_at, :status_updated_at)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			scheduled_at = excluded.scheduled_at,
			started_at = excluded.started_at,
			duration_min = excluded.duration_min,
			ended_at = excluded.ended_at,
			status_updated_at = excluded.status_updated_at`,
		toRow(b))
	return err
}

func (s *sqlStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM broadcasts WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) MarkLive(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	return s.transition(ctx, id, lifecycle.StatusLive,
		`UPDATE broadcasts SET status = ?, started_at = ?, ended_at = NULL, status_updated_at = ?
		 WHERE id = ? AND status <> ?`,
		string(lifecycle.StatusLive), startedAt.UnixMilli(), startedAt.UnixMilli(), id, string(lifecycle.StatusLive))
}

func (s *sqlStore) MarkOffline(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	return s.transition(ctx, id, lifecycle.StatusOffline,
		`UPDATE broadcasts SET status = ?, ended_at = ?, status_updated_at = ?
		 WHERE id = ? AND status <> ?`,
		string(lifecycle.StatusOffline), endedAt.UnixMilli(), endedAt.UnixMilli(), id, string(lifecycle.StatusOffline))
}

func (s *sqlStore) MarkError(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.transition(ctx, id, lifecycle.StatusError,
		`UPDATE broadcasts SET status = ?, status_updated_at = ? WHERE id = ? AND status <> ?`,
		string(lifecycle.StatusError), at.UnixMilli(), id, string(lifecycle.StatusError))
}

// transition runs a guarded single-row UPDATE. Zero affected rows means either
// the broadcast is already in the target status or it does not exist.
func (s *sqlStore) transition(ctx context.Context, id string, to lifecycle.Status, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.log.Debug("status changed", logx.String("id", id), logx.String("to", string(to)))
		return true, nil
	}
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(1) FROM broadcasts WHERE id = ?`), id); err != nil {
		return false, err
	}
	if count == 0 {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return false, nil
}
