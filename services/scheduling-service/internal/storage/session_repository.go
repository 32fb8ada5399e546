package storage

import (
	"context"
	"errors"

	"github.com/corebuddy/studiocore/libs/db"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/model"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/timetable"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SessionRepository persists one-to-one sessions. The sessions table carries an
// exclusion constraint over (date, int4range(start_minute, end_minute)), so a
// concurrent writer that slips past the in-transaction availability check still
// cannot commit an overlapping row (surfaces as IsConflict).
type SessionRepository struct {
	pool *db.Pool
}

func NewSessionRepository(pool *db.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *SessionRepository) Create(ctx context.Context, tx pgx.Tx, s *model.Session) error {
	startMin, err := timetable.MinuteOfDay(s.Start)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO sessions
			(id, member_id, member_name, date, start_clock, start_minute, end_minute, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.MemberID, s.MemberName, s.Date, s.Start,
		startMin, startMin+s.DurationMinutes, s.DurationMinutes)
	return err
}

func (r *SessionRepository) Get(ctx context.Context, id string) (model.Session, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, member_id, member_name, date, start_clock, duration_minutes, created_at
		FROM sessions
		WHERE id = $1
	`, id))
}

func (r *SessionRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Session, error) {
	return r.scanOne(tx.QueryRow(ctx, `
		SELECT id, member_id, member_name, date, start_clock, duration_minutes, created_at
		FROM sessions
		WHERE id = $1
		FOR UPDATE
	`, id))
}

// Delete removes the session outright; cancellation has no tombstone, the
// freed slot is simply recomputed from the remaining rows.
func (r *SessionRepository) Delete(ctx context.Context, tx pgx.Tx, id string) (model.Session, error) {
	return r.scanOne(tx.QueryRow(ctx, `
		DELETE FROM sessions
		WHERE id = $1
		RETURNING id, member_id, member_name, date, start_clock, duration_minutes, created_at
	`, id))
}

// Move rewrites date/start in place, used only by approved reschedules.
func (r *SessionRepository) Move(ctx context.Context, tx pgx.Tx, id, newDate, newStart string) error {
	startMin, err := timetable.MinuteOfDay(newStart)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE sessions
		SET date = $2,
			start_clock = $3,
			start_minute = $4,
			end_minute = $4 + duration_minutes
		WHERE id = $1
	`, id, newDate, newStart, startMin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *SessionRepository) ListByDate(ctx context.Context, date string) ([]model.Session, error) {
	return r.list(ctx, `
		SELECT id, member_id, member_name, date, start_clock, duration_minutes, created_at
		FROM sessions
		WHERE date = $1
		ORDER BY start_minute
	`, date)
}

func (r *SessionRepository) ListRange(ctx context.Context, fromDate, toDate string) ([]model.Session, error) {
	return r.list(ctx, `
		SELECT id, member_id, member_name, date, start_clock, duration_minutes, created_at
		FROM sessions
		WHERE date >= $1 AND date <= $2
		ORDER BY date, start_minute
	`, fromDate, toDate)
}

func (r *SessionRepository) CountForMember(ctx context.Context, tx pgx.Tx, memberID string) (int, error) {
	var cnt int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM sessions WHERE member_id = $1
	`, memberID).Scan(&cnt)
	return cnt, err
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.MemberID, &s.MemberName, &s.Date, &s.Start, &s.DurationMinutes, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepository) scanOne(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.MemberID, &s.MemberName, &s.Date, &s.Start, &s.DurationMinutes, &s.CreatedAt)
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
