package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/corebuddy/studiocore/libs/db"
	"github.com/corebuddy/studiocore/services/circuit-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CircuitRepository persists one roster document per class date. The whole
// roster (slots, waitlist, VIP opt-outs) lives in a single JSONB column and
// every mutation runs as a SELECT ... FOR UPDATE read-modify-write, so two
// members racing for the last slot serialize on the row lock.
type CircuitRepository struct {
	pool *db.Pool
}

func NewCircuitRepository(pool *db.Pool) *CircuitRepository {
	return &CircuitRepository{pool: pool}
}

func (r *CircuitRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *CircuitRepository) CreateSession(ctx context.Context, tx pgx.Tx, s *model.CircuitSession) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO circuit_sessions (date, payload)
		VALUES ($1, $2)
	`, s.Date, payload)
	return err
}

func (r *CircuitRepository) GetSession(ctx context.Context, date string) (*model.CircuitSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `
		SELECT payload FROM circuit_sessions WHERE date = $1
	`, date))
}

func (r *CircuitRepository) GetSessionForUpdate(ctx context.Context, tx pgx.Tx, date string) (*model.CircuitSession, error) {
	return scanSession(tx.QueryRow(ctx, `
		SELECT payload FROM circuit_sessions WHERE date = $1 FOR UPDATE
	`, date))
}

func (r *CircuitRepository) SaveSession(ctx context.Context, tx pgx.Tx, s *model.CircuitSession) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE circuit_sessions
		SET payload = $2, updated_at = now()
		WHERE date = $1
	`, s.Date, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanSession(row pgx.Row) (*model.CircuitSession, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		return nil, err
	}
	var s model.CircuitSession
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
