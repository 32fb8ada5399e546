package storage

import (
	"context"
	"time"

	"github.com/corebuddy/studiocore/libs/db"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type RescheduleRepository struct {
	pool *db.Pool
}

func NewRescheduleRepository(pool *db.Pool) *RescheduleRepository {
	return &RescheduleRepository{pool: pool}
}

// Create inserts a pending request. A partial unique index on (session_id)
// WHERE status = 'pending' makes the one-pending-per-session rule a data-layer
// guarantee (IsDuplicate), not a UI lookup.
func (r *RescheduleRepository) Create(ctx context.Context, tx pgx.Tx, req *model.RescheduleRequest) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reschedule_requests
			(id, session_id, member_id, original_date, original_start, requested_date, requested_start, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
	`, req.ID, req.SessionID, req.MemberID,
		req.OriginalDate, req.OriginalStart, req.RequestedDate, req.RequestedStart)
	return err
}

func (r *RescheduleRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.RescheduleRequest, error) {
	var req model.RescheduleRequest
	err := tx.QueryRow(ctx, `
		SELECT id, session_id, member_id, original_date, original_start,
			requested_date, requested_start, status, created_at, responded_at
		FROM reschedule_requests
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&req.ID, &req.SessionID, &req.MemberID, &req.OriginalDate, &req.OriginalStart,
		&req.RequestedDate, &req.RequestedStart, &req.Status, &req.CreatedAt, &req.RespondedAt)
	if err != nil {
		return model.RescheduleRequest{}, err
	}
	return req, nil
}

func (r *RescheduleRepository) Respond(ctx context.Context, tx pgx.Tx, id string, status model.RescheduleStatus) (time.Time, error) {
	var respondedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE reschedule_requests
		SET status = $2, responded_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING responded_at
	`, id, status).Scan(&respondedAt)
	return respondedAt, err
}

func (r *RescheduleRepository) ListPending(ctx context.Context) ([]model.RescheduleRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, member_id, original_date, original_start,
			requested_date, requested_start, status, created_at, responded_at
		FROM reschedule_requests
		WHERE status = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RescheduleRequest
	for rows.Next() {
		var req model.RescheduleRequest
		if err := rows.Scan(&req.ID, &req.SessionID, &req.MemberID, &req.OriginalDate, &req.OriginalStart,
			&req.RequestedDate, &req.RequestedStart, &req.Status, &req.CreatedAt, &req.RespondedAt); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
