package storage

import (
	"context"
	"time"

	"github.com/corebuddy/studiocore/libs/db"
	"github.com/corebuddy/studiocore/services/circuit-service/internal/model"
	"github.com/jackc/pgx/v5"
)

// MemberRepository is the circuit-side projection of the member directory.
// Rows are upserted from auth events and carry the strike counter and ban
// window that the attendance workflow mutates.
type MemberRepository struct {
	pool *db.Pool
}

func NewMemberRepository(pool *db.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func (r *MemberRepository) Upsert(ctx context.Context, m model.Member) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO circuit_members (id, name, member_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, member_type = EXCLUDED.member_type
	`, m.ID, m.Name, m.Type)
	return err
}

func (r *MemberRepository) Get(ctx context.Context, id string) (model.Member, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, name, member_type, circuit_strikes, circuit_ban_until
		FROM circuit_members
		WHERE id = $1
	`, id))
}

func (r *MemberRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Member, error) {
	return r.scanOne(tx.QueryRow(ctx, `
		SELECT id, name, member_type, circuit_strikes, circuit_ban_until
		FROM circuit_members
		WHERE id = $1
		FOR UPDATE
	`, id))
}

// ListVIPs returns every circuit_vip member, used to pre-seat them when a
// class roster is first created.
func (r *MemberRepository) ListVIPs(ctx context.Context) ([]model.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, member_type, circuit_strikes, circuit_ban_until
		FROM circuit_members
		WHERE member_type = 'circuit_vip'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Member
	for rows.Next() {
		m, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MemberRepository) SaveDiscipline(ctx context.Context, tx pgx.Tx, m model.Member) error {
	tag, err := tx.Exec(ctx, `
		UPDATE circuit_members
		SET circuit_strikes = $2, circuit_ban_until = $3
		WHERE id = $1
	`, m.ID, m.CircuitStrikes, m.CircuitBanUntil)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *MemberRepository) scanOne(row pgx.Row) (model.Member, error) {
	var m model.Member
	var banUntil *time.Time
	if err := row.Scan(&m.ID, &m.Name, &m.Type, &m.CircuitStrikes, &banUntil); err != nil {
		return model.Member{}, err
	}
	m.CircuitBanUntil = banUntil
	return m, nil
}

func (r *MemberRepository) scanRow(rows pgx.Rows) (model.Member, error) {
	var m model.Member
	var banUntil *time.Time
	if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.CircuitStrikes, &banUntil); err != nil {
		return model.Member{}, err
	}
	m.CircuitBanUntil = banUntil
	return m, nil
}
