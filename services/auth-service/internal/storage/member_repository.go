package storage

import (
	"context"

	"github.com/corebuddy/studiocore/libs/db"
	"github.com/jackc/pgx/v5"
)

type Member struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	MemberType   string
}

type MemberRepository struct {
	pool *db.Pool
}

func NewMemberRepository(pool *db.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func (r *MemberRepository) CreateTx(ctx context.Context, tx pgx.Tx, m Member) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO members (id, name, email, password_hash, role, member_type)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.Name, m.Email, m.PasswordHash, m.Role, m.MemberType)
	return err
}

func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (Member, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

func (r *MemberRepository) GetByID(ctx context.Context, id string) (Member, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *MemberRepository) get(ctx context.Context, where string, arg any) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, role, member_type
		FROM members
	`+where, arg).Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &m.Role, &m.MemberType)
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

func (r *MemberRepository) SetMemberTypeTx(ctx context.Context, tx pgx.Tx, id string, memberType string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE members SET member_type = $2, updated_at = now() WHERE id = $1
	`, id, memberType)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
