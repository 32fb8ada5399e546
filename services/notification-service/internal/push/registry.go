package push

import (
	"context"

	"github.com/corebuddy/studiocore/libs/db"
)

type Token struct {
	MemberID string
	Token    string
	Platform string
}

// TokenRepository is the device-token registry. A token belongs to exactly one
// member; re-registering moves it.
type TokenRepository struct {
	pool *db.Pool
}

func NewTokenRepository(pool *db.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Register(ctx context.Context, t Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO push_tokens (member_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE
		SET member_id = EXCLUDED.member_id,
		    platform = EXCLUDED.platform,
		    updated_at = now()
	`, t.MemberID, t.Token, t.Platform)
	return err
}

func (r *TokenRepository) Remove(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM push_tokens WHERE token = $1`, token)
	return err
}

func (r *TokenRepository) TokensForMember(ctx context.Context, memberID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT token FROM push_tokens WHERE member_id = $1
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Prune drops tokens the provider reported as dead.
func (r *TokenRepository) Prune(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM push_tokens WHERE token = ANY($1)`, tokens)
	return err
}
