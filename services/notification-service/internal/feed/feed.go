package feed

import (
	"context"
	"time"

	"github.com/corebuddy/studiocore/libs/db"
)

// TTL is how long a feed entry stays visible before it ages out.
const TTL = 7 * 24 * time.Hour

type Entry struct {
	ID        int64     `json:"id"`
	MemberID  string    `json:"member_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	RefID     string    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository is the per-member in-app notification feed. Entries surface once,
// can be dismissed, and expire after TTL.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feed_entries (member_id, kind, title, body, ref_id)
		VALUES ($1, $2, $3, $4, $5)
	`, e.MemberID, e.Kind, e.Title, e.Body, e.RefID)
	return err
}

func (r *Repository) ListActive(ctx context.Context, memberID string, now time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, kind, title, body, COALESCE(ref_id, ''), created_at
		FROM feed_entries
		WHERE member_id = $1
		  AND dismissed_at IS NULL
		  AND created_at > $2
		ORDER BY created_at DESC
	`, memberID, now.Add(-TTL))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Kind, &e.Title, &e.Body, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Dismiss hides an entry; the member filter stops one member dismissing
// another's feed.
func (r *Repository) Dismiss(ctx context.Context, id int64, memberID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE feed_entries
		SET dismissed_at = now()
		WHERE id = $1 AND member_id = $2 AND dismissed_at IS NULL
	`, id, memberID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeExpired is housekeeping for aged-out rows.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM feed_entries WHERE created_at <= $1
	`, now.Add(-TTL))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
