package storage

import (
	"context"
	"encoding/json"

	"github.com/corebuddy/studiocore/libs/db"
	"github.com/jackc/pgx/v5"
)

// Notification is one delivery attempt, kept as an audit log.
type Notification struct {
	SessionID string
	MemberID  string
	Channel   string
	Recipient string
	Payload   map[string]any
	Status    string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (session_id, member_id, channel, recipient, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.SessionID, n.MemberID, n.Channel, n.Recipient, payload, n.Status)
	return err
}

// Contact is a projection of a member's reachable addresses, kept current
// from auth events so deliveries never call across services.
type Contact struct {
	MemberID string
	Name     string
	Email    string
}

func (r *Repository) UpsertContact(ctx context.Context, c Contact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO member_contacts (member_id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, updated_at = now()
	`, c.MemberID, c.Name, c.Email)
	return err
}

func (r *Repository) GetContact(ctx context.Context, memberID string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT member_id, name, email FROM member_contacts WHERE member_id = $1
	`, memberID).Scan(&c.MemberID, &c.Name, &c.Email)
	return c, err
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
