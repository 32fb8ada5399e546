package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// MemberEntitlements is the local cache of what billing says a member may book:
// the tier and, for block-package members, the purchased session count.
// Remaining sessions are never stored; they are purchased minus the live count
// of booked sessions.
type MemberEntitlements struct {
	MemberID          string
	Tier              string
	PurchasedSessions int
	UpdatedAt         time.Time
}

func (r *SessionRepository) UpsertMemberEntitlements(ctx context.Context, tx pgx.Tx, ent MemberEntitlements) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO member_entitlements (member_id, tier, purchased_sessions)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id)
		DO UPDATE SET tier = EXCLUDED.tier,
		              purchased_sessions = EXCLUDED.purchased_sessions,
		              updated_at = now()
	`, ent.MemberID, ent.Tier, ent.PurchasedSessions)
	return err
}

func (r *SessionRepository) GetMemberEntitlements(ctx context.Context, tx pgx.Tx, memberID string) (MemberEntitlements, bool, error) {
	var ent MemberEntitlements
	err := tx.QueryRow(ctx, `
		SELECT member_id::text, tier, purchased_sessions, updated_at
		FROM member_entitlements
		WHERE member_id = $1
	`, memberID).Scan(&ent.MemberID, &ent.Tier, &ent.PurchasedSessions, &ent.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return MemberEntitlements{}, false, nil
		}
		return MemberEntitlements{}, false, err
	}
	return ent, true, nil
}
