package subscriptions

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/corebuddy/studiocore/libs/outbox"
	"github.com/corebuddy/studiocore/services/billing-service/internal/entitlements"
	"github.com/corebuddy/studiocore/services/billing-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// Service encapsulates subscription state transitions and the side effects (outbox events).
// Keeping this out of HTTP handlers makes it reusable for webhook + reconciliation flows.
type Service struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository) *Service {
	return &Service{repo: repo, outboxRepo: outboxRepo}
}

// ApplyActivated records an entitled subscription (status active or trialing)
// for a member and fans the change out to the other services.
func (s *Service) ApplyActivated(ctx context.Context, tx pgx.Tx, memberID, tier, status string, activatedAt time.Time, provider string, stripeCustomerID string, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	if status == "" {
		status = "active"
	}
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, memberID)
	if err != nil {
		return err
	}

	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		MemberID:             memberID,
		Tier:                 tier,
		Status:               status,
		Provider:             provider,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		PurchasedSessions:    existing.PurchasedSessions,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}); err != nil {
		return err
	}

	// Only emit when the effective entitlement changes (tier/status). Provider ID updates alone shouldn't fan out.
	if ok && existing.Status == status && existing.Tier == tier {
		return nil
	}

	return s.emit(ctx, tx, "billing.subscription.activated.v1", memberID, tier, status, existing.PurchasedSessions, map[string]string{
		"activated_at": activatedAt.UTC().Format(time.RFC3339),
	})
}

// ApplyCanceled drops the member back to the free tier. Status distinguishes a
// member-initiated cancellation from a provider-side expiry.
func (s *Service) ApplyCanceled(ctx context.Context, tx pgx.Tx, memberID, status string, canceledAt time.Time, provider string, stripeCustomerID string, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	if status == "" {
		status = "cancelled"
	}
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, memberID)
	if err != nil {
		return err
	}

	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		MemberID:             memberID,
		Tier:                 "free",
		Status:               status,
		Provider:             provider,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		PurchasedSessions:    existing.PurchasedSessions,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}); err != nil {
		return err
	}

	if ok && existing.Status == status && existing.Tier == "free" {
		return nil
	}

	return s.emit(ctx, tx, "billing.subscription.canceled.v1", memberID, "free", status, existing.PurchasedSessions, map[string]string{
		"canceled_at": canceledAt.UTC().Format(time.RFC3339),
	})
}

// ApplyPackPurchased credits a block member's session-pack purchase and fans
// the new balance out so scheduling can enforce it locally.
func (s *Service) ApplyPackPurchased(ctx context.Context, tx pgx.Tx, memberID string, qty int, purchasedAt time.Time) error {
	total, err := s.repo.AddPurchasedSessions(ctx, tx, memberID, qty)
	if err != nil {
		return err
	}
	return s.emit(ctx, tx, "billing.subscription.activated.v1", memberID, "block", "active", total, map[string]string{
		"purchased_at":  purchasedAt.UTC().Format(time.RFC3339),
		"pack_quantity": strconv.Itoa(qty),
	})
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType, memberID, tier, status string, purchasedSessions int, extra map[string]string) error {
	limits := entitlements.LimitsForTier(tier)
	body := map[string]any{
		"member_id":          memberID,
		"tier":               limits.Tier,
		"status":             status,
		"purchased_sessions": purchasedSessions,
		"entitlements":       limits,
	}
	for k, v := range extra {
		if v != "" {
			body[k] = v
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   memberID,
		EventType:     eventType,
		Payload:       payload,
	})
}
