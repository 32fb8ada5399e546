package handlers

import (
	"testing"

	"github.com/stripe/stripe-go/v79"
)

func TestMapSubscriptionStatus(t *testing.T) {
	cases := []struct {
		in   stripe.SubscriptionStatus
		want string
	}{
		{stripe.SubscriptionStatusActive, "active"},
		{stripe.SubscriptionStatusTrialing, "trialing"},
		{stripe.SubscriptionStatusCanceled, "cancelled"},
		{stripe.SubscriptionStatusUnpaid, "expired"},
		{stripe.SubscriptionStatusIncompleteExpired, "expired"},
		{stripe.SubscriptionStatusPastDue, "expired"},
	}
	for _, c := range cases {
		if got := mapSubscriptionStatus(c.in); got != c.want {
			t.Fatalf("%s: got %q, want %q", c.in, got, c.want)
		}
	}
}
