package entitlements

import "testing"

func TestLimitsForTier(t *testing.T) {
	cases := []struct {
		tier        string
		wantTier    string
		booking     bool
		buddyChat   bool
	}{
		{"premium", "premium", true, true},
		{"core_buddy", "core_buddy", false, true},
		{"block", "block", true, false},
		{"free", "free", false, false},
		{"unknown", "free", false, false},
		{"", "free", false, false},
	}
	for _, c := range cases {
		got := LimitsForTier(c.tier)
		if got.Tier != c.wantTier {
			t.Fatalf("tier %q: got %q, want %q", c.tier, got.Tier, c.wantTier)
		}
		if got.SessionBooking != c.booking {
			t.Fatalf("tier %q: session booking %v, want %v", c.tier, got.SessionBooking, c.booking)
		}
		if got.BuddyChat != c.buddyChat {
			t.Fatalf("tier %q: buddy chat %v, want %v", c.tier, got.BuddyChat, c.buddyChat)
		}
	}
}
