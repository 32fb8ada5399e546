package entitlements

// Limits represents the member-facing entitlements derived from a tier.
// Keep this small and stable: other services rely on these to enforce behavior.
type Limits struct {
	Tier              string `json:"tier"`
	SessionBooking    bool   `json:"session_booking"`
	BuddyChat         bool   `json:"buddy_chat"`
	NutritionTracking bool   `json:"nutrition_tracking"`
	MaxActiveBookings int32  `json:"max_active_bookings"`
}

func LimitsForTier(tier string) Limits {
	switch tier {
	case "premium":
		return Limits{
			Tier:              "premium",
			SessionBooking:    true,
			BuddyChat:         true,
			NutritionTracking: true,
			MaxActiveBookings: 10,
		}
	case "core_buddy":
		return Limits{
			Tier:              "core_buddy",
			SessionBooking:    false,
			BuddyChat:         true,
			NutritionTracking: true,
			MaxActiveBookings: 0,
		}
	case "block":
		// Block members book against their purchased pack balance.
		return Limits{
			Tier:              "block",
			SessionBooking:    true,
			BuddyChat:         false,
			NutritionTracking: false,
			MaxActiveBookings: 5,
		}
	default:
		return Limits{
			Tier:              "free",
			SessionBooking:    false,
			BuddyChat:         false,
			NutritionTracking: false,
			MaxActiveBookings: 0,
		}
	}
}
