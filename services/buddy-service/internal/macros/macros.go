package macros

import (
	"errors"
	"math"
)

// Profile is the onboarding data the macro targets are derived from.
type Profile struct {
	Sex           string  `json:"sex"`
	Age           int     `json:"age"`
	HeightCM      float64 `json:"height_cm"`
	WeightKG      float64 `json:"weight_kg"`
	ActivityLevel string  `json:"activity_level"`
	Goal          string  `json:"goal"`
}

type Targets struct {
	BMR      int `json:"bmr"`
	Calories int `json:"calories"`
	ProteinG int `json:"protein_g"`
	FatG     int `json:"fat_g"`
	CarbsG   int `json:"carbs_g"`
}

var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// Goal adjustments in kcal/day relative to maintenance.
var goalAdjustments = map[string]float64{
	"lose":     -500,
	"maintain": 0,
	"gain":     300,
}

var (
	ErrInvalidProfile  = errors.New("profile values out of range")
	ErrUnknownActivity = errors.New("unknown activity level")
	ErrUnknownGoal     = errors.New("unknown goal")
)

// Calculate derives daily targets from a profile using the Mifflin-St Jeor
// equation. Protein is fixed at 1.8 g/kg bodyweight, fat at 25% of calories,
// carbs take the remainder.
func Calculate(p Profile) (Targets, error) {
	if p.Age <= 0 || p.Age > 120 || p.HeightCM <= 0 || p.WeightKG <= 0 {
		return Targets{}, ErrInvalidProfile
	}
	multiplier, ok := activityMultipliers[p.ActivityLevel]
	if !ok {
		return Targets{}, ErrUnknownActivity
	}
	adjustment, ok := goalAdjustments[p.Goal]
	if !ok {
		return Targets{}, ErrUnknownGoal
	}

	bmr := 10*p.WeightKG + 6.25*p.HeightCM - 5*float64(p.Age)
	switch p.Sex {
	case "male":
		bmr += 5
	case "female":
		bmr -= 161
	default:
		return Targets{}, ErrInvalidProfile
	}

	calories := bmr*multiplier + adjustment
	// 1200 kcal floor: aggressive deficits for light people are a safety issue,
	// not a maths one.
	if calories < 1200 {
		calories = 1200
	}

	proteinG := 1.8 * p.WeightKG
	fatG := calories * 0.25 / 9
	carbsG := (calories - proteinG*4 - fatG*9) / 4
	if carbsG < 0 {
		carbsG = 0
	}

	return Targets{
		BMR:      int(math.Round(bmr)),
		Calories: int(math.Round(calories)),
		ProteinG: int(math.Round(proteinG)),
		FatG:     int(math.Round(fatG)),
		CarbsG:   int(math.Round(carbsG)),
	}, nil
}
