package macros

import "testing"

func TestCalculateMale(t *testing.T) {
	got, err := Calculate(Profile{
		Sex:           "male",
		Age:           30,
		HeightCM:      180,
		WeightKG:      80,
		ActivityLevel: "moderate",
		Goal:          "maintain",
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// BMR = 10*80 + 6.25*180 - 5*30 + 5 = 1780
	if got.BMR != 1780 {
		t.Fatalf("bmr: got %d, want 1780", got.BMR)
	}
	// 1780 * 1.55 = 2759
	if got.Calories != 2759 {
		t.Fatalf("calories: got %d, want 2759", got.Calories)
	}
	if got.ProteinG != 144 {
		t.Fatalf("protein: got %d, want 144", got.ProteinG)
	}
}

func TestCalculateFemale(t *testing.T) {
	got, err := Calculate(Profile{
		Sex:           "female",
		Age:           25,
		HeightCM:      165,
		WeightKG:      60,
		ActivityLevel: "light",
		Goal:          "lose",
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// BMR = 10*60 + 6.25*165 - 5*25 - 161 = 1345.25
	if got.BMR != 1345 {
		t.Fatalf("bmr: got %d, want 1345", got.BMR)
	}
	// 1345.25 * 1.375 - 500 = 1349.72
	if got.Calories != 1350 {
		t.Fatalf("calories: got %d, want 1350", got.Calories)
	}
}

func TestCalculateCalorieFloor(t *testing.T) {
	got, err := Calculate(Profile{
		Sex:           "female",
		Age:           40,
		HeightCM:      150,
		WeightKG:      45,
		ActivityLevel: "sedentary",
		Goal:          "lose",
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if got.Calories != 1200 {
		t.Fatalf("calories should floor at 1200, got %d", got.Calories)
	}
}

func TestCalculateRejectsBadInput(t *testing.T) {
	base := Profile{Sex: "male", Age: 30, HeightCM: 180, WeightKG: 80, ActivityLevel: "moderate", Goal: "maintain"}

	p := base
	p.Age = 0
	if _, err := Calculate(p); err != ErrInvalidProfile {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}

	p = base
	p.Sex = "other"
	if _, err := Calculate(p); err != ErrInvalidProfile {
		t.Fatalf("expected ErrInvalidProfile for unknown sex, got %v", err)
	}

	p = base
	p.ActivityLevel = "couch"
	if _, err := Calculate(p); err != ErrUnknownActivity {
		t.Fatalf("expected ErrUnknownActivity, got %v", err)
	}

	p = base
	p.Goal = "bulk2x"
	if _, err := Calculate(p); err != ErrUnknownGoal {
		t.Fatalf("expected ErrUnknownGoal, got %v", err)
	}
}

func TestMacroSplitAddsUp(t *testing.T) {
	got, err := Calculate(Profile{
		Sex:           "male",
		Age:           35,
		HeightCM:      175,
		WeightKG:      90,
		ActivityLevel: "active",
		Goal:          "gain",
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	kcal := got.ProteinG*4 + got.FatG*9 + got.CarbsG*4
	diff := kcal - got.Calories
	if diff < -20 || diff > 20 {
		t.Fatalf("macro kcal %d too far from target %d", kcal, got.Calories)
	}
}
