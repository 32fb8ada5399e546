package timetable

import (
	"testing"
	"time"
)

func TestTrainerWeekShape(t *testing.T) {
	week := TrainerWeek()

	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday} {
		plan, ok := week[d]
		if !ok {
			t.Fatalf("%s should be open", d)
		}
		if plan.Morning == nil || plan.Afternoon == nil {
			t.Fatalf("%s should have both blocks", d)
		}
		if plan.DefaultBlocked {
			t.Fatalf("%s should not be default-blocked", d)
		}
	}

	friday := week[time.Friday]
	if !friday.DefaultBlocked {
		t.Fatal("Friday should be default-blocked")
	}
	if friday.Afternoon == nil || friday.Afternoon.End != "18:00" {
		t.Fatal("Friday afternoon should close at 18:00")
	}

	if _, ok := week[time.Saturday]; ok {
		t.Fatal("Saturday should be closed")
	}
	if _, ok := week[time.Sunday]; ok {
		t.Fatal("Sunday should be closed")
	}
}
