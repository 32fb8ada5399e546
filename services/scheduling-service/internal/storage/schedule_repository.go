package storage

import (
	"context"

	"github.com/corebuddy/studiocore/libs/db"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/model"
)

// ScheduleRepository holds the per-date exceptions to the standing week:
// holidays and blocked/opened tick overrides.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) AddHoliday(ctx context.Context, h model.Holiday) error {
	// date is unique; a duplicate surfaces as IsDuplicate.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO holidays (id, date) VALUES ($1, $2)
	`, h.ID, h.Date)
	return err
}

func (r *ScheduleRepository) RemoveHoliday(ctx context.Context, date string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM holidays WHERE date = $1`, date)
	return err
}

// HolidaySet returns the holiday dates in [fromDate, toDate] keyed for the engine.
func (r *ScheduleRepository) HolidaySet(ctx context.Context, fromDate, toDate string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date FROM holidays WHERE date >= $1 AND date <= $2
	`, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := map[string]struct{}{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		set[d] = struct{}{}
	}
	return set, rows.Err()
}

func (r *ScheduleRepository) AddOverride(ctx context.Context, o model.Override) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_overrides (id, date, start_clock, kind)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date, start_clock, kind) DO NOTHING
	`, o.ID, o.Date, o.Start, o.Kind)
	return err
}

func (r *ScheduleRepository) RemoveOverride(ctx context.Context, date, start string, kind model.OverrideKind) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM schedule_overrides WHERE date = $1 AND start_clock = $2 AND kind = $3
	`, date, start, kind)
	return err
}

// OverridesForDate loads both flavors for one date in engine form.
func (r *ScheduleRepository) OverridesForDate(ctx context.Context, date string) (blocked, opened map[string]struct{}, err error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_clock, kind FROM schedule_overrides WHERE date = $1
	`, date)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	blocked = map[string]struct{}{}
	opened = map[string]struct{}{}
	for rows.Next() {
		var start string
		var kind model.OverrideKind
		if err := rows.Scan(&start, &kind); err != nil {
			return nil, nil, err
		}
		switch kind {
		case model.OverrideBlocked:
			blocked[start] = struct{}{}
		case model.OverrideOpened:
			opened[start] = struct{}{}
		}
	}
	return blocked, opened, rows.Err()
}
