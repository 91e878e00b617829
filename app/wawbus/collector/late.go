package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTransitTools/wawbus/business/analytics"
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
)

// Late matches samples against the timetable and derives how far each vehicle is from the stop it
// most recently should have departed. Reference tables are loaded from refs on first use.
func Late(ctx context.Context,
	refs *References,
	samples []ztm.PositionSample,
	toleranceSeconds int,
	opts analytics.StopDistanceOptions) ([]analytics.StopDistanceSample, error) {

	stops, err := refs.Stops(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load stop locations: %w", err)
	}
	serviceDate := time.Now()
	if len(samples) > 0 {
		serviceDate = samples[0].Time
	}
	timetable, err := refs.Timetable(ctx, serviceDate)
	if err != nil {
		return nil, fmt.Errorf("unable to load timetable: %w", err)
	}
	scheduled, err := analytics.WithSchedule(samples, timetable, stops, toleranceSeconds)
	if err != nil {
		return nil, err
	}
	return analytics.WithStopDistance(scheduled, opts), nil
}
