package analytics

import (
	"errors"
	"math"
	"testing"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/matryer/is"
)

var testStops = []ztm.StopLocation{
	{StopGroup: "7009", Post: "01", Latitude: 52.2, Longitude: 21.0},
	{StopGroup: "7009", Post: "02", Latitude: 52.21, Longitude: 21.01},
}

func TestJoinStops(t *testing.T) {
	is := is.New(t)
	timetable := []ztm.TimetableEntry{
		entry("100", "1", "7009", "01", "12:00:00"),
		entry("100", "1", "9999", "01", "12:05:00"),
		entry("100", "2", "7009", "02", "12:10:00"),
	}
	joined := JoinStops(timetable, testStops)
	is.Equal(len(joined), 2)
	is.Equal(joined[0].ScheduledTime, "12:00:00")
	is.Equal(joined[0].StopLatitude, 52.2)
	is.Equal(joined[1].StopLongitude, 21.01)
	is.Equal(joined[1].Brigade, "2")
}

func TestWithSchedule_toleranceBoundary(t *testing.T) {
	const tolerance = 900
	tests := []struct {
		name          string
		scheduledTime string
		wantMatch     bool
	}{
		{name: "exactly tolerance before", scheduledTime: "11:45:00", wantMatch: true},
		{name: "one second past tolerance", scheduledTime: "11:44:59", wantMatch: false},
		{name: "same second", scheduledTime: "12:00:00", wantMatch: true},
		{name: "after the sample", scheduledTime: "12:00:01", wantMatch: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			samples := []ztm.PositionSample{crewSample("100", "1", "1001", 52.2, 21.0, at(12, 0, 0))}
			timetable := []ztm.TimetableEntry{entry("100", "1", "7009", "01", tt.scheduledTime)}
			rows, err := WithSchedule(samples, timetable, testStops, tolerance)
			is.NoErr(err)
			is.Equal(len(rows), 1)
			is.Equal(rows[0].Schedule != nil, tt.wantMatch)
		})
	}
}

func TestWithSchedule_picksLatestWithinCrew(t *testing.T) {
	is := is.New(t)
	samples := []ztm.PositionSample{
		crewSample("100", "1", "1001", 52.2, 21.0, at(12, 7, 0)),
		crewSample("100", "2", "1002", 52.2, 21.0, at(12, 7, 0)),
		crewSample("180", "1", "1003", 52.2, 21.0, at(12, 7, 0)),
	}
	timetable := []ztm.TimetableEntry{
		entry("100", "1", "7009", "02", "12:05:00"),
		entry("100", "1", "7009", "01", "12:00:00"),
		entry("100", "1", "7009", "01", "12:10:00"),
		entry("100", "2", "7009", "01", "11:30:00"),
	}
	rows, err := WithSchedule(samples, timetable, testStops, DefaultToleranceSeconds)
	is.NoErr(err)
	is.Equal(len(rows), 3)
	is.True(rows[0].Schedule != nil)
	is.Equal(rows[0].Schedule.ScheduledTime, "12:05:00")
	is.Equal(rows[0].Schedule.Post, "02")
	is.True(rows[1].Schedule == nil) // brigade 2 departure is 37 minutes old
	is.True(rows[2].Schedule == nil) // no schedule for line 180
}

func TestWithSchedule_tieBreakFirstRow(t *testing.T) {
	is := is.New(t)
	samples := []ztm.PositionSample{crewSample("100", "1", "1001", 52.2, 21.0, at(12, 1, 0))}
	timetable := []ztm.TimetableEntry{
		entry("100", "1", "7009", "02", "12:00:00"),
		entry("100", "1", "7009", "01", "12:00:00"),
	}
	rows, err := WithSchedule(samples, timetable, testStops, DefaultToleranceSeconds)
	is.NoErr(err)
	is.Equal(rows[0].Schedule.Post, "02")

	timetable[0], timetable[1] = timetable[1], timetable[0]
	rows, err = WithSchedule(samples, timetable, testStops, DefaultToleranceSeconds)
	is.NoErr(err)
	is.Equal(rows[0].Schedule.Post, "01")
}

func TestWithSchedule_orderedByTimeOfDay(t *testing.T) {
	is := is.New(t)
	samples := []ztm.PositionSample{
		crewSample("100", "1", "b", 52.2, 21.0, at(12, 0, 10)),
		crewSample("100", "1", "a", 52.2, 21.0, at(12, 0, 5)),
		crewSample("100", "1", "c", 52.2, 21.0, at(12, 0, 10)),
	}
	rows, err := WithSchedule(samples, nil, testStops, DefaultToleranceSeconds)
	is.NoErr(err)
	is.Equal(len(rows), 3)
	is.Equal(rows[0].VehicleNumber, "a")
	is.Equal(rows[1].VehicleNumber, "b")
	is.Equal(rows[2].VehicleNumber, "c")
}

func TestWithSchedule_pastMidnightScheduleNeverMatches(t *testing.T) {
	is := is.New(t)
	samples := []ztm.PositionSample{crewSample("N01", "1", "1001", 52.2, 21.0, at(0, 10, 0))}
	timetable := []ztm.TimetableEntry{entry("N01", "1", "7009", "01", "24:05:00")}
	rows, err := WithSchedule(samples, timetable, testStops, DefaultToleranceSeconds)
	is.NoErr(err)
	is.True(rows[0].Schedule == nil)
}

func TestWithSchedule_negativeTolerance(t *testing.T) {
	is := is.New(t)
	_, err := WithSchedule(nil, nil, nil, -1)
	is.True(errors.Is(err, ErrNegativeTolerance))
}

func TestWithStopDistance(t *testing.T) {
	is := is.New(t)
	samples := []ztm.PositionSample{
		crewSample("100", "1", "parked", 52.2, 21.0, at(12, 1, 0)),
		crewSample("100", "1", "moving", 52.2, 21.005, at(12, 2, 0)),
		crewSample("100", "1", "moving", 52.2, 21.005, at(12, 2, 0)),
		crewSample("999", "1", "unmatched", 52.2, 21.0, at(12, 3, 0)),
	}
	timetable := []ztm.TimetableEntry{entry("100", "1", "7009", "01", "12:00:00")}
	scheduled, err := WithSchedule(samples, timetable, testStops, DefaultToleranceSeconds)
	is.NoErr(err)

	t.Run("without parked filter", func(t *testing.T) {
		is := is.New(t)
		rows := WithStopDistance(scheduled, StopDistanceOptions{})
		is.Equal(len(rows), 3) // duplicate moving row removed
		is.Equal(rows[0].VehicleNumber, "parked")
		is.True(*rows[0].DistanceKm < 1e-9)
		is.Equal(*rows[0].DelaySeconds, 60)
		is.Equal(rows[1].VehicleNumber, "moving")
		is.True(math.Abs(*rows[1].DistanceKm-0.3408) < 0.001)
		is.Equal(*rows[1].DelaySeconds, 120)
		is.Equal(rows[2].VehicleNumber, "unmatched")
		is.True(rows[2].DistanceKm == nil)
		is.True(rows[2].DelaySeconds == nil)
	})

	t.Run("with parked filter", func(t *testing.T) {
		is := is.New(t)
		rows := WithStopDistance(scheduled, StopDistanceOptions{ParkedRadiusKm: BusLengthKm})
		is.Equal(len(rows), 2)
		is.Equal(rows[0].VehicleNumber, "moving")
		is.Equal(rows[1].VehicleNumber, "unmatched")
	})
}

func TestWithStopDistance_nanDuplicates(t *testing.T) {
	is := is.New(t)
	nan := math.NaN()
	samples := []ztm.PositionSample{
		crewSample("100", "1", "lost", nan, nan, at(12, 4, 0)),
		crewSample("100", "1", "lost", nan, nan, at(12, 4, 0)),
		crewSample("999", "1", "unmatched", nan, 21.0, at(12, 5, 0)),
		crewSample("999", "1", "unmatched", nan, 21.0, at(12, 5, 0)),
	}
	timetable := []ztm.TimetableEntry{entry("100", "1", "7009", "01", "12:00:00")}
	scheduled, err := WithSchedule(samples, timetable, testStops, DefaultToleranceSeconds)
	is.NoErr(err)

	rows := WithStopDistance(scheduled, StopDistanceOptions{ParkedRadiusKm: BusLengthKm})
	is.Equal(len(rows), 2)
	is.Equal(rows[0].VehicleNumber, "lost")
	is.True(math.IsNaN(*rows[0].DistanceKm))
	is.Equal(rows[1].VehicleNumber, "unmatched")
}
