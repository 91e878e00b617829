package analytics

import (
	"errors"
	"sort"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
)

// DefaultToleranceSeconds is how far back from a sample a scheduled departure may be and still match
const DefaultToleranceSeconds = 15 * 60

// ErrNegativeTolerance is returned when a schedule join is requested with a negative tolerance
var ErrNegativeTolerance = errors.New("tolerance must not be negative")

// ScheduledSample is a position sample with the departure its crew was scheduled to make most recently
type ScheduledSample struct {
	ztm.PositionSample
	// Schedule is nil when no departure of the sample's line and brigade falls within the tolerance
	Schedule *ztm.JoinedScheduleRow `json:"schedule,omitempty"`
}

// JoinStops attaches stop locations to timetable entries. Entries whose stop has no known location are discarded.
func JoinStops(timetable []ztm.TimetableEntry, stops []ztm.StopLocation) []ztm.JoinedScheduleRow {
	locations := make(map[ztm.StopKey]ztm.StopLocation, len(stops))
	for _, s := range stops {
		if _, present := locations[s.Key()]; !present {
			locations[s.Key()] = s
		}
	}
	result := make([]ztm.JoinedScheduleRow, 0, len(timetable))
	for _, e := range timetable {
		location, ok := locations[e.StopKey()]
		if !ok {
			continue
		}
		result = append(result, ztm.JoinedScheduleRow{
			TimetableEntry: e,
			StopLatitude:   location.Latitude,
			StopLongitude:  location.Longitude,
		})
	}
	return result
}

// crewKey identifies a crew: a brigade working a line
type crewKey struct {
	line    string
	brigade string
}

type scheduledDeparture struct {
	seconds int
	row     int
}

// crewSchedules groups joined rows by crew, each group ordered by schedule seconds and then by original position.
// Rows with an unparseable scheduled time can never match and are left out.
func crewSchedules(rows []ztm.JoinedScheduleRow) map[crewKey][]scheduledDeparture {
	result := make(map[crewKey][]scheduledDeparture)
	for i, r := range rows {
		seconds, err := r.ScheduleSeconds()
		if err != nil {
			continue
		}
		key := crewKey{line: r.Line, brigade: r.Brigade}
		result[key] = append(result[key], scheduledDeparture{seconds: seconds, row: i})
	}
	for _, departures := range result {
		sort.SliceStable(departures, func(i, j int) bool {
			return departures[i].seconds < departures[j].seconds
		})
	}
	return result
}

// latestDeparture finds the departure with the largest seconds not after sampleSeconds and at most
// toleranceSeconds before it. Equal seconds resolve to the earliest row. Returns -1 when none qualifies.
func latestDeparture(departures []scheduledDeparture, sampleSeconds, toleranceSeconds int) int {
	k := sort.Search(len(departures), func(i int) bool {
		return departures[i].seconds > sampleSeconds
	}) - 1
	if k < 0 || sampleSeconds-departures[k].seconds > toleranceSeconds {
		return -1
	}
	for k > 0 && departures[k-1].seconds == departures[k].seconds {
		k--
	}
	return departures[k].row
}

// WithSchedule matches each sample against the most recent departure of its line and brigade, by time of day,
// that is at most toleranceSeconds earlier. Unmatched samples are kept with a nil Schedule.
// The result is ordered by sample time of day, samples with equal time of day keep their arrival order.
func WithSchedule(samples []ztm.PositionSample,
	timetable []ztm.TimetableEntry,
	stops []ztm.StopLocation,
	toleranceSeconds int) ([]ScheduledSample, error) {

	if toleranceSeconds < 0 {
		return nil, ErrNegativeTolerance
	}
	joined := JoinStops(timetable, stops)
	schedules := crewSchedules(joined)

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return SecondsSinceMidnight(samples[order[i]].Time) < SecondsSinceMidnight(samples[order[j]].Time)
	})

	result := make([]ScheduledSample, 0, len(samples))
	for _, i := range order {
		s := samples[i]
		scheduled := ScheduledSample{PositionSample: s}
		departures := schedules[crewKey{line: s.Line, brigade: s.Brigade}]
		if row := latestDeparture(departures, SecondsSinceMidnight(s.Time), toleranceSeconds); row >= 0 {
			match := joined[row]
			scheduled.Schedule = &match
		}
		result = append(result, scheduled)
	}
	return result, nil
}
