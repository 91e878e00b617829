package analytics

import (
	"math"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
)

// BusLengthKm is the length of the longest bus in the fleet. A bus closer than this to its stop is most likely
// standing at it.
const BusLengthKm = 0.018

// StopDistanceOptions controls WithStopDistance
type StopDistanceOptions struct {
	// ParkedRadiusKm removes matched rows closer than this to their scheduled stop when greater than zero
	ParkedRadiusKm float64
}

// StopDistanceSample is a scheduled sample with its distance from the scheduled stop
type StopDistanceSample struct {
	ScheduledSample
	// DistanceKm is nil when the sample has no scheduled departure
	DistanceKm *float64 `json:"dist"`
	// DelaySeconds is the time of day of the sample minus the scheduled departure, nil when unmatched
	DelaySeconds *int `json:"delay"`
}

// stopDistanceKey identifies a row for duplicate removal. Floats are held as bits from floatKey so that
// NaN compares equal to NaN.
type stopDistanceKey struct {
	line          string
	latitude      uint64
	longitude     uint64
	vehicleNumber string
	brigade       string
	unixNano      int64
	matched       bool
	schedule      ztm.TimetableEntry
	stopLatitude  uint64
	stopLongitude uint64
	distance      uint64
	delay         int
}

// floatKey maps every NaN to one value and -0 to 0
func floatKey(f float64) uint64 {
	switch {
	case math.IsNaN(f):
		return math.Float64bits(math.NaN())
	case f == 0:
		return 0
	}
	return math.Float64bits(f)
}

func (s StopDistanceSample) key() stopDistanceKey {
	k := stopDistanceKey{
		line:          s.Line,
		latitude:      floatKey(s.Latitude),
		longitude:     floatKey(s.Longitude),
		vehicleNumber: s.VehicleNumber,
		brigade:       s.Brigade,
		unixNano:      s.Time.UnixNano(),
	}
	if s.Schedule != nil {
		k.matched = true
		k.schedule = s.Schedule.TimetableEntry
		k.stopLatitude = floatKey(s.Schedule.StopLatitude)
		k.stopLongitude = floatKey(s.Schedule.StopLongitude)
		k.distance = floatKey(*s.DistanceKm)
	}
	if s.DelaySeconds != nil {
		k.delay = *s.DelaySeconds
	}
	return k
}

// WithStopDistance derives the distance of each sample from its scheduled stop and how late the vehicle is.
// Rows that are exact duplicates of an earlier row are removed.
func WithStopDistance(rows []ScheduledSample, opts StopDistanceOptions) []StopDistanceSample {
	seen := make(map[stopDistanceKey]struct{}, len(rows))
	result := make([]StopDistanceSample, 0, len(rows))
	for _, r := range rows {
		row := StopDistanceSample{ScheduledSample: r}
		if r.Schedule != nil {
			distance := Distance(r.Longitude, r.Latitude, r.Schedule.StopLongitude, r.Schedule.StopLatitude)
			if opts.ParkedRadiusKm > 0 && distance < opts.ParkedRadiusKm {
				continue
			}
			row.DistanceKm = &distance
			if scheduleSeconds, err := r.Schedule.ScheduleSeconds(); err == nil {
				delay := SecondsSinceMidnight(r.Time) - scheduleSeconds
				row.DelaySeconds = &delay
			}
		}
		key := row.key()
		if _, present := seen[key]; present {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, row)
	}
	return result
}
