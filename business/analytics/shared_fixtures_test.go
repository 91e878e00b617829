package analytics

import (
	"time"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2021, 1, 1, hour, minute, second, 0, time.UTC)
}

func sample(vehicle string, lat, lon float64, t time.Time) ztm.PositionSample {
	return ztm.PositionSample{
		Line:          "100",
		Latitude:      lat,
		Longitude:     lon,
		VehicleNumber: vehicle,
		Brigade:       "1",
		Time:          t,
	}
}

func crewSample(line, brigade, vehicle string, lat, lon float64, t time.Time) ztm.PositionSample {
	s := sample(vehicle, lat, lon, t)
	s.Line = line
	s.Brigade = brigade
	return s
}

func entry(line, brigade, stopGroup, post, scheduledTime string) ztm.TimetableEntry {
	return ztm.TimetableEntry{
		Line:          line,
		StopGroup:     stopGroup,
		Post:          post,
		Brigade:       brigade,
		ScheduledTime: scheduledTime,
		Route:         "TP-A",
		Direction:     "Centrum",
	}
}

func ptrFloat(f float64) *float64 {
	return &f
}
