package analytics

import (
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
)

// MaxSpeedKmh is the highest speed a Warsaw bus can physically reach, faster derived speeds are gps noise
const MaxSpeedKmh = 95.0

// SpeedSample is a position sample with the average speed to the vehicle's next sample
type SpeedSample struct {
	ztm.PositionSample
	// Speed is km/h, nil for a vehicle's last sample or when the next sample has the same timestamp
	Speed *float64 `json:"speed"`
}

// WithSpeed derives the speed of every sample from the straight line distance and elapsed time to the next sample
// of the same vehicle in arrival order. All samples are kept in their original order.
func WithSpeed(samples []ztm.PositionSample) []SpeedSample {
	return NewTrajectory(samples).WithSpeed()
}

// WithSpeed derives speeds over the trajectory's samples
func (t *Trajectory) WithSpeed() []SpeedSample {
	result := make([]SpeedSample, len(t.samples))
	for i, s := range t.samples {
		result[i] = SpeedSample{PositionSample: s}
		j := t.Next(i)
		if j < 0 {
			continue
		}
		n := t.samples[j]
		hours := n.Time.Sub(s.Time).Hours()
		if hours == 0 {
			continue
		}
		speed := Distance(s.Longitude, s.Latitude, n.Longitude, n.Latitude) / hours
		result[i].Speed = &speed
	}
	return result
}

// FilterPlausibleSpeeds returns rows with a defined speed between 0 and maxKmh inclusive
func FilterPlausibleSpeeds(rows []SpeedSample, maxKmh float64) []SpeedSample {
	var result []SpeedSample
	for _, r := range rows {
		if r.Speed == nil || *r.Speed < 0 || *r.Speed > maxKmh {
			continue
		}
		result = append(result, r)
	}
	return result
}
