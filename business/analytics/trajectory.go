package analytics

import (
	"sort"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
)

// Trajectory is an append only collection of position samples kept in arrival order.
// A Trajectory is owned by one goroutine, it is not safe for concurrent use.
type Trajectory struct {
	samples []ztm.PositionSample
	// byVehicle holds indexes into samples for each vehicle in arrival order
	byVehicle map[string][]int
	vehicles  []string
}

// NewTrajectory builds a Trajectory holding samples in the order given
func NewTrajectory(samples []ztm.PositionSample) *Trajectory {
	t := &Trajectory{byVehicle: make(map[string][]int)}
	t.Append(samples...)
	return t
}

// Append adds samples after all previously accumulated ones
func (t *Trajectory) Append(samples ...ztm.PositionSample) {
	if t.byVehicle == nil {
		t.byVehicle = make(map[string][]int)
	}
	for _, s := range samples {
		idx, present := t.byVehicle[s.VehicleNumber]
		if !present {
			t.vehicles = append(t.vehicles, s.VehicleNumber)
		}
		t.byVehicle[s.VehicleNumber] = append(idx, len(t.samples))
		t.samples = append(t.samples, s)
	}
}

func (t *Trajectory) Len() int {
	return len(t.samples)
}

// Samples returns a copy of all samples in arrival order
func (t *Trajectory) Samples() []ztm.PositionSample {
	result := make([]ztm.PositionSample, len(t.samples))
	copy(result, t.samples)
	return result
}

// Vehicles returns vehicle numbers in order of first appearance
func (t *Trajectory) Vehicles() []string {
	result := make([]string, len(t.vehicles))
	copy(result, t.vehicles)
	return result
}

func (t *Trajectory) VehicleCount() int {
	return len(t.vehicles)
}

// VehicleSamples returns a copy of samples reported for vehicleNumber in arrival order
func (t *Trajectory) VehicleSamples(vehicleNumber string) []ztm.PositionSample {
	idx := t.byVehicle[vehicleNumber]
	result := make([]ztm.PositionSample, len(idx))
	for i, j := range idx {
		result[i] = t.samples[j]
	}
	return result
}

// Latest returns the most recently appended sample of each vehicle, in order of first appearance
func (t *Trajectory) Latest() []ztm.PositionSample {
	result := make([]ztm.PositionSample, 0, len(t.vehicles))
	for _, v := range t.vehicles {
		idx := t.byVehicle[v]
		result = append(result, t.samples[idx[len(idx)-1]])
	}
	return result
}

// Next returns the index of the sample following sample i for the same vehicle, or -1 when i is the vehicle's last
func (t *Trajectory) Next(i int) int {
	if i < 0 || i >= len(t.samples) {
		return -1
	}
	idx := t.byVehicle[t.samples[i].VehicleNumber]
	k := sort.SearchInts(idx, i)
	if k+1 < len(idx) {
		return idx[k+1]
	}
	return -1
}
