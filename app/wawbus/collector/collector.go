// Package collector polls the ZTM api for vehicle positions and timetables and accumulates the results
package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/OpenTransitTools/wawbus/business/analytics"
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/business/ztmapi"
	"github.com/OpenTransitTools/wawbus/foundation/metrics"
)

// PositionSource provides the current positions of a fleet
type PositionSource interface {
	BusPositions(ctx context.Context, vehicleType ztm.VehicleType) ([]ztm.PositionRecord, error)
}

// Summary describes the outcome of a Collect call
type Summary struct {
	RequestedPolls  int
	SuccessfulPolls int
	Samples         int
	DroppedSamples  int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d polls succeeded, %d samples collected, %d dropped",
		s.SuccessfulPolls, s.RequestedPolls, s.Samples, s.DroppedSamples)
}

// Collector accumulates positions from a PositionSource into its Trajectory
type Collector struct {
	log         *log.Logger
	source      PositionSource
	vehicleType ztm.VehicleType
	trajectory  *analytics.Trajectory
	publisher   *Publisher
	metrics     *metrics.Collector
	wait        func(ctx context.Context, d time.Duration) error
}

// NewCollector builds a Collector with an empty Trajectory. publisher and metricsCollector may be nil.
func NewCollector(log *log.Logger,
	source PositionSource,
	vehicleType ztm.VehicleType,
	publisher *Publisher,
	metricsCollector *metrics.Collector) *Collector {
	return &Collector{
		log:         log,
		source:      source,
		vehicleType: vehicleType,
		trajectory:  analytics.NewTrajectory(nil),
		publisher:   publisher,
		metrics:     metricsCollector,
		wait:        sleepContext,
	}
}

// Trajectory returns the samples accumulated so far. Previously collected samples may be appended to it
// before calling Collect.
func (c *Collector) Trajectory() *analytics.Trajectory {
	return c.trajectory
}

// Collect polls the source count times waiting delay between polls. A failed poll is logged and
// contributes nothing but the delay is still observed. Collect returns early with the context's error
// when ctx is done.
func (c *Collector) Collect(ctx context.Context, count int, delay time.Duration) (Summary, error) {
	summary := Summary{RequestedPolls: count}
	if c.source == nil {
		return summary, ztmapi.ErrMissingAPIKey
	}
	c.publisher.startRun(c.vehicleType, count)
	defer func() {
		c.publisher.finishRun(summary)
	}()

	for i := 1; i <= count; i++ {
		c.log.Printf("Collecting data %d/%d", i, count)
		if c.poll(ctx, &summary) {
			summary.SuccessfulPolls++
		}
		if i == count {
			break
		}
		if err := c.wait(ctx, delay); err != nil {
			c.log.Printf("collection interrupted after %d of %d polls", i, count)
			return summary, err
		}
	}
	return summary, nil
}

// poll requests positions once and appends the parseable ones, returning false when the request failed
func (c *Collector) poll(ctx context.Context, summary *Summary) bool {
	start := time.Now()
	records, err := c.source.BusPositions(ctx, c.vehicleType)
	if err != nil {
		c.log.Printf("error collecting %s positions: %v", c.vehicleType, err)
		c.metrics.ObservePoll(time.Since(start), failureKind(err))
		return false
	}
	c.metrics.ObservePoll(time.Since(start), "")

	samples, dropped := ztm.SamplesFromRecords(records)
	if dropped > 0 {
		c.log.Printf("dropped %d positions with unparseable timestamps", dropped)
	}
	c.trajectory.Append(samples...)
	summary.Samples += len(samples)
	summary.DroppedSamples += dropped
	c.metrics.ObserveSamples(len(samples), dropped, c.trajectory.VehicleCount())
	c.publisher.publish(samples)
	return true
}

func failureKind(err error) string {
	var apiErr *ztmapi.APIError
	var transportErr *ztmapi.TransportError
	switch {
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &transportErr):
		return "transport"
	}
	return "other"
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fmtDuration returns a string presentation of time.Duration for logging
func fmtDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}
