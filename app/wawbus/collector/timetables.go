package collector

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/foundation/metrics"
	"github.com/sourcegraph/conc/pool"
)

// DefaultWorkerCount is the number of concurrent timetable lookups
const DefaultWorkerCount = 5

// TimetableSource lists the stops served by each line and the departures of a line from a stop
type TimetableSource interface {
	Routes(ctx context.Context) ([]ztm.RouteStop, error)
	Timetable(ctx context.Context, stopGroup, post, line string) ([]ztm.TimetableEntry, error)
}

// StopSource lists the location of every stop post
type StopSource interface {
	StopLocations(ctx context.Context) ([]ztm.StopLocation, error)
}

// TimetableSummary describes the outcome of a timetable collection
type TimetableSummary struct {
	Lookups  int
	Failures int
	Entries  int
	// Dropped counts entries discarded for an unparseable scheduled time
	Dropped int
}

// TimetableCollector fetches the timetable of every (line, stop) pair with a fixed number of workers
type TimetableCollector struct {
	log         *log.Logger
	source      TimetableSource
	workerCount int
	metrics     *metrics.Collector
}

func NewTimetableCollector(log *log.Logger,
	source TimetableSource,
	workerCount int,
	metricsCollector *metrics.Collector) *TimetableCollector {
	if workerCount < 1 {
		workerCount = DefaultWorkerCount
	}
	return &TimetableCollector{
		log:         log,
		source:      source,
		workerCount: workerCount,
		metrics:     metricsCollector,
	}
}

// Collect returns the departures of every line from every stop it serves, in no particular order.
// Failed lookups are logged and counted but do not stop the collection. An error is returned when the
// route listing fails or ctx is done.
func (t *TimetableCollector) Collect(ctx context.Context) ([]ztm.TimetableEntry, TimetableSummary, error) {
	start := time.Now()
	routes, err := t.source.Routes(ctx)
	if err != nil {
		return nil, TimetableSummary{}, err
	}
	t.log.Printf("collecting timetables for %d route stops with %d workers", len(routes), t.workerCount)

	var failures atomic.Int64
	p := pool.NewWithResults[[]ztm.TimetableEntry]().WithMaxGoroutines(t.workerCount)
	for _, route := range routes {
		route := route
		p.Go(func() []ztm.TimetableEntry {
			if ctx.Err() != nil {
				return nil
			}
			entries, err := t.source.Timetable(ctx, route.StopGroup, route.Post, route.Line)
			if err != nil {
				failures.Add(1)
				t.metrics.ObserveTimetableLookup(0, true)
				t.log.Printf("skipping timetable of line %s at %s/%s, error:%v",
					route.Line, route.StopGroup, route.Post, err)
				return nil
			}
			t.metrics.ObserveTimetableLookup(len(entries), false)
			return entries
		})
	}
	results := p.Wait()

	summary := TimetableSummary{Lookups: len(routes), Failures: int(failures.Load())}
	var timetable []ztm.TimetableEntry
	for _, entries := range results {
		for _, e := range entries {
			if _, err := e.ScheduleSeconds(); err != nil {
				summary.Dropped++
				continue
			}
			timetable = append(timetable, e)
		}
	}
	summary.Entries = len(timetable)
	if err = ctx.Err(); err != nil {
		return timetable, summary, err
	}
	t.log.Printf("collected %d timetable entries, %d of %d lookups failed, took %s",
		summary.Entries, summary.Failures, summary.Lookups, fmtDuration(time.Since(start)))
	return timetable, summary, nil
}

// CollectStops fetches all stop locations
func CollectStops(ctx context.Context, log *log.Logger, source StopSource) ([]ztm.StopLocation, error) {
	stops, err := source.StopLocations(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("collected %d stop locations", len(stops))
	return stops, nil
}
