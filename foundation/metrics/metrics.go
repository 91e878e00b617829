// Package metrics provides the prometheus counters reported by the collectors
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the counters on a private registry. Methods are safe on a nil Collector so callers
// that run without metrics can pass nil.
type Collector struct {
	reg *prometheus.Registry

	Polls           prometheus.Counter
	PollErrors      *prometheus.CounterVec // kind label: api|transport|other
	Samples         prometheus.Counter
	DroppedSamples  prometheus.Counter
	TrackedVehicles prometheus.Gauge

	TimetableLookups        prometheus.Counter
	TimetableLookupFailures prometheus.Counter
	TimetableEntries        prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter

	PollDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawbus_polls_total",
			Help: "Total position polls attempted.",
		}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wawbus_poll_errors_total",
			Help: "Total position polls that failed.",
		}, []string{"kind"}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawbus_samples_total",
			Help: "Total position samples accumulated.",
		}),
		DroppedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawbus_dropped_samples_total",
			Help: "Total position records dropped for an unparseable timestamp.",
		}),
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wawbus_tracked_vehicles",
			Help: "Number of distinct vehicles in the trajectory.",
		}),
		TimetableLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawbus_timetable_lookups_total",
			Help: "Total timetable lookups made.",
		}),
		TimetableLookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawbus_timetable_lookup_failures_total",
			Help: "Total timetable lookups that failed.",
		}),
		TimetableEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawbus_timetable_entries_total",
			Help: "Total timetable entries collected.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawbus_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wawbus_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wawbus_poll_duration_seconds",
			Help:    "Duration of a position poll including retries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	reg.MustRegister(
		c.Polls, c.PollErrors, c.Samples, c.DroppedSamples, c.TrackedVehicles,
		c.TimetableLookups, c.TimetableLookupFailures, c.TimetableEntries,
		c.NATSPublished, c.NATSPublishErrs,
		c.PollDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// ObservePoll records one poll, its duration and the failure kind when it failed
func (c *Collector) ObservePoll(took time.Duration, failureKind string) {
	if c == nil {
		return
	}
	c.Polls.Inc()
	c.PollDuration.Observe(took.Seconds())
	if failureKind != "" {
		c.PollErrors.WithLabelValues(failureKind).Inc()
	}
}

// ObserveSamples records accepted and dropped samples of one poll and the vehicles now tracked
func (c *Collector) ObserveSamples(accepted, dropped, vehicles int) {
	if c == nil {
		return
	}
	c.Samples.Add(float64(accepted))
	c.DroppedSamples.Add(float64(dropped))
	c.TrackedVehicles.Set(float64(vehicles))
}

// ObserveTimetableLookup records one timetable lookup and how many entries it produced
func (c *Collector) ObserveTimetableLookup(entries int, failed bool) {
	if c == nil {
		return
	}
	c.TimetableLookups.Inc()
	if failed {
		c.TimetableLookupFailures.Inc()
		return
	}
	c.TimetableEntries.Add(float64(entries))
}

// ObservePublish records one NATS publish attempt
func (c *Collector) ObservePublish(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.NATSPublishErrs.Inc()
		return
	}
	c.NATSPublished.Inc()
}
