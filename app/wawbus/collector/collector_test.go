package collector

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OpenTransitTools/wawbus/business/analytics"
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/business/ztmapi"
	"github.com/OpenTransitTools/wawbus/foundation/metrics"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector(logWriter *testLogWriter, source PositionSource, waiter *noWait) *Collector {
	c := NewCollector(logWriter.log, source, ztm.Bus, nil, nil)
	c.wait = waiter.wait
	return c
}

func TestCollector_dropsMalformedTimestamps(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()
	source := &fakePositionSource{results: []pollResult{
		{records: []ztm.PositionRecord{
			record(52.2296133, 21.0123688, "2021-01-01 12:00:00", "1234"),
			record(52.2323437, 21.009987, "not a timestamp", "1235"),
		}},
	}}
	c := newTestCollector(logWriter, source, &noWait{})

	summary, err := c.Collect(context.Background(), 1, 0)
	is.NoErr(err)
	is.Equal(c.Trajectory().Len(), 1)
	is.Equal(c.Trajectory().Samples()[0].VehicleNumber, "1234")
	is.Equal(summary.Samples, 1)
	is.Equal(summary.DroppedSamples, 1)
	is.Equal(logWriter.countContaining("dropped 1 positions"), 1)
}

func TestCollector_skipsFailedPolls(t *testing.T) {
	is := is.New(t)
	logWriter := makeTestLogWriter()
	waiter := &noWait{}
	source := &fakePositionSource{results: []pollResult{
		{records: []ztm.PositionRecord{record(52.2296133, 21.0123688, "2021-01-01 12:00:00", "1234")}},
		{err: &ztmapi.APIError{Endpoint: "busestrams_get", Message: "test error"}},
		{err: errTestTransport},
		{records: []ztm.PositionRecord{record(52.2323437, 21.009987, "2021-01-01 12:00:30", "1234")}},
	}}
	c := newTestCollector(logWriter, source, waiter)

	summary, err := c.Collect(context.Background(), 4, 10*time.Second)
	is.NoErr(err)
	is.Equal(source.calls, 4)
	is.Equal(summary.SuccessfulPolls, 2)
	is.Equal(summary.RequestedPolls, 4)
	is.Equal(c.Trajectory().Len(), 2)
	is.Equal(len(waiter.waits), 3) // failed polls still wait, no wait after the last poll
	is.Equal(waiter.waits[0], 10*time.Second)
	is.Equal(logWriter.countContaining("Collecting data"), 4)
	is.Equal(logWriter.countContaining("Collecting data 4/4"), 1)
	is.Equal(logWriter.countContaining("error collecting bus positions"), 2)
}

func TestCollector_speedOverCollectedSamples(t *testing.T) {
	is := is.New(t)
	source := &fakePositionSource{results: []pollResult{
		{records: []ztm.PositionRecord{
			record(52.2296133, 21.0123688, "2021-01-01 12:00:00", "1234"),
			record(52.2323437, 21.009987, "2021-01-01 12:00:01", "1235"),
		}},
		{records: []ztm.PositionRecord{
			record(52.2323437, 21.009987, "2021-01-01 12:00:30", "1234"),
			record(52.2296133, 21.0123688, "2021-01-01 12:00:29", "1235"),
		}},
	}}
	c := newTestCollector(makeTestLogWriter(), source, &noWait{})

	_, err := c.Collect(context.Background(), 2, 0)
	is.NoErr(err)
	rows := analytics.FilterPlausibleSpeeds(c.Trajectory().WithSpeed(), analytics.MaxSpeedKmh)
	is.Equal(len(rows), 2)
	is.True(math.Abs(*rows[0].Speed-41.31) < 0.05)
	is.True(math.Abs(*rows[1].Speed-44.3) < 0.05)
}

func TestCollector_appendsAfterExistingSamples(t *testing.T) {
	is := is.New(t)
	source := &fakePositionSource{results: []pollResult{
		{records: []ztm.PositionRecord{record(52.2, 21.0, "2021-01-01 12:00:30", "1234")}},
	}}
	c := newTestCollector(makeTestLogWriter(), source, &noWait{})
	existing, _ := ztm.SamplesFromRecords([]ztm.PositionRecord{record(52.1, 21.0, "2021-01-01 12:00:00", "1234")})
	c.Trajectory().Append(existing...)

	_, err := c.Collect(context.Background(), 1, 0)
	is.NoErr(err)
	samples := c.Trajectory().Samples()
	is.Equal(len(samples), 2)
	is.Equal(samples[0].Latitude, 52.1)
	is.Equal(samples[1].Latitude, 52.2)
}

func TestCollector_missingSource(t *testing.T) {
	is := is.New(t)
	c := NewCollector(makeTestLogWriter().log, nil, ztm.Bus, nil, nil)
	_, err := c.Collect(context.Background(), 3, time.Second)
	is.True(errors.Is(err, ztmapi.ErrMissingAPIKey))
}

func TestCollector_cancelledDuringWait(t *testing.T) {
	is := is.New(t)
	source := &fakePositionSource{results: []pollResult{
		{records: []ztm.PositionRecord{record(52.2, 21.0, "2021-01-01 12:00:00", "1234")}},
	}}
	c := NewCollector(makeTestLogWriter().log, source, ztm.Bus, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	summary, err := c.Collect(ctx, 5, time.Hour)
	is.True(errors.Is(err, context.DeadlineExceeded))
	is.True(time.Since(start) < time.Minute)
	is.Equal(source.calls, 1)
	is.Equal(summary.SuccessfulPolls, 1)
}

func TestCollector_metrics(t *testing.T) {
	is := is.New(t)
	m := metrics.NewCollector()
	source := &fakePositionSource{results: []pollResult{
		{records: []ztm.PositionRecord{
			record(52.2, 21.0, "2021-01-01 12:00:00", "1234"),
			record(52.2, 21.0, "bad", "1235"),
		}},
		{err: errTestTransport},
	}}
	c := NewCollector(makeTestLogWriter().log, source, ztm.Bus, nil, m)
	c.wait = (&noWait{}).wait

	_, err := c.Collect(context.Background(), 2, 0)
	is.NoErr(err)
	is.Equal(testutil.ToFloat64(m.Polls), 2.0)
	is.Equal(testutil.ToFloat64(m.PollErrors.WithLabelValues("transport")), 1.0)
	is.Equal(testutil.ToFloat64(m.Samples), 1.0)
	is.Equal(testutil.ToFloat64(m.DroppedSamples), 1.0)
	is.Equal(testutil.ToFloat64(m.TrackedVehicles), 1.0)
}

func TestFmtDuration(t *testing.T) {
	is := is.New(t)
	is.Equal(fmtDuration(90*time.Minute+5*time.Second+250*time.Millisecond), "01:30:05.250")
}

func TestCollector_metricsScraped(t *testing.T) {
	is := is.New(t)
	m := metrics.NewCollector()
	source := &fakePositionSource{results: []pollResult{
		{records: []ztm.PositionRecord{record(52.2, 21.0, "2021-01-01 12:00:00", "1234")}},
		{err: &ztmapi.APIError{Endpoint: "busestrams_get", Message: "test error"}},
	}}
	c := NewCollector(makeTestLogWriter().log, source, ztm.Bus, nil, m)
	c.wait = (&noWait{}).wait
	_, err := c.Collect(context.Background(), 2, 0)
	is.NoErr(err)

	ts := httptest.NewServer(m.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL)
	is.NoErr(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	is.NoErr(err)
	is.True(strings.Contains(string(body), "wawbus_polls_total 2"))
	is.True(strings.Contains(string(body), `wawbus_poll_errors_total{kind="api"} 1`))
	is.True(strings.Contains(string(body), "wawbus_samples_total 1"))
}
