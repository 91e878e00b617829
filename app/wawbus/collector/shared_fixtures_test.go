package collector

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/business/ztmapi"
)

type testLogWriter struct {
	mu       sync.Mutex
	logLines []string
	log      *log.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	logger := log.New(&logWriter, "WAWBUS : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logWriter.log = logger
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

func (t *testLogWriter) countContaining(s string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, line := range t.logLines {
		if strings.Contains(line, s) {
			count++
		}
	}
	return count
}

// pollResult is one scripted reply of a fakePositionSource
type pollResult struct {
	records []ztm.PositionRecord
	err     error
}

type fakePositionSource struct {
	results []pollResult
	calls   int
}

func (f *fakePositionSource) BusPositions(_ context.Context, _ ztm.VehicleType) ([]ztm.PositionRecord, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		return nil, &ztmapi.APIError{Endpoint: "busestrams_get", Message: "exhausted"}
	}
	return f.results[i].records, f.results[i].err
}

func record(lat, lon float64, timestamp, vehicle string) ztm.PositionRecord {
	return ztm.PositionRecord{
		Lines:         "213",
		Lat:           lat,
		Lon:           lon,
		VehicleNumber: vehicle,
		Brigade:       "2",
		Time:          timestamp,
	}
}

var errTestTransport = &ztmapi.TransportError{Endpoint: "busestrams_get", Err: errors.New("connection refused")}

// noWait records requested delays instead of sleeping
type noWait struct {
	waits []time.Duration
}

func (n *noWait) wait(ctx context.Context, d time.Duration) error {
	n.waits = append(n.waits, d)
	return ctx.Err()
}
