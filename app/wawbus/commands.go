package main

import (
	"context"
	"errors"
	"fmt"
	logger "log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/OpenTransitTools/wawbus/app/wawbus/collector"
	"github.com/OpenTransitTools/wawbus/app/wawbus/webservice"
	"github.com/OpenTransitTools/wawbus/business/analytics"
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/business/dataset"
	"github.com/OpenTransitTools/wawbus/business/ztmapi"
	"github.com/OpenTransitTools/wawbus/foundation/metrics"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
)

var errNoDatabase = errors.New("a database is required to load recorded collection runs")

// application holds the resources shared by all commands. db and natsConn are nil when not configured.
type application struct {
	log      *logger.Logger
	cfg      *config
	db       *sqlx.DB
	natsConn *nats.Conn
	frozen   *dataset.FrozenStore
	metrics  *metrics.Collector
}

// serveMetrics exposes the shared metrics on the web port while a collection command runs. The returned
// function stops the server. A web port of zero or less disables it.
func (a *application) serveMetrics(ctx context.Context) func() {
	if a.cfg.Web.Port <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv := webservice.CreateMetricsServer(a.metrics, a.cfg.Web.Port)
		if err := webservice.Run(ctx, a.log, srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Printf("metrics server ended, error:%v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *application) client() (*ztmapi.Client, error) {
	return ztmapi.NewClient(ztmapi.Config{
		APIKey:     a.cfg.API.Key,
		RetryCount: a.cfg.API.RetryCount,
		BaseURL:    a.cfg.API.BaseURL,
	})
}

// collect polls positions and writes everything accumulated to the output file. When the output file
// already exists its samples are kept ahead of the new ones.
func (a *application) collect(ctx context.Context) error {
	vehicleType, err := ztm.ParseVehicleType(a.cfg.Collect.VehicleType)
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}
	publisher := collector.NewPublisher(a.log, a.db, a.natsConn, a.cfg.NATS.Subject, a.metrics)
	c := collector.NewCollector(a.log, client, vehicleType, publisher, a.metrics)
	stopMetrics := a.serveMetrics(ctx)
	defer stopMetrics()

	if _, err := os.Stat(a.cfg.Data.Output); err == nil {
		existing, dropped, err := dataset.ReadPositions(a.cfg.Data.Output)
		if err != nil {
			return fmt.Errorf("unable to read existing positions: %w", err)
		}
		a.log.Printf("continuing %s with %d samples, %d dropped", a.cfg.Data.Output, len(existing), dropped)
		c.Trajectory().Append(existing...)
	}

	summary, err := c.Collect(ctx, a.cfg.Collect.Count, a.cfg.Collect.Sleep)
	a.log.Printf("collection finished: %s", summary)
	// whatever was collected before an interruption is still saved
	if writeErr := dataset.WritePositions(a.cfg.Data.Output, c.Trajectory().Samples()); writeErr != nil {
		return fmt.Errorf("unable to write positions: %w", writeErr)
	}
	a.log.Printf("wrote %d samples to %s", c.Trajectory().Len(), a.cfg.Data.Output)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *application) stops(ctx context.Context) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	stops, err := collector.CollectStops(ctx, a.log, client)
	if err != nil {
		return err
	}
	if err = dataset.WriteStops(a.cfg.Data.Output, stops); err != nil {
		return fmt.Errorf("unable to write stops: %w", err)
	}
	if a.db != nil {
		return ztm.ReplaceStopLocations(a.log, a.db, stops)
	}
	return nil
}

func (a *application) timetables(ctx context.Context) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	stopMetrics := a.serveMetrics(ctx)
	defer stopMetrics()
	tc := collector.NewTimetableCollector(a.log, client, a.cfg.Collect.Workers, a.metrics)
	entries, summary, err := tc.Collect(ctx)
	if err != nil {
		return err
	}
	a.log.Printf("timetable collection: %d lookups, %d failed, %d entries, %d dropped",
		summary.Lookups, summary.Failures, summary.Entries, summary.Dropped)
	if err = dataset.WriteTimetable(a.cfg.Data.Output, entries); err != nil {
		return fmt.Errorf("unable to write timetable: %w", err)
	}
	if a.db != nil {
		return ztm.ReplaceTimetableEntries(a.log, a.db, entries)
	}
	return nil
}

// recordedRunPrefix marks an input naming a collection run recorded in the database: run:latest or run:<id>
const recordedRunPrefix = "run:"

// positions loads the input dataset: a recorded collection run, a file when the input names one,
// or else a frozen dataset
func (a *application) positions(ctx context.Context) ([]ztm.PositionSample, error) {
	input := a.cfg.Data.Input
	var samples []ztm.PositionSample
	var dropped int
	var err error
	switch {
	case strings.HasPrefix(input, recordedRunPrefix):
		samples, err = a.recordedPositions(strings.TrimPrefix(input, recordedRunPrefix))
	case isDatasetFile(input):
		samples, dropped, err = dataset.ReadPositions(input)
	default:
		samples, dropped, err = a.frozen.Positions(ctx, input)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load positions %s: %w", input, err)
	}
	a.log.Printf("loaded %d samples from %s, %d dropped", len(samples), input, dropped)
	return samples, nil
}

func isDatasetFile(input string) bool {
	_, err := dataset.FormatFromPath(input)
	return err == nil
}

// recordedPositions loads the samples of the collection run named by runName, "latest" or its id
func (a *application) recordedPositions(runName string) ([]ztm.PositionSample, error) {
	if a.db == nil {
		return nil, errNoDatabase
	}
	var run *ztm.CollectionRun
	var err error
	if runName == "latest" {
		run, err = ztm.GetLatestCollectionRun(a.db)
	} else {
		id, parseErr := strconv.ParseInt(runName, 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("unable to parse collection run id %s, error: %w", runName, parseErr)
		}
		run, err = ztm.GetCollectionRun(a.db, id)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to find collection run %s: %w", runName, err)
	}
	a.log.Printf("loading positions of %s", run)
	return ztm.GetPositionSamples(a.db, run.Id)
}

func (a *application) speed(ctx context.Context) error {
	samples, err := a.positions(ctx)
	if err != nil {
		return err
	}
	rows := analytics.WithSpeed(samples)
	if a.cfg.Analytics.Plausible {
		rows = analytics.FilterPlausibleSpeeds(rows, a.cfg.Analytics.MaxSpeed)
	}
	if err = dataset.WriteSpeeds(a.cfg.Data.Output, rows); err != nil {
		return fmt.Errorf("unable to write speeds: %w", err)
	}
	a.log.Printf("wrote %d speed rows to %s", len(rows), a.cfg.Data.Output)
	return nil
}

func (a *application) late(ctx context.Context) error {
	samples, err := a.positions(ctx)
	if err != nil {
		return err
	}
	refs := collector.NewReferences(a.log, a.cfg.Data.Stops, a.cfg.Data.Timetable, a.db, a.frozen)
	rows, err := collector.Late(ctx, refs, samples, a.cfg.Analytics.Tolerance,
		analytics.StopDistanceOptions{ParkedRadiusKm: a.cfg.Analytics.ParkedRadius})
	if err != nil {
		return err
	}
	if err = dataset.WriteStopDistances(a.cfg.Data.Output, rows); err != nil {
		return fmt.Errorf("unable to write lateness: %w", err)
	}
	a.log.Printf("wrote %d lateness rows to %s", len(rows), a.cfg.Data.Output)
	return nil
}

func (a *application) serve(ctx context.Context) error {
	samples, err := a.positions(ctx)
	if err != nil {
		return err
	}
	trajectory := analytics.NewTrajectory(samples)
	a.metrics.ObserveSamples(trajectory.Len(), 0, trajectory.VehicleCount())
	srv := webservice.CreateServer(a.log, trajectory, a.metrics, a.cfg.Analytics.MaxSpeed, a.cfg.Web.Port)
	return webservice.Run(ctx, a.log, srv)
}
