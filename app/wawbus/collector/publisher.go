package collector

import (
	"encoding/json"
	"log"
	"time"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/foundation/metrics"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
)

// DefaultPositionsSubject is the NATS subject positions are published on
const DefaultPositionsSubject = "wawbus-positions"

// Publisher sends the samples of each successful poll to their destinations: the database and NATS.
// A nil Publisher does nothing.
type Publisher struct {
	log              *log.Logger
	db               *sqlx.DB
	natsConnection   *nats.Conn
	subject          string
	recordToDatabase bool
	publishOverNats  bool
	metrics          *metrics.Collector
	run              *ztm.CollectionRun
}

// positionsMessage is the NATS payload of one poll
type positionsMessage struct {
	CollectionRunId int64                `json:"collection_run_id,omitempty"`
	VehicleType     string               `json:"vehicle_type"`
	PublishedAt     time.Time            `json:"published_at"`
	Samples         []ztm.PositionSample `json:"samples"`
}

// NewPublisher creates a Publisher. Returns nil when neither destination is enabled.
func NewPublisher(log *log.Logger,
	db *sqlx.DB,
	natsConnection *nats.Conn,
	subject string,
	metricsCollector *metrics.Collector) *Publisher {
	if db == nil && natsConnection == nil {
		return nil
	}
	if subject == "" {
		subject = DefaultPositionsSubject
	}
	return &Publisher{
		log:              log,
		db:               db,
		natsConnection:   natsConnection,
		subject:          subject,
		recordToDatabase: db != nil,
		publishOverNats:  natsConnection != nil,
		metrics:          metricsCollector,
	}
}

// startRun records a new CollectionRun owning the samples recorded until finishRun
func (p *Publisher) startRun(vehicleType ztm.VehicleType, requestedPolls int) {
	if p == nil {
		return
	}
	p.run = &ztm.CollectionRun{
		VehicleType:    int(vehicleType),
		StartedAt:      time.Now().UTC(),
		RequestedPolls: requestedPolls,
	}
	if !p.recordToDatabase {
		return
	}
	if err := ztm.SaveCollectionRun(p.db, p.run); err != nil {
		p.log.Printf("unable to record collection run, positions will not be saved. error:%v", err)
		p.recordToDatabase = false
		return
	}
	p.log.Printf("started %s", p.run)
}

func (p *Publisher) finishRun(summary Summary) {
	if p == nil || p.run == nil {
		return
	}
	finishedAt := time.Now().UTC()
	p.run.FinishedAt = &finishedAt
	p.run.SuccessfulPolls = summary.SuccessfulPolls
	p.run.Samples = summary.Samples
	p.run.DroppedSamples = summary.DroppedSamples
	if p.recordToDatabase {
		if err := ztm.SaveCollectionRun(p.db, p.run); err != nil {
			p.log.Printf("unable to update collection run %d, error:%v", p.run.Id, err)
			return
		}
	}
	p.log.Printf("finished %s", p.run)
}

func (p *Publisher) publish(samples []ztm.PositionSample) {
	if p == nil || len(samples) == 0 {
		return
	}
	if p.publishOverNats {
		p.sendOverNats(samples)
	}
	if p.recordToDatabase {
		p.record(samples)
	}
}

func (p *Publisher) sendOverNats(samples []ztm.PositionSample) {
	message := positionsMessage{
		CollectionRunId: p.run.Id,
		VehicleType:     ztm.VehicleType(p.run.VehicleType).String(),
		PublishedAt:     time.Now().UTC(),
		Samples:         samples,
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		p.log.Printf("failed to marshal positions, error:%v", err)
		return
	}
	err = p.natsConnection.Publish(p.subject, jsonData)
	p.metrics.ObservePublish(err)
	if err != nil {
		p.log.Printf("failed to publish %d positions on %s, error:%v", len(samples), p.subject, err)
	}
}

func (p *Publisher) record(samples []ztm.PositionSample) {
	if err := ztm.RecordPositionSamples(p.db, p.run.Id, samples); err != nil {
		p.log.Printf("failed to record %d positions, error:%v", len(samples), err)
	}
}
