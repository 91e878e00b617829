// Package ztm provides the Warsaw public transport records collected from the ZTM api and their database persistence
package ztm

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// VehicleType selects which fleet busestrams_get reports on
type VehicleType int

const (
	Bus  VehicleType = 1
	Tram VehicleType = 2
)

func (v VehicleType) String() string {
	switch v {
	case Bus:
		return "bus"
	case Tram:
		return "tram"
	}
	return fmt.Sprintf("vehicleType(%d)", int(v))
}

// ParseVehicleType converts a configuration value ("bus", "tram", "1" or "2") into a VehicleType
func ParseVehicleType(s string) (VehicleType, error) {
	switch s {
	case "bus", "1":
		return Bus, nil
	case "tram", "2":
		return Tram, nil
	}
	return 0, fmt.Errorf("unknown vehicle type %q", s)
}

// PositionRecord is a vehicle position exactly as reported by busestrams_get
type PositionRecord struct {
	Lines         string  `json:"Lines" validate:"required"`
	Lat           float64 `json:"Lat"`
	Lon           float64 `json:"Lon"`
	VehicleNumber string  `json:"VehicleNumber" validate:"required"`
	Brigade       string  `json:"Brigade"`
	Time          string  `json:"Time"`
}

// PositionSample is one observation of one vehicle at one instant
type PositionSample struct {
	Line          string    `db:"line" json:"line"`
	Latitude      float64   `db:"latitude" json:"lat"`
	Longitude     float64   `db:"longitude" json:"lon"`
	VehicleNumber string    `db:"vehicle_number" json:"vehicle_number"`
	Brigade       string    `db:"brigade" json:"brigade"`
	Time          time.Time `db:"observed_at" json:"time"`
}

func (p PositionSample) String() string {
	return fmt.Sprintf("PositionSample line:%s vehicle:%s brigade:%s at %f,%f time:%s",
		p.Line, p.VehicleNumber, p.Brigade, p.Latitude, p.Longitude, p.Time.Format(TimestampLayout))
}

// TimestampLayout is the layout of position timestamps reported by the api and stored in datasets
const TimestampLayout = "2006-01-02 15:04:05"

// ParseTimestamp parses a position timestamp as a naive wall clock value.
// The result is in UTC so the wall clock reading survives persistence.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339Nano} {
		if t, rfcErr := time.Parse(layout, s); rfcErr == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q: %w", s, err)
}

// ToSample converts the raw record, failing when the timestamp cannot be parsed
func (r PositionRecord) ToSample() (PositionSample, error) {
	t, err := ParseTimestamp(r.Time)
	if err != nil {
		return PositionSample{}, err
	}
	return PositionSample{
		Line:          r.Lines,
		Latitude:      r.Lat,
		Longitude:     r.Lon,
		VehicleNumber: r.VehicleNumber,
		Brigade:       r.Brigade,
		Time:          t,
	}, nil
}

// SamplesFromRecords converts records in order, returning the samples and how many records were dropped
// because their timestamp could not be parsed
func SamplesFromRecords(records []PositionRecord) ([]PositionSample, int) {
	samples := make([]PositionSample, 0, len(records))
	dropped := 0
	for _, r := range records {
		s, err := r.ToSample()
		if err != nil {
			dropped++
			continue
		}
		samples = append(samples, s)
	}
	return samples, dropped
}

type positionSampleRow struct {
	CollectionRunId int64 `db:"collection_run_id"`
	PositionSample
}

// RecordPositionSamples saves samples belonging to a CollectionRun in batch
func RecordPositionSamples(db *sqlx.DB, collectionRunId int64, samples []PositionSample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]positionSampleRow, len(samples))
	for i, s := range samples {
		rows[i] = positionSampleRow{CollectionRunId: collectionRunId, PositionSample: s}
	}
	statementString := "insert into position_sample (" +
		"collection_run_id, " +
		"line, " +
		"latitude, " +
		"longitude, " +
		"vehicle_number, " +
		"brigade, " +
		"observed_at) values (" +
		":collection_run_id, " +
		":line, " +
		":latitude, " +
		":longitude, " +
		":vehicle_number, " +
		":brigade, " +
		":observed_at)"
	statementString = db.Rebind(statementString)
	_, err := db.NamedExec(statementString, rows)
	return err
}

// GetPositionSamples returns samples recorded for a CollectionRun in the order they were recorded
func GetPositionSamples(db *sqlx.DB, collectionRunId int64) ([]PositionSample, error) {
	query := "select line, latitude, longitude, vehicle_number, brigade, observed_at " +
		"from position_sample where collection_run_id = $1 order by id"
	var samples []PositionSample
	err := db.Select(&samples, db.Rebind(query), collectionRunId)
	return samples, err
}
