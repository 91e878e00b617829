package dataset

import (
	"time"

	"github.com/OpenTransitTools/wawbus/business/analytics"
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
)

// positionRow is the csv layout of a position dataset. Time is kept as text so files written by other tools
// with a different timestamp layout can still be read and bad rows dropped individually.
type positionRow struct {
	Lat           float64 `csv:"Lat"`
	Lon           float64 `csv:"Lon"`
	Time          string  `csv:"Time"`
	Lines         string  `csv:"Lines"`
	VehicleNumber string  `csv:"VehicleNumber"`
	Brigade       string  `csv:"Brigade"`
}

// positionParquetRow is the parquet layout of a position dataset
type positionParquetRow struct {
	Lat           float64   `parquet:"Lat"`
	Lon           float64   `parquet:"Lon"`
	Time          time.Time `parquet:"Time"`
	Lines         string    `parquet:"Lines"`
	VehicleNumber string    `parquet:"VehicleNumber"`
	Brigade       string    `parquet:"Brigade"`
}

func makePositionRow(s ztm.PositionSample) positionRow {
	return positionRow{
		Lat:           s.Latitude,
		Lon:           s.Longitude,
		Time:          s.Time.Format(ztm.TimestampLayout),
		Lines:         s.Line,
		VehicleNumber: s.VehicleNumber,
		Brigade:       s.Brigade,
	}
}

func (r positionRow) record() ztm.PositionRecord {
	return ztm.PositionRecord{
		Lines:         r.Lines,
		Lat:           r.Lat,
		Lon:           r.Lon,
		VehicleNumber: r.VehicleNumber,
		Brigade:       r.Brigade,
		Time:          r.Time,
	}
}

func makePositionParquetRow(s ztm.PositionSample) positionParquetRow {
	return positionParquetRow{
		Lat:           s.Latitude,
		Lon:           s.Longitude,
		Time:          s.Time,
		Lines:         s.Line,
		VehicleNumber: s.VehicleNumber,
		Brigade:       s.Brigade,
	}
}

func (r positionParquetRow) sample() ztm.PositionSample {
	t := r.Time.UTC()
	return ztm.PositionSample{
		Line:          r.Lines,
		Latitude:      r.Lat,
		Longitude:     r.Lon,
		VehicleNumber: r.VehicleNumber,
		Brigade:       r.Brigade,
		Time:          t,
	}
}

type stopRow struct {
	StopGroup string  `csv:"zespol" parquet:"zespol"`
	Post      string  `csv:"slupek" parquet:"slupek"`
	Latitude  float64 `csv:"szer_geo" parquet:"szer_geo"`
	Longitude float64 `csv:"dlug_geo" parquet:"dlug_geo"`
}

type timetableRow struct {
	Line          string `csv:"bus" parquet:"bus"`
	StopGroup     string `csv:"nr_zespolu" parquet:"nr_zespolu"`
	Post          string `csv:"nr_przystanku" parquet:"nr_przystanku"`
	Brigade       string `csv:"brygada" parquet:"brygada"`
	ScheduledTime string `csv:"czas" parquet:"czas"`
	Route         string `csv:"trasa" parquet:"trasa"`
	Direction     string `csv:"kierunek" parquet:"kierunek,optional"`
}

func (r timetableRow) entry() ztm.TimetableEntry {
	return ztm.TimetableEntry{
		Line:          r.Line,
		StopGroup:     r.StopGroup,
		Post:          r.Post,
		Brigade:       r.Brigade,
		ScheduledTime: r.ScheduledTime,
		Route:         r.Route,
		Direction:     r.Direction,
	}
}

// timestampTimetableRow is a timetable row whose czas column was stored as a timestamp
type timestampTimetableRow struct {
	Line        string    `parquet:"bus"`
	StopGroup   string    `parquet:"nr_zespolu"`
	Post        string    `parquet:"nr_przystanku"`
	Brigade     string    `parquet:"brygada"`
	ScheduledAt time.Time `parquet:"czas"`
	Route       string    `parquet:"trasa"`
	Direction   string    `parquet:"kierunek,optional"`
}

func (r timestampTimetableRow) entry() ztm.TimetableEntry {
	return ztm.TimetableEntry{
		Line:          r.Line,
		StopGroup:     r.StopGroup,
		Post:          r.Post,
		Brigade:       r.Brigade,
		ScheduledTime: r.ScheduledAt.UTC().Format("15:04:05"),
		Route:         r.Route,
		Direction:     r.Direction,
	}
}

// speedRow is a position row followed by its derived speed
type speedRow struct {
	Lat           float64  `csv:"Lat" parquet:"Lat"`
	Lon           float64  `csv:"Lon" parquet:"Lon"`
	Time          string   `csv:"Time" parquet:"Time"`
	Lines         string   `csv:"Lines" parquet:"Lines"`
	VehicleNumber string   `csv:"VehicleNumber" parquet:"VehicleNumber"`
	Brigade       string   `csv:"Brigade" parquet:"Brigade"`
	Speed         *float64 `csv:"Speed" parquet:"Speed,optional"`
}

func makeSpeedRow(s analytics.SpeedSample) speedRow {
	return speedRow{
		Lat:           s.Latitude,
		Lon:           s.Longitude,
		Time:          s.Time.Format(ztm.TimestampLayout),
		Lines:         s.Line,
		VehicleNumber: s.VehicleNumber,
		Brigade:       s.Brigade,
		Speed:         s.Speed,
	}
}

// lateRow is a position row followed by its scheduled departure, the stop location and derived lateness.
// Schedule columns are empty for unmatched rows.
type lateRow struct {
	Lat           float64  `csv:"Lat" parquet:"Lat"`
	Lon           float64  `csv:"Lon" parquet:"Lon"`
	Time          string   `csv:"Time" parquet:"Time"`
	Lines         string   `csv:"Lines" parquet:"Lines"`
	VehicleNumber string   `csv:"VehicleNumber" parquet:"VehicleNumber"`
	Brigade       string   `csv:"Brigade" parquet:"Brigade"`
	StopGroup     string   `csv:"nr_zespolu" parquet:"nr_zespolu"`
	Post          string   `csv:"nr_przystanku" parquet:"nr_przystanku"`
	ScheduledTime string   `csv:"czas" parquet:"czas"`
	Route         string   `csv:"trasa" parquet:"trasa"`
	Direction     string   `csv:"kierunek" parquet:"kierunek"`
	StopLatitude  *float64 `csv:"szer_geo" parquet:"szer_geo,optional"`
	StopLongitude *float64 `csv:"dlug_geo" parquet:"dlug_geo,optional"`
	DistanceKm    *float64 `csv:"dist" parquet:"dist,optional"`
	DelaySeconds  *int64   `csv:"delay" parquet:"delay,optional"`
}

func makeLateRow(s analytics.StopDistanceSample) lateRow {
	row := lateRow{
		Lat:           s.Latitude,
		Lon:           s.Longitude,
		Time:          s.Time.Format(ztm.TimestampLayout),
		Lines:         s.Line,
		VehicleNumber: s.VehicleNumber,
		Brigade:       s.Brigade,
		DistanceKm:    s.DistanceKm,
	}
	if s.Schedule != nil {
		row.StopGroup = s.Schedule.StopGroup
		row.Post = s.Schedule.Post
		row.ScheduledTime = s.Schedule.ScheduledTime
		row.Route = s.Schedule.Route
		row.Direction = s.Schedule.Direction
		stopLat, stopLon := s.Schedule.StopLatitude, s.Schedule.StopLongitude
		row.StopLatitude = &stopLat
		row.StopLongitude = &stopLon
	}
	if s.DelaySeconds != nil {
		delay := int64(*s.DelaySeconds)
		row.DelaySeconds = &delay
	}
	return row
}
