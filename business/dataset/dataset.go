package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/OpenTransitTools/wawbus/business/analytics"
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/gocarina/gocsv"
	"github.com/parquet-go/parquet-go"
)

func init() {
	// tolerate rows with missing trailing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		return r
	})
}

// writeRows writes rows to path in the format selected by its extension
func writeRows[T any](path string, rows []T) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	switch format {
	case CSV:
		out, err := os.Create(path)
		if err != nil {
			return err
		}
		if err = gocsv.MarshalFile(rows, out); err != nil {
			_ = out.Close()
			return fmt.Errorf("unable to write %s: %w", path, err)
		}
		return out.Close()
	case Parquet:
		err = parquet.WriteFile(path, rows)
	case GzipParquet:
		err = parquet.WriteFile(path, rows, parquet.Compression(&parquet.Gzip))
	}
	if err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return nil
}

// readCSVRows reads every row of a csv file with a header
func readCSVRows[T any](path string) ([]T, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = in.Close()
	}()
	var rows []T
	if err = gocsv.UnmarshalFile(in, &rows); err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return rows, nil
}

// readParquetRows reads every row of a parquet file. parquet-go panics on some schema mismatches,
// those are returned as errors.
func readParquetRows[T any](path string) (rows []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = fmt.Errorf("unable to read %s: %v", path, r)
		}
	}()
	rows, err = parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return rows, nil
}

// columnIsTimestamp reports if column of the parquet file at path holds timestamps rather than text
func columnIsTimestamp(path string, column string) (bool, error) {
	in, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = in.Close()
	}()
	stat, err := in.Stat()
	if err != nil {
		return false, err
	}
	file, err := parquet.OpenFile(in, stat.Size())
	if err != nil {
		return false, fmt.Errorf("unable to open %s: %w", path, err)
	}
	leaf, ok := file.Schema().Lookup(column)
	if !ok {
		return false, nil
	}
	columnType := leaf.Node.Type()
	if logicalType := columnType.LogicalType(); logicalType != nil && logicalType.Timestamp != nil {
		return true, nil
	}
	kind := columnType.Kind()
	return kind == parquet.Int64 || kind == parquet.Int96, nil
}

// readRows reads a file whose csv and parquet layouts are the same row type
func readRows[T any](path string) ([]T, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if format == CSV {
		return readCSVRows[T](path)
	}
	return readParquetRows[T](path)
}

// WritePositions saves samples as a position dataset: Lat, Lon, Time, Lines, VehicleNumber, Brigade
func WritePositions(path string, samples []ztm.PositionSample) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if format == CSV {
		rows := make([]positionRow, len(samples))
		for i, s := range samples {
			rows[i] = makePositionRow(s)
		}
		return writeRows(path, rows)
	}
	rows := make([]positionParquetRow, len(samples))
	for i, s := range samples {
		rows[i] = makePositionParquetRow(s)
	}
	return writeRows(path, rows)
}

// ReadPositions loads a position dataset in file order. Rows with an unparseable Time are dropped,
// the number dropped is returned.
func ReadPositions(path string) ([]ztm.PositionSample, int, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, 0, err
	}
	if format == CSV {
		rows, err := readCSVRows[positionRow](path)
		if err != nil {
			return nil, 0, err
		}
		records := make([]ztm.PositionRecord, len(rows))
		for i, r := range rows {
			records[i] = r.record()
		}
		samples, dropped := ztm.SamplesFromRecords(records)
		return samples, dropped, nil
	}
	rows, err := readParquetRows[positionParquetRow](path)
	if err != nil {
		return nil, 0, err
	}
	samples := make([]ztm.PositionSample, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		if r.Time.IsZero() {
			dropped++
			continue
		}
		samples = append(samples, r.sample())
	}
	return samples, dropped, nil
}

// WriteStops saves stop locations: zespol, slupek, szer_geo, dlug_geo
func WriteStops(path string, stops []ztm.StopLocation) error {
	rows := make([]stopRow, len(stops))
	for i, s := range stops {
		rows[i] = stopRow{StopGroup: s.StopGroup, Post: s.Post, Latitude: s.Latitude, Longitude: s.Longitude}
	}
	return writeRows(path, rows)
}

func ReadStops(path string) ([]ztm.StopLocation, error) {
	rows, err := readRows[stopRow](path)
	if err != nil {
		return nil, err
	}
	stops := make([]ztm.StopLocation, len(rows))
	for i, r := range rows {
		stops[i] = ztm.StopLocation{StopGroup: r.StopGroup, Post: r.Post, Latitude: r.Latitude, Longitude: r.Longitude}
	}
	return stops, nil
}

// WriteTimetable saves timetable entries: bus, nr_zespolu, nr_przystanku, brygada, czas, trasa, kierunek
func WriteTimetable(path string, entries []ztm.TimetableEntry) error {
	rows := make([]timetableRow, len(entries))
	for i, e := range entries {
		rows[i] = timetableRow{
			Line:          e.Line,
			StopGroup:     e.StopGroup,
			Post:          e.Post,
			Brigade:       e.Brigade,
			ScheduledTime: e.ScheduledTime,
			Route:         e.Route,
			Direction:     e.Direction,
		}
	}
	return writeRows(path, rows)
}

// ReadTimetable loads timetable entries. czas may be text or, in parquet files, a timestamp whose time of
// day is the departure. Timestamp rows without a value are dropped.
func ReadTimetable(path string) ([]ztm.TimetableEntry, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if format != CSV {
		timestamped, err := columnIsTimestamp(path, "czas")
		if err != nil {
			return nil, err
		}
		if timestamped {
			return readTimestampedTimetable(path)
		}
	}
	rows, err := readRows[timetableRow](path)
	if err != nil {
		return nil, err
	}
	entries := make([]ztm.TimetableEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}
	return entries, nil
}

func readTimestampedTimetable(path string) ([]ztm.TimetableEntry, error) {
	rows, err := readParquetRows[timestampTimetableRow](path)
	if err != nil {
		return nil, err
	}
	entries := make([]ztm.TimetableEntry, 0, len(rows))
	for _, r := range rows {
		if r.ScheduledAt.IsZero() {
			continue
		}
		entries = append(entries, r.entry())
	}
	return entries, nil
}

// WriteSpeeds saves a speed view: the position columns followed by Speed, empty when undefined
func WriteSpeeds(path string, samples []analytics.SpeedSample) error {
	rows := make([]speedRow, len(samples))
	for i, s := range samples {
		rows[i] = makeSpeedRow(s)
	}
	return writeRows(path, rows)
}

// WriteStopDistances saves a lateness view: the position columns followed by the scheduled departure,
// its stop location, dist in km and delay in seconds
func WriteStopDistances(path string, samples []analytics.StopDistanceSample) error {
	rows := make([]lateRow, len(samples))
	for i, s := range samples {
		rows[i] = makeLateRow(s)
	}
	return writeRows(path, rows)
}
