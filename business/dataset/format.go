// Package dataset reads and writes position, stop, timetable and derived datasets as csv or parquet files
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a dataset file format, chosen by file extension
type Format int

const (
	// CSV is a comma separated file with a header row, ".csv"
	CSV Format = iota + 1
	// Parquet is an uncompressed parquet file, ".parquet"
	Parquet
	// GzipParquet is a gzip compressed parquet file, ".gzip"
	GzipParquet
)

func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case Parquet:
		return "parquet"
	case GzipParquet:
		return "gzip"
	}
	return "unknown"
}

// ErrUnsupportedFormat is returned for a path whose extension is not csv, parquet or gzip
var ErrUnsupportedFormat = errors.New("unsupported file type")

// FormatFromPath returns the Format selected by path's extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV, nil
	case ".parquet":
		return Parquet, nil
	case ".gzip":
		return GzipParquet, nil
	}
	return 0, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
}
