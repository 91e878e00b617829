package dataset

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/foundation/httpclient"
)

// Locations of the published frozen datasets. %s is the dataset name or the timetable day type.
const (
	FrozenPositionsURL = "https://github.com/C10udburst/wawbus-data/raw/master/bus-data/%s.gzip"
	FrozenTimetableURL = "https://github.com/C10udburst/wawbus-data/raw/master/timetables/timetable-%s.gzip"
	FrozenStopsURL     = "https://github.com/C10udburst/wawbus-data/raw/master/stops.gzip"
)

// FrozenStore resolves frozen datasets to local files, downloading them into Dir when not already present
type FrozenStore struct {
	Log        *log.Logger
	Dir        string
	HTTPClient *http.Client
}

// resolve returns Dir/fileName, downloading it from url first when it does not exist
func (f *FrozenStore) resolve(ctx context.Context, fileName string, url string) (string, error) {
	path := filepath.Join(f.Dir, fileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if f.Dir != "" {
		if err := os.MkdirAll(f.Dir, 0o755); err != nil {
			return "", err
		}
	}
	f.Log.Printf("downloading %s", url)
	downloaded, err := httpclient.DownloadRemoteFile(ctx, f.HTTPClient, path, url)
	if err != nil {
		return "", fmt.Errorf("unable to retrieve frozen dataset: %w", err)
	}
	f.Log.Printf("downloaded %s", downloaded)
	return path, nil
}

// Positions loads the frozen position dataset name, from <name>.gzip when present locally
func (f *FrozenStore) Positions(ctx context.Context, name string) ([]ztm.PositionSample, int, error) {
	path, err := f.resolve(ctx, name+".gzip", fmt.Sprintf(FrozenPositionsURL, name))
	if err != nil {
		return nil, 0, err
	}
	return ReadPositions(path)
}

// Stops loads the frozen stop locations
func (f *FrozenStore) Stops(ctx context.Context) ([]ztm.StopLocation, error) {
	path, err := f.resolve(ctx, "stops.gzip", FrozenStopsURL)
	if err != nil {
		return nil, err
	}
	return ReadStops(path)
}

// Timetable loads the frozen timetable for dayType
func (f *FrozenStore) Timetable(ctx context.Context, dayType ztm.DayType) ([]ztm.TimetableEntry, error) {
	fileName := fmt.Sprintf("timetable-%s.gzip", dayType)
	path, err := f.resolve(ctx, fileName, fmt.Sprintf(FrozenTimetableURL, dayType))
	if err != nil {
		return nil, err
	}
	return ReadTimetable(path)
}
