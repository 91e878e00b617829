package collector

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/business/dataset"
	"github.com/jmoiron/sqlx"
)

// FrozenReferences provides the published stop and timetable datasets
type FrozenReferences interface {
	Stops(ctx context.Context) ([]ztm.StopLocation, error)
	Timetable(ctx context.Context, dayType ztm.DayType) ([]ztm.TimetableEntry, error)
}

// References lazily loads the stop and timetable reference tables. Each table is loaded once, on first use,
// from the first available of: a configured file, the database, the frozen datasets.
type References struct {
	log           *log.Logger
	stopsPath     string
	timetablePath string
	db            *sqlx.DB
	frozen        FrozenReferences
	calendar      *ztm.ServiceCalendar

	stopsOnce sync.Once
	stops     []ztm.StopLocation
	stopsErr  error

	timetableOnce sync.Once
	timetable     []ztm.TimetableEntry
	timetableErr  error
}

// NewReferences builds References. Any of stopsPath, timetablePath, db and frozen may be empty.
func NewReferences(log *log.Logger,
	stopsPath string,
	timetablePath string,
	db *sqlx.DB,
	frozen FrozenReferences) *References {
	return &References{
		log:           log,
		stopsPath:     stopsPath,
		timetablePath: timetablePath,
		db:            db,
		frozen:        frozen,
		calendar:      ztm.MakeServiceCalendar(),
	}
}

// Stops returns the stop locations, loading them on first call
func (r *References) Stops(ctx context.Context) ([]ztm.StopLocation, error) {
	r.stopsOnce.Do(func() {
		r.stops, r.stopsErr = r.loadStops(ctx)
		if r.stopsErr == nil {
			r.log.Printf("loaded %d stop locations", len(r.stops))
		}
	})
	return r.stops, r.stopsErr
}

func (r *References) loadStops(ctx context.Context) ([]ztm.StopLocation, error) {
	switch {
	case r.stopsPath != "":
		return dataset.ReadStops(r.stopsPath)
	case r.db != nil:
		return ztm.GetStopLocations(r.db)
	case r.frozen != nil:
		return r.frozen.Stops(ctx)
	}
	return nil, fmt.Errorf("no source configured for stop locations")
}

// Timetable returns the timetable, loading it on first call. serviceDate selects the frozen timetable variant.
func (r *References) Timetable(ctx context.Context, serviceDate time.Time) ([]ztm.TimetableEntry, error) {
	r.timetableOnce.Do(func() {
		r.timetable, r.timetableErr = r.loadTimetable(ctx, serviceDate)
		if r.timetableErr == nil {
			r.log.Printf("loaded %d timetable entries", len(r.timetable))
		}
	})
	return r.timetable, r.timetableErr
}

func (r *References) loadTimetable(ctx context.Context, serviceDate time.Time) ([]ztm.TimetableEntry, error) {
	switch {
	case r.timetablePath != "":
		return dataset.ReadTimetable(r.timetablePath)
	case r.db != nil:
		return ztm.GetTimetableEntries(r.db, nil)
	case r.frozen != nil:
		dayType := r.calendar.DayType(serviceDate)
		r.log.Printf("using the %s timetable for %s", dayType, serviceDate.Format("2006-01-02"))
		return r.frozen.Timetable(ctx, dayType)
	}
	return nil, fmt.Errorf("no source configured for timetables")
}
