package ztm

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/OpenTransitTools/wawbus/foundation/database"
	"github.com/jmoiron/sqlx"
)

// TimetableEntry is one scheduled departure of a crew (brigade) of a line from a stop post
type TimetableEntry struct {
	Line      string `db:"line" json:"line" validate:"required"`
	StopGroup string `db:"stop_group" json:"stop_group" validate:"required"`
	Post      string `db:"post" json:"post" validate:"required"`
	Brigade   string `db:"brigade" json:"brigade" validate:"required"`
	// ScheduledTime is HH:MM:SS as published, hours may exceed 23 for service past midnight
	ScheduledTime string `db:"scheduled_time" json:"scheduled_time" validate:"required"`
	Route         string `db:"route" json:"route"`
	Direction     string `db:"direction" json:"direction"`
}

func (e TimetableEntry) StopKey() StopKey {
	return StopKey{StopGroup: e.StopGroup, Post: e.Post}
}

// ScheduleSeconds returns ScheduledTime as seconds since midnight. Times past 24:00:00 are not wrapped.
func (e TimetableEntry) ScheduleSeconds() (int, error) {
	return SecondsFromScheduleTime(e.ScheduledTime)
}

// SecondsFromScheduleTime parses a HH:MM:SS schedule time
func SecondsFromScheduleTime(scheduleTime string) (int, error) {
	parts := strings.Split(strings.TrimSpace(scheduleTime), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:MM:SS schedule time: %q", scheduleTime)
	}
	var values [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid schedule time %q: %w", scheduleTime, err)
		}
		if v < 0 || (i > 0 && v > 59) {
			return 0, fmt.Errorf("schedule time out of range: %q", scheduleTime)
		}
		values[i] = v
	}
	return values[0]*3600 + values[1]*60 + values[2], nil
}

// JoinedScheduleRow is a timetable entry together with the location of its stop post
type JoinedScheduleRow struct {
	TimetableEntry
	StopLatitude  float64 `json:"stop_lat"`
	StopLongitude float64 `json:"stop_lon"`
}

// ReplaceTimetableEntries removes entries for the lines present in entries and saves entries in a single transaction
func ReplaceTimetableEntries(log *log.Logger, db *sqlx.DB, entries []TimetableEntry) error {
	if len(entries) == 0 {
		return nil
	}
	lineSet := make(map[string]struct{})
	var lines []string
	for _, e := range entries {
		if _, present := lineSet[e.Line]; !present {
			lineSet[e.Line] = struct{}{}
			lines = append(lines, e.Line)
		}
	}
	return database.Transact(log, db, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In("delete from timetable_entry where line in (?)", lines)
		if err != nil {
			return err
		}
		if _, err = tx.Exec(tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("unable to remove timetable entries: %w", err)
		}
		statementString := "insert into timetable_entry (" +
			"line, " +
			"stop_group, " +
			"post, " +
			"brigade, " +
			"scheduled_time, " +
			"route, " +
			"direction) values (" +
			":line, " +
			":stop_group, " +
			":post, " +
			":brigade, " +
			":scheduled_time, " +
			":route, " +
			":direction)"
		statementString = tx.Rebind(statementString)
		_, err = tx.NamedExec(statementString, entries)
		return err
	})
}

// GetTimetableEntries returns recorded timetable entries, restricted to lines when lines is not empty
func GetTimetableEntries(db *sqlx.DB, lines []string) ([]TimetableEntry, error) {
	var entries []TimetableEntry
	statementString := "select line, stop_group, post, brigade, scheduled_time, route, direction " +
		"from timetable_entry"
	if len(lines) == 0 {
		err := db.Select(&entries, statementString+" order by id")
		return entries, err
	}
	statementString += " where line in (:lines) order by id"
	err := database.SelectNamedFromMap(db, &entries, statementString, map[string]interface{}{
		"lines": lines,
	})
	return entries, err
}
