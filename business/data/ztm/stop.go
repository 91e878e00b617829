package ztm

import (
	"fmt"
	"log"

	"github.com/OpenTransitTools/wawbus/foundation/database"
	"github.com/jmoiron/sqlx"
)

// StopKey identifies a stop post: the stop group (zespol) and the post within it (slupek)
type StopKey struct {
	StopGroup string
	Post      string
}

func (k StopKey) String() string {
	return k.StopGroup + "/" + k.Post
}

// StopLocation is the geographic location of a stop post
type StopLocation struct {
	StopGroup string  `db:"stop_group" json:"stop_group" validate:"required"`
	Post      string  `db:"post" json:"post" validate:"required"`
	Latitude  float64 `db:"latitude" json:"lat" validate:"latitude"`
	Longitude float64 `db:"longitude" json:"lon" validate:"longitude"`
}

func (s StopLocation) Key() StopKey {
	return StopKey{StopGroup: s.StopGroup, Post: s.Post}
}

func (s StopLocation) String() string {
	return fmt.Sprintf("StopLocation %s at %f,%f", s.Key(), s.Latitude, s.Longitude)
}

// RouteStop is one stop post served by a line, flattened out of public_transport_routes
type RouteStop struct {
	Line      string
	StopGroup string
	Post      string
}

// ReplaceStopLocations removes all previously recorded stop locations and saves stops in a single transaction
func ReplaceStopLocations(log *log.Logger, db *sqlx.DB, stops []StopLocation) error {
	return database.Transact(log, db, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("delete from stop_location"); err != nil {
			return fmt.Errorf("unable to remove stop locations: %w", err)
		}
		if len(stops) == 0 {
			return nil
		}
		statementString := "insert into stop_location (stop_group, post, latitude, longitude) " +
			"values (:stop_group, :post, :latitude, :longitude)"
		statementString = tx.Rebind(statementString)
		_, err := tx.NamedExec(statementString, stops)
		return err
	})
}

// GetStopLocations returns all recorded stop locations
func GetStopLocations(db *sqlx.DB) ([]StopLocation, error) {
	var stops []StopLocation
	err := db.Select(&stops, "select stop_group, post, latitude, longitude from stop_location order by stop_group, post")
	return stops, err
}
