package ztm

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CollectionRun is one invocation of the position collector. Each recorded PositionSample belongs to a run.
type CollectionRun struct {
	Id              int64      `db:"id"`
	VehicleType     int        `db:"vehicle_type"`
	StartedAt       time.Time  `db:"started_at"`
	FinishedAt      *time.Time `db:"finished_at"`
	RequestedPolls  int        `db:"requested_polls"`
	SuccessfulPolls int        `db:"successful_polls"`
	Samples         int        `db:"samples"`
	DroppedSamples  int        `db:"dropped_samples"`
}

func (r CollectionRun) String() string {
	finished := ""
	if r.FinishedAt != nil {
		finished = r.FinishedAt.Format(TimestampLayout)
	}
	return fmt.Sprintf("CollectionRun Id:%d, type:%s started:%s finished:%s polls:%d/%d samples:%d dropped:%d",
		r.Id, VehicleType(r.VehicleType), r.StartedAt.Format(TimestampLayout), finished,
		r.SuccessfulPolls, r.RequestedPolls, r.Samples, r.DroppedSamples)
}

// SaveCollectionRun saves a new or updates an existing CollectionRun. Existing records have a non-zero Id.
func SaveCollectionRun(db *sqlx.DB, run *CollectionRun) error {
	if run.Id != 0 {
		statementString := "update collection_run set " +
			"finished_at = :finished_at, " +
			"successful_polls = :successful_polls, " +
			"samples = :samples, " +
			"dropped_samples = :dropped_samples " +
			"where id = :id"
		_, err := db.NamedExec(db.Rebind(statementString), run)
		return err
	}
	statementString := "insert into collection_run (" +
		"vehicle_type, " +
		"started_at, " +
		"requested_polls, " +
		"successful_polls, " +
		"samples, " +
		"dropped_samples) values (" +
		":vehicle_type, " +
		":started_at, " +
		":requested_polls, " +
		":successful_polls, " +
		":samples, " +
		":dropped_samples) returning id"
	rows, err := db.NamedQuery(statementString, run)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()
	if rows.Next() {
		return rows.Scan(&run.Id)
	}
	return fmt.Errorf("no id returned for new collection run")
}

// GetCollectionRun retrieves CollectionRun with id
func GetCollectionRun(db *sqlx.DB, id int64) (*CollectionRun, error) {
	run := CollectionRun{}
	err := db.Get(&run, db.Rebind("select * from collection_run where id = ?"), id)
	return &run, err
}

// GetLatestCollectionRun retrieves the most recently finished CollectionRun
func GetLatestCollectionRun(db *sqlx.DB) (*CollectionRun, error) {
	run := CollectionRun{}
	err := db.Get(&run, "select * from collection_run where finished_at is not null order by finished_at desc limit 1")
	return &run, err
}
