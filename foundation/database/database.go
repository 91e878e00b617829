// Package database provides support for access the database.
package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/stdlib"
	"github.com/jmoiron/sqlx"
)

// Config is the required properties to use the database.
type Config struct {
	User         string
	Password     string
	Host         string
	Name         string
	DisableTLS   bool
	MaxOpenConns int
}

// Enabled reports if enough configuration is present to open a connection.
// The collector runs without a database when no host is configured.
func (c Config) Enabled() bool {
	return c.Host != "" && c.Name != ""
}

// Open knows how to open a database connection based on the configuration.
func Open(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", connectionURL(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}

func connectionURL(cfg Config) string {
	sslMode := "require"
	if cfg.DisableTLS {
		sslMode = "disable"
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host,
		Path:     cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// StatusCheck returns nil if it can successfully talk to the database.
func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var result bool
	if err := db.QueryRowContext(ctx, "select true").Scan(&result); err != nil {
		return fmt.Errorf("database status check failed: %w", err)
	}
	return nil
}

// Transact runs txFunc inside a transaction, rolling back when txFunc returns an error and committing otherwise.
func Transact(log *log.Logger, db *sqlx.DB, txFunc func(*sqlx.Tx) error) (err error) {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				log.Printf("rollback failed: %v", rollbackErr)
			}
			return
		}
		err = tx.Commit()
	}()
	err = txFunc(tx)
	return err
}

// PrepareNamedQueryFromMap binds named parameters from sqlArgMap, expands slice arguments for "in" clauses
// and rebinds the query for the driver.
func PrepareNamedQueryFromMap(
	statementString string,
	db *sqlx.DB,
	sqlArgMap map[string]interface{}) (string, []interface{}, error) {

	query, args, err := sqlx.Named(statementString, sqlArgMap)
	if err != nil {
		return query, nil, err
	}
	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return query, nil, err
	}
	return db.Rebind(query), args, nil
}

// SelectNamedFromMap runs a named query built from sqlArgMap and scans all rows into dest.
func SelectNamedFromMap(
	db *sqlx.DB,
	dest interface{},
	statementString string,
	sqlArgMap map[string]interface{}) error {

	query, args, err := PrepareNamedQueryFromMap(statementString, db, sqlArgMap)
	if err != nil {
		return err
	}
	return db.Select(dest, query, args...)
}
