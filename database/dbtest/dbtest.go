// Package dbtest opens GORM with the Postgres dialect on a connection pool that
// records every statement instead of sending it to a server. Queries fail with
// ErrNoDatabase, so repository tests can assert both the generated SQL and how
// failures are wrapped.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNoDatabase is returned for every statement the recorder receives
var ErrNoDatabase = errors.New("dbtest: no database")

// Recorder is a gorm.ConnPool that keeps the SQL it is asked to run
type Recorder struct {
	mu         sync.Mutex
	statements []string
}

// Open returns a GORM handle backed by a fresh Recorder
func Open() (*gorm.DB, *Recorder, error) {
	rec := &Recorder{}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: rec}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, nil, err
	}
	return db, rec, nil
}

// Statements returns every recorded statement in order
func (r *Recorder) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statements...)
}

// Last returns the most recent statement, or "" when none ran
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statements) == 0 {
		return ""
	}
	return r.statements[len(r.statements)-1]
}

func (r *Recorder) record(query string) {
	r.mu.Lock()
	r.statements = append(r.statements, query)
	r.mu.Unlock()
}

// PrepareContext records the query and fails
func (r *Recorder) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	r.record(query)
	return nil, ErrNoDatabase
}

// ExecContext records the query and fails
func (r *Recorder) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	r.record(query)
	return driver.RowsAffected(0), ErrNoDatabase
}

// QueryContext records the query and fails
func (r *Recorder) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	r.record(query)
	return nil, ErrNoDatabase
}

// QueryRowContext records the query; GORM's finishers never scan single rows through it
func (r *Recorder) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	r.record(query)
	return nil
}
