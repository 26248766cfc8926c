// Package repository holds the SQL access layer. Writers that can race on a
// natural key surface uniqueness violations as ErrConflict so callers can
// branch to the re-read path instead of treating the loss as a failure.
package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrConflict is returned when an insert loses a race on a uniqueness
// constraint. The row the other writer created is there to be re-read.
var ErrConflict = errors.New("uniqueness conflict")

// ErrNotFound is returned by lookups that legitimately miss.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

func isConflict(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func translateInsertErr(err error) error {
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return ErrConflict
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
