package storage

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrUnavailable wraps any failure to reach the store or complete a query.
// Callers treat it as fatal for the current request; nothing retries here.
var ErrUnavailable = errors.New("store unavailable")

// ErrConstraint marks a duplicate-identifier insert. It signals identifier
// reuse on the caller side, not a transient condition.
var ErrConstraint = errors.New("constraint violation")

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w: %v", op, ErrConstraint, err)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("%s: %w: %v", op, ErrConstraint, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
