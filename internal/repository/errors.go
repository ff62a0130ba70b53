// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow the service layer to tell
// missing rows, lost races and constraint violations apart without
// inspecting driver errors itself.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row because
// the row's state changed underneath the caller (for example a request that
// is no longer pending, or an event that has no free capacity).
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an insert violates a unique index.
var ErrDuplicate = errors.New("duplicate")

// mysqlDuplicateEntry is the MySQL server error number for unique key
// violations.
const mysqlDuplicateEntry = 1062

// isDuplicate recognises unique violations from MySQL and from SQLite,
// which the test suite runs against.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
