// Package repository implements the MySQL seat store, the booking ledger
// and the user directory.  Errors are translated into the model taxonomy
// here so the reservation engine never sees driver types.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// ErrStale is returned when a version-guarded seat update matched no row.
// The reservation engine retries the whole transaction on it.
var ErrStale = errors.New("stale seat version")

// ErrEmailExists is returned by UserRepo.Create for a duplicate email.
var ErrEmailExists = errors.New("email already exists")

// MySQL server error numbers.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func mysqlNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsRetryable reports whether err is a transient conflict worth retrying
// the transaction for.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStale) {
		return true
	}
	n := mysqlNumber(err)
	return n == errDeadlock || n == errLockWaitTimeout
}

// isDuplicateKey reports a unique violation on the named key.
func isDuplicateKey(err error, key string) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != errDupEntry {
		return false
	}
	return key == "" || strings.Contains(me.Message, key)
}

// notFound converts sql.ErrNoRows into a NotFound error with msg.
func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewError(model.ErrNotFound, msg)
	}
	return err
}
