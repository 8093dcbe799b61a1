// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the lock gate to distinguish between different failure
// scenarios. ErrForbidden indicates that the current user does not own
// the addressed resource, while ErrNotFound signals a missing row.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// isDuplicateKey reports whether err is MySQL's ER_DUP_ENTRY (1062).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
