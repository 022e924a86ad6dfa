package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"feedcore/internal/core/errs"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mysql server error numbers that mean the store refused the write for lack of room
var capacityErrors = map[uint16]bool{
	1021: true, // ER_DISK_FULL
	1114: true, // ER_RECORD_FILE_FULL
	1041: true, // ER_OUT_OF_RESOURCES
}

// classify maps a gorm error onto the error taxonomy. Unknown failures are
// treated as transient: the durable store is the source of truth and a
// retry is always safe.
func classify(err error, entity, id string) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	var netErr net.Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.NotFound(entity, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errs.Validation("%s %s already exists", entity, id)
	case errors.As(err, &myErr) && capacityErrors[myErr.Number]:
		return errs.Capacity(err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.As(err, &netErr):
		return errs.Transient(err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return errs.Transient(err)
}
