package graphload

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"graphload/internal/planner"
)

// ErrUnknownEntity indicates a load referenced an unregistered entity.
var ErrUnknownEntity = planner.ErrUnknownEntity

// ErrUnknownField indicates a selection or condition named a property
// the entity metadata does not declare.
var ErrUnknownField = planner.ErrUnknownField

// ErrLoaderClosed is returned for loads issued after Close, and rejects
// requests still pending when Close runs.
var ErrLoaderClosed = errors.New("loader closed")

// ErrBatchContention marks batches rejected by backend lock contention.
// Retrying is the caller's responsibility; the loader never retries.
var ErrBatchContention = errors.New("batch query contention")

// MySQL/TiDB error codes worth classifying for callers.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	mysqlErrLockWaitTimeout = 1205 // Lock wait timeout exceeded
	mysqlErrDeadlock        = 1213 // Deadlock found when trying to get lock
)

func normalizeQueryError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return fmt.Errorf("%w: %v", ErrBatchContention, err)
		}
	}
	return err
}
