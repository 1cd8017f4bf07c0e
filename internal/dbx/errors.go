package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes we care about.
const (
	uniqueViolation     = "23505"
	tooManyConnections  = "53300"
	cannotConnectNow    = "57P03"
	adminShutdown       = "57P01"
	connectionException = "08"
)

// Classify maps a driver error onto the common sentinels:
//
//   - unique violations wrap common.ErrAlreadyExists;
//   - timeouts, refused or broken connections and server-side connection
//     limits wrap common.ErrStoreUnavailable;
//   - everything else is returned as "db error: ...".
//
// The original error stays in the chain. A nil error returns nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrAlreadyExists) || errors.Is(err, common.ErrStoreUnavailable) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return fmt.Errorf("%w (%s): %w", common.ErrAlreadyExists, pgErr.ConstraintName, err)
		case pgErr.Code == tooManyConnections,
			pgErr.Code == cannotConnectNow,
			pgErr.Code == adminShutdown,
			strings.HasPrefix(pgErr.Code, connectionException):
			return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
		}
	}

	if IsUnavailable(err) {
		return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("db error: %w", err)
}

// IsUnavailable reports whether err means the store could not be reached
// in time, as opposed to rejecting the statement.
func IsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Fail classifies err and logs it with the operation name. Repositories
// call it for every error except sql.ErrNoRows.
func Fail(ctx context.Context, l logging.Logger, op string, err error) error {
	classified := Classify(err)
	if errors.Is(classified, common.ErrAlreadyExists) {
		l.Warn(ctx, "store constraint violated", "op", op, "error", err)
	} else {
		l.Error(ctx, "store operation failed", "op", op, "error", err)
	}
	return classified
}
