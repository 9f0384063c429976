package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
)

// translate maps driver failures onto the domain error kinds. Domain errors
// pass through untouched.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrStorageUnavailable):
		return err
	case isUnavailable(err):
		return domain.Unavailable(op, err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		// connection_exception, insufficient_resources, operator_intervention
		return strings.HasPrefix(code, "08") ||
			strings.HasPrefix(code, "53") ||
			strings.HasPrefix(code, "57P")
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
