package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/database"
)

// NotFound returns a 404 HTTP error with a descriptive message
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Repository carries the pool and logger shared by every table repository.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// q returns the transaction carried by ctx, or the pool.
func (r *Repository) q(ctx context.Context) database.Queryer {
	return r.db.Executor(ctx)
}

// internal logs err with fields and returns the 500 the ops surface renders.
// A done context is returned as is so callers can tell timeouts from failures.
func (r *Repository) internal(ctx context.Context, err error, fields map[string]any, message string) error {
	r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error(message)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", message, ctxErr)
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}
