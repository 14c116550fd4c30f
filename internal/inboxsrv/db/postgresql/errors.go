package postgresql

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dberror"
)

// storedProcError maps a driver error to the database error taxonomy.
// Constraint and data errors mean the input can never succeed; everything
// else is treated as transient.
func storedProcError(ctx context.Context, proc string, err error) apperrors.Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return dberror.ErrAlreadyExists.Msg(proc + ": " + pgErr.Message)
		case pgErr.Code == "23514" || strings.HasPrefix(pgErr.Code, "22"): // check_violation, data exception
			return dberror.ErrInvalidInput.Msg(proc + ": " + pgErr.Message)
		}
	}
	log.Ctx(ctx).Error().Err(err).Str("proc", proc).Msg("stored procedure call failed")
	return dberror.ErrDatabase.Err(err)
}
