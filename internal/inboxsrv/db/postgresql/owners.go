package postgresql

import (
	"context"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dberror"
)

// AddEmail upserts a contact email for the owner. The primary flag moves to
// the given address when set and leaves existing addresses in place.
func (om *ownerManager) AddEmail(ctx context.Context, ownerID, email string, isPrimary bool) apperrors.Error {
	if ownerID == "" {
		return dberror.ErrInvalidInput.Msg("owner id is required")
	}
	if email == "" {
		return dberror.ErrInvalidInput.Msg("email is required")
	}

	query := `select add_dev_email($1::varchar, $2::varchar, $3::boolean)`

	_, err := om.conn().ExecContext(ctx, query, ownerID, email, isPrimary)
	if err != nil {
		return storedProcError(ctx, "add_dev_email", err)
	}

	return nil
}

// AddSubmissionLog records one accepted inbox submission for audit and rate
// inspection.
func (om *ownerManager) AddSubmissionLog(ctx context.Context, ownerID, sourceIP string, payloadBytes int64) apperrors.Error {
	if ownerID == "" {
		return dberror.ErrInvalidInput.Msg("owner id is required")
	}

	query := `select add_submission_log($1::varchar, $2::varchar, $3::bigint)`

	_, err := om.conn().ExecContext(ctx, query, ownerID, sourceIP, payloadBytes)
	if err != nil {
		return storedProcError(ctx, "add_submission_log", err)
	}

	return nil
}
