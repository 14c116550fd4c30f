package postgresql

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/common/uuid"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dberror"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/models"
)

// ClaimJobs atomically claims up to maxJobs developer rows for this batch
// and returns them. Claimed rows carry the caller's in-flight id, so a
// competing instance cannot pick them up until the claim expires.
func (qm *queueManager) ClaimJobs(ctx context.Context, inFlightID uuid.UUID, maxJobs int32) ([]models.DevJob, apperrors.Error) {
	if inFlightID == uuid.Nil {
		return nil, dberror.ErrInvalidInput.Msg("in-flight id is required")
	}

	query := `
		select owner_id,
			coalesce(report_ts, 'epoch'::timestamptz),
			coalesce(report_in_flight_id, '00000000-0000-0000-0000-000000000000'::uuid),
			coalesce(report_in_flight_ts, 'epoch'::timestamptz),
			report_fail_counter,
			coalesce(last_submission_ts, 'epoch'::timestamptz),
			coalesce(gh_login, ''),
			coalesce(gh_login_gist_validation, ''),
			coalesce(gh_login_validation_ts, 'epoch'::timestamptz),
			coalesce(gh_login_gist_latest, ''),
			coalesce(gh_node_id, '')
		from get_dev_jobs($1::uuid, $2::integer)
	`

	rows, err := qm.conn().QueryContext(ctx, query, inFlightID, maxJobs)
	if err != nil {
		return nil, storedProcError(ctx, "get_dev_jobs", err)
	}
	defer rows.Close()

	var jobs []models.DevJob
	for rows.Next() {
		var job models.DevJob
		if err := rows.Scan(
			&job.OwnerID,
			&job.ReportTs,
			&job.ReportInFlightID,
			&job.ReportInFlightTs,
			&job.ReportFailCounter,
			&job.LastSubmissionTs,
			&job.GhLogin,
			&job.GhLoginGistValidation,
			&job.GhLoginValidationTs,
			&job.GhLoginGistLatest,
			&job.GhNodeID,
		); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan dev job row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}

	return jobs, nil
}

// CompleteJob releases the claim after a successful profile rebuild and
// stores the validated GitHub login state. Empty strings clear the columns.
func (qm *queueManager) CompleteJob(ctx context.Context, ownerID string, inFlightID uuid.UUID, ghLogin, ghLoginGistValidation, ghNodeID string) apperrors.Error {
	if ownerID == "" {
		return dberror.ErrInvalidInput.Msg("owner id is required")
	}
	if inFlightID == uuid.Nil {
		return dberror.ErrInvalidInput.Msg("in-flight id is required")
	}

	query := `select complete_dev_job($1::varchar, $2::uuid, $3::varchar, $4::varchar, $5::varchar)`

	_, err := qm.conn().ExecContext(ctx, query, ownerID, inFlightID, ghLogin, ghLoginGistValidation, ghNodeID)
	if err != nil {
		return storedProcError(ctx, "complete_dev_job", err)
	}

	return nil
}

// FailJob releases the claim after a permanent failure without queueing the
// developer again. The fail counter on the row is bumped for inspection.
func (qm *queueManager) FailJob(ctx context.Context, ownerID string, inFlightID uuid.UUID) apperrors.Error {
	if ownerID == "" {
		return dberror.ErrInvalidInput.Msg("owner id is required")
	}
	if inFlightID == uuid.Nil {
		return dberror.ErrInvalidInput.Msg("in-flight id is required")
	}

	query := `select give_up_on_dev($1::varchar, $2::uuid)`

	_, err := qm.conn().ExecContext(ctx, query, ownerID, inFlightID)
	if err != nil {
		return storedProcError(ctx, "give_up_on_dev", err)
	}

	return nil
}

// QueueForUpdate marks the developer as needing a new combined report, e.g.
// after a fresh submission landed. The stored procedure creates the row on
// first contact. A nil gist hint leaves the recorded login claim alone; a
// non-nil hint replaces it, where an empty value requests an unlink.
func (qm *queueManager) QueueForUpdate(ctx context.Context, ownerID string, gistHint *string) apperrors.Error {
	if ownerID == "" {
		return dberror.ErrInvalidInput.Msg("owner id is required")
	}

	query := `select queue_dev_for_update($1::varchar, $2::varchar)`

	_, err := qm.conn().ExecContext(ctx, query, ownerID, gistHint)
	if err != nil {
		return storedProcError(ctx, "queue_dev_for_update", err)
	}

	return nil
}
