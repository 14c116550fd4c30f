package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dberror"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/models"
)

// FindProjectsByCommits returns every ledger row matching any of the given
// commit hashes, across all owners. Hash collisions between unrelated
// projects are expected, the caller disambiguates on commit timestamps.
func (lm *ledgerManager) FindProjectsByCommits(ctx context.Context, commitHashes []string) ([]models.CommitOwnership, apperrors.Error) {
	if len(commitHashes) == 0 {
		log.Ctx(ctx).Warn().Msg("commit lookup requested with an empty hash list")
		return nil, nil
	}

	query := `
		select owner_id, project_id, commit_hash, commit_ts
		from find_projects_by_commits($1::varchar[])
	`

	rows, err := lm.conn().QueryContext(ctx, query, pq.Array(commitHashes))
	if err != nil {
		return nil, storedProcError(ctx, "find_projects_by_commits", err)
	}
	defer rows.Close()

	var ownerships []models.CommitOwnership
	for rows.Next() {
		var row models.CommitOwnership
		if err := rows.Scan(&row.OwnerID, &row.ProjectID, &row.CommitHash, &row.CommitTs); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan commit ownership row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		ownerships = append(ownerships, row)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}

	return ownerships, nil
}

// AddCommits records the given commit hashes against the owner's project.
// Hashes and timestamps are parallel arrays; existing rows are upserted by
// the stored procedure.
func (lm *ledgerManager) AddCommits(ctx context.Context, ownerID, projectID string, commitHashes []string, commitTimestamps []time.Time) apperrors.Error {
	if ownerID == "" || projectID == "" {
		return dberror.ErrInvalidInput.Msg("owner id and project id are required")
	}
	if len(commitHashes) != len(commitTimestamps) {
		return dberror.ErrInvalidInput.Msg("commit hashes and timestamps differ in length")
	}
	if len(commitHashes) == 0 {
		log.Ctx(ctx).Warn().Str("owner_id", ownerID).Str("project_id", projectID).Msg("no commits to add")
		return nil
	}

	query := `select add_commits($1::varchar, $2::varchar, $3::varchar[], $4::timestamptz[])`

	_, err := lm.conn().ExecContext(ctx, query, ownerID, projectID, pq.Array(commitHashes), pq.Array(commitTimestamps))
	if err != nil {
		return storedProcError(ctx, "add_commits", err)
	}

	return nil
}

// LatestProjectCommit returns the newest commit timestamp the ledger holds
// for the owner's project, or the zero time when the project has no commits
// on record.
func (lm *ledgerManager) LatestProjectCommit(ctx context.Context, ownerID, projectID string) (time.Time, apperrors.Error) {
	if ownerID == "" || projectID == "" {
		return time.Time{}, dberror.ErrInvalidInput.Msg("owner id and project id are required")
	}

	query := `select latest_project_commit($1::varchar, $2::varchar)`

	var latest sql.NullTime
	err := lm.conn().QueryRowContext(ctx, query, ownerID, projectID).Scan(&latest)
	if err != nil {
		return time.Time{}, storedProcError(ctx, "latest_project_commit", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}

	return latest.Time, nil
}
