package postgresql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/common/uuid"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dberror"
)

// Input guards reject bad arguments before any connection is touched, so
// they are exercised with a nil connection.

func TestFindProjectsByCommitsEmptyList(t *testing.T) {
	lm, _, _ := NewInboxDb(nil)

	rows, err := lm.FindProjectsByCommits(context.Background(), nil)
	require.Nil(t, err)
	assert.Nil(t, rows)
}

func TestAddCommitsGuards(t *testing.T) {
	lm, _, _ := NewInboxDb(nil)
	ctx := context.Background()
	now := time.Now()

	err := lm.AddCommits(ctx, "", "proj-1", []string{"aaaaaaaa"}, []time.Time{now})
	require.Error(t, err)
	require.ErrorIs(t, err, dberror.ErrInvalidInput)
	assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))

	err = lm.AddCommits(ctx, "owner-1", "", []string{"aaaaaaaa"}, []time.Time{now})
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	err = lm.AddCommits(ctx, "owner-1", "proj-1", []string{"aaaaaaaa", "bbbbbbbb"}, []time.Time{now})
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	// An empty commit list is a no-op, not an error
	err = lm.AddCommits(ctx, "owner-1", "proj-1", nil, nil)
	require.Nil(t, err)
}

func TestLatestProjectCommitGuards(t *testing.T) {
	lm, _, _ := NewInboxDb(nil)

	_, err := lm.LatestProjectCommit(context.Background(), "", "proj-1")
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	_, err = lm.LatestProjectCommit(context.Background(), "owner-1", "")
	require.ErrorIs(t, err, dberror.ErrInvalidInput)
}

func TestJobQueueGuards(t *testing.T) {
	_, qm, _ := NewInboxDb(nil)
	ctx := context.Background()
	inFlight := uuid.New()

	_, err := qm.ClaimJobs(ctx, uuid.Nil, 10)
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	err = qm.CompleteJob(ctx, "", inFlight, "", "", "")
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	err = qm.CompleteJob(ctx, "owner-1", uuid.Nil, "", "", "")
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	err = qm.FailJob(ctx, "", inFlight)
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	err = qm.FailJob(ctx, "owner-1", uuid.Nil)
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	gist := "gist"
	err = qm.QueueForUpdate(ctx, "", &gist)
	require.ErrorIs(t, err, dberror.ErrInvalidInput)
}

func TestOwnerDirectoryGuards(t *testing.T) {
	_, _, om := NewInboxDb(nil)
	ctx := context.Background()

	err := om.AddEmail(ctx, "", "jane@example.com", false)
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	err = om.AddEmail(ctx, "owner-1", "", false)
	require.ErrorIs(t, err, dberror.ErrInvalidInput)

	err = om.AddSubmissionLog(ctx, "", "10.0.0.1", 100)
	require.ErrorIs(t, err, dberror.ErrInvalidInput)
}
