package router

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/common/uuid"
	"github.com/devatlas/devatlas/internal/inboxsrv/blobstore"
	"github.com/devatlas/devatlas/internal/inboxsrv/config"
	"github.com/devatlas/devatlas/internal/inboxsrv/db"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dberror"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/models"
	"github.com/devatlas/devatlas/internal/inboxsrv/identity"
	"github.com/devatlas/devatlas/internal/inboxsrv/report"
)

// fakeDB implements db.Database over in-memory state. The ledger side is
// stateful so out-of-order scenarios behave like the real procedures.
type fakeDB struct {
	mu        sync.Mutex
	rows      []models.CommitOwnership
	findCalls [][]string
	addCalls  int
	emails    []string
	queueUps  []string
	subLogs   []string

	findErr apperrors.Error
	addErr  apperrors.Error
}

func (f *fakeDB) FindProjectsByCommits(_ context.Context, commitHashes []string) ([]models.CommitOwnership, apperrors.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.findCalls = append(f.findCalls, append([]string{}, commitHashes...))

	want := make(map[string]bool, len(commitHashes))
	for _, h := range commitHashes {
		want[h] = true
	}
	var matched []models.CommitOwnership
	for _, row := range f.rows {
		if want[row.CommitHash] {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func (f *fakeDB) AddCommits(_ context.Context, ownerID, projectID string, commitHashes []string, commitTimestamps []time.Time) apperrors.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.addCalls++
	for i, h := range commitHashes {
		f.rows = append(f.rows, models.CommitOwnership{
			OwnerID:    ownerID,
			ProjectID:  projectID,
			CommitHash: h,
			CommitTs:   commitTimestamps[i],
		})
	}
	return nil
}

func (f *fakeDB) LatestProjectCommit(_ context.Context, ownerID, projectID string) (time.Time, apperrors.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest time.Time
	for _, row := range f.rows {
		if row.OwnerID == ownerID && row.ProjectID == projectID && row.CommitTs.After(latest) {
			latest = row.CommitTs
		}
	}
	return latest, nil
}

func (f *fakeDB) ClaimJobs(_ context.Context, _ uuid.UUID, _ int32) ([]models.DevJob, apperrors.Error) {
	return nil, nil
}

func (f *fakeDB) CompleteJob(_ context.Context, _ string, _ uuid.UUID, _, _, _ string) apperrors.Error {
	return nil
}

func (f *fakeDB) FailJob(_ context.Context, _ string, _ uuid.UUID) apperrors.Error {
	return nil
}

func (f *fakeDB) QueueForUpdate(_ context.Context, ownerID string, gistHint *string) apperrors.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hint := "<keep>"
	if gistHint != nil {
		hint = *gistHint
	}
	f.queueUps = append(f.queueUps, ownerID+"|"+hint)
	return nil
}

func (f *fakeDB) AddEmail(_ context.Context, ownerID, email string, isPrimary bool) apperrors.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tag := ""
	if isPrimary {
		tag = "|primary"
	}
	f.emails = append(f.emails, email+tag)
	_ = ownerID
	return nil
}

func (f *fakeDB) AddSubmissionLog(_ context.Context, ownerID, sourceIP string, payloadBytes int64) apperrors.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subLogs = append(f.subLogs, ownerID+"|"+sourceIP)
	_ = payloadBytes
	return nil
}

func (f *fakeDB) Close(_ context.Context) {}

type fakeProvider struct {
	db *fakeDB
}

func (p *fakeProvider) Conn(_ context.Context) (db.Database, apperrors.Error) {
	return p.db, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ObjectStore: config.ObjectStoreConfig{
			Region:          "eu-test-1",
			InboxBucket:     "inbox-bucket",
			InboxPrefix:     "queue",
			ReportsBucket:   "reports-bucket",
			ReportsPrefix:   "reports",
			GHReportsBucket: "gh-reports-bucket",
			RejectedPrefix:  "rejected",
		},
	}
}

func newTestRouter(t *testing.T) (*Router, *blobstore.MemStore, *fakeDB) {
	t.Helper()
	store := blobstore.NewMemStore()
	fdb := &fakeDB{}
	r := NewRouter(testConfig(), store, &fakeProvider{db: fdb}, nil)
	return r, store, fdb
}

func testOwner(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub), priv
}

func strPtr(s string) *string { return &s }

func testReport(epoch int64, sha1 string, commits ...string) *report.Report {
	return &report.Report{
		Timestamp:                      "2021-06-01T10:30:00Z",
		PrimaryEmail:                   "dev@example.com",
		ContributorEmails:              []string{"dev@example.com", "alt@example.com"},
		GhValidationGistID:             strPtr("gist-123"),
		LastContributorCommitSha1:      sha1,
		LastContributorCommitDateEpoch: epoch,
		ProjectsIncluded: []report.ProjectSummary{
			{ProjectName: "widget", Commits: commits},
		},
	}
}

// putInboxObject stores a gzipped report under a well-formed inbox key.
func putInboxObject(t *testing.T, store *blobstore.MemStore, owner string, submissionTs int64, rpt *report.Report) blobstore.ObjectInfo {
	t.Helper()
	data, err := rpt.EncodeGzipped()
	require.NoError(t, err)
	key := blobstore.BuildInboxKey("queue", submissionTs, owner)
	require.NoError(t, store.Put(context.Background(), "inbox-bucket", key, data))
	return blobstore.ObjectInfo{Key: key, Size: int64(len(data))}
}

func TestRouteNewProject(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)
	sha1 := strings.Repeat("a", 40)

	obj := putInboxObject(t, store, owner, 1622467200, testReport(1000, sha1, "a1b2c3d4_1000"))

	res, err := r.ProcessInboxObject(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, owner, res.OwnerID)
	assert.True(t, identity.ValidateProjectID(res.ProjectID))
	assert.False(t, res.OutOfOrder)

	// ledger gained the parsed pair under the minted project
	require.Len(t, fdb.rows, 1)
	assert.Equal(t, owner, fdb.rows[0].OwnerID)
	assert.Equal(t, res.ProjectID, fdb.rows[0].ProjectID)
	assert.Equal(t, "a1b2c3d4", fdb.rows[0].CommitHash)
	assert.Equal(t, int64(1000), fdb.rows[0].CommitTs.Unix())

	// both copies written, inbox object deleted
	timestamped, combined := blobstore.ProjectReportKeys("reports", owner, res.ProjectID, 1000, sha1)
	_, gerr := store.Get(ctx, "reports-bucket", timestamped)
	require.NoError(t, gerr)
	_, gerr = store.Get(ctx, "reports-bucket", combined)
	require.NoError(t, gerr)
	_, gerr = store.Get(ctx, "inbox-bucket", obj.Key)
	require.ErrorIs(t, gerr, blobstore.ErrObjectNotFound)

	// ownership updates recorded
	assert.Equal(t, []string{"dev@example.com|primary", "alt@example.com"}, fdb.emails)
	assert.Equal(t, []string{owner + "|gist-123"}, fdb.queueUps)
}

func TestRouteGistHintPassthrough(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)

	// a report without a gist leaves the recorded claim alone
	plain := testReport(1000, strings.Repeat("a", 40), "a1b2c3d4_1000")
	plain.GhValidationGistID = nil
	obj := putInboxObject(t, store, owner, 1622467200, plain)
	_, err := r.ProcessInboxObject(ctx, obj)
	require.NoError(t, err)

	// an empty gist value is an explicit unlink request
	unlink := testReport(2000, strings.Repeat("b", 40), "a1b2c3d4_1000", "deadbeef_2000")
	unlink.GhValidationGistID = strPtr("")
	obj = putInboxObject(t, store, owner, 1622467300, unlink)
	_, err = r.ProcessInboxObject(ctx, obj)
	require.NoError(t, err)

	assert.Equal(t, []string{owner + "|<keep>", owner + "|"}, fdb.queueUps)
}

func TestRouteReusesMatchedProject(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)

	fdb.rows = []models.CommitOwnership{
		{OwnerID: owner, ProjectID: "proj-1", CommitHash: "a1b2c3d4", CommitTs: time.Unix(1000, 0).UTC()},
	}

	obj := putInboxObject(t, store, owner, 1622467200, testReport(2000, strings.Repeat("b", 40), "a1b2c3d4_1000", "deadbeef_2000"))

	res, err := r.ProcessInboxObject(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", res.ProjectID)
	assert.False(t, res.OutOfOrder)

	// both parsed pairs were recorded, not just the matched one
	assert.Len(t, fdb.rows, 3)
}

func TestRouteTimestampMismatchDoesNotConfirm(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)

	// same short hash, different commit time: an unrelated history
	fdb.rows = []models.CommitOwnership{
		{OwnerID: owner, ProjectID: "proj-1", CommitHash: "a1b2c3d4", CommitTs: time.Unix(999, 0).UTC()},
	}

	obj := putInboxObject(t, store, owner, 1622467200, testReport(1000, strings.Repeat("a", 40), "a1b2c3d4_1000"))

	res, err := r.ProcessInboxObject(ctx, obj)
	require.NoError(t, err)
	assert.NotEqual(t, "proj-1", res.ProjectID)
	assert.True(t, identity.ValidateProjectID(res.ProjectID))
}

func TestRouteConflictAborts(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)

	fdb.rows = []models.CommitOwnership{
		{OwnerID: owner, ProjectID: "proj-1", CommitHash: "aaaa1111", CommitTs: time.Unix(1000, 0).UTC()},
		{OwnerID: owner, ProjectID: "proj-2", CommitHash: "bbbb2222", CommitTs: time.Unix(2000, 0).UTC()},
	}

	obj := putInboxObject(t, store, owner, 1622467200, testReport(3000, strings.Repeat("c", 40), "aaaa1111_1000", "bbbb2222_2000"))

	_, err := r.ProcessInboxObject(ctx, obj)
	require.ErrorIs(t, err, ErrProjectConflict)
	assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))

	// no ledger mutation, no relocation, inbox object untouched
	assert.Equal(t, 0, fdb.addCalls)
	objects, lerr := store.List(ctx, "reports-bucket", "")
	require.NoError(t, lerr)
	assert.Empty(t, objects)
	_, gerr := store.Get(ctx, "inbox-bucket", obj.Key)
	require.NoError(t, gerr)
}

func TestRouteOutOfOrder(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)
	sha1A := strings.Repeat("a", 40)
	sha1B := strings.Repeat("b", 40)

	// report A with the newer commit arrives first
	objA := putInboxObject(t, store, owner, 1622467200, testReport(1000, sha1A, "a1b2c3d4_1000"))
	resA, err := r.ProcessInboxObject(ctx, objA)
	require.NoError(t, err)
	require.False(t, resA.OutOfOrder)
	projectID := resA.ProjectID

	_, combined := blobstore.ProjectReportKeys("reports", owner, projectID, 1000, sha1A)
	latestBytes, gerr := store.Get(ctx, "reports-bucket", combined)
	require.NoError(t, gerr)

	// report B is older: same history, earlier last commit
	objB := putInboxObject(t, store, owner, 1622467300, testReport(500, sha1B, "a1b2c3d4_1000"))
	resB, err := r.ProcessInboxObject(ctx, objB)
	require.NoError(t, err)
	assert.True(t, resB.OutOfOrder)
	assert.Equal(t, projectID, resB.ProjectID)

	// archived under its own timestamped key
	timestampedB, _ := blobstore.ProjectReportKeys("reports", owner, projectID, 500, sha1B)
	_, gerr = store.Get(ctx, "reports-bucket", timestampedB)
	require.NoError(t, gerr)

	// the latest slot still holds report A
	current, gerr := store.Get(ctx, "reports-bucket", combined)
	require.NoError(t, gerr)
	assert.Equal(t, latestBytes, current)

	// inbox object deleted, but no second merge queued
	_, gerr = store.Get(ctx, "inbox-bucket", objB.Key)
	require.ErrorIs(t, gerr, blobstore.ErrObjectNotFound)
	assert.Len(t, fdb.queueUps, 1)
}

func TestRouteRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	owner, _ := testOwner(t)

	tests := []struct {
		name string
		rpt  *report.Report
	}{
		{"malformed fingerprint", testReport(1000, strings.Repeat("a", 40), "A1B2C3D4_1000")},
		{"no fingerprints", testReport(1000, strings.Repeat("a", 40))},
		{"bad primary sha1", testReport(1000, "not-a-sha1", "a1b2c3d4_1000")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, fdb := newTestRouter(t)
			obj := putInboxObject(t, store, owner, 1622467200, tt.rpt)

			_, err := r.ProcessInboxObject(ctx, obj)
			require.Error(t, err)
			assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))
			assert.Equal(t, 0, fdb.addCalls)
		})
	}
}

func TestRouteRejectsWrongProjectCount(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRouter(t)
	owner, _ := testOwner(t)

	rpt := testReport(1000, strings.Repeat("a", 40), "a1b2c3d4_1000")
	rpt.ProjectsIncluded = append(rpt.ProjectsIncluded, report.ProjectSummary{ProjectName: "second"})
	obj := putInboxObject(t, store, owner, 1622467200, rpt)

	_, err := r.ProcessInboxObject(ctx, obj)
	require.ErrorIs(t, err, report.ErrWrongProjectCount)
}

func TestRouteRejectsZeroSizeObject(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRouter(t)
	owner, _ := testOwner(t)

	key := blobstore.BuildInboxKey("queue", 1622467200, owner)
	require.NoError(t, store.Put(ctx, "inbox-bucket", key, nil))

	_, err := r.ProcessInboxObject(ctx, blobstore.ObjectInfo{Key: key, Size: 0})
	require.ErrorIs(t, err, ErrEmptyObject)
	assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))
}

func TestRouteSkipsVanishedObject(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRouter(t)
	owner, _ := testOwner(t)

	key := blobstore.BuildInboxKey("queue", 1622467200, owner)
	res, err := r.ProcessInboxObject(ctx, blobstore.ObjectInfo{Key: key, Size: 100})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestRouteFingerprintQueryCap(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)

	commits := make([]string, 60)
	for i := range commits {
		commits[i] = fmt.Sprintf("%08x_1000", i+1)
	}
	obj := putInboxObject(t, store, owner, 1622467200, testReport(1000, strings.Repeat("a", 40), commits...))

	_, err := r.ProcessInboxObject(ctx, obj)
	require.NoError(t, err)

	// lookup capped at 50, ledger write carries all 60
	require.Len(t, fdb.findCalls, 1)
	assert.Len(t, fdb.findCalls[0], 50)
	assert.Len(t, fdb.rows, 60)
}

func TestRouteOneQuarantinesRejected(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRouter(t)
	owner, _ := testOwner(t)

	key := blobstore.BuildInboxKey("queue", 1622467200, owner)
	require.NoError(t, store.Put(ctx, "inbox-bucket", key, []byte("not gzip at all")))

	failed := r.routeOne(ctx, blobstore.ObjectInfo{Key: key, Size: 15})
	assert.False(t, failed)

	// moved under the rejected prefix
	_, gerr := store.Get(ctx, "inbox-bucket", key)
	require.ErrorIs(t, gerr, blobstore.ErrObjectNotFound)
	rejected, gerr := store.Get(ctx, "inbox-bucket", blobstore.RejectedKey("rejected", key))
	require.NoError(t, gerr)
	assert.Equal(t, []byte("not gzip at all"), rejected)
}

func TestRouteOneLeavesRetryable(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)
	fdb.addErr = dberror.ErrDatabase.Msg("connection reset")

	obj := putInboxObject(t, store, owner, 1622467200, testReport(1000, strings.Repeat("a", 40), "a1b2c3d4_1000"))

	failed := r.routeOne(ctx, obj)
	assert.True(t, failed)

	// still in the inbox for the next cycle
	_, gerr := store.Get(ctx, "inbox-bucket", obj.Key)
	require.NoError(t, gerr)
}

func TestProcessBatchCounterSemantics(t *testing.T) {
	ctx := context.Background()
	owner, _ := testOwner(t)

	// all failing: counter accumulates on top of the prior value
	r, store, fdb := newTestRouter(t)
	fdb.addErr = dberror.ErrDatabase.Msg("down")
	objs := []blobstore.ObjectInfo{
		putInboxObject(t, store, owner, 1622467200, testReport(1000, strings.Repeat("a", 40), "a1b2c3d4_1000")),
		putInboxObject(t, store, owner, 1622467300, testReport(1000, strings.Repeat("a", 40), "a1b2c3d4_1000")),
	}
	counter, failures := r.processBatch(ctx, objs, 3, nil)
	assert.Equal(t, 5, counter)
	assert.Equal(t, 2, failures)

	// all succeeding: counter resets
	r2, store2, _ := newTestRouter(t)
	objs2 := []blobstore.ObjectInfo{
		putInboxObject(t, store2, owner, 1622467200, testReport(1000, strings.Repeat("a", 40), "a1b2c3d4_1000")),
	}
	counter, failures = r2.processBatch(ctx, objs2, 7, nil)
	assert.Equal(t, 0, counter)
	assert.Equal(t, 0, failures)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	r, _, _ := newTestRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx, nil))
}

func TestAccept(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, priv := testOwner(t)

	rpt := testReport(1000, strings.Repeat("a", 40), "a1b2c3d4_1000")
	payload, err := rpt.EncodeGzipped()
	require.NoError(t, err)
	sig := base58.Encode(ed25519.Sign(priv, payload))

	key, aerr := r.Accept(ctx, payload, sig, owner, "203.0.113.7")
	require.NoError(t, aerr)

	ts, parsedOwner, perr := blobstore.ParseInboxKey(key)
	require.NoError(t, perr)
	assert.Equal(t, owner, parsedOwner)
	assert.InDelta(t, time.Now().Unix(), ts, 5)

	stored, gerr := store.Get(ctx, "inbox-bucket", key)
	require.NoError(t, gerr)
	assert.Equal(t, payload, stored)
	assert.Equal(t, []string{owner + "|203.0.113.7"}, fdb.subLogs)
}

func TestAcceptRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	r, store, fdb := newTestRouter(t)
	owner, _ := testOwner(t)
	_, otherPriv := testOwner(t)

	payload := []byte("payload")
	badSig := base58.Encode(ed25519.Sign(otherPriv, payload))

	_, err := r.Accept(ctx, payload, badSig, owner, "203.0.113.7")
	require.ErrorIs(t, err, ErrSignatureRejected)
	assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))

	objects, lerr := store.List(ctx, "inbox-bucket", "queue/")
	require.NoError(t, lerr)
	assert.Empty(t, objects)
	assert.Empty(t, fdb.subLogs)
}

func TestAcceptRejectsEmptyPayload(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, err := r.Accept(context.Background(), nil, "sig", "owner", "203.0.113.7")
	require.ErrorIs(t, err, ErrEmptyObject)
}
