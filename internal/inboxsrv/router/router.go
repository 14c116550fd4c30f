// Package router implements the inbox routing pipeline. Accepted
// submissions land under the inbox prefix; the routing daemon resolves each
// report's project identity against the commit ledger, applies the
// out-of-order rule, relocates the report into the owner's project folder
// and queues the developer for a profile refresh. Permanently rejected
// objects are quarantined under the rejected prefix.
package router

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/inboxsrv/blobstore"
	"github.com/devatlas/devatlas/internal/inboxsrv/config"
	"github.com/devatlas/devatlas/internal/inboxsrv/db"
	"github.com/devatlas/devatlas/internal/inboxsrv/declog"
	"github.com/devatlas/devatlas/internal/inboxsrv/identity"
	"github.com/devatlas/devatlas/internal/inboxsrv/report"
)

// maxFingerprintQuery caps how many commit hashes one resolution sends to
// the ledger. Reports with longer histories still record every parsed pair,
// only the lookup is capped.
const maxFingerprintQuery = 50

// DatabaseProvider checks a database connection out per unit of work.
type DatabaseProvider interface {
	Conn(ctx context.Context) (db.Database, apperrors.Error)
}

// Router routes accepted submissions from the inbox prefix to their
// permanent location in the reports bucket.
type Router struct {
	cfg       *config.Config
	store     blobstore.Store
	dbp       DatabaseProvider
	decisions *declog.Log
}

// NewRouter builds a router over the given stores. The decision log may be
// nil, which disables it.
func NewRouter(cfg *config.Config, store blobstore.Store, dbp DatabaseProvider, decisions *declog.Log) *Router {
	return &Router{
		cfg:       cfg,
		store:     store,
		dbp:       dbp,
		decisions: decisions,
	}
}

// Accept verifies and stores one submission. The payload is written to the
// inbox prefix as submitted; routing happens asynchronously. Returns the
// inbox key the payload was stored under.
func (r *Router) Accept(ctx context.Context, payload []byte, sigB58, ownerB58, srcIP string) (string, apperrors.Error) {
	if len(payload) == 0 {
		return "", ErrEmptyObject.Msg("empty submission payload")
	}
	if !identity.Verify(payload, sigB58, ownerB58) {
		return "", ErrSignatureRejected.Msg("owner " + ownerB58)
	}

	key := blobstore.BuildInboxKey(r.cfg.ObjectStore.InboxPrefix, time.Now().Unix(), ownerB58)
	if err := r.store.Put(ctx, r.cfg.ObjectStore.InboxBucket, key, payload); err != nil {
		return "", err
	}

	database, err := r.dbp.Conn(ctx)
	if err != nil {
		return "", err
	}
	defer database.Close(ctx)

	if err := database.AddSubmissionLog(ctx, ownerB58, srcIP, int64(len(payload))); err != nil {
		return "", err
	}

	log.Ctx(ctx).Info().Str("owner_id", ownerB58).Str("key", key).Int("bytes", len(payload)).Msg("submission accepted")
	return key, nil
}

// RouteResult describes what the router did with one inbox object.
type RouteResult struct {
	OwnerID    string
	ProjectID  string
	OutOfOrder bool
	// Skipped is set when the object vanished before processing, meaning
	// another worker already routed it.
	Skipped bool
}

// ProcessInboxObject runs one inbox object through the full routing
// pipeline: decode, project resolution, ledger update, out-of-order check,
// relocation, ownership updates, inbox cleanup. The pipeline is idempotent;
// reprocessing a partially routed object is harmless. The caller settles
// the object's fate from the returned error's disposition.
func (r *Router) ProcessInboxObject(ctx context.Context, obj blobstore.ObjectInfo) (*RouteResult, apperrors.Error) {
	_, ownerID, kerr := blobstore.ParseInboxKey(obj.Key)
	if kerr != nil {
		return nil, asAppError(kerr)
	}
	res := &RouteResult{OwnerID: ownerID}

	if obj.Size == 0 {
		return res, ErrEmptyObject.Msg(obj.Key)
	}

	data, gerr := r.store.Get(ctx, r.cfg.ObjectStore.InboxBucket, obj.Key)
	if gerr != nil {
		if errors.Is(gerr, blobstore.ErrObjectNotFound) {
			log.Ctx(ctx).Info().Str("key", obj.Key).Msg("inbox object gone, already routed")
			res.Skipped = true
			return res, nil
		}
		return res, gerr
	}

	rpt, derr := report.DecodeInbound(data)
	if derr != nil {
		return res, asAppError(derr)
	}

	included, ierr := rpt.IncludedProject()
	if ierr != nil {
		return res, asAppError(ierr)
	}

	sha1 := rpt.LastContributorCommitSha1
	if verr := report.ValidateCommitSha1(sha1); verr != nil {
		return res, asAppError(verr)
	}

	fingerprints, ferr := report.ParseFingerprints(included.Commits)
	if ferr != nil {
		return res, asAppError(ferr)
	}
	if len(fingerprints) == 0 {
		return res, report.ErrNoFingerprints.Msg(obj.Key)
	}

	database, cerr := r.dbp.Conn(ctx)
	if cerr != nil {
		return res, cerr
	}
	defer database.Close(ctx)

	projectID, rerr := r.resolveProject(ctx, database, ownerID, fingerprints)
	if rerr != nil {
		return res, rerr
	}
	res.ProjectID = projectID

	// record every parsed pair, not just the queried ones, to grow the
	// ledger's matching power for future reports
	hashes := make([]string, len(fingerprints))
	stamps := make([]time.Time, len(fingerprints))
	for i, fp := range fingerprints {
		hashes[i] = fp.Hash
		stamps[i] = time.Unix(fp.Timestamp, 0).UTC()
	}
	if aerr := database.AddCommits(ctx, ownerID, projectID, hashes, stamps); aerr != nil {
		return res, aerr
	}

	latest, lerr := database.LatestProjectCommit(ctx, ownerID, projectID)
	if lerr != nil {
		return res, lerr
	}
	reportEpoch := rpt.LastContributorCommitDateEpoch
	if !latest.IsZero() && reportEpoch < latest.Unix() {
		res.OutOfOrder = true
		log.Ctx(ctx).Warn().Str("owner_id", ownerID).Str("project_id", projectID).
			Int64("report_epoch", reportEpoch).Time("latest_commit", latest).
			Msg("out of order report, keeping the current latest slot")
	}

	if relErr := r.relocate(ctx, obj.Key, ownerID, projectID, reportEpoch, sha1, res.OutOfOrder); relErr != nil {
		return res, relErr
	}

	if uerr := r.updateOwnership(ctx, database, ownerID, rpt, res.OutOfOrder); uerr != nil {
		return res, uerr
	}

	if delErr := r.store.Delete(ctx, r.cfg.ObjectStore.InboxBucket, obj.Key); delErr != nil {
		return res, delErr
	}

	log.Ctx(ctx).Info().Str("owner_id", ownerID).Str("project_id", projectID).
		Bool("out_of_order", res.OutOfOrder).Str("key", obj.Key).Msg("report routed")
	return res, nil
}

// resolveProject decides which project id the report belongs to by matching
// commit fingerprints against the ledger. A ledger row confirms a project
// only when its stored timestamp equals the report's timestamp for the same
// hash; equal short hashes from unrelated histories do not match.
func (r *Router) resolveProject(ctx context.Context, database db.Database, ownerID string, fingerprints []report.CommitFingerprint) (string, apperrors.Error) {
	queried := fingerprints
	if len(queried) > maxFingerprintQuery {
		queried = queried[:maxFingerprintQuery]
	}
	hashes := make([]string, len(queried))
	wantTs := make(map[string]int64, len(queried))
	for i, fp := range queried {
		hashes[i] = fp.Hash
		wantTs[fp.Hash] = fp.Timestamp
	}

	ownerships, err := database.FindProjectsByCommits(ctx, hashes)
	if err != nil {
		return "", err
	}

	confirmed := make(map[string]struct{})
	for _, o := range ownerships {
		if ts, ok := wantTs[o.CommitHash]; ok && o.CommitTs.Unix() == ts {
			confirmed[o.ProjectID] = struct{}{}
		}
	}
	projectIDs := make([]string, 0, len(confirmed))
	for id := range confirmed {
		projectIDs = append(projectIDs, id)
	}
	sort.Strings(projectIDs)

	switch len(projectIDs) {
	case 0:
		projectID, perr := identity.NewProjectID()
		if perr != nil {
			return "", ErrRouter.Err(perr)
		}
		log.Ctx(ctx).Info().Str("owner_id", ownerID).Str("project_id", projectID).Msg("minted new project id")
		return projectID, nil
	case 1:
		log.Ctx(ctx).Info().Str("owner_id", ownerID).Str("project_id", projectIDs[0]).Msg("reusing matched project id")
		return projectIDs[0], nil
	default:
		// conflict resolution is not implemented; abort without touching
		// the ledger or the stored reports
		log.Ctx(ctx).Error().Str("owner_id", ownerID).Strs("project_ids", projectIDs).
			Msg("commit fingerprints match multiple projects")
		return "", ErrProjectConflict.Msg("matched " + strconv.Itoa(len(projectIDs)) + " projects")
	}
}

// relocate copies the inbox object into the owner's project folder: a
// timestamped history copy and, unless the report is out of order, the
// latest-report slot. The copies run concurrently and are joined; the
// caller deletes the inbox source only after both succeed.
func (r *Router) relocate(ctx context.Context, inboxKey, ownerID, projectID string, reportEpoch int64, sha1 string, outOfOrder bool) apperrors.Error {
	timestamped, combined := blobstore.ProjectReportKeys(r.cfg.ObjectStore.ReportsPrefix, ownerID, projectID, reportEpoch, sha1)

	targets := []string{timestamped}
	if !outOfOrder {
		targets = append(targets, combined)
	}

	var wg sync.WaitGroup
	copyErrs := make([]apperrors.Error, len(targets))
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			copyErrs[i] = r.store.Copy(ctx, r.cfg.ObjectStore.InboxBucket, inboxKey, r.cfg.ObjectStore.ReportsBucket, target)
		}(i, target)
	}
	wg.Wait()

	for _, cerr := range copyErrs {
		if cerr != nil {
			return cerr
		}
	}
	return nil
}

// updateOwnership records contact emails and queues the developer's profile
// refresh. The queue-up is skipped for out-of-order reports because the
// latest slot did not change, so there is nothing new to merge.
func (r *Router) updateOwnership(ctx context.Context, database db.Database, ownerID string, rpt *report.Report, outOfOrder bool) apperrors.Error {
	if rpt.PrimaryEmail != "" {
		if err := database.AddEmail(ctx, ownerID, rpt.PrimaryEmail, true); err != nil {
			return err
		}
	}
	for _, email := range rpt.ContributorEmails {
		if email == "" || email == rpt.PrimaryEmail {
			continue
		}
		if err := database.AddEmail(ctx, ownerID, email, false); err != nil {
			return err
		}
	}

	if outOfOrder {
		return nil
	}
	return database.QueueForUpdate(ctx, ownerID, rpt.GhValidationGistID)
}

// asAppError preserves the disposition of errors that already carry one.
func asAppError(err error) apperrors.Error {
	var appErr apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrRouter.Err(err)
}
