package flows

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/common/uuid"
	"github.com/devatlas/devatlas/internal/inboxsrv/blobstore"
	"github.com/devatlas/devatlas/internal/inboxsrv/config"
	"github.com/devatlas/devatlas/internal/inboxsrv/db"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/models"
	"github.com/devatlas/devatlas/internal/inboxsrv/ghlogin"
	"github.com/devatlas/devatlas/internal/inboxsrv/identity"
	"github.com/devatlas/devatlas/internal/inboxsrv/report"
)

// Cycle discipline of the merge daemon. Fixed, not configuration: the
// bounds protect the object store, the database and the search engine, not
// the operator.
const (
	maxActiveDevJobs     = 20
	maxJobsPerClaim      = 100
	minCycleDuration     = 10 * time.Second
	maxConsecutiveErrors = 10
)

var (
	// ErrMerge is the base error for profile generation failures.
	ErrMerge apperrors.Error = apperrors.New("developer merge failed")

	// ErrBadOwnerID marks a queue row whose owner id cannot form a storage
	// key. Requeueing cannot fix it.
	ErrBadOwnerID apperrors.Error = ErrMerge.New("job has an invalid owner id").SetDisposition(apperrors.DoNotRetry)

	// ErrTooManyFailures is returned when the loop exits under the
	// consecutive-failure limit.
	ErrTooManyFailures apperrors.Error = apperrors.New("too many consecutive merge failures")
)

// DatabaseProvider hands out one database connection per unit of work.
type DatabaseProvider interface {
	Conn(ctx context.Context) (db.Database, apperrors.Error)
}

// ProfileIndexer uploads a serialized profile to the search engine.
type ProfileIndexer interface {
	IndexProfile(ctx context.Context, docID string, profile []byte) apperrors.Error
}

// LoginValidator checks a claimed GitHub login against its validation gist.
type LoginValidator interface {
	ValidateGist(ctx context.Context, gistID, ownerID string) ghlogin.Validation
}

// DevMerger folds a developer's relocated project reports into one profile
// document, stores it and indexes it for search.
type DevMerger struct {
	cfg    *config.Config
	store  blobstore.Store
	dbp    DatabaseProvider
	search ProfileIndexer
	logins LoginValidator
}

// NewDevMerger wires the merge daemon. All dependencies are required.
func NewDevMerger(cfg *config.Config, store blobstore.Store, dbp DatabaseProvider, search ProfileIndexer, logins LoginValidator) *DevMerger {
	return &DevMerger{
		cfg:    cfg,
		store:  store,
		dbp:    dbp,
		search: search,
		logins: logins,
	}
}

// MergeOutcome carries what a successful merge must persist with the job
// completion: the (re)validated login state, the search doc id and the
// merge tallies.
type MergeOutcome struct {
	GhLogin               string
	GhLoginGistValidation string
	GhNodeID              string
	DocID                 string
	ReportsMerged         int
	ReportsSkipped        int
}

// Run claims and processes merge jobs until the context is cancelled. It
// returns a non-nil error when processing keeps failing, so the process can
// exit non-zero under external supervision. The status tracker may be nil.
func (m *DevMerger) Run(ctx context.Context, status *LoopStatus) error {
	log.Ctx(ctx).Info().Msg("merge daemon started")

	errCounter := 0
	for {
		if ctx.Err() != nil {
			log.Ctx(ctx).Info().Msg("merge daemon stopping")
			return nil
		}
		if errCounter >= maxConsecutiveErrors {
			log.Ctx(ctx).Error().Int("consecutive_errors", errCounter).Msg("too many merge failures, exiting")
			return ErrTooManyFailures
		}

		cycleStart := time.Now()

		if err := m.store.EnsureCredentials(ctx); err != nil {
			errCounter++
			log.Ctx(ctx).Error().Err(err).Int("consecutive_errors", errCounter).Msg("credential refresh failed")
			sleepRemainder(ctx, cycleStart)
			continue
		}

		// claims are correlated on a fresh id per batch
		inFlightID := uuid.New()
		jobs, cerr := m.claimJobs(ctx, inFlightID)
		if cerr != nil {
			errCounter++
			log.Ctx(ctx).Error().Err(cerr).Int("consecutive_errors", errCounter).Msg("claiming merge jobs failed")
			sleepRemainder(ctx, cycleStart)
			continue
		}

		if len(jobs) == 0 {
			sleepRemainder(ctx, cycleStart)
			continue
		}

		var failures int
		errCounter, failures = m.processJobs(ctx, jobs, inFlightID, status)
		if status != nil {
			status.RecordCycle(len(jobs), failures, errCounter, time.Since(cycleStart))
		}

		// a full claim means the queue is hot, poll again without delay
		if len(jobs) < maxActiveDevJobs {
			sleepRemainder(ctx, cycleStart)
		}
	}
}

func (m *DevMerger) claimJobs(ctx context.Context, inFlightID uuid.UUID) ([]models.DevJob, apperrors.Error) {
	database, err := m.dbp.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer database.Close(ctx)

	return database.ClaimJobs(ctx, inFlightID, maxJobsPerClaim)
}

// processJobs merges the claimed batch with bounded fan-out. It returns the
// batch's consecutive-error counter (incremented per failure in completion
// order, reset on every success) and the total failure count.
func (m *DevMerger) processJobs(ctx context.Context, jobs []models.DevJob, inFlightID uuid.UUID, status *LoopStatus) (int, int) {
	var mu sync.Mutex
	errCounter := 0
	failures := 0

	sem := make(chan struct{}, maxActiveDevJobs)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(job models.DevJob) {
			defer wg.Done()
			defer func() { <-sem }()
			if status != nil {
				status.RecordInFlight(1)
				defer status.RecordInFlight(-1)
			}

			failed := m.runJob(ctx, job, inFlightID)

			mu.Lock()
			if failed {
				errCounter++
				failures++
			} else {
				errCounter = 0
			}
			mu.Unlock()
		}(job)
	}
	wg.Wait()

	return errCounter, failures
}

// runJob merges one developer and settles the job row by disposition.
func (m *DevMerger) runJob(ctx context.Context, job models.DevJob, inFlightID uuid.UUID) (failed bool) {
	logger := log.Ctx(ctx).With().Str("owner_id", job.OwnerID).Logger()
	ctx = logger.WithContext(ctx)

	outcome, err := m.MergeDev(ctx, job)
	if err == nil {
		m.completeJob(ctx, job.OwnerID, inFlightID, outcome)
		logger.Info().
			Str("doc_id", outcome.DocID).
			Int("merged", outcome.ReportsMerged).
			Int("skipped", outcome.ReportsSkipped).
			Msg("developer profile rebuilt")
		return false
	}

	if apperrors.DispositionOf(err) == apperrors.DoNotRetry {
		logger.Error().Err(err).Msg("giving up on developer")
		m.failJob(ctx, job.OwnerID, inFlightID)
		return true
	}

	logger.Error().Err(err).Msg("merge failed, leaving job for retry")
	return true
}

// completeJob persists the outcome. A failure here only delays the job: the
// claim expires and the row is picked up again.
func (m *DevMerger) completeJob(ctx context.Context, ownerID string, inFlightID uuid.UUID, outcome *MergeOutcome) {
	database, err := m.dbp.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("cannot mark job completed")
		return
	}
	defer database.Close(ctx)

	err = database.CompleteJob(ctx, ownerID, inFlightID, outcome.GhLogin, outcome.GhLoginGistValidation, outcome.GhNodeID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("cannot mark job completed")
	}
}

func (m *DevMerger) failJob(ctx context.Context, ownerID string, inFlightID uuid.UUID) {
	database, err := m.dbp.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("cannot mark job failed")
		return
	}
	defer database.Close(ctx)

	if err := database.FailJob(ctx, ownerID, inFlightID); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("cannot mark job failed")
	}
}

// reportSource is one combined report key waiting to be folded.
type reportSource struct {
	bucket       string
	key          string
	lastModified time.Time
	fromGitHub   bool
}

// MergeDev rebuilds one developer's profile: validate the login claim if it
// changed, list both report trees, fold every readable combined report in
// ascending modification order, store the gzipped profile and index the
// canonical JSON.
func (m *DevMerger) MergeDev(ctx context.Context, job models.DevJob) (*MergeOutcome, apperrors.Error) {
	if !identity.ValidateOwnerID(job.OwnerID) {
		return nil, ErrBadOwnerID.Msg("owner " + job.OwnerID)
	}

	outcome := &MergeOutcome{
		GhLogin:               job.GhLogin,
		GhLoginGistValidation: job.GhLoginGistValidation,
		GhNodeID:              job.GhNodeID,
	}

	// settle the login claim first: the GitHub report tree and the search
	// doc id both depend on it
	if job.NeedsLoginValidation() {
		validated := m.logins.ValidateGist(ctx, job.GhLoginGistLatest, job.OwnerID)
		outcome.GhLogin = validated.GhLogin
		outcome.GhNodeID = validated.GhNodeID
		outcome.GhLoginGistValidation = job.GhLoginGistLatest
	}

	sources, skipped, err := m.listReportSources(ctx, job.OwnerID, outcome.GhLogin)
	if err != nil {
		return nil, err
	}
	outcome.ReportsSkipped = skipped

	combined := m.foldSources(ctx, job.OwnerID, sources, outcome)

	profile := report.NewDevProfile(job.OwnerID, combined, time.Now().UTC())
	serialized, serr := profile.Serialize()
	if serr != nil {
		return nil, asAppError(serr)
	}
	gzipped, serr := profile.EncodeGzipped()
	if serr != nil {
		return nil, asAppError(serr)
	}

	profileKey := blobstore.ProfileKey(m.cfg.ObjectStore.ReportsPrefix, job.OwnerID)
	if err := m.store.Put(ctx, m.cfg.ObjectStore.ReportsBucket, profileKey, gzipped); err != nil {
		return nil, err
	}

	outcome.DocID = job.OwnerID
	if outcome.GhNodeID != "" {
		outcome.DocID = outcome.GhNodeID
	}
	if err := m.search.IndexProfile(ctx, outcome.DocID, serialized); err != nil {
		return nil, err
	}

	return outcome, nil
}

// listReportSources collects the developer's combined report keys from the
// private tree and, when a login is on file, the GitHub tree. Listing
// entries without a usable timestamp cannot be ordered and are skipped.
func (m *DevMerger) listReportSources(ctx context.Context, ownerID, ghLogin string) ([]reportSource, int, apperrors.Error) {
	type tree struct {
		bucket     string
		prefix     string
		fromGitHub bool
	}
	trees := []tree{
		{bucket: m.cfg.ObjectStore.ReportsBucket, prefix: blobstore.DevPrefix(m.cfg.ObjectStore.ReportsPrefix, ownerID)},
	}
	if ghLogin != "" {
		trees = append(trees, tree{
			bucket:     m.cfg.ObjectStore.GHReportsBucket,
			prefix:     blobstore.DevPrefix(m.cfg.ObjectStore.ReportsPrefix, ghLogin),
			fromGitHub: true,
		})
	}

	var sources []reportSource
	skipped := 0
	for _, t := range trees {
		objects, err := m.store.List(ctx, t.bucket, t.prefix)
		if err != nil {
			return nil, 0, err
		}
		for _, obj := range objects {
			if !blobstore.IsCombinedReport(obj.Key) {
				continue
			}
			if obj.LastModified.IsZero() {
				log.Ctx(ctx).Warn().Str("key", obj.Key).Msg("report has no usable timestamp, skipping")
				skipped++
				continue
			}
			sources = append(sources, reportSource{
				bucket:       t.bucket,
				key:          obj.Key,
				lastModified: obj.LastModified,
				fromGitHub:   t.fromGitHub,
			})
		}
	}

	// ascending, so the most recently relocated report folds last and its
	// privacy and contact fields win
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].lastModified.Equal(sources[j].lastModified) {
			return sources[i].key < sources[j].key
		}
		return sources[i].lastModified.Before(sources[j].lastModified)
	})

	return sources, skipped, nil
}

// foldSources reads and folds the sources in order. An unreadable or
// undecodable report is skipped and counted, never fatal: losing one project
// must not block the whole profile.
func (m *DevMerger) foldSources(ctx context.Context, ownerID string, sources []reportSource, outcome *MergeOutcome) *report.Report {
	var combined *report.Report
	for _, src := range sources {
		data, err := m.store.Get(ctx, src.bucket, src.key)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", src.key).Msg("cannot read report, skipping")
			outcome.ReportsSkipped++
			continue
		}

		rpt, derr := report.DecodeGzipped(data)
		if derr != nil {
			log.Ctx(ctx).Warn().Err(derr).Str("key", src.key).Msg("cannot decode report, skipping")
			outcome.ReportsSkipped++
			continue
		}

		rpt = rpt.Abridge()
		rpt.OwnerID = ownerID
		if src.fromGitHub {
			// GitHub coordinates identify the project
			rpt.ProjectID = ""
		} else {
			projectID, perr := blobstore.ProjectFromReportKey(src.key)
			if perr != nil {
				log.Ctx(ctx).Warn().Err(perr).Str("key", src.key).Msg("report key has no project, skipping")
				outcome.ReportsSkipped++
				continue
			}
			rpt.ProjectID = projectID
			rpt.GithubUserName = ""
			rpt.GithubRepoName = ""
		}

		combined = report.Merge(combined, rpt)
		outcome.ReportsMerged++
	}
	return combined
}

func asAppError(err error) apperrors.Error {
	var appErr apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrMerge.Err(err)
}

// sleepRemainder pads the cycle out to the minimum duration.
func sleepRemainder(ctx context.Context, cycleStart time.Time) {
	remainder := minCycleDuration - time.Since(cycleStart)
	if remainder <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(remainder):
	}
}
