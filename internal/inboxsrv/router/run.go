package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/inboxsrv/blobstore"
	"github.com/devatlas/devatlas/internal/inboxsrv/declog"
)

// Cycle discipline of the routing daemon. Fixed, not configuration: the
// bounds protect the object store and the database, not the operator.
const (
	maxActiveRoutes      = 20
	maxObjectsPerCycle   = 100
	minCycleDuration     = 10 * time.Second
	maxConsecutiveErrors = 10
)

// CycleObserver receives loop progress for the operational listener.
// Implementations must be safe for concurrent use.
type CycleObserver interface {
	RecordCycle(jobs, failures, consecutiveErrors int, took time.Duration)
	RecordInFlight(delta int)
}

// Run polls the inbox prefix until the context is cancelled, routing every
// listed object through the pipeline. It returns a non-nil error when
// processing keeps failing, so the process can exit non-zero under external
// supervision. The observer may be nil.
func (r *Router) Run(ctx context.Context, observer CycleObserver) error {
	log.Ctx(ctx).Info().
		Str("bucket", r.cfg.ObjectStore.InboxBucket).
		Str("prefix", r.cfg.ObjectStore.InboxPrefix).
		Msg("inbox router started")

	errCounter := 0
	for {
		if ctx.Err() != nil {
			log.Ctx(ctx).Info().Msg("inbox router stopping")
			return nil
		}
		if errCounter >= maxConsecutiveErrors {
			log.Ctx(ctx).Error().Int("consecutive_errors", errCounter).Msg("too many routing failures, exiting")
			return ErrTooManyFailures
		}

		cycleStart := time.Now()

		if err := r.store.EnsureCredentials(ctx); err != nil {
			errCounter++
			log.Ctx(ctx).Error().Err(err).Int("consecutive_errors", errCounter).Msg("credential refresh failed")
			sleepRemainder(ctx, cycleStart)
			continue
		}

		objects, lerr := r.store.List(ctx, r.cfg.ObjectStore.InboxBucket, r.cfg.ObjectStore.InboxPrefix+"/")
		if lerr != nil {
			errCounter++
			log.Ctx(ctx).Error().Err(lerr).Int("consecutive_errors", errCounter).Msg("inbox listing failed")
			sleepRemainder(ctx, cycleStart)
			continue
		}
		if len(objects) > maxObjectsPerCycle {
			objects = objects[:maxObjectsPerCycle]
		}

		failures := 0
		if len(objects) > 0 {
			errCounter, failures = r.processBatch(ctx, objects, errCounter, observer)
		}
		if observer != nil {
			observer.RecordCycle(len(objects), failures, errCounter, time.Since(cycleStart))
		}

		sleepRemainder(ctx, cycleStart)
	}
}

// processBatch routes the listed objects with bounded fan-out. It returns
// the updated consecutive-error counter (incremented per unresolved
// failure, reset on every success) and the batch failure count.
func (r *Router) processBatch(ctx context.Context, objects []blobstore.ObjectInfo, errCounter int, observer CycleObserver) (int, int) {
	var mu sync.Mutex
	failures := 0

	sem := make(chan struct{}, maxActiveRoutes)
	var wg sync.WaitGroup
	for _, obj := range objects {
		wg.Add(1)
		sem <- struct{}{}
		go func(obj blobstore.ObjectInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			if observer != nil {
				observer.RecordInFlight(1)
				defer observer.RecordInFlight(-1)
			}

			failed := r.routeOne(ctx, obj)

			mu.Lock()
			if failed {
				errCounter++
				failures++
			} else {
				errCounter = 0
			}
			mu.Unlock()
		}(obj)
	}
	wg.Wait()

	return errCounter, failures
}

// routeOne processes one inbox object and settles its fate. Permanently
// rejected objects are quarantined and recorded as handled; retryable
// failures leave the object in place for the next cycle and count toward
// the fail-fast threshold.
func (r *Router) routeOne(ctx context.Context, obj blobstore.ObjectInfo) (failed bool) {
	res, err := r.ProcessInboxObject(ctx, obj)
	if err == nil {
		if res.Skipped {
			return false
		}
		entry := declog.Entry{
			Outcome:   declog.OutcomeAccepted,
			OwnerID:   res.OwnerID,
			ProjectID: res.ProjectID,
			Key:       obj.Key,
		}
		if res.OutOfOrder {
			entry.Outcome = declog.OutcomeOutOfOrder
			entry.Reason = "older than the latest recorded commit"
		}
		r.logDecision(ctx, entry)
		return false
	}

	entry := declog.Entry{Outcome: declog.OutcomeRejected, Key: obj.Key, Reason: apperrors.Detail(err)}
	if res != nil {
		entry.OwnerID = res.OwnerID
		entry.ProjectID = res.ProjectID
	}

	if apperrors.DispositionOf(err) == apperrors.DoNotRetry {
		log.Ctx(ctx).Error().Err(err).Str("detail", apperrors.Detail(err)).Str("key", obj.Key).Msg("rejecting inbox object")
		if qerr := r.quarantine(ctx, obj.Key); qerr != nil {
			log.Ctx(ctx).Error().Err(qerr).Str("key", obj.Key).Msg("failed to quarantine inbox object")
			return true
		}
		r.logDecision(ctx, entry)
		return false
	}

	log.Ctx(ctx).Error().Err(err).Str("key", obj.Key).Msg("routing failed, leaving object for retry")
	return true
}

// quarantine moves a permanently rejected object under the rejected prefix.
// The bytes stay available for inspection and the inbox listing stays
// clean.
func (r *Router) quarantine(ctx context.Context, inboxKey string) apperrors.Error {
	rejectedKey := blobstore.RejectedKey(r.cfg.ObjectStore.RejectedPrefix, inboxKey)
	if err := r.store.Copy(ctx, r.cfg.ObjectStore.InboxBucket, inboxKey, r.cfg.ObjectStore.InboxBucket, rejectedKey); err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			return nil
		}
		return err
	}
	return r.store.Delete(ctx, r.cfg.ObjectStore.InboxBucket, inboxKey)
}

func (r *Router) logDecision(ctx context.Context, e declog.Entry) {
	if err := r.decisions.Append(e); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", e.Key).Msg("failed to append decision log entry")
	}
}

// sleepRemainder waits out the rest of the minimum cycle so a quiet or
// failing loop cannot hammer the object store.
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
