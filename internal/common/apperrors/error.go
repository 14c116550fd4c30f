// Package apperrors is the error vocabulary for the ingestion pipeline.
// Errors form chains: a package sentinel wraps causes and carries a retry
// disposition that the job and routing boundaries read to decide whether
// reprocessing the same input can succeed.
package apperrors

// Disposition classifies a failure for the job and routing boundaries.
// Retry marks transient failures (networking, contention) that are safe to
// reprocess unchanged. DoNotRetry marks corrupt or malformed input where
// reprocessing would reproduce the same failure.
type Disposition int

const (
	Retry Disposition = iota
	DoNotRetry
)

// String returns the disposition label used in logs.
func (d Disposition) String() string {
	if d == DoNotRetry {
		return "do-not-retry"
	}
	return "retry"
}

// Error is the chained application error. The extended methods all return
// a new Error so sentinels stay immutable; raising an error from a
// sentinel is a chain of calls ending in Msg or MsgErr.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // fresh error with this one as its base
	Msg(msg string) Error                  // new message, wraps the original
	MsgErr(msg string, err ...error) Error // new message, wraps extra causes
	Err(err ...error) Error                // same message, attaches causes
	SetExpandError(bool) Error             // include causes in ErrorAll output
	SetDisposition(Disposition) Error      // set the retry classification
	Disposition() Disposition              // current retry classification
	ErrorAll() string                      // message plus attached causes
	UnwrapAll() []error                    // all attached causes
}

// DispositionOf extracts the disposition from an error chain. Errors that do
// not implement Error are treated as retryable, matching the taxonomy where
// unknown failures are assumed transient.
func DispositionOf(err error) Disposition {
	for err != nil {
		if appErr, ok := err.(Error); ok {
			return appErr.Disposition()
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Retry
}

// Detail returns the cause chain for expanded application errors and
// Error() for everything else. Rejection records use it so the defect
// that condemned an object survives in the audit trail.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := err.(Error); ok {
		return appErr.ErrorAll()
	}
	return err.Error()
}
