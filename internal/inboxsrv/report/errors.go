package report

import (
	"github.com/devatlas/devatlas/internal/common/apperrors"
)

// Base report error
var (
	ErrReportError apperrors.Error = apperrors.New("report processing failed")
)

// Corrupt-input errors. These are permanent: reprocessing the same bytes
// reproduces the failure.
var (
	ErrInvalidReport      apperrors.Error = ErrReportError.New("cannot decode report").SetExpandError(true).SetDisposition(apperrors.DoNotRetry)
	ErrSchemaViolation    apperrors.Error = ErrReportError.New("report failed schema validation").SetExpandError(true).SetDisposition(apperrors.DoNotRetry)
	ErrInvalidFingerprint apperrors.Error = ErrReportError.New("invalid commit fingerprint").SetExpandError(true).SetDisposition(apperrors.DoNotRetry)
	ErrInvalidCommitSha1  apperrors.Error = ErrReportError.New("invalid primary commit sha1").SetDisposition(apperrors.DoNotRetry)
	ErrWrongProjectCount  apperrors.Error = ErrReportError.New("report must include exactly one project").SetDisposition(apperrors.DoNotRetry)
	ErrNoFingerprints     apperrors.Error = ErrReportError.New("report carries no commit fingerprints").SetDisposition(apperrors.DoNotRetry)
)

// Serialization errors on the outbound path. Retrying with the same data
// cannot succeed.
var (
	ErrSerializeProfile apperrors.Error = ErrReportError.New("cannot serialize developer profile").SetDisposition(apperrors.DoNotRetry)
)
