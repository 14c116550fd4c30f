package router

import "github.com/devatlas/devatlas/internal/common/apperrors"

// Base routing error
var (
	ErrRouter apperrors.Error = apperrors.New("inbox routing failed")
)

// Routing failures. Signature rejections, empty objects and project
// conflicts are permanent for the submitted bytes; everything else stays
// retryable.
var (
	ErrSignatureRejected apperrors.Error = ErrRouter.New("submission signature rejected").SetDisposition(apperrors.DoNotRetry)
	ErrEmptyObject       apperrors.Error = ErrRouter.New("inbox object is empty").SetDisposition(apperrors.DoNotRetry)
	ErrProjectConflict   apperrors.Error = ErrRouter.New("commit fingerprints match multiple projects").SetDisposition(apperrors.DoNotRetry)
	ErrTooManyFailures   apperrors.Error = ErrRouter.New("too many consecutive routing failures")
)
