package dberror

import (
	"github.com/devatlas/devatlas/internal/common/apperrors"
)

// Database failures default to the retryable disposition: the job stays
// claimable and a later cycle picks it up. Only input the database itself
// rejected is permanent.
var (
	ErrDatabase      apperrors.Error = apperrors.New("db error")
	ErrNotFound      apperrors.Error = ErrDatabase.New("not found")
	ErrAlreadyExists apperrors.Error = ErrDatabase.New("already exists")
	ErrNoConnection  apperrors.Error = ErrDatabase.New("no database connection")
	ErrInvalidInput  apperrors.Error = ErrDatabase.New("invalid input").SetDisposition(apperrors.DoNotRetry)
)
