package models

import (
	"time"

	"github.com/devatlas/devatlas/internal/common/uuid"
)

// DevJob corresponds to one row of the dev table: a developer whose combined
// report needs regenerating. Nullable columns are read back as zero values,
// an empty GhLogin means the developer has no validated GitHub login.
type DevJob struct {
	OwnerID               string    `db:"owner_id"`
	ReportTs              time.Time `db:"report_ts"`
	ReportInFlightID      uuid.UUID `db:"report_in_flight_id"`
	ReportInFlightTs      time.Time `db:"report_in_flight_ts"`
	ReportFailCounter     int32     `db:"report_fail_counter"`
	LastSubmissionTs      time.Time `db:"last_submission_ts"`
	GhLogin               string    `db:"gh_login"`
	GhLoginGistValidation string    `db:"gh_login_gist_validation"`
	GhLoginValidationTs   time.Time `db:"gh_login_validation_ts"`
	GhLoginGistLatest     string    `db:"gh_login_gist_latest"`
	GhNodeID              string    `db:"gh_node_id"`
}

// SearchDocID returns the identifier the developer is indexed under: the
// GitHub account node id when one is on file, the owner id otherwise.
func (j *DevJob) SearchDocID() string {
	if j.GhNodeID != "" {
		return j.GhNodeID
	}
	return j.OwnerID
}

// NeedsLoginValidation reports whether the developer submitted a new gist id
// that has not been validated yet. An empty latest gist with a non-empty
// validated one means the developer asked to unlink their login.
func (j *DevJob) NeedsLoginValidation() bool {
	return j.GhLoginGistLatest != j.GhLoginGistValidation
}
