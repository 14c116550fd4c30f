package models

import (
	"time"
)

// CommitOwnership is one row of the commit ledger: a short commit hash
// observed in some owner's project at some commit time. The same hash can
// legitimately appear for several owners, only a hash+timestamp match ties a
// report to a known project.
type CommitOwnership struct {
	OwnerID    string    `db:"owner_id"`
	ProjectID  string    `db:"project_id"`
	CommitHash string    `db:"commit_hash"`
	CommitTs   time.Time `db:"commit_ts"`
}
