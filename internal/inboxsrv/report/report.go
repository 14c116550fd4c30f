// Package report defines the code-analysis report document: the unit
// submitted by developers, relocated by the router, and folded into a
// combined developer profile by the merge flows.
//
// A submission carries exactly one included project. The combined developer
// report produced by Merge carries one project summary per source report.
package report

import (
	"strconv"

	jsonitor "github.com/json-iterator/go"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

// Tech aggregates per-language analysis results.
type Tech struct {
	Language  string           `json:"language"`
	Files     int64            `json:"files,omitempty"`
	CodeLines int64            `json:"code_lines,omitempty"`
	Keywords  map[string]int64 `json:"keywords,omitempty"` // dropped by Abridge
}

// ProjectSummary describes one analyzed project inside a report. Submissions
// carry exactly one; combined reports carry one per merged source.
type ProjectSummary struct {
	ProjectName    string `json:"project_name,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	GithubUserName string `json:"github_user_name,omitempty"`
	GithubRepoName string `json:"github_repo_name,omitempty"`
	CommitCount    int64  `json:"commit_count,omitempty"`
	LOC            int64  `json:"loc,omitempty"`
	// Commits holds recent commit fingerprints in the compact
	// "<8-hex-hash>_<epoch-ts>" form. Dropped by Abridge.
	Commits []string `json:"commits,omitempty"`
}

// Report is the code-analysis report document. The same structure is used
// for inbound per-project submissions and for the combined developer report;
// the two differ in how many projects they include and which identity fields
// are set.
type Report struct {
	// Timestamp is the report generation time in RFC3339. On a combined
	// report it is the timestamp of the most recently folded source.
	Timestamp string `json:"timestamp,omitempty"`

	OwnerID   string `json:"owner_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`

	// GitHub identity of the source repository, set on reports generated
	// from public GitHub data and cleared on private submissions.
	GithubUserName string `json:"github_user_name,omitempty"`
	GithubRepoName string `json:"github_repo_name,omitempty"`

	// Publicity and contact fields controlled by the developer. On merge the
	// most recently modified report wins.
	PublicName    string `json:"public_name,omitempty"`
	PublicContact string `json:"public_contact,omitempty"`
	PrimaryEmail  string `json:"primary_email,omitempty"`

	// GhValidationGistID is the gist the developer published to link their
	// GitHub login. Submission transport metadata: carried to the job queue
	// by the router, never folded into combined reports. Nil leaves the
	// recorded claim alone; present but empty requests an unlink.
	GhValidationGistID *string `json:"gh_validation_gist_id,omitempty"`

	// Contributor email addresses discovered in the analyzed history.
	ContributorEmails []string `json:"contributor_emails,omitempty"`

	LastContributorCommitSha1      string `json:"last_contributor_commit_sha1,omitempty"`
	LastContributorCommitDateEpoch int64  `json:"last_contributor_commit_date_epoch,omitempty"`

	ProjectsIncluded []ProjectSummary `json:"projects_included"`

	Tech []Tech `json:"tech,omitempty"`
}

// IncludedProject returns the single project summary of a submission.
// A submission must embed exactly one included project; zero or several is
// corrupt input.
func (r *Report) IncludedProject() (*ProjectSummary, error) {
	if len(r.ProjectsIncluded) != 1 {
		return nil, ErrWrongProjectCount.Msg("got " + strconv.Itoa(len(r.ProjectsIncluded)))
	}
	return &r.ProjectsIncluded[0], nil
}
