package blobstore

import (
	"path"
	"strconv"
	"strings"

	"github.com/devatlas/devatlas/internal/inboxsrv/identity"
)

// Object key grammars.
//
// Inbox submission:       <inbox-prefix>/<epoch-ts>_<owner-id>.gz
// Timestamped report:     <reports-prefix>/<owner-id>/<project-id>/<epoch-ts>_<sha1>.gz
// Combined report:        <reports-prefix>/<owner-id>/<project-id>/report.gz
// Developer profile:      <reports-prefix>/<owner-id>/profile.gz
//
// Prefixes never carry leading or trailing slashes; an empty prefix puts the
// object at the bucket root.

const (
	// CombinedReportName is the sentinel file name of the latest report of
	// a project. Only keys ending in it take part in profile merges.
	CombinedReportName = "report.gz"
	// ProfileName is the developer profile object within the owner folder.
	ProfileName = "profile.gz"

	gzExt = ".gz"
)

// BuildInboxKey builds the key an accepted submission is stored under.
func BuildInboxKey(inboxPrefix string, submissionTs int64, ownerID string) string {
	name := strconv.FormatInt(submissionTs, 10) + "_" + ownerID + gzExt
	return path.Join(inboxPrefix, name)
}

// ParseInboxKey extracts the submission timestamp and owner id from an inbox
// key. The owner id is validated as a decodable public key: inbox objects
// are externally influenced and the key is the only thing tying them to an
// identity.
func ParseInboxKey(key string) (submissionTs int64, ownerID string, err error) {
	name := path.Base(key)
	if !strings.HasSuffix(name, gzExt) {
		return 0, "", ErrInvalidKey.Msg("inbox key lacks " + gzExt + " extension: " + key)
	}
	name = strings.TrimSuffix(name, gzExt)

	tsPart, owner, found := strings.Cut(name, "_")
	if !found {
		return 0, "", ErrInvalidKey.Msg("inbox key lacks timestamp separator: " + key)
	}

	ts, convErr := strconv.ParseInt(tsPart, 10, 64)
	if convErr != nil || ts < 0 || strconv.FormatInt(ts, 10) != tsPart {
		return 0, "", ErrInvalidKey.Msg("inbox key has bad timestamp: " + key)
	}

	if _, idErr := identity.DecodeOwnerID(owner); idErr != nil {
		return 0, "", ErrInvalidKey.MsgErr("inbox key has bad owner id: "+key, idErr)
	}

	return ts, owner, nil
}

// DevPrefix returns the listing prefix of one owner's report folder,
// including the trailing slash so a listing cannot leak into a sibling
// owner whose id shares a prefix.
func DevPrefix(reportsPrefix, ownerID string) string {
	return path.Join(reportsPrefix, ownerID) + "/"
}

// ProjectReportKeys returns the two keys a relocated project report is
// stored under: the timestamped archive copy and the combined latest copy.
func ProjectReportKeys(reportsPrefix, ownerID, projectID string, reportTs int64, commitSha1 string) (timestamped, combined string) {
	folder := path.Join(reportsPrefix, ownerID, projectID)
	timestamped = folder + "/" + strconv.FormatInt(reportTs, 10) + "_" + commitSha1 + gzExt
	combined = folder + "/" + CombinedReportName
	return timestamped, combined
}

// ProfileKey returns the key of the owner's combined profile document.
func ProfileKey(reportsPrefix, ownerID string) string {
	return path.Join(reportsPrefix, ownerID, ProfileName)
}

// IsCombinedReport reports whether the key names a project's latest
// combined report. The match is on the exact sentinel file name, so
// timestamped archive copies and profile documents never qualify.
func IsCombinedReport(key string) bool {
	return path.Base(key) == CombinedReportName
}

// ProjectFromReportKey returns the project folder a combined report lives
// in: the path segment right before the sentinel file name. For reports
// mirrored from GitHub the segment is the repository name.
func ProjectFromReportKey(key string) (string, error) {
	if !IsCombinedReport(key) {
		return "", ErrInvalidKey.Msg("not a combined report key: " + key)
	}
	project := path.Base(path.Dir(key))
	if project == "." || project == "/" || project == "" {
		return "", ErrInvalidKey.Msg("combined report key has no project folder: " + key)
	}
	return project, nil
}

// RejectedKey returns the quarantine key a permanently failed submission is
// moved to, preserving the original object name.
func RejectedKey(rejectedPrefix, inboxKey string) string {
	return path.Join(rejectedPrefix, path.Base(inboxKey))
}
