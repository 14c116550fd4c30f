package report

import (
	"regexp"
	"strconv"
	"strings"
)

// A commit fingerprint is the compact encoding "<8-hex-hash>_<epoch-ts>" of
// one observed commit, e.g. "7474684a_1595904770". The hash is exactly 8
// lowercase hex characters. Anything else is treated as data corruption, not
// a transient fault.

var (
	shortHashRegex = regexp.MustCompile(`^[0-9a-f]{8}$`)
	fullSha1Regex  = regexp.MustCompile(`^[0-9a-f]{40}$`)
	// canonical decimal only, so parse-then-encode reproduces the input
	epochRegex = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)
)

// CommitFingerprint is one parsed commit fingerprint.
type CommitFingerprint struct {
	Hash      string // 8 lowercase hex characters
	Timestamp int64  // epoch seconds
}

// String re-encodes the fingerprint into its compact wire form. Parsing a
// valid fingerprint and re-encoding it yields the original string.
func (f CommitFingerprint) String() string {
	return f.Hash + "_" + strconv.FormatInt(f.Timestamp, 10)
}

// ParseFingerprint parses a single "<8hex>_<epoch>" string.
func ParseFingerprint(s string) (CommitFingerprint, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 {
		return CommitFingerprint{}, ErrInvalidFingerprint.Msg("bad fingerprint " + strconv.Quote(s))
	}
	if !shortHashRegex.MatchString(parts[0]) {
		return CommitFingerprint{}, ErrInvalidFingerprint.Msg("bad fingerprint hash " + strconv.Quote(s))
	}
	if !epochRegex.MatchString(parts[1]) {
		return CommitFingerprint{}, ErrInvalidFingerprint.Msg("bad fingerprint timestamp " + strconv.Quote(s))
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return CommitFingerprint{}, ErrInvalidFingerprint.Msg("bad fingerprint timestamp " + strconv.Quote(s))
	}
	return CommitFingerprint{Hash: parts[0], Timestamp: ts}, nil
}

// ParseFingerprints parses the full fingerprint list of a report. A single
// malformed entry fails the whole list. Duplicate hashes keep their
// first-seen position with the last-seen timestamp.
func ParseFingerprints(raw []string) ([]CommitFingerprint, error) {
	parsed := make([]CommitFingerprint, 0, len(raw))
	index := make(map[string]int, len(raw))
	for _, s := range raw {
		fp, err := ParseFingerprint(s)
		if err != nil {
			return nil, err
		}
		if i, ok := index[fp.Hash]; ok {
			parsed[i].Timestamp = fp.Timestamp
			continue
		}
		index[fp.Hash] = len(parsed)
		parsed = append(parsed, fp)
	}
	return parsed, nil
}

// ValidateCommitSha1 checks a full 40-character commit sha1.
func ValidateCommitSha1(sha1 string) error {
	if !fullSha1Regex.MatchString(sha1) {
		return ErrInvalidCommitSha1.Msg("bad commit sha1 " + strconv.Quote(sha1))
	}
	return nil
}
