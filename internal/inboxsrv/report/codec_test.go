package report

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devatlas/devatlas/internal/common/apperrors"
)

const sampleSubmission = `{
	"timestamp": "2021-05-01T10:00:00+00:00",
	"project_id": "proj-1",
	"public_name": "Jane",
	"last_contributor_commit_sha1": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	"last_contributor_commit_date_epoch": 1622467200,
	"projects_included": [
		{"project_name": "widget", "commit_count": 3, "commits": ["aaaaaaaa_100", "bbbbbbbb_200"]}
	],
	"tech": [
		{"language": "Go", "files": 2, "code_lines": 100, "keywords": {"func": 7}}
	]
}`

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecodeInbound(t *testing.T) {
	r, err := DecodeInbound(gzipBytes(t, []byte(sampleSubmission)))
	require.NoError(t, err)

	assert.Equal(t, "2021-05-01T10:00:00+00:00", r.Timestamp)
	assert.Equal(t, "proj-1", r.ProjectID)
	assert.Equal(t, int64(1622467200), r.LastContributorCommitDateEpoch)
	require.Len(t, r.ProjectsIncluded, 1)
	assert.Equal(t, []string{"aaaaaaaa_100", "bbbbbbbb_200"}, r.ProjectsIncluded[0].Commits)
	require.Len(t, r.Tech, 1)
	assert.Equal(t, int64(7), r.Tech[0].Keywords["func"])
}

func TestDecodeInboundRejectsNonGzip(t *testing.T) {
	_, err := DecodeInbound([]byte(sampleSubmission))
	require.Error(t, err)
	assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))
	assert.Contains(t, err.Error(), "not gzip")
}

func TestDecodeInboundRejectsEmptyPayload(t *testing.T) {
	_, err := DecodeInbound(nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))
}

func TestDecodeInboundRejectsTruncatedGzip(t *testing.T) {
	data := gzipBytes(t, []byte(sampleSubmission))
	_, err := DecodeInbound(data[:len(data)/2])
	require.Error(t, err)
	assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))
}

func TestDecodeInboundRejectsCorruptJSON(t *testing.T) {
	_, err := DecodeInbound(gzipBytes(t, []byte(`{"projects_included": [`)))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSchemaViolation)
}

func TestDecodeInboundRejectsSchemaViolation(t *testing.T) {
	_, err := DecodeInbound(gzipBytes(t, []byte(`{"projects_included": "nope"}`)))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSchemaViolation)
	assert.Equal(t, apperrors.DoNotRetry, apperrors.DispositionOf(err))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := projectReport("proj-1", "2021-05-01T10:00:00+00:00")
	src.ContributorEmails = []string{"jane@example.com"}

	data, err := src.EncodeGzipped()
	require.NoError(t, err)

	decoded, err := DecodeGzipped(data)
	require.NoError(t, err)
	assert.Equal(t, src, decoded)
}

func TestDecodeGzippedSkipsSchemaCheck(t *testing.T) {
	// Stored combined reports can hold many project summaries and no
	// submission-only fields; they decode without the inbound check.
	combined := `{"owner_id": "owner-1", "projects_included": [{}, {}, {}]}`
	r, err := DecodeGzipped(gzipBytes(t, []byte(combined)))
	require.NoError(t, err)
	assert.Len(t, r.ProjectsIncluded, 3)
}
