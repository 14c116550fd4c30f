package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInbound(t *testing.T) {
	valid := []string{
		`{"projects_included": []}`,
		`{"projects_included": [{"project_name": "widget"}]}`,
		sampleSubmission,
		// Unknown extra fields pass through
		`{"projects_included": [], "analyzer_version": "2.1", "future_field": {"a": 1}}`,
	}
	for _, s := range valid {
		require.NoError(t, ValidateInbound([]byte(s)), "input %s", s)
	}
}

func TestValidateInboundRejects(t *testing.T) {
	invalid := []string{
		`not json`,
		`[]`,
		`"report"`,
		`{}`,
		`{"projects_included": "nope"}`,
		`{"projects_included": [{"commits": "aaaaaaaa_100"}]}`,
		`{"projects_included": [{"commits": [100]}]}`,
		`{"projects_included": [], "timestamp": 1622467200}`,
		`{"projects_included": [], "last_contributor_commit_date_epoch": -5}`,
		`{"projects_included": [], "last_contributor_commit_date_epoch": 1.5}`,
		`{"projects_included": [], "contributor_emails": "jane@example.com"}`,
		`{"projects_included": [], "tech": [{"language": 42}]}`,
	}
	for _, s := range invalid {
		err := ValidateInbound([]byte(s))
		require.Error(t, err, "input %s", s)
		assert.ErrorIs(t, err, ErrSchemaViolation, "input %s", s)
	}
}
