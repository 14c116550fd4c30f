package report

import (
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed reportschema.json
var reportSchemaJSON string

var reportSchema = jsonschema.MustCompileString("reportschema.json", reportSchemaJSON)

// ValidateInbound checks a decompressed submission against the report schema
// before any field of it is trusted. The schema pins the shape of the fields
// the pipeline reads; unknown extra fields pass through so newer analyzers
// keep working.
func ValidateInbound(data []byte) error {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ErrSchemaViolation.Err(err)
	}
	if err := reportSchema.Validate(parsed); err != nil {
		return ErrSchemaViolation.Msg(err.Error())
	}
	return nil
}
