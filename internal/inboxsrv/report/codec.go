package report

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/h2non/filetype"
)

// DecodeInbound decompresses, schema-checks and parses a client submission.
// Anything that fails here is a corrupt submission, not a transient fault.
func DecodeInbound(data []byte) (*Report, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateInbound(raw); err != nil {
		return nil, err
	}
	r := &Report{}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, ErrInvalidReport.Err(err)
	}
	return r, nil
}

// DecodeGzipped parses a stored report without the inbound schema check.
// Stored reports were written by this service from inputs that already
// passed it.
func DecodeGzipped(data []byte) (*Report, error) {
	raw, err := decompress(data)
	if err != nil {
		return nil, err
	}
	r := &Report{}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, ErrInvalidReport.Err(err)
	}
	return r, nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidReport.Msg("empty payload")
	}

	kind, err := filetype.Match(data)
	if err != nil || kind.Extension != "gz" {
		return nil, ErrInvalidReport.Msg("payload is not gzip")
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidReport.Err(err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, ErrInvalidReport.Err(err)
	}
	return raw, nil
}

// EncodeGzipped serializes the report to gzipped JSON, the storage and wire
// format for both project reports and combined developer reports.
func (r *Report) EncodeGzipped() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, ErrSerializeProfile.Err(err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, ErrSerializeProfile.Err(err)
	}
	if err := zw.Close(); err != nil {
		return nil, ErrSerializeProfile.Err(err)
	}
	return buf.Bytes(), nil
}
