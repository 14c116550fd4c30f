package report

import (
	"bytes"
	"compress/gzip"
	"time"

	"github.com/anand-gl/jsoncanonicalizer"
)

// DevProfile is the combined developer document stored alongside the project
// reports and indexed for search. Report is null when the developer has no
// valid reports left, which still replaces any stale profile.
type DevProfile struct {
	OwnerID   string  `json:"owner_id"`
	UpdatedAt string  `json:"updated_at"`
	Report    *Report `json:"report"`
}

// NewDevProfile builds a profile from a folded report. The caller supplies
// the update time so profile generation itself stays deterministic.
func NewDevProfile(ownerID string, combined *Report, updatedAt time.Time) *DevProfile {
	return &DevProfile{
		OwnerID:   ownerID,
		UpdatedAt: updatedAt.UTC().Format(time.RFC3339),
		Report:    combined,
	}
}

// Serialize returns the profile as canonical JSON. Sorted keys and normalized
// numbers make profile bytes comparable across runs, so re-merging the same
// source reports produces an identical document.
func (p *DevProfile) Serialize() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, ErrSerializeProfile.Err(err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, ErrSerializeProfile.Err(err)
	}
	return canonical, nil
}

// EncodeGzipped returns the canonical profile JSON gzipped for object
// storage.
func (p *DevProfile) EncodeGzipped() ([]byte, error) {
	canonical, err := p.Serialize()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(canonical); err != nil {
		zw.Close()
		return nil, ErrSerializeProfile.Err(err)
	}
	if err := zw.Close(); err != nil {
		return nil, ErrSerializeProfile.Err(err)
	}
	return buf.Bytes(), nil
}
