package header

import (
	"errors"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/services"
)

// Normalizer derives identities and cleaned copies of raw headers.
type Normalizer struct {
	parser MetaParser
	strip  map[string]struct{}
}

// New builds a Normalizer from a MetaParser and the keywords removed on clean.
func New(parser MetaParser, stripFields []string) (*Normalizer, error) {
	if parser == nil {
		return nil, errors.New("header normalizer requires a meta parser")
	}
	strip, err := stripSet(stripFields)
	if err != nil {
		return nil, err
	}
	return &Normalizer{parser: parser, strip: strip}, nil
}

// NewFromConfig builds a Normalizer using the RuleParser configured in [header].
func NewFromConfig(cfg config.Header) (*Normalizer, error) {
	parser, err := NewRuleParser(cfg)
	if err != nil {
		return nil, err
	}
	return New(parser, cfg.StripFields)
}

// Identify derives the identity fields of raw without modifying it.
func (n *Normalizer) Identify(raw Headers) (Identity, error) {
	var id Identity
	uid, ok := raw.String("SOPInstanceUID")
	if !ok {
		return id, services.Wrap(services.ErrMalformedHeader, "header", "identify", "SOPInstanceUID missing", nil)
	}
	id.InstanceUID = uid

	meta, err := n.parser.ParseMeta(raw)
	if err != nil {
		return id, err
	}
	id.SubjectID = meta.Subject
	id.IsTemplate = meta.IsTemplate
	id.SiteID = SiteID(raw)

	if id.IndexKey, err = IndexKey(raw); err != nil {
		return id, err
	}
	if id.StudyTimestamp, err = StudyTimestamp(raw); err != nil {
		return id, err
	}

	id.StudyInstanceUID, _ = raw.String("StudyInstanceUID")
	if id.StudyInstanceUID == "" && !id.IsTemplate {
		return id, services.Wrap(services.ErrMalformedHeader, "header", "identify", "StudyInstanceUID missing", nil)
	}
	id.SeriesDescription, _ = raw.String("SeriesDescription")
	id.SeriesNumber = seriesNumber(raw)
	id.Modality, _ = raw.String("Modality")
	id.StationName, _ = raw.String("StationName")
	id.Radiotracer = Radiotracer(raw)
	id.AcquisitionNumber = raw.Optional("AcquisitionNumber")
	id.InstanceNumber = raw.Optional("InstanceNumber")
	id.EchoNumber = raw.Optional("EchoNumbers")
	return id, nil
}

// Clean returns the publishable copy of raw: derived qc_ fields added, string
// values trimmed, configured PHI keywords and private tags removed.
func (n *Normalizer) Clean(raw Headers, id Identity) Headers {
	return cleanHeaders(raw, n.strip, id)
}

// Normalize runs Identify then Clean.
func (n *Normalizer) Normalize(raw Headers) (Headers, Identity, error) {
	id, err := n.Identify(raw)
	if err != nil {
		return nil, id, err
	}
	return n.Clean(raw, id), id, nil
}
