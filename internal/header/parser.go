package header

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iamvazu/SQAN/internal/config"
	"github.com/iamvazu/SQAN/internal/services"
)

// Meta is what a MetaParser extracts from a header set.
type Meta struct {
	Subject    string
	IsTemplate bool
}

// MetaParser derives the subject ID and template flag from headers. It must
// succeed for well-formed headers and return an error for malformed ones.
type MetaParser interface {
	ParseMeta(h Headers) (Meta, error)
}

// RuleParser reads the subject from a "^"-delimited segment of one field and
// flags templates with a regular expression matched against another field.
type RuleParser struct {
	SubjectField   string
	SubjectSegment int
	TemplateField  string
	Template       *regexp.Regexp
}

// NewRuleParser builds a RuleParser from the [header] config section.
func NewRuleParser(cfg config.Header) (*RuleParser, error) {
	p := &RuleParser{
		SubjectField:   cfg.SubjectField,
		SubjectSegment: cfg.SubjectSegment,
		TemplateField:  cfg.TemplateField,
	}
	if cfg.TemplatePattern != "" {
		re, err := regexp.Compile(cfg.TemplatePattern)
		if err != nil {
			return nil, fmt.Errorf("compile template pattern: %w", err)
		}
		p.Template = re
	}
	return p, nil
}

// ParseMeta implements MetaParser.
func (p *RuleParser) ParseMeta(h Headers) (Meta, error) {
	var meta Meta
	if p.Template != nil {
		if value, ok := h.String(p.TemplateField); ok {
			meta.IsTemplate = p.Template.MatchString(value)
		}
	}
	if value, ok := h.String(p.SubjectField); ok {
		segments := strings.Split(value, "^")
		if p.SubjectSegment < len(segments) {
			meta.Subject = strings.TrimSpace(segments[p.SubjectSegment])
		}
	}
	if meta.Subject == "" && !meta.IsTemplate {
		return Meta{}, services.Wrap(services.ErrMalformedHeader, "header", "parse meta",
			fmt.Sprintf("no subject in %s segment %d", p.SubjectField, p.SubjectSegment), nil)
	}
	return meta, nil
}
