package expression

// ExpressionDomain identifies what an expression is used for: which record
// kind it runs against (stream channel or EPG channel) and whether it is a
// filter condition or a data mapping rule. Validation scopes the known
// field set by domain.
type ExpressionDomain string

const (
	DomainStreamFilter  ExpressionDomain = "stream_filter"
	DomainEPGFilter     ExpressionDomain = "epg_filter"
	DomainStreamMapping ExpressionDomain = "stream_mapping"
	DomainEPGMapping    ExpressionDomain = "epg_mapping"
)

// domainAliases maps accepted spellings to their canonical domain.
var domainAliases = map[string]ExpressionDomain{
	"stream_filter":       DomainStreamFilter,
	"stream":              DomainStreamFilter,
	"epg_filter":          DomainEPGFilter,
	"epg":                 DomainEPGFilter,
	"stream_mapping":      DomainStreamMapping,
	"stream_data_mapping": DomainStreamMapping,
	"epg_mapping":         DomainEPGMapping,
	"epg_data_mapping":    DomainEPGMapping,
}

// ParseExpressionDomain resolves a domain string, accepting the short
// aliases, and reports whether it was recognized.
func ParseExpressionDomain(s string) (ExpressionDomain, bool) {
	d, ok := domainAliases[s]
	return d, ok
}

// IsFilterDomain reports whether the domain is a filtering domain.
func (d ExpressionDomain) IsFilterDomain() bool {
	return d == DomainStreamFilter || d == DomainEPGFilter
}

// IsMappingDomain reports whether the domain is a data mapping domain.
func (d ExpressionDomain) IsMappingDomain() bool {
	return d == DomainStreamMapping || d == DomainEPGMapping
}

// IsStreamDomain reports whether the domain runs against stream channels.
func (d ExpressionDomain) IsStreamDomain() bool {
	return d == DomainStreamFilter || d == DomainStreamMapping
}

// IsEPGDomain reports whether the domain runs against EPG channels.
func (d ExpressionDomain) IsEPGDomain() bool {
	return d == DomainEPGFilter || d == DomainEPGMapping
}

// RecordFieldDomains returns the field registry domains for the record
// kind this expression domain runs against. The filter/rule usage domains
// on a field definition say where it may appear, not which records carry
// it, so scoping stays on the record kind.
func (d ExpressionDomain) RecordFieldDomains() []FieldDomain {
	switch {
	case d.IsStreamDomain():
		return []FieldDomain{DomainStream}
	case d.IsEPGDomain():
		return []FieldDomain{DomainEPG}
	}
	return []FieldDomain{DomainStream, DomainEPG}
}

func (d ExpressionDomain) String() string {
	return string(d)
}
