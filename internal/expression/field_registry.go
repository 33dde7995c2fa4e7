package expression

import (
	"slices"
	"sync"
)

// FieldType is the value type a field carries.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeFloat   FieldType = "float"
)

func (t FieldType) String() string { return string(t) }

// FieldDomain names a context in which a field may appear.
type FieldDomain string

const (
	// DomainStream covers channel and stream records.
	DomainStream FieldDomain = "stream"
	// DomainEPG covers EPG channel records.
	DomainEPG FieldDomain = "epg"
	// DomainFilter covers filter expressions.
	DomainFilter FieldDomain = "filter"
	// DomainRule covers data mapping rule expressions.
	DomainRule FieldDomain = "rule"
)

func (d FieldDomain) String() string { return string(d) }

// FieldDefinition describes one field usable in expressions.
type FieldDefinition struct {
	// Name is the canonical field name.
	Name string

	// Type is the value type.
	Type FieldType

	// Description documents the field for API consumers.
	Description string

	// Aliases are accepted alternative spellings.
	Aliases []string

	// Domains lists the contexts this field is valid in.
	Domains []FieldDomain

	// ReadOnly fields reject action assignments.
	ReadOnly bool

	// Required fields always carry a value; others read as "" when absent.
	Required bool
}

// validIn reports whether the field belongs to the given domain.
func (d *FieldDefinition) validIn(domain FieldDomain) bool {
	return slices.Contains(d.Domains, domain)
}

// FieldRegistry holds field definitions keyed by canonical name and alias.
type FieldRegistry struct {
	mu      sync.RWMutex
	lookup  map[string]*FieldDefinition // canonical names and aliases
	ordered []*FieldDefinition          // registration order, canonical only
}

// NewFieldRegistry returns an empty registry.
func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{lookup: map[string]*FieldDefinition{}}
}

// Register adds a definition under its name and every alias.
func (r *FieldRegistry) Register(def *FieldDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookup[def.Name] = def
	for _, alias := range def.Aliases {
		r.lookup[alias] = def
	}
	r.ordered = append(r.ordered, def)
}

// Get looks up a definition by canonical name or alias.
func (r *FieldRegistry) Get(name string) (*FieldDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.lookup[name]
	return def, ok
}

// Resolve maps a name or alias to its canonical form. Unknown names come
// back unchanged.
func (r *FieldRegistry) Resolve(name string) string {
	if def, ok := r.Get(name); ok {
		return def.Name
	}
	return name
}

// ListByDomain returns the definitions valid in a domain, in registration
// order.
func (r *FieldRegistry) ListByDomain(domain FieldDomain) []*FieldDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []*FieldDefinition
	for _, def := range r.ordered {
		if def.validIn(domain) {
			defs = append(defs, def)
		}
	}
	return defs
}

// All returns every registered definition.
func (r *FieldRegistry) All() []*FieldDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.ordered)
}

var (
	defaultRegistry     *FieldRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared registry preloaded with the standard
// channel, EPG, and source metadata fields.
func DefaultRegistry() *FieldRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewFieldRegistry()
		for i := range standardFields {
			defaultRegistry.Register(&standardFields[i])
		}
	})
	return defaultRegistry
}

var (
	streamDomains = []FieldDomain{DomainStream, DomainFilter, DomainRule}
	epgDomains    = []FieldDomain{DomainEPG, DomainFilter, DomainRule}
)

// standardFields is every field the default registry knows about. Stream
// fields first, then EPG, then read-only source metadata.
var standardFields = []FieldDefinition{
	{
		Name:        "channel_name",
		Type:        FieldTypeString,
		Description: "The display name of the channel",
		Aliases:     []string{"name"},
		Domains:     []FieldDomain{DomainStream, DomainEPG, DomainFilter, DomainRule},
		Required:    true,
	},
	{
		Name:        "tvg_id",
		Type:        FieldTypeString,
		Description: "The EPG identifier for the channel",
		Aliases:     []string{"epg_id"},
		Domains:     streamDomains,
	},
	{
		Name:        "tvg_name",
		Type:        FieldTypeString,
		Description: "The TVG name attribute",
		Domains:     streamDomains,
	},
	{
		Name:        "tvg_logo",
		Type:        FieldTypeString,
		Description: "URL or asset reference for the channel logo",
		Aliases:     []string{"logo"},
		Domains:     streamDomains,
	},
	{
		Name:        "tvg_shift",
		Type:        FieldTypeFloat,
		Description: "EPG time shift in hours",
		Domains:     streamDomains,
	},
	{
		Name:        "group_title",
		Type:        FieldTypeString,
		Description: "The group/category for the channel",
		Aliases:     []string{"group", "category"},
		Domains:     streamDomains,
	},
	{
		Name:        "stream_url",
		Type:        FieldTypeString,
		Description: "The URL of the stream",
		Aliases:     []string{"url"},
		Domains:     streamDomains,
		Required:    true,
	},
	{
		Name:        "channel_number",
		Type:        FieldTypeInteger,
		Description: "The assigned channel number",
		Aliases:     []string{"number", "chno"},
		Domains:     streamDomains,
	},
	{
		Name:        "channel_id",
		Type:        FieldTypeString,
		Description: "The XMLTV channel identifier",
		Domains:     epgDomains,
	},
	{
		Name:        "channel_logo",
		Type:        FieldTypeString,
		Description: "URL or asset reference for the EPG channel icon",
		Domains:     epgDomains,
	},
	{
		Name:        "channel_group",
		Type:        FieldTypeString,
		Description: "The category of the EPG channel",
		Domains:     epgDomains,
	},
	{
		Name:        "language",
		Type:        FieldTypeString,
		Description: "Language of the EPG channel",
		Aliases:     []string{"lang"},
		Domains:     epgDomains,
	},
	{
		Name:        "source_name",
		Type:        FieldTypeString,
		Description: "The name of the source that provided this record",
		Domains:     []FieldDomain{DomainStream, DomainEPG, DomainFilter},
		ReadOnly:    true,
	},
	{
		Name:        "source_type",
		Type:        FieldTypeString,
		Description: "The type of source (m3u, xmltv)",
		Domains:     []FieldDomain{DomainStream, DomainEPG, DomainFilter},
		ReadOnly:    true,
	},
	{
		Name:        "source_url",
		Type:        FieldTypeString,
		Description: "The URL of the source",
		Domains:     []FieldDomain{DomainStream, DomainEPG, DomainFilter},
		ReadOnly:    true,
	},
}
