package models

// DataMappingRuleSourceType specifies the type of record the rule applies to.
type DataMappingRuleSourceType string

const (
	// DataMappingRuleSourceTypeStream applies to stream/channel records.
	DataMappingRuleSourceTypeStream DataMappingRuleSourceType = "stream"

	// DataMappingRuleSourceTypeEPG applies to EPG channel records.
	DataMappingRuleSourceTypeEPG DataMappingRuleSourceType = "epg"
)

// DataMappingRule represents an expression-based data mapping rule stored
// in the database. Rules are applied in ascending sort order to transform
// field values. A rule may be authored either as structured conditions and
// actions or as a single text expression; both forms parse to the same AST.
type DataMappingRule struct {
	BaseModel

	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"size:1024" json:"description,omitempty"`

	// SourceType specifies whether this applies to streams or EPG channels.
	SourceType DataMappingRuleSourceType `gorm:"size:20;not null;index" json:"source_type"`

	// Scope optionally narrows where the rule applies (free-form tag,
	// e.g. a source name). Empty means all sources of the SourceType.
	Scope string `gorm:"size:255" json:"scope,omitempty"`

	// Conditions is the structured condition list (JSON). When set it is
	// authoritative and Expression is derived from it.
	Conditions ConditionList `gorm:"type:text" json:"conditions,omitempty"`

	// Actions is the structured action list (JSON).
	Actions ActionList `gorm:"type:text" json:"actions,omitempty"`

	// Expression is the rule in text form:
	// <condition> (AND|OR <condition>)* SET <field> = "value" (, <field> = "value")*
	Expression string `gorm:"type:text" json:"expression,omitempty"`

	// SortOrder determines rule chain position (dense, 1-based).
	SortOrder int `gorm:"default:0;index" json:"sort_order"`

	// IsActive determines if the rule participates in chains.
	IsActive bool `gorm:"default:true" json:"is_active"`

	// IsSystem indicates a system-provided default that cannot be edited
	// or deleted. Only IsActive can be toggled for system rules.
	IsSystem bool `gorm:"default:false" json:"is_system"`
}

func (DataMappingRule) TableName() string { return "data_mapping_rules" }

// Validate checks the rule configuration.
func (r *DataMappingRule) Validate() error {
	switch {
	case r.Name == "":
		return ErrValidation{Field: "name", Message: "name is required"}
	case len(r.Conditions) == 0 && len(r.Actions) == 0 && r.Expression == "":
		return ErrValidation{Field: "expression", Message: "conditions/actions or expression is required"}
	case r.SourceType == "":
		return ErrValidation{Field: "source_type", Message: "source_type is required"}
	case r.SourceType != DataMappingRuleSourceTypeStream && r.SourceType != DataMappingRuleSourceTypeEPG:
		return ErrValidation{Field: "source_type", Message: "source_type must be 'stream' or 'epg'"}
	}
	return nil
}
