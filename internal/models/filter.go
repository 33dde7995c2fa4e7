package models

// FilterSourceType specifies the type of record the filter applies to.
type FilterSourceType string

const (
	// FilterSourceTypeStream applies to stream/channel records.
	FilterSourceTypeStream FilterSourceType = "stream"

	// FilterSourceTypeEPG applies to EPG channel records.
	FilterSourceTypeEPG FilterSourceType = "epg"
)

// Filter represents an expression-based inclusion filter stored in the
// database. A filter may be authored as a structured condition list or as
// a text expression; when both are present the structured form wins.
// Filters carry no actions.
type Filter struct {
	BaseModel

	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"size:1024" json:"description,omitempty"`

	// SourceType specifies whether this applies to streams or EPG channels.
	SourceType FilterSourceType `gorm:"size:20;not null;index" json:"source_type"`

	// Conditions is the structured condition list (JSON).
	Conditions ConditionList `gorm:"type:text" json:"conditions,omitempty"`

	// Expression is the filter expression in text form.
	Expression string `gorm:"type:text" json:"expression,omitempty"`

	// IsInverse flips final inclusion: keep records the conditions do
	// NOT match, drop records they do.
	IsInverse bool `gorm:"default:false" json:"is_inverse"`

	// StartingChannelNumber is a numbering default used when the filter
	// is previewed standalone. During assembly the proxy's value wins.
	StartingChannelNumber int `gorm:"default:1" json:"starting_channel_number"`

	IsEnabled bool `gorm:"default:true" json:"is_enabled"`

	// IsSystem indicates a system-provided default that cannot be edited
	// or deleted. Only IsEnabled can be toggled for system filters.
	IsSystem bool `gorm:"default:false" json:"is_system"`
}

func (Filter) TableName() string { return "filters" }

// Validate checks the filter configuration.
func (f *Filter) Validate() error {
	if f.Name == "" {
		return ErrValidation{Field: "name", Message: "name is required"}
	}
	// A filter with no conditions matches everything; that is a legal
	// configuration, not an error.
	if f.SourceType == "" {
		return ErrValidation{Field: "source_type", Message: "source_type is required"}
	}
	if f.SourceType != FilterSourceTypeStream && f.SourceType != FilterSourceTypeEPG {
		return ErrValidation{Field: "source_type", Message: "source_type must be 'stream' or 'epg'"}
	}
	if f.StartingChannelNumber < 0 {
		return ErrValidation{Field: "starting_channel_number", Message: "starting_channel_number must not be negative"}
	}
	return nil
}
