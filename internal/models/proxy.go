package models

import (
	"gorm.io/gorm"
)

// ProxyStatus represents the current status of a proxy.
type ProxyStatus string

const (
	// ProxyStatusPending indicates the proxy has not been generated yet.
	ProxyStatusPending ProxyStatus = "pending"
	// ProxyStatusGenerating indicates generation is in progress.
	ProxyStatusGenerating ProxyStatus = "generating"
	// ProxyStatusSuccess indicates the last generation was successful.
	ProxyStatusSuccess ProxyStatus = "success"
	// ProxyStatusFailed indicates the last generation failed.
	ProxyStatusFailed ProxyStatus = "failed"
)

// Proxy represents an output lineup definition: it combines stream and EPG
// sources by priority, applies filters and mapping rules, numbers the
// surviving channels, and publishes M3U/XMLTV output.
type Proxy struct {
	BaseModel

	// Name is a unique user-friendly name for the proxy.
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// Description is an optional description of the proxy.
	Description string `gorm:"size:1024" json:"description,omitempty"`

	// IsActive indicates whether this proxy is active and should be served.
	IsActive bool `gorm:"default:true" json:"is_active"`

	// AutoRegenerate indicates whether to auto-regenerate when sources change.
	AutoRegenerate bool `gorm:"default:false" json:"auto_regenerate"`

	// StartingChannelNumber is the base channel number for sequential numbering.
	StartingChannelNumber int `gorm:"default:1" json:"starting_channel_number"`

	// OutputPath is the path for generated files.
	OutputPath string `gorm:"size:512" json:"output_path,omitempty"`

	// Status indicates the current generation status.
	Status ProxyStatus `gorm:"not null;default:'pending';size:20" json:"status"`

	// LastGeneratedAt is the timestamp of the last successful generation.
	LastGeneratedAt *Time `json:"last_generated_at,omitempty"`

	// LastError contains the error message from the last failed generation.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	// ChannelCount is the number of channels in the last generation.
	ChannelCount int `gorm:"default:0" json:"channel_count"`

	// ProgramCount is the number of EPG programmes in the last generation.
	ProgramCount int `gorm:"default:0" json:"program_count"`

	// CronSchedule for automatic generation (optional).
	// Uses standard cron format: "0 */6 * * *" for every 6 hours.
	CronSchedule string `gorm:"size:100" json:"cron_schedule,omitempty"`

	// Relationships. Join tables carry the dense 1-based priority orders.
	Sources      []ProxySource      `gorm:"foreignKey:ProxyID;constraint:OnDelete:CASCADE" json:"sources,omitempty"`
	EpgSources   []ProxyEpgSource   `gorm:"foreignKey:ProxyID;constraint:OnDelete:CASCADE" json:"epg_sources,omitempty"`
	Filters      []ProxyFilter      `gorm:"foreignKey:ProxyID;constraint:OnDelete:CASCADE" json:"filters,omitempty"`
	MappingRules []ProxyMappingRule `gorm:"foreignKey:ProxyID;constraint:OnDelete:CASCADE" json:"mapping_rules,omitempty"`
}

// TableName returns the table name for Proxy.
func (Proxy) TableName() string {
	return "proxies"
}

// MarkGenerating sets the proxy status to generating.
func (p *Proxy) MarkGenerating() {
	p.Status = ProxyStatusGenerating
	p.LastError = ""
}

// MarkSuccess sets the proxy status to success with counts.
func (p *Proxy) MarkSuccess(channelCount, programCount int) {
	p.Status = ProxyStatusSuccess
	now := Now()
	p.LastGeneratedAt = &now
	p.ChannelCount = channelCount
	p.ProgramCount = programCount
	p.LastError = ""
}

// MarkFailed sets the proxy status to failed with an error message.
func (p *Proxy) MarkFailed(err error) {
	p.Status = ProxyStatusFailed
	if err != nil {
		p.LastError = err.Error()
	}
}

// Validate performs basic validation on the proxy.
func (p *Proxy) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.StartingChannelNumber < 1 {
		p.StartingChannelNumber = 1
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the proxy and generates ULID.
func (p *Proxy) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return p.Validate()
}

// BeforeUpdate is a GORM hook that validates the proxy before update.
func (p *Proxy) BeforeUpdate(tx *gorm.DB) error {
	return p.Validate()
}

// ProxySource links a proxy to a stream source with a merge priority.
type ProxySource struct {
	BaseModel

	// ProxyID is the ID of the proxy.
	ProxyID ULID `gorm:"not null;index:idx_proxy_source,unique" json:"proxy_id"`

	// SourceID is the ID of the stream source.
	SourceID ULID `gorm:"not null;index:idx_proxy_source,unique" json:"source_id"`

	// PriorityOrder ranks sources during merge (dense, 1-based; lower
	// wins duplicate channels).
	PriorityOrder int `gorm:"default:0;index" json:"priority_order"`

	// Proxy is the relationship to the parent proxy.
	Proxy *Proxy `gorm:"foreignKey:ProxyID" json:"proxy,omitempty"`

	// Source is the relationship to the stream source.
	Source *StreamSource `gorm:"foreignKey:SourceID" json:"source,omitempty"`
}

// TableName returns the table name for ProxySource.
func (ProxySource) TableName() string {
	return "proxy_sources"
}

// Validate performs basic validation on the proxy source.
func (ps *ProxySource) Validate() error {
	if ps.ProxyID.IsZero() {
		return ErrProxyIDRequired
	}
	if ps.SourceID.IsZero() {
		return ErrSourceIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates and generates ULID.
func (ps *ProxySource) BeforeCreate(tx *gorm.DB) error {
	if err := ps.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return ps.Validate()
}

// ProxyEpgSource links a proxy to an EPG source with a merge priority.
type ProxyEpgSource struct {
	BaseModel

	// ProxyID is the ID of the proxy.
	ProxyID ULID `gorm:"not null;index:idx_proxy_epg_source,unique" json:"proxy_id"`

	// EpgSourceID is the ID of the EPG source.
	EpgSourceID ULID `gorm:"not null;index:idx_proxy_epg_source,unique" json:"epg_source_id"`

	// PriorityOrder ranks EPG sources during merge (dense, 1-based).
	PriorityOrder int `gorm:"default:0;index" json:"priority_order"`

	// Proxy is the relationship to the parent proxy.
	Proxy *Proxy `gorm:"foreignKey:ProxyID" json:"proxy,omitempty"`

	// EpgSource is the relationship to the EPG source.
	EpgSource *EpgSource `gorm:"foreignKey:EpgSourceID" json:"epg_source,omitempty"`
}

// TableName returns the table name for ProxyEpgSource.
func (ProxyEpgSource) TableName() string {
	return "proxy_epg_sources"
}

// Validate performs basic validation on the proxy EPG source.
func (pes *ProxyEpgSource) Validate() error {
	if pes.ProxyID.IsZero() {
		return ErrProxyIDRequired
	}
	if pes.EpgSourceID.IsZero() {
		return ErrEpgSourceIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates and generates ULID.
func (pes *ProxyEpgSource) BeforeCreate(tx *gorm.DB) error {
	if err := pes.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return pes.Validate()
}

// ProxyFilter links a proxy to a filter. Filters are shared: one filter
// may be attached to many proxies.
type ProxyFilter struct {
	BaseModel

	// ProxyID is the ID of the proxy.
	ProxyID ULID `gorm:"not null;index:idx_proxy_filter,unique" json:"proxy_id"`

	// FilterID is the ID of the filter.
	FilterID ULID `gorm:"not null;index:idx_proxy_filter,unique" json:"filter_id"`

	// PriorityOrder determines filter application order (dense, 1-based).
	PriorityOrder int `gorm:"default:0;index" json:"priority_order"`

	// IsActive toggles this filter for this proxy without detaching it.
	// Pointer lets GORM distinguish an explicit false from unset.
	IsActive *bool `gorm:"default:true" json:"is_active"`

	// Proxy is the relationship to the parent proxy.
	Proxy *Proxy `gorm:"foreignKey:ProxyID" json:"proxy,omitempty"`

	// Filter is the relationship to the filter.
	Filter *Filter `gorm:"foreignKey:FilterID" json:"filter,omitempty"`
}

// TableName returns the table name for ProxyFilter.
func (ProxyFilter) TableName() string {
	return "proxy_filters"
}

// Validate performs basic validation on the proxy filter.
func (pf *ProxyFilter) Validate() error {
	if pf.ProxyID.IsZero() {
		return ErrProxyIDRequired
	}
	if pf.FilterID.IsZero() {
		return ErrFilterIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates and generates ULID.
func (pf *ProxyFilter) BeforeCreate(tx *gorm.DB) error {
	if err := pf.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return pf.Validate()
}

// ProxyMappingRule links a proxy to a data mapping rule. Rules are shared
// across proxies the same way filters are.
type ProxyMappingRule struct {
	BaseModel

	// ProxyID is the ID of the proxy.
	ProxyID ULID `gorm:"not null;index:idx_proxy_mapping_rule,unique" json:"proxy_id"`

	// RuleID is the ID of the data mapping rule.
	RuleID ULID `gorm:"not null;index:idx_proxy_mapping_rule,unique" json:"rule_id"`

	// PriorityOrder determines rule chain order (dense, 1-based).
	PriorityOrder int `gorm:"default:0;index" json:"priority_order"`

	// Proxy is the relationship to the parent proxy.
	Proxy *Proxy `gorm:"foreignKey:ProxyID" json:"proxy,omitempty"`

	// Rule is the relationship to the data mapping rule.
	Rule *DataMappingRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}

// TableName returns the table name for ProxyMappingRule.
func (ProxyMappingRule) TableName() string {
	return "proxy_mapping_rules"
}

// Validate performs basic validation on the proxy mapping rule.
func (pmr *ProxyMappingRule) Validate() error {
	if pmr.ProxyID.IsZero() {
		return ErrProxyIDRequired
	}
	if pmr.RuleID.IsZero() {
		return ErrRuleIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates and generates ULID.
func (pmr *ProxyMappingRule) BeforeCreate(tx *gorm.DB) error {
	if err := pmr.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return pmr.Validate()
}
