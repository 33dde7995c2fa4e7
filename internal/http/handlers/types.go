// Package handlers provides HTTP API handlers for chanarr.
package handlers

import (
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/chanarr/chanarr/internal/models"
)

// setIf copies *src into *dst when src is non-nil. Partial-update request
// bodies use pointer fields so that absent keys leave the model untouched.
func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ErrorResponse is the body returned for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Pagination holds the query parameters shared by list endpoints.
type Pagination struct {
	Page  int `query:"page" default:"1" minimum:"1" doc:"Page number (1-indexed)"`
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Items per page"`
}

// PaginationMeta describes the page window of a list response.
type PaginationMeta struct {
	CurrentPage int `json:"current_page"`
	PageSize    int `json:"page_size"`

	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
}

// pathID parses a ULID path parameter, mapping parse failures to a 400.
func pathID(raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return id, huma.Error400BadRequest("invalid ID format", err)
	}
	return id, nil
}

// isDuplicateKey reports whether err is a unique constraint violation, in
// both the sqlite and postgres spellings.
func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}

// operation builds a huma.Operation for Register calls.
func operation(id, method, path, summary, description string, tags ...string) huma.Operation {
	return huma.Operation{
		OperationID: id,
		Method:      method,
		Path:        path,
		Summary:     summary,
		Description: description,
		Tags:        tags,
	}
}

// pageMeta computes page bookkeeping for list endpoints.
func pageMeta(total int64, page, perPage int) (totalPages int, hasNext, hasPrev bool) {
	totalPages = int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}
	return totalPages, page < totalPages, page > 1
}

// StreamSourceResponse is the API shape of a stream source.
type StreamSourceResponse struct {
	ID        models.ULID `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	Name      string            `json:"name"`
	Type      models.SourceType `json:"type"`
	URL       string            `json:"url"`
	Username  string            `json:"username,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Enabled   bool              `json:"enabled"`

	Status          models.SourceStatus `json:"status"`
	LastIngestionAt *time.Time          `json:"last_ingestion_at,omitempty"`
	LastError       string              `json:"last_error,omitempty"`

	ChannelCount int    `json:"channel_count"`
	CronSchedule string `json:"cron_schedule,omitempty"`
}

// StreamSourceFromModel maps a stream source model onto its response shape.
func StreamSourceFromModel(src *models.StreamSource) StreamSourceResponse {
	return StreamSourceResponse{
		ID: src.ID, CreatedAt: src.CreatedAt, UpdatedAt: src.UpdatedAt,
		Name: src.Name, Type: src.Type, URL: src.URL,
		Username: src.Username, UserAgent: src.UserAgent,
		Enabled: models.BoolVal(src.Enabled), Status: src.Status,
		LastIngestionAt: src.LastIngestionAt, LastError: src.LastError,
		ChannelCount: src.ChannelCount, CronSchedule: src.CronSchedule,
	}
}

// CreateStreamSourceRequest is the body for creating a stream source.
type CreateStreamSourceRequest struct {
	Name         string            `json:"name" doc:"Display name for the source" minLength:"1" maxLength:"255"`
	Type         models.SourceType `json:"type" doc:"Source type" enum:"m3u"`
	URL          string            `json:"url" doc:"M3U playlist URL" minLength:"1" maxLength:"2048"`
	Username     string            `json:"username,omitempty" doc:"HTTP basic auth username" maxLength:"255"`
	Password     string            `json:"password,omitempty" doc:"HTTP basic auth password" maxLength:"255"`
	UserAgent    string            `json:"user_agent,omitempty" doc:"User-Agent header sent upstream" maxLength:"512"`
	Enabled      *bool             `json:"enabled,omitempty" doc:"Whether the source is enabled; defaults to true"`
	CronSchedule string            `json:"cron_schedule,omitempty" doc:"Cron schedule for automatic ingestion" maxLength:"100"`
}

// ToModel builds a stream source model from the request.
func (r *CreateStreamSourceRequest) ToModel() *models.StreamSource {
	src := &models.StreamSource{
		Name: r.Name, Type: r.Type, URL: r.URL,
		Username: r.Username, Password: r.Password,
		UserAgent: r.UserAgent, CronSchedule: r.CronSchedule,
	}
	if r.Enabled != nil {
		src.Enabled = r.Enabled
	}
	return src
}

// UpdateStreamSourceRequest is the body for a partial stream source update.
type UpdateStreamSourceRequest struct {
	Name         *string            `json:"name,omitempty" doc:"Display name for the source" maxLength:"255"`
	Type         *models.SourceType `json:"type,omitempty" doc:"Source type" enum:"m3u"`
	URL          *string            `json:"url,omitempty" doc:"M3U playlist URL" maxLength:"2048"`
	Username     *string            `json:"username,omitempty" doc:"HTTP basic auth username" maxLength:"255"`
	Password     *string            `json:"password,omitempty" doc:"HTTP basic auth password" maxLength:"255"`
	UserAgent    *string            `json:"user_agent,omitempty" doc:"User-Agent header sent upstream" maxLength:"512"`
	Enabled      *bool              `json:"enabled,omitempty" doc:"Whether the source is enabled"`
	CronSchedule *string            `json:"cron_schedule,omitempty" doc:"Cron schedule for automatic ingestion" maxLength:"100"`
}

// ApplyToModel copies the set fields of the request onto the model.
func (r *UpdateStreamSourceRequest) ApplyToModel(src *models.StreamSource) {
	setIf(&src.Name, r.Name)
	setIf(&src.Type, r.Type)
	setIf(&src.URL, r.URL)
	setIf(&src.Username, r.Username)
	setIf(&src.Password, r.Password)
	setIf(&src.UserAgent, r.UserAgent)
	setIf(&src.CronSchedule, r.CronSchedule)
	if r.Enabled != nil {
		src.Enabled = r.Enabled
	}
}

// EpgSourceResponse is the API shape of an EPG source.
type EpgSourceResponse struct {
	ID        models.ULID `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	Name      string               `json:"name"`
	Type      models.EpgSourceType `json:"type"`
	URL       string               `json:"url"`
	Username  string               `json:"username,omitempty"`
	UserAgent string               `json:"user_agent,omitempty"`
	EpgShift  int                  `json:"epg_shift"`
	Enabled   bool                 `json:"enabled"`

	Status          models.EpgSourceStatus `json:"status"`
	LastIngestionAt *time.Time             `json:"last_ingestion_at,omitempty"`
	LastError       string                 `json:"last_error,omitempty"`

	ChannelCount  int    `json:"channel_count"`
	ProgramCount  int    `json:"program_count"`
	CronSchedule  string `json:"cron_schedule,omitempty"`
	RetentionDays int    `json:"retention_days"`
}

// EpgSourceFromModel maps an EPG source model onto its response shape.
func EpgSourceFromModel(src *models.EpgSource) EpgSourceResponse {
	return EpgSourceResponse{
		ID:              src.ID,
		CreatedAt:       src.CreatedAt,
		UpdatedAt:       src.UpdatedAt,
		Name:            src.Name,
		Type:            src.Type,
		URL:             src.URL,
		Username:        src.Username,
		UserAgent:       src.UserAgent,
		EpgShift:        src.EpgShift,
		Enabled:         models.BoolVal(src.Enabled),
		Status:          src.Status,
		LastIngestionAt: src.LastIngestionAt,
		LastError:       src.LastError,
		ChannelCount:    src.ChannelCount,
		ProgramCount:    src.ProgramCount,
		CronSchedule:    src.CronSchedule,
		RetentionDays:   src.RetentionDays,
	}
}

// CreateEpgSourceRequest is the body for creating an EPG source.
type CreateEpgSourceRequest struct {
	Name          string               `json:"name" doc:"Display name for the source" minLength:"1" maxLength:"255"`
	Type          models.EpgSourceType `json:"type" doc:"Source type" enum:"xmltv"`
	URL           string               `json:"url" doc:"XMLTV file URL" minLength:"1" maxLength:"2048"`
	Username      string               `json:"username,omitempty" doc:"HTTP basic auth username" maxLength:"255"`
	Password      string               `json:"password,omitempty" doc:"HTTP basic auth password" maxLength:"255"`
	UserAgent     string               `json:"user_agent,omitempty" doc:"User-Agent header sent upstream" maxLength:"512"`
	EpgShift      *int                 `json:"epg_shift,omitempty" doc:"Hours added to guide times after UTC normalization"`
	Enabled       *bool                `json:"enabled,omitempty" doc:"Whether the source is enabled; defaults to true"`
	CronSchedule  string               `json:"cron_schedule,omitempty" doc:"Cron schedule for automatic ingestion" maxLength:"100"`
	RetentionDays *int                 `json:"retention_days,omitempty" doc:"Days to retain guide data after expiry; defaults to 1"`
}

// ToModel builds an EPG source model from the request.
func (r *CreateEpgSourceRequest) ToModel() *models.EpgSource {
	src := &models.EpgSource{
		Name: r.Name, Type: r.Type, URL: r.URL,
		Username: r.Username, Password: r.Password,
		UserAgent: r.UserAgent, CronSchedule: r.CronSchedule,
		RetentionDays: 1,
	}
	setIf(&src.EpgShift, r.EpgShift)
	setIf(&src.RetentionDays, r.RetentionDays)
	if r.Enabled != nil {
		src.Enabled = r.Enabled
	}
	return src
}

// UpdateEpgSourceRequest is the body for a partial EPG source update.
type UpdateEpgSourceRequest struct {
	Name          *string               `json:"name,omitempty" doc:"Display name for the source" maxLength:"255"`
	Type          *models.EpgSourceType `json:"type,omitempty" doc:"Source type" enum:"xmltv"`
	URL           *string               `json:"url,omitempty" doc:"XMLTV file URL" maxLength:"2048"`
	Username      *string               `json:"username,omitempty" doc:"HTTP basic auth username" maxLength:"255"`
	Password      *string               `json:"password,omitempty" doc:"HTTP basic auth password" maxLength:"255"`
	UserAgent     *string               `json:"user_agent,omitempty" doc:"User-Agent header sent upstream" maxLength:"512"`
	EpgShift      *int                  `json:"epg_shift,omitempty" doc:"Hours added to guide times after UTC normalization"`
	Enabled       *bool                 `json:"enabled,omitempty" doc:"Whether the source is enabled"`
	CronSchedule  *string               `json:"cron_schedule,omitempty" doc:"Cron schedule for automatic ingestion" maxLength:"100"`
	RetentionDays *int                  `json:"retention_days,omitempty" doc:"Days to retain guide data after expiry"`
}

// ApplyToModel copies the set fields of the request onto the model.
func (r *UpdateEpgSourceRequest) ApplyToModel(src *models.EpgSource) {
	setIf(&src.Name, r.Name)
	setIf(&src.Type, r.Type)
	setIf(&src.URL, r.URL)
	setIf(&src.Username, r.Username)
	setIf(&src.Password, r.Password)
	setIf(&src.UserAgent, r.UserAgent)
	setIf(&src.EpgShift, r.EpgShift)
	setIf(&src.CronSchedule, r.CronSchedule)
	setIf(&src.RetentionDays, r.RetentionDays)
	if r.Enabled != nil {
		src.Enabled = r.Enabled
	}
}

// ProxyResponse is the API shape of a proxy.
type ProxyResponse struct {
	ID                    models.ULID        `json:"id"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
	Name                  string             `json:"name"`
	Description           string             `json:"description,omitempty"`
	IsActive              bool               `json:"is_active"`
	AutoRegenerate        bool               `json:"auto_regenerate"`
	StartingChannelNumber int                `json:"starting_channel_number"`
	OutputPath            string             `json:"output_path,omitempty"`
	Status                models.ProxyStatus `json:"status"`
	LastGeneratedAt       *time.Time         `json:"last_generated_at,omitempty"`
	LastError             string             `json:"last_error,omitempty"`
	ChannelCount          int                `json:"channel_count"`
	ProgramCount          int                `json:"program_count"`
	CronSchedule          string             `json:"cron_schedule,omitempty"`
}

// ProxyFromModel maps a proxy model onto its response shape.
func ProxyFromModel(px *models.Proxy) ProxyResponse {
	return ProxyResponse{
		ID:                    px.ID,
		CreatedAt:             px.CreatedAt,
		UpdatedAt:             px.UpdatedAt,
		Name:                  px.Name,
		Description:           px.Description,
		IsActive:              px.IsActive,
		AutoRegenerate:        px.AutoRegenerate,
		StartingChannelNumber: px.StartingChannelNumber,
		OutputPath:            px.OutputPath,
		Status:                px.Status,
		LastGeneratedAt:       px.LastGeneratedAt,
		LastError:             px.LastError,
		ChannelCount:          px.ChannelCount,
		ProgramCount:          px.ProgramCount,
		CronSchedule:          px.CronSchedule,
	}
}

// ProxySourceAttachment is an attached stream source with its merge priority.
type ProxySourceAttachment struct {
	SourceID      models.ULID `json:"source_id"`
	Name          string      `json:"name,omitempty"`
	PriorityOrder int         `json:"priority_order"`
}

// ProxyEpgSourceAttachment is an attached EPG source with its merge priority.
type ProxyEpgSourceAttachment struct {
	EpgSourceID   models.ULID `json:"epg_source_id"`
	Name          string      `json:"name,omitempty"`
	PriorityOrder int         `json:"priority_order"`
}

// ProxyFilterAttachment is an attached filter with its evaluation order.
type ProxyFilterAttachment struct {
	FilterID      models.ULID `json:"filter_id"`
	Name          string      `json:"name,omitempty"`
	PriorityOrder int         `json:"priority_order"`
	IsActive      bool        `json:"is_active"`
}

// ProxyMappingRuleAttachment is an attached mapping rule with its chain order.
type ProxyMappingRuleAttachment struct {
	RuleID        models.ULID `json:"rule_id"`
	Name          string      `json:"name,omitempty"`
	PriorityOrder int         `json:"priority_order"`
}

// ProxyDetailResponse extends ProxyResponse with the attached sources,
// filters and mapping rules in priority order.
type ProxyDetailResponse struct {
	ProxyResponse
	Sources      []ProxySourceAttachment      `json:"sources,omitempty"`
	EpgSources   []ProxyEpgSourceAttachment   `json:"epg_sources,omitempty"`
	Filters      []ProxyFilterAttachment      `json:"filters,omitempty"`
	MappingRules []ProxyMappingRuleAttachment `json:"mapping_rules,omitempty"`
}

// ProxyDetailFromModel maps a proxy with loaded relations onto the detail
// response. Missing relation rows leave the attachment name empty.
func ProxyDetailFromModel(px *models.Proxy) ProxyDetailResponse {
	resp := ProxyDetailResponse{ProxyResponse: ProxyFromModel(px)}
	for _, rel := range px.Sources {
		a := ProxySourceAttachment{SourceID: rel.SourceID, PriorityOrder: rel.PriorityOrder}
		if rel.Source != nil {
			a.Name = rel.Source.Name
		}
		resp.Sources = append(resp.Sources, a)
	}
	for _, rel := range px.EpgSources {
		a := ProxyEpgSourceAttachment{EpgSourceID: rel.EpgSourceID, PriorityOrder: rel.PriorityOrder}
		if rel.EpgSource != nil {
			a.Name = rel.EpgSource.Name
		}
		resp.EpgSources = append(resp.EpgSources, a)
	}
	for _, rel := range px.Filters {
		a := ProxyFilterAttachment{
			FilterID:      rel.FilterID,
			PriorityOrder: rel.PriorityOrder,
			IsActive:      models.BoolVal(rel.IsActive),
		}
		if rel.Filter != nil {
			a.Name = rel.Filter.Name
		}
		resp.Filters = append(resp.Filters, a)
	}
	for _, rel := range px.MappingRules {
		a := ProxyMappingRuleAttachment{RuleID: rel.RuleID, PriorityOrder: rel.PriorityOrder}
		if rel.Rule != nil {
			a.Name = rel.Rule.Name
		}
		resp.MappingRules = append(resp.MappingRules, a)
	}
	return resp
}

// CreateProxyRequest is the body for creating a proxy.
type CreateProxyRequest struct {
	Name                  string `json:"name" doc:"Unique name for the proxy" minLength:"1" maxLength:"255"`
	Description           string `json:"description,omitempty" doc:"Optional description" maxLength:"1024"`
	IsActive              *bool  `json:"is_active,omitempty" doc:"Whether the proxy is active; defaults to true"`
	AutoRegenerate        *bool  `json:"auto_regenerate,omitempty" doc:"Regenerate on a cron schedule; defaults to false"`
	StartingChannelNumber *int   `json:"starting_channel_number,omitempty" doc:"Base channel number; defaults to 1"`
	OutputPath            string `json:"output_path,omitempty" doc:"Directory for generated files" maxLength:"512"`
	CronSchedule          string `json:"cron_schedule,omitempty" doc:"Cron schedule for automatic regeneration" maxLength:"100"`
}

// ToModel builds a proxy model from the request.
func (r *CreateProxyRequest) ToModel() *models.Proxy {
	px := &models.Proxy{
		Name:                  r.Name,
		Description:           r.Description,
		IsActive:              true,
		StartingChannelNumber: 1,
		OutputPath:            r.OutputPath,
		CronSchedule:          r.CronSchedule,
	}
	setIf(&px.IsActive, r.IsActive)
	setIf(&px.AutoRegenerate, r.AutoRegenerate)
	setIf(&px.StartingChannelNumber, r.StartingChannelNumber)
	return px
}

// UpdateProxyRequest is the body for a partial proxy update.
type UpdateProxyRequest struct {
	Name                  *string `json:"name,omitempty" doc:"Unique name for the proxy" maxLength:"255"`
	Description           *string `json:"description,omitempty" doc:"Optional description" maxLength:"1024"`
	IsActive              *bool   `json:"is_active,omitempty" doc:"Whether the proxy is active"`
	AutoRegenerate        *bool   `json:"auto_regenerate,omitempty" doc:"Regenerate on a cron schedule"`
	StartingChannelNumber *int    `json:"starting_channel_number,omitempty" doc:"Base channel number"`
	OutputPath            *string `json:"output_path,omitempty" doc:"Directory for generated files" maxLength:"512"`
	CronSchedule          *string `json:"cron_schedule,omitempty" doc:"Cron schedule for automatic regeneration" maxLength:"100"`
}

// ApplyToModel copies the set fields of the request onto the model.
func (r *UpdateProxyRequest) ApplyToModel(px *models.Proxy) {
	setIf(&px.Name, r.Name)
	setIf(&px.Description, r.Description)
	setIf(&px.IsActive, r.IsActive)
	setIf(&px.AutoRegenerate, r.AutoRegenerate)
	setIf(&px.StartingChannelNumber, r.StartingChannelNumber)
	setIf(&px.OutputPath, r.OutputPath)
	setIf(&px.CronSchedule, r.CronSchedule)
}

// SetProxySourcesRequest assigns stream sources to a proxy. List order
// becomes the merge priority, first entry highest.
type SetProxySourcesRequest struct {
	SourceIDs []models.ULID `json:"source_ids" doc:"Stream source IDs in priority order"`
}

// SetProxyEpgSourcesRequest assigns EPG sources to a proxy in priority order.
type SetProxyEpgSourcesRequest struct {
	EpgSourceIDs []models.ULID `json:"epg_source_ids" doc:"EPG source IDs in priority order"`
}

// SetProxyFiltersRequest assigns filters to a proxy in evaluation order.
type SetProxyFiltersRequest struct {
	FilterIDs []models.ULID        `json:"filter_ids" doc:"Filter IDs in evaluation order"`
	IsActive  map[models.ULID]bool `json:"is_active,omitempty" doc:"Per-filter active flag; defaults to true"`
}

// SetProxyMappingRulesRequest assigns mapping rules to a proxy in chain order.
type SetProxyMappingRulesRequest struct {
	RuleIDs []models.ULID `json:"rule_ids" doc:"Mapping rule IDs in chain order"`
}

// ReorderItem assigns a new priority position to an attached entity.
type ReorderItem struct {
	ID       models.ULID `json:"id" doc:"Attached entity ID"`
	Priority int         `json:"priority" doc:"New 1-based priority position" minimum:"1"`
}

// ReorderRequest is the body for reorder endpoints.
type ReorderRequest struct {
	Items []ReorderItem `json:"items" doc:"New priority assignments" minItems:"1"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	SystemLoad    float64           `json:"system_load"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo reports core count and load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo reports system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// ProcessMemoryInfo reports memory usage for the process tree.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// HealthComponents groups per-component health details.
type HealthComponents struct {
	Database        DatabaseHealth         `json:"database"`
	Scheduler       SchedulerHealth        `json:"scheduler"`
	CircuitBreakers []CircuitBreakerStatus `json:"circuit_breakers,omitempty"`
}

// DatabaseHealth reports connection pool and capability checks.
type DatabaseHealth struct {
	Status                 string  `json:"status"`
	ConnectionPoolSize     int     `json:"connection_pool_size"`
	ActiveConnections      int     `json:"active_connections"`
	IdleConnections        int     `json:"idle_connections"`
	PoolUtilizationPercent float64 `json:"pool_utilization_percent"`
	ResponseTimeMS         float64 `json:"response_time_ms"`
	ResponseTimeStatus     string  `json:"response_time_status"`
	TablesAccessible       bool    `json:"tables_accessible"`
	WriteCapability        bool    `json:"write_capability"`
	NoBlockingLocks        bool    `json:"no_blocking_locks"`
}

// SchedulerHealth reports whether the scheduler is running.
type SchedulerHealth struct {
	Status string `json:"status"`
}

// CircuitBreakerStatus summarizes one circuit breaker.
type CircuitBreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// ChannelResponse is the API shape of an ingested channel.
type ChannelResponse struct {
	ID       models.ULID `json:"id"`
	SourceID models.ULID `json:"source_id"`
	ExtID    string      `json:"ext_id,omitempty"`

	TvgID    string  `json:"tvg_id,omitempty"`
	TvgName  string  `json:"tvg_name,omitempty"`
	TvgLogo  string  `json:"tvg_logo,omitempty"`
	TvgShift float64 `json:"tvg_shift,omitempty"`

	GroupTitle    string `json:"group_title,omitempty"`
	ChannelName   string `json:"channel_name"`
	ChannelNumber int    `json:"channel_number,omitempty"`
	StreamURL     string `json:"stream_url"`
	Language      string `json:"language,omitempty"`
}

// ChannelFromModel maps a channel model onto its response shape.
func ChannelFromModel(ch *models.Channel) ChannelResponse {
	return ChannelResponse{
		ID: ch.ID, SourceID: ch.SourceID, ExtID: ch.ExtID,
		TvgID: ch.TvgID, TvgName: ch.TvgName, TvgLogo: ch.TvgLogo, TvgShift: ch.TvgShift,
		GroupTitle: ch.GroupTitle, ChannelName: ch.ChannelName, ChannelNumber: ch.ChannelNumber,
		StreamURL: ch.StreamURL, Language: ch.Language,
	}
}

// ChannelListResponse is the paginated channel listing.
type ChannelListResponse struct {
	Pagination PaginationMeta    `json:"pagination"`
	Channels   []ChannelResponse `json:"channels"`
}

// EpgProgramResponse is the API shape of a guide programme.
type EpgProgramResponse struct {
	ID        models.ULID `json:"id"`
	SourceID  models.ULID `json:"source_id"`
	ChannelID string      `json:"channel_id"`

	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`

	Title       string `json:"title"`
	SubTitle    string `json:"sub_title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Icon        string `json:"icon,omitempty"`
	EpisodeNum  string `json:"episode_num,omitempty"`
	Rating      string `json:"rating,omitempty"`
	Language    string `json:"language,omitempty"`
}

// EpgProgramFromModel maps a programme model onto its response shape.
func EpgProgramFromModel(prog *models.EpgProgram) EpgProgramResponse {
	return EpgProgramResponse{
		ID:          prog.ID,
		SourceID:    prog.SourceID,
		ChannelID:   prog.ChannelID,
		Start:       prog.Start,
		Stop:        prog.Stop,
		Title:       prog.Title,
		SubTitle:    prog.SubTitle,
		Description: prog.Description,
		Category:    prog.Category,
		Icon:        prog.Icon,
		EpisodeNum:  prog.EpisodeNum,
		Rating:      prog.Rating,
		Language:    prog.Language,
	}
}

// EpgProgramListResponse is the paginated guide programme listing.
type EpgProgramListResponse struct {
	Pagination PaginationMeta       `json:"pagination"`
	Programs   []EpgProgramResponse `json:"programs"`
}

// ValidateCronRequest is the body for validating a cron expression.
type ValidateCronRequest struct {
	Expression string `json:"expression" doc:"Cron expression to validate" minLength:"1"`
}

// ValidateCronResponse reports whether a cron expression parses and, if so,
// its next scheduled run.
type ValidateCronResponse struct {
	Valid   bool       `json:"valid"`
	Error   string     `json:"error,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
}
