package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
)

// EpgHandler serves the guide browsing endpoints backed by the ingested
// programme table.
type EpgHandler struct{ db *gorm.DB }

// NewEpgHandler wraps the given database in an EPG handler.
func NewEpgHandler(db *gorm.DB) *EpgHandler { return &EpgHandler{db: db} }

// Register registers the EPG routes with the API.
func (h *EpgHandler) Register(api huma.API) {
	huma.Register(api, operation("listEpgPrograms", http.MethodGet, "/api/v1/epg/programs",
		"List EPG programs",
		"Paginated programme listing with channel, source, category, and time filters", "EPG"), h.ListPrograms)
	huma.Register(api, operation("getEpgProgram", http.MethodGet, "/api/v1/epg/programs/{id}",
		"Get EPG program by ID", "", "EPG"), h.GetProgram)
	huma.Register(api, operation("getEpgNowPlaying", http.MethodGet, "/api/v1/epg/now",
		"Get currently airing programs",
		"One programme per channel, keyed by channel ID", "EPG"), h.GetNowPlaying)
	huma.Register(api, operation("getEpgByChannel", http.MethodGet, "/api/v1/epg/channel/{channel_id}",
		"Get EPG for channel",
		"Programmes overlapping a time window on one channel", "EPG"), h.GetByChannel)
	huma.Register(api, operation("getEpgChannels", http.MethodGet, "/api/v1/epg/channels",
		"Get EPG channels",
		"Distinct channel IDs that have guide data", "EPG"), h.GetChannels)
	huma.Register(api, operation("getEpgCategories", http.MethodGet, "/api/v1/epg/categories",
		"Get EPG categories", "", "EPG"), h.GetCategories)
	huma.Register(api, operation("getEpgStats", http.MethodGet, "/api/v1/epg/stats",
		"Get EPG statistics", "", "EPG"), h.GetStats)
	huma.Register(api, operation("searchEpg", http.MethodGet, "/api/v1/epg/search",
		"Search EPG programs",
		"Substring search over title, sub-title, and description", "EPG"), h.Search)
	huma.Register(api, operation("getEpgGuide", http.MethodGet, "/api/v1/epg/guide",
		"Get EPG TV guide",
		"Guide grid with channels, programmes per channel, and hourly time slots", "EPG"), h.GetGuide)
}

// parseTimeOr parses an RFC3339 timestamp, falling back when absent or invalid.
func parseTimeOr(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t
}

// toProgramResponses converts programme models to API responses.
func toProgramResponses(programs []models.EpgProgram) []EpgProgramResponse {
	items := make([]EpgProgramResponse, len(programs))
	for i := range programs {
		items[i] = EpgProgramFromModel(&programs[i])
	}
	return items
}

// airingNow constrains a query to programmes on air at the given instant.
func airingNow(query *gorm.DB, now time.Time) *gorm.DB {
	return query.Where("start <= ? AND stop > ?", now, now)
}

// ListProgramsInput carries the programme listing filters.
type ListProgramsInput struct {
	Page  int `query:"page" default:"1" minimum:"1"`
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500"`

	ChannelID string `query:"channel_id"`
	SourceID  string `query:"source_id"`
	Category  string `query:"category"`
	StartFrom string `query:"start_from"` // RFC3339
	StartTo   string `query:"start_to"`   // RFC3339
	OnAir     bool   `query:"on_air"`
}

// ListProgramsOutput is one page of programmes.
type ListProgramsOutput struct {
	Body struct {
		Success bool                 `json:"success"`
		Items   []EpgProgramResponse `json:"items"`
		Total   int64                `json:"total"`

		Page       int  `json:"page"`
		PerPage    int  `json:"per_page"`
		TotalPages int  `json:"total_pages"`
		HasNext    bool `json:"has_next"`
		HasPrev    bool `json:"has_previous"`
	}
}

// programFilters applies the list filters to a programme query.
func programFilters(query *gorm.DB, in *ListProgramsInput) *gorm.DB {
	exact := map[string]string{
		"channel_id": in.ChannelID,
		"source_id":  in.SourceID,
		"category":   in.Category,
	}
	for column, value := range exact {
		if value != "" {
			query = query.Where(column+" = ?", value)
		}
	}

	var zero time.Time
	if from := parseTimeOr(in.StartFrom, zero); !from.IsZero() {
		query = query.Where("start >= ?", from)
	}
	if to := parseTimeOr(in.StartTo, zero); !to.IsZero() {
		query = query.Where("start <= ?", to)
	}
	if in.OnAir {
		query = airingNow(query, time.Now())
	}
	return query
}

// ListPrograms returns a paginated, filtered programme listing.
func (h *EpgHandler) ListPrograms(ctx context.Context, input *ListProgramsInput) (*ListProgramsOutput, error) {
	query := programFilters(h.db.WithContext(ctx).Model(&models.EpgProgram{}), input)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to count EPG programs")
	}

	var programs []models.EpgProgram
	err := query.Order("start ASC").
		Offset((input.Page - 1) * input.Limit).
		Limit(input.Limit).
		Find(&programs).Error
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch EPG programs")
	}

	out := &ListProgramsOutput{}
	out.Body.Success = true
	out.Body.Items = toProgramResponses(programs)
	out.Body.Total = total
	out.Body.Page = input.Page
	out.Body.PerPage = input.Limit
	out.Body.TotalPages, out.Body.HasNext, out.Body.HasPrev = pageMeta(total, input.Page, input.Limit)
	return out, nil
}

// GetProgramInput identifies one programme.
type GetProgramInput struct {
	ID string `path:"id" required:"true"`
}

// GetProgramOutput wraps a single programme.
type GetProgramOutput struct {
	Body struct {
		Success bool               `json:"success"`
		Data    EpgProgramResponse `json:"data"` // the programme itself
	}
}

// GetProgram returns one programme by ID.
func (h *EpgHandler) GetProgram(ctx context.Context, input *GetProgramInput) (*GetProgramOutput, error) {
	var program models.EpgProgram
	err := h.db.WithContext(ctx).Where("id = ?", input.ID).First(&program).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, huma.Error404NotFound("EPG program not found")
	case err != nil:
		return nil, huma.Error500InternalServerError("Failed to fetch EPG program")
	}

	out := &GetProgramOutput{}
	out.Body.Success = true
	out.Body.Data = EpgProgramFromModel(&program)
	return out, nil
}

// GetNowPlayingInput bounds the now-playing snapshot.
type GetNowPlayingInput struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"500"`
}

// GetNowPlayingOutput maps channel IDs to their current programme.
type GetNowPlayingOutput struct {
	Body struct {
		Success   bool      `json:"success"`
		Timestamp time.Time `json:"timestamp"` // snapshot instant

		Programs map[string]EpgProgramResponse `json:"programs"` // keyed by channel_id
		Count    int                           `json:"count"`
	}
}

// GetNowPlaying returns the programme airing right now on each channel.
func (h *EpgHandler) GetNowPlaying(ctx context.Context, input *GetNowPlayingInput) (*GetNowPlayingOutput, error) {
	now := time.Now()

	var programs []models.EpgProgram
	err := airingNow(h.db.WithContext(ctx), now).
		Order("channel_id ASC").
		Limit(input.Limit).
		Find(&programs).Error
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch currently airing programs")
	}

	byChannel := make(map[string]EpgProgramResponse, len(programs))
	for i := range programs {
		byChannel[programs[i].ChannelID] = EpgProgramFromModel(&programs[i])
	}

	out := &GetNowPlayingOutput{}
	out.Body.Success = true
	out.Body.Timestamp = now
	out.Body.Programs = byChannel
	out.Body.Count = len(byChannel)
	return out, nil
}

// GetByChannelInput selects a channel and a time window.
type GetByChannelInput struct {
	ChannelID string `path:"channel_id" required:"true"`
	StartFrom string `query:"start_from"` // RFC3339, defaults to now
	Hours     int    `query:"hours" default:"24" minimum:"1" maximum:"168"`
	Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
}

// GetByChannelOutput holds one channel's programmes for a window.
type GetByChannelOutput struct {
	Body struct {
		Success   bool                 `json:"success"`
		ChannelID string               `json:"channel_id"` // echoed from the path
		Programs  []EpgProgramResponse `json:"programs"`
		Count     int                  `json:"count"`

		// TimeRange is the resolved query window.
		TimeRange struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"` // exclusive
		} `json:"time_range"`
	}
}

// GetByChannel returns programmes overlapping a window on one channel.
func (h *EpgHandler) GetByChannel(ctx context.Context, input *GetByChannelInput) (*GetByChannelOutput, error) {
	start := parseTimeOr(input.StartFrom, time.Now())
	end := start.Add(time.Duration(input.Hours) * time.Hour)

	var programs []models.EpgProgram
	err := h.db.WithContext(ctx).
		Where("channel_id = ? AND start < ? AND stop > ?", input.ChannelID, end, start).
		Order("start ASC").
		Limit(input.Limit).
		Find(&programs).Error
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch EPG programs")
	}

	out := &GetByChannelOutput{}
	out.Body.Success = true
	out.Body.ChannelID = input.ChannelID
	out.Body.Programs = toProgramResponses(programs)
	out.Body.Count = len(programs)
	out.Body.TimeRange.Start = start
	out.Body.TimeRange.End = end
	return out, nil
}

// GetChannelsInput has no parameters.
type GetChannelsInput struct{}

// GetChannelsOutput lists channel IDs with guide data.
type GetChannelsOutput struct {
	Body struct {
		Success  bool     `json:"success"`
		Channels []string `json:"channels"` // distinct channel IDs, ascending
		Count    int      `json:"count"`
	}
}

// GetChannels returns the distinct channel IDs carrying guide data.
func (h *EpgHandler) GetChannels(ctx context.Context, input *GetChannelsInput) (*GetChannelsOutput, error) {
	channels, err := h.distinctValues(ctx, "channel_id", false)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch EPG channels")
	}

	out := &GetChannelsOutput{}
	out.Body.Success = true
	out.Body.Channels = channels
	out.Body.Count = len(channels)
	return out, nil
}

// GetCategoriesInput has no parameters.
type GetCategoriesInput struct{}

// GetCategoriesOutput lists the known programme categories.
type GetCategoriesOutput struct {
	Body struct {
		Success    bool     `json:"success"`
		Categories []string `json:"categories"` // distinct, alphabetical
		Count      int      `json:"count"`
	}
}

// GetCategories returns the distinct non-empty programme categories.
func (h *EpgHandler) GetCategories(ctx context.Context, input *GetCategoriesInput) (*GetCategoriesOutput, error) {
	categories, err := h.distinctValues(ctx, "category", true)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch EPG categories")
	}

	out := &GetCategoriesOutput{}
	out.Body.Success = true
	out.Body.Categories = categories
	out.Body.Count = len(categories)
	return out, nil
}

// distinctValues plucks the distinct values of one programme column in
// ascending order, optionally skipping empty strings.
func (h *EpgHandler) distinctValues(ctx context.Context, column string, skipEmpty bool) ([]string, error) {
	query := h.db.WithContext(ctx).
		Model(&models.EpgProgram{}).
		Distinct(column).
		Order(column + " ASC")
	if skipEmpty {
		query = query.Where(column + " != ''")
	}

	var values []string
	if err := query.Pluck(column, &values).Error; err != nil {
		return nil, err
	}
	return values, nil
}

// GetStatsInput has no parameters.
type GetStatsInput struct{}

// GetStatsOutput carries aggregate guide counts.
type GetStatsOutput struct {
	Body struct {
		Success bool `json:"success"`
		Stats   struct {
			TotalPrograms    int64 `json:"total_programs"`
			UniqueChannels   int   `json:"unique_channels"`
			UniqueCategories int   `json:"unique_categories"`
			CurrentlyAiring  int64 `json:"currently_airing"`
			UpcomingPrograms int64 `json:"upcoming_programs"`
			ExpiredPrograms  int64 `json:"expired_programs"`

			EarliestProgram time.Time `json:"earliest_program"`
			LatestProgram   time.Time `json:"latest_program"`
		} `json:"stats"`
	}
}

// countPrograms counts programmes matching an optional condition.
func (h *EpgHandler) countPrograms(ctx context.Context, out *int64, cond string, args ...any) {
	query := h.db.WithContext(ctx).Model(&models.EpgProgram{})
	if cond != "" {
		query = query.Where(cond, args...)
	}
	query.Count(out)
}

// GetStats returns aggregate counts over the programme table.
func (h *EpgHandler) GetStats(ctx context.Context, input *GetStatsInput) (*GetStatsOutput, error) {
	now := time.Now()
	out := &GetStatsOutput{}
	out.Body.Success = true
	stats := &out.Body.Stats

	h.countPrograms(ctx, &stats.TotalPrograms, "")
	h.countPrograms(ctx, &stats.CurrentlyAiring, "start <= ? AND stop > ?", now, now)
	h.countPrograms(ctx, &stats.UpcomingPrograms, "start > ?", now)
	h.countPrograms(ctx, &stats.ExpiredPrograms, "stop <= ?", now)

	if channels, err := h.distinctValues(ctx, "channel_id", false); err == nil {
		stats.UniqueChannels = len(channels)
	}
	if categories, err := h.distinctValues(ctx, "category", true); err == nil {
		stats.UniqueCategories = len(categories)
	}

	var earliest, latest models.EpgProgram
	if err := h.db.WithContext(ctx).Order("start ASC").First(&earliest).Error; err == nil {
		stats.EarliestProgram = earliest.Start
	}
	if err := h.db.WithContext(ctx).Order("stop DESC").First(&latest).Error; err == nil {
		stats.LatestProgram = latest.Stop
	}

	return out, nil
}

// SearchInput carries the search term and filters.
type SearchInput struct {
	Query string `query:"q" required:"true" minLength:"2"`
	Page  int    `query:"page" default:"1" minimum:"1"`
	Limit int    `query:"limit" default:"50" minimum:"1" maximum:"200"`

	Category string `query:"category"`
	OnAir    bool   `query:"on_air"`
}

// SearchOutput is one page of search hits.
type SearchOutput struct {
	Body struct {
		Success bool                 `json:"success"`
		Query   string               `json:"query"` // echoed search term
		Items   []EpgProgramResponse `json:"items"`
		Total   int64                `json:"total"`

		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		TotalPages int `json:"total_pages"`
	}
}

// Search searches programmes by title, sub-title, or description.
func (h *EpgHandler) Search(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	pattern := "%" + input.Query + "%"
	query := h.db.WithContext(ctx).Model(&models.EpgProgram{}).
		Where("title LIKE ? OR sub_title LIKE ? OR description LIKE ?", pattern, pattern, pattern)
	if input.Category != "" {
		query = query.Where("category = ?", input.Category)
	}
	if input.OnAir {
		query = airingNow(query, time.Now())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to search EPG programs")
	}

	var programs []models.EpgProgram
	err := query.Order("start ASC").
		Offset((input.Page - 1) * input.Limit).
		Limit(input.Limit).
		Find(&programs).Error
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to search EPG programs")
	}

	out := &SearchOutput{}
	out.Body.Success = true
	out.Body.Query = input.Query
	out.Body.Items = toProgramResponses(programs)
	out.Body.Total = total
	out.Body.Page = input.Page
	out.Body.PerPage = input.Limit
	out.Body.TotalPages, _, _ = pageMeta(total, input.Page, input.Limit)
	return out, nil
}

// GetGuideInput bounds the guide grid window.
type GetGuideInput struct {
	StartTime string `query:"start_time"` // RFC3339, defaults to current hour
	EndTime   string `query:"end_time"`   // RFC3339, defaults to start + 12h
	SourceID  string `query:"source_id"`  // comma-separated source IDs
}

// GuideChannelInfo is a channel entry in the guide grid.
type GuideChannelInfo struct {
	ID         string `json:"id"`                    // EPG channel ID (tvg_id)
	DatabaseID string `json:"database_id,omitempty"` // channel ULID, for streaming
	Name       string `json:"name"`
	Logo       string `json:"logo,omitempty"`
	StreamURL  string `json:"stream_url,omitempty"`
}

// GuideProgramInfo is a programme entry in the guide grid.
type GuideProgramInfo struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	ChannelLogo string `json:"channel_logo,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"start_time"` // RFC3339
	EndTime     string `json:"end_time"`   // RFC3339
	Category    string `json:"category,omitempty"`
	Rating      string `json:"rating,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	IsLive      bool   `json:"is_live"` // airing at request time
}

// GetGuideOutput wraps the guide grid.
type GetGuideOutput struct {
	Body struct {
		Success bool       `json:"success"`
		Data    *GuideData `json:"data"` // nil only on error
	}
}

// GuideData is the guide grid payload.
type GuideData struct {
	Channels map[string]GuideChannelInfo   `json:"channels"`
	Programs map[string][]GuideProgramInfo `json:"programs"` // keyed by channel_id

	TimeSlots []string `json:"time_slots"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

// GetGuide returns guide data shaped for a grid view.
func (h *EpgHandler) GetGuide(ctx context.Context, input *GetGuideInput) (*GetGuideOutput, error) {
	now := time.Now()
	start := parseTimeOr(input.StartTime, now.Truncate(time.Hour))
	end := parseTimeOr(input.EndTime, start.Add(12*time.Hour))

	query := h.db.WithContext(ctx).Model(&models.EpgProgram{}).
		Where("start < ? AND stop > ?", end, start)
	if ids := splitCommaList(input.SourceID); len(ids) > 0 {
		query = query.Where("source_id IN ?", ids)
	}

	var programs []models.EpgProgram
	if err := query.Order("channel_id ASC, start ASC").Find(&programs).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch EPG programs")
	}

	channels := make(map[string]GuideChannelInfo)
	byChannel := make(map[string][]GuideProgramInfo)
	for _, p := range programs {
		if _, ok := channels[p.ChannelID]; !ok {
			// Name falls back to the raw channel ID until the lineup lookup
			// below resolves it.
			channels[p.ChannelID] = GuideChannelInfo{ID: p.ChannelID, Name: p.ChannelID}
		}
		byChannel[p.ChannelID] = append(byChannel[p.ChannelID], GuideProgramInfo{
			ID: p.ID.String(), ChannelID: p.ChannelID, ChannelName: p.ChannelID,
			Title: p.Title, Description: p.Description,
			StartTime: p.Start.Format(time.RFC3339), EndTime: p.Stop.Format(time.RFC3339),
			Category: p.Category, Rating: p.Rating, SourceID: p.SourceID.String(),
			IsLive: now.After(p.Start) && now.Before(p.Stop),
		})
	}

	h.resolveGuideChannels(ctx, channels, byChannel)

	var slots []string
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		slots = append(slots, t.Format(time.RFC3339))
	}

	out := &GetGuideOutput{}
	out.Body.Success = true
	out.Body.Data = &GuideData{
		Channels:  channels,
		Programs:  byChannel,
		TimeSlots: slots,
		StartTime: start.Format(time.RFC3339),
		EndTime:   end.Format(time.RFC3339),
	}
	return out, nil
}

// resolveGuideChannels joins guide channel IDs against the channel lineup to
// fill in display names, logos, and stream URLs.
func (h *EpgHandler) resolveGuideChannels(ctx context.Context, channels map[string]GuideChannelInfo, byChannel map[string][]GuideProgramInfo) {
	ids := make([]string, 0, len(channels))
	for id := range channels {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}

	var lineup []models.Channel
	if err := h.db.WithContext(ctx).Where("tvg_id IN ?", ids).Find(&lineup).Error; err != nil {
		return
	}

	for _, ch := range lineup {
		info, ok := channels[ch.TvgID]
		if !ok {
			continue
		}
		info.Name = ch.ChannelName
		info.Logo = ch.TvgLogo
		info.DatabaseID = ch.ID.String()
		info.StreamURL = ch.StreamURL
		channels[ch.TvgID] = info

		programs := byChannel[ch.TvgID]
		for i := range programs {
			programs[i].ChannelName = ch.ChannelName
			programs[i].ChannelLogo = ch.TvgLogo
		}
	}
}

// splitCommaList splits a comma-separated parameter into trimmed,
// non-empty values.
func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
