package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/internal/models"
	"gorm.io/gorm"
)

// ChannelHandler serves the read-only channel browsing endpoints.
type ChannelHandler struct {
	logger *slog.Logger
	db     *gorm.DB
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(db *gorm.DB) *ChannelHandler {
	return &ChannelHandler{logger: slog.Default(), db: db}
}

// WithLogger swaps in a custom logger and returns the handler.
func (h *ChannelHandler) WithLogger(logger *slog.Logger) *ChannelHandler {
	h.logger = logger
	return h
}

// Register wires the channel routes into the API.
func (h *ChannelHandler) Register(api huma.API) {
	huma.Register(api, operation("listChannels", "GET", "/api/v1/channels",
		"List all channels", "Returns paginated list of channels across all sources",
		"Channels"), h.ListChannels)
	huma.Register(api, operation("getChannel", "GET", "/api/v1/channels/{id}",
		"Get channel by ID", "Returns a specific channel by ID",
		"Channels"), h.GetChannel)
	huma.Register(api, operation("getChannelGroups", "GET", "/api/v1/channels/groups",
		"Get channel groups", "Returns list of distinct channel groups/categories",
		"Channels"), h.GetGroups)
}

// ListChannelsInput carries the paging, filter, and sort parameters.
type ListChannelsInput struct {
	Page  int `query:"page" default:"1" minimum:"1"`
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500"`

	Search   string `query:"search"`
	SourceID string `query:"source_id"`
	Group    string `query:"group"`

	SortBy    string `query:"sort_by" default:"channel_name"`
	SortOrder string `query:"sort_order" default:"asc" enum:"asc,desc"`
}

// ListChannelsOutput is a page of channels.
type ListChannelsOutput struct {
	Body struct {
		Success bool              `json:"success"`
		Items   []ChannelResponse `json:"items"`
		Total   int64             `json:"total"`

		Page       int  `json:"page"`
		PerPage    int  `json:"per_page"`
		TotalPages int  `json:"total_pages"`
		HasNext    bool `json:"has_next"`
		HasPrev    bool `json:"has_previous"`
	}
}

// channelSortColumns maps accepted sort_by values to their columns. Anything
// else falls back to channel_name.
var channelSortColumns = map[string]string{
	"channel_number": "channel_number",
	"group_title":    "group_title",
	"updated_at":     "updated_at",
	"created_at":     "created_at",
}

// channelFilters narrows the query by source, group, and free-text search.
// source_id accepts comma-separated values for multi-source filtering.
func channelFilters(query *gorm.DB, in *ListChannelsInput) *gorm.DB {
	if in.SourceID != "" {
		var ids []string
		for _, raw := range strings.Split(in.SourceID, ",") {
			if id := strings.TrimSpace(raw); id != "" {
				ids = append(ids, id)
			}
		}
		switch len(ids) {
		case 0:
		case 1:
			query = query.Where("source_id = ?", ids[0])
		default:
			query = query.Where("source_id IN ?", ids)
		}
	}

	if in.Group != "" {
		query = query.Where("group_title = ?", in.Group)
	}

	if in.Search != "" {
		like := "%" + in.Search + "%"
		query = query.Where("channel_name LIKE ? OR tvg_name LIKE ? OR tvg_id LIKE ?", like, like, like)
	}

	return query
}

// ListChannels returns paginated list of channels.
func (h *ChannelHandler) ListChannels(ctx context.Context, input *ListChannelsInput) (*ListChannelsOutput, error) {
	query := channelFilters(h.db.WithContext(ctx).Model(&models.Channel{}), input)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to count channels")
	}

	column, ok := channelSortColumns[input.SortBy]
	if !ok {
		column = "channel_name"
	}
	direction := "ASC"
	if input.SortOrder == "desc" {
		direction = "DESC"
	}

	var channels []models.Channel
	offset := (input.Page - 1) * input.Limit
	if err := query.Order(column + " " + direction).Offset(offset).Limit(input.Limit).Find(&channels).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch channels")
	}

	items := make([]ChannelResponse, len(channels))
	for i := range channels {
		items[i] = ChannelFromModel(&channels[i])
	}

	totalPages, hasNext, hasPrev := pageMeta(total, input.Page, input.Limit)

	out := &ListChannelsOutput{}
	out.Body.Success = true
	out.Body.Items = items
	out.Body.Total = total
	out.Body.Page = input.Page
	out.Body.PerPage = input.Limit
	out.Body.TotalPages = totalPages
	out.Body.HasNext = hasNext
	out.Body.HasPrev = hasPrev
	return out, nil
}

// GetChannelInput identifies one channel.
type GetChannelInput struct {
	ID string `path:"id" required:"true"`
}

// GetChannelOutput wraps a single channel.
type GetChannelOutput struct {
	Body struct {
		Success bool `json:"success"`

		Data ChannelResponse `json:"data"` // the channel itself
	}
}

// GetChannel looks a single channel up by its ID.
func (h *ChannelHandler) GetChannel(ctx context.Context, input *GetChannelInput) (*GetChannelOutput, error) {
	var ch models.Channel
	err := h.db.WithContext(ctx).Where("id = ?", input.ID).First(&ch).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, huma.Error404NotFound("Channel not found")
	case err != nil:
		return nil, huma.Error500InternalServerError("Failed to fetch channel")
	}

	out := &GetChannelOutput{}
	out.Body.Success = true
	out.Body.Data = ChannelFromModel(&ch)
	return out, nil
}

// GetGroupsInput has no parameters.
type GetGroupsInput struct{}

// GetGroupsOutput lists the distinct group titles.
type GetGroupsOutput struct {
	Body struct {
		Success bool `json:"success"`

		Groups []string `json:"groups"` // distinct, database order
		Count  int      `json:"count"`
	}
}

// GetGroups lists the distinct group titles across all channels.
func (h *ChannelHandler) GetGroups(ctx context.Context, input *GetGroupsInput) (*GetGroupsOutput, error) {
	var groups []string
	err := h.db.WithContext(ctx).
		Model(&models.Channel{}).
		Distinct("group_title").
		Where("group_title != ''").
		Order("group_title ASC").
		Pluck("group_title", &groups).Error
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to fetch groups")
	}

	out := &GetGroupsOutput{}
	out.Body.Success = true
	out.Body.Groups = groups
	out.Body.Count = len(groups)
	return out, nil
}
