package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/repository"
	"github.com/chanarr/chanarr/internal/service"
	"github.com/chanarr/chanarr/internal/urlutil"
	"github.com/spf13/viper"
)

// ProxyHandler handles proxy API endpoints.
type ProxyHandler struct {
	svc     *service.ProxyService
	baseURL string
	log     *slog.Logger
}

// NewProxyHandler creates a new proxy handler. The base URL for published
// output links comes from server.base_url, falling back to the bind address.
func NewProxyHandler(svc *service.ProxyService) *ProxyHandler {
	baseURL := urlutil.NormalizeBaseURL(viper.GetString("server.base_url"))
	if baseURL == "" {
		host, port := viper.GetString("server.host"), viper.GetInt("server.port")
		if host == "0.0.0.0" || host == "" {
			host = "localhost"
		}
		baseURL = fmt.Sprintf("http://%s:%d", host, port)
	}

	return &ProxyHandler{svc: svc, baseURL: baseURL, log: slog.Default()}
}

// OutputURLs holds the published playlist and guide URLs for a proxy.
type OutputURLs struct {
	M3U   string `json:"m3u" doc:"Published M3U playlist URL"`
	XMLTV string `json:"xmltv" doc:"Published XMLTV guide URL"`
}

func (h *ProxyHandler) outputURLs(id models.ULID) OutputURLs {
	return OutputURLs{
		M3U:   fmt.Sprintf("%s/proxy/%s.m3u", h.baseURL, id),
		XMLTV: fmt.Sprintf("%s/proxy/%s.xmltv", h.baseURL, id),
	}
}

// Register registers the proxy routes with the API.
func (h *ProxyHandler) Register(api huma.API) {
	const tag = "Proxies"

	huma.Register(api, operation("listProxies", http.MethodGet, "/api/v1/proxies",
		"List proxies", "Returns all proxies", tag), h.List)
	huma.Register(api, operation("getProxy", http.MethodGet, "/api/v1/proxies/{id}",
		"Get proxy", "Returns a proxy by ID with its attachments in priority order", tag), h.GetByID)
	huma.Register(api, operation("createProxy", http.MethodPost, "/api/v1/proxies",
		"Create proxy", "Creates a new proxy", tag), h.Create)
	huma.Register(api, operation("updateProxy", http.MethodPut, "/api/v1/proxies/{id}",
		"Update proxy", "Updates an existing proxy", tag), h.Update)
	huma.Register(api, operation("deleteProxy", http.MethodDelete, "/api/v1/proxies/{id}",
		"Delete proxy", "Deletes a proxy", tag), h.Delete)
	huma.Register(api, operation("setProxySources", http.MethodPut, "/api/v1/proxies/{id}/sources",
		"Set proxy sources", "Replaces the proxy's stream sources; list order becomes the merge priority", tag), h.SetSources)
	huma.Register(api, operation("setProxyEpgSources", http.MethodPut, "/api/v1/proxies/{id}/epg-sources",
		"Set proxy EPG sources", "Replaces the proxy's EPG sources; list order becomes the merge priority", tag), h.SetEpgSources)
	huma.Register(api, operation("setProxyFilters", http.MethodPut, "/api/v1/proxies/{id}/filters",
		"Set proxy filters", "Replaces the proxy's filters; list order becomes the evaluation order", tag), h.SetFilters)
	huma.Register(api, operation("setProxyMappingRules", http.MethodPut, "/api/v1/proxies/{id}/mapping-rules",
		"Set proxy mapping rules", "Replaces the proxy's mapping rules; list order becomes the chain order", tag), h.SetMappingRules)
	huma.Register(api, operation("reorderProxySources", http.MethodPut, "/api/v1/proxies/{id}/sources/reorder",
		"Reorder proxy sources", "Rewrites source merge priorities as a dense 1-based sequence", tag), h.ReorderSources)
	huma.Register(api, operation("reorderProxyEpgSources", http.MethodPut, "/api/v1/proxies/{id}/epg-sources/reorder",
		"Reorder proxy EPG sources", "Rewrites EPG source merge priorities as a dense 1-based sequence", tag), h.ReorderEpgSources)
	huma.Register(api, operation("reorderProxyFilters", http.MethodPut, "/api/v1/proxies/{id}/filters/reorder",
		"Reorder proxy filters", "Rewrites filter evaluation order as a dense 1-based sequence", tag), h.ReorderFilters)
	huma.Register(api, operation("reorderProxyMappingRules", http.MethodPut, "/api/v1/proxies/{id}/mapping-rules/reorder",
		"Reorder proxy mapping rules", "Rewrites mapping rule chain order as a dense 1-based sequence", tag), h.ReorderMappingRules)
	huma.Register(api, operation("regenerateProxy", http.MethodPost, "/api/v1/proxies/{id}/regenerate",
		"Regenerate proxy output", "Triggers regeneration for a proxy", tag), h.Generate)
}

// loadProxy resolves the {id} path parameter to a proxy.
func (h *ProxyHandler) loadProxy(ctx context.Context, raw string) (*models.Proxy, error) {
	id, err := pathID(raw)
	if err != nil {
		return nil, err
	}
	proxy, err := h.svc.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "proxy", raw, "get proxy")
	}
	if proxy == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("proxy %s not found", raw))
	}
	return proxy, nil
}

// ListProxiesInput is the input for listing proxies.
type ListProxiesInput struct{}

// ListProxiesOutput is the output for listing proxies.
type ListProxiesOutput struct {
	Body struct {
		Proxies []ProxyResponse `json:"proxies"`
	}
}

// List returns all proxies.
func (h *ProxyHandler) List(ctx context.Context, input *ListProxiesInput) (*ListProxiesOutput, error) {
	proxies, err := h.svc.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list proxies", err)
	}

	out := &ListProxiesOutput{}
	out.Body.Proxies = make([]ProxyResponse, len(proxies))
	for i, p := range proxies {
		out.Body.Proxies[i] = ProxyFromModel(p)
	}
	return out, nil
}

// GetProxyInput is the input for getting a proxy.
type GetProxyInput struct {
	ID string `path:"id" doc:"Proxy ID (ULID)"`
}

// GetProxyOutput is the output for getting a proxy.
type GetProxyOutput struct {
	Body struct {
		ProxyDetailResponse
		URLs OutputURLs `json:"urls"`
	}
}

// GetByID returns a proxy by ID with its attachments.
func (h *ProxyHandler) GetByID(ctx context.Context, input *GetProxyInput) (*GetProxyOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	proxy, err := h.svc.GetByIDWithRelations(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "proxy", input.ID, "get proxy")
	}
	if proxy == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("proxy %s not found", input.ID))
	}

	out := &GetProxyOutput{}
	out.Body.ProxyDetailResponse = ProxyDetailFromModel(proxy)
	out.Body.URLs = h.outputURLs(proxy.ID)
	return out, nil
}

// CreateProxyInput is the input for creating a proxy.
type CreateProxyInput struct {
	Body CreateProxyRequest
}

// CreateProxyOutput is the output for creating a proxy.
type CreateProxyOutput struct {
	Body ProxyResponse
}

// Create creates a new proxy.
func (h *ProxyHandler) Create(ctx context.Context, input *CreateProxyInput) (*CreateProxyOutput, error) {
	proxy := input.Body.ToModel()
	if err := h.svc.Create(ctx, proxy); err != nil {
		if errors.Is(err, models.ErrNameRequired) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to create proxy", err)
	}
	return &CreateProxyOutput{Body: ProxyFromModel(proxy)}, nil
}

// UpdateProxyInput is the input for updating a proxy.
type UpdateProxyInput struct {
	ID   string `path:"id" doc:"Proxy ID (ULID)"`
	Body UpdateProxyRequest
}

// UpdateProxyOutput is the output for updating a proxy.
type UpdateProxyOutput struct {
	Body ProxyResponse
}

// Update updates an existing proxy.
func (h *ProxyHandler) Update(ctx context.Context, input *UpdateProxyInput) (*UpdateProxyOutput, error) {
	proxy, err := h.loadProxy(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	input.Body.ApplyToModel(proxy)
	if err := h.svc.Update(ctx, proxy); err != nil {
		return nil, huma.Error500InternalServerError("failed to update proxy", err)
	}
	return &UpdateProxyOutput{Body: ProxyFromModel(proxy)}, nil
}

// DeleteProxyInput is the input for deleting a proxy.
type DeleteProxyInput struct {
	ID string `path:"id" doc:"Proxy ID (ULID)"`
}

// DeleteProxyOutput is the output for deleting a proxy.
type DeleteProxyOutput struct{}

// Delete deletes a proxy.
func (h *ProxyHandler) Delete(ctx context.Context, input *DeleteProxyInput) (*DeleteProxyOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		return nil, notFoundOr(err, "proxy", input.ID, "delete proxy")
	}
	return &DeleteProxyOutput{}, nil
}

// AttachmentMessageOutput confirms an attachment replacement or reorder.
type AttachmentMessageOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// setAttachments parses the path ID, runs the replacement, and builds the
// confirmation message shared by the Set* endpoints.
func (h *ProxyHandler) setAttachments(raw, what string, set func(id models.ULID) error) (*AttachmentMessageOutput, error) {
	id, err := pathID(raw)
	if err != nil {
		return nil, err
	}
	if err := set(id); err != nil {
		return nil, huma.Error500InternalServerError("failed to set "+what, err)
	}

	out := &AttachmentMessageOutput{}
	out.Body.Message = fmt.Sprintf("%s updated for proxy %s", what, raw)
	return out, nil
}

// SetProxySourcesInput is the input for setting proxy sources.
type SetProxySourcesInput struct {
	ID   string `path:"id" doc:"Proxy ID (ULID)"`
	Body SetProxySourcesRequest
}

// SetSources replaces the proxy's stream sources.
func (h *ProxyHandler) SetSources(ctx context.Context, input *SetProxySourcesInput) (*AttachmentMessageOutput, error) {
	return h.setAttachments(input.ID, "sources", func(id models.ULID) error {
		return h.svc.SetSources(ctx, id, input.Body.SourceIDs)
	})
}

// SetProxyEpgSourcesInput is the input for setting proxy EPG sources.
type SetProxyEpgSourcesInput struct {
	ID   string `path:"id" doc:"Proxy ID (ULID)"`
	Body SetProxyEpgSourcesRequest
}

// SetEpgSources replaces the proxy's EPG sources.
func (h *ProxyHandler) SetEpgSources(ctx context.Context, input *SetProxyEpgSourcesInput) (*AttachmentMessageOutput, error) {
	return h.setAttachments(input.ID, "EPG sources", func(id models.ULID) error {
		return h.svc.SetEpgSources(ctx, id, input.Body.EpgSourceIDs)
	})
}

// SetProxyFiltersInput is the input for setting proxy filters.
type SetProxyFiltersInput struct {
	ID   string `path:"id" doc:"Proxy ID (ULID)"`
	Body SetProxyFiltersRequest
}

// SetFilters replaces the proxy's filters.
func (h *ProxyHandler) SetFilters(ctx context.Context, input *SetProxyFiltersInput) (*AttachmentMessageOutput, error) {
	return h.setAttachments(input.ID, "filters", func(id models.ULID) error {
		return h.svc.SetFilters(ctx, id, input.Body.FilterIDs, input.Body.IsActive)
	})
}

// SetProxyMappingRulesInput is the input for setting proxy mapping rules.
type SetProxyMappingRulesInput struct {
	ID   string `path:"id" doc:"Proxy ID (ULID)"`
	Body SetProxyMappingRulesRequest
}

// SetMappingRules replaces the proxy's mapping rules.
func (h *ProxyHandler) SetMappingRules(ctx context.Context, input *SetProxyMappingRulesInput) (*AttachmentMessageOutput, error) {
	return h.setAttachments(input.ID, "mapping rules", func(id models.ULID) error {
		return h.svc.SetMappingRules(ctx, id, input.Body.RuleIDs)
	})
}

// ReorderProxyAttachmentsInput is the input for the proxy reorder endpoints.
type ReorderProxyAttachmentsInput struct {
	ID   string `path:"id" doc:"Proxy ID (ULID)"`
	Body ReorderRequest
}

type reorderFunc func(ctx context.Context, proxyID models.ULID, reorders []repository.ReorderRequest) error

func (h *ProxyHandler) reorder(ctx context.Context, input *ReorderProxyAttachmentsInput, fn reorderFunc, what string) (*AttachmentMessageOutput, error) {
	id, err := pathID(input.ID)
	if err != nil {
		return nil, err
	}

	reorders := make([]repository.ReorderRequest, len(input.Body.Items))
	for i, item := range input.Body.Items {
		reorders[i] = repository.ReorderRequest{ID: item.ID, Priority: item.Priority}
	}
	if err := fn(ctx, id, reorders); err != nil {
		return nil, huma.Error500InternalServerError(fmt.Sprintf("failed to reorder %s", what), err)
	}

	out := &AttachmentMessageOutput{}
	out.Body.Message = fmt.Sprintf("%s reordered for proxy %s", what, input.ID)
	return out, nil
}

// ReorderSources rewrites source merge priorities.
func (h *ProxyHandler) ReorderSources(ctx context.Context, input *ReorderProxyAttachmentsInput) (*AttachmentMessageOutput, error) {
	return h.reorder(ctx, input, h.svc.ReorderSources, "sources")
}

// ReorderEpgSources rewrites EPG source merge priorities.
func (h *ProxyHandler) ReorderEpgSources(ctx context.Context, input *ReorderProxyAttachmentsInput) (*AttachmentMessageOutput, error) {
	return h.reorder(ctx, input, h.svc.ReorderEpgSources, "EPG sources")
}

// ReorderFilters rewrites filter evaluation order.
func (h *ProxyHandler) ReorderFilters(ctx context.Context, input *ReorderProxyAttachmentsInput) (*AttachmentMessageOutput, error) {
	return h.reorder(ctx, input, h.svc.ReorderFilters, "filters")
}

// ReorderMappingRules rewrites mapping rule chain order.
func (h *ProxyHandler) ReorderMappingRules(ctx context.Context, input *ReorderProxyAttachmentsInput) (*AttachmentMessageOutput, error) {
	return h.reorder(ctx, input, h.svc.ReorderMappingRules, "mapping rules")
}

// GenerateProxyInput is the input for triggering proxy generation.
type GenerateProxyInput struct {
	ID string `path:"id" doc:"Proxy ID (ULID)"`
}

// GenerateProxyOutput is the output for triggering proxy generation.
type GenerateProxyOutput struct {
	Body struct {
		Message string     `json:"message"`
		URLs    OutputURLs `json:"urls"`
	}
}

// Generate triggers generation for a proxy. Generation runs in the
// background and the call returns immediately; progress is tracked via the
// SSE /api/v1/progress endpoint.
func (h *ProxyHandler) Generate(ctx context.Context, input *GenerateProxyInput) (*GenerateProxyOutput, error) {
	proxy, err := h.loadProxy(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	id, name := proxy.ID, proxy.Name
	go func() {
		// Detached from the request context
		if _, err := h.svc.Generate(context.Background(), id); err != nil {
			h.log.Error("proxy generation failed",
				slog.String("proxy_id", id.String()),
				slog.String("proxy_name", name),
				slog.String("error", err.Error()))
		}
	}()

	out := &GenerateProxyOutput{}
	out.Body.Message = fmt.Sprintf("generation started for proxy %s", input.ID)
	out.Body.URLs = h.outputURLs(id)
	return out, nil
}
