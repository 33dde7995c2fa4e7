package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanarr/chanarr/internal/http/handlers"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/service/progress"
)

func newProgressFixture() (*handlers.ProgressHandler, *progress.Service, *chi.Mux) {
	svc := progress.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	handler := handlers.NewProgressHandler(svc)

	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	handler.Register(api)
	handler.RegisterSSE(router)
	return handler, svc, router
}

func decodeOperations(t *testing.T, rec *httptest.ResponseRecorder) []handlers.ProgressResponse {
	t.Helper()
	var body handlers.ListOperationsBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Operations
}

func TestProgressListOperationsEmpty(t *testing.T) {
	_, _, router := newProgressFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/progress/operations", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeOperations(t, rec))
}

func TestProgressListOperations(t *testing.T) {
	_, svc, router := newProgressFixture()

	ownerID := models.NewULID()
	mgr, err := svc.StartOperation(progress.OpStreamIngestion, ownerID, "stream_source", nil)
	require.NoError(t, err)
	_, err = svc.StartOperation(progress.OpEpgIngestion, models.NewULID(), "epg_source", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/progress/operations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	ops := decodeOperations(t, rec)
	require.Len(t, ops, 2)

	var found *handlers.ProgressResponse
	for i := range ops {
		if ops[i].ID == mgr.OperationID() {
			found = &ops[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "stream_ingestion", found.OperationType)
	assert.Equal(t, ownerID.String(), found.OwnerID)
	assert.Equal(t, "stream_source", found.OwnerType)
	assert.Equal(t, "preparing", found.State)
}

func TestProgressListOperationsFilters(t *testing.T) {
	_, svc, router := newProgressFixture()

	streamMgr, err := svc.StartOperation(progress.OpStreamIngestion, models.NewULID(), "stream_source", nil)
	require.NoError(t, err)
	epgMgr, err := svc.StartOperation(progress.OpEpgIngestion, models.NewULID(), "epg_source", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/progress/operations?operation_type=stream_ingestion", nil))
	ops := decodeOperations(t, rec)
	require.Len(t, ops, 1)
	assert.Equal(t, streamMgr.OperationID(), ops[0].ID)

	streamMgr.Complete("done")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/progress/operations?active_only=true", nil))
	ops = decodeOperations(t, rec)
	require.Len(t, ops, 1)
	assert.Equal(t, epgMgr.OperationID(), ops[0].ID)
}

func TestProgressGetOperation(t *testing.T) {
	_, svc, router := newProgressFixture()

	stages := []progress.StageInfo{
		{ID: "load", Name: "Load", Weight: 0.5},
		{ID: "save", Name: "Save", Weight: 0.5},
	}
	mgr, err := svc.StartOperation(progress.OpProxyRegeneration, models.NewULID(), "proxy", stages)
	require.NoError(t, err)
	mgr.StartStage("load").SetProgress(0.5, "Loading...")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/progress/operations/"+mgr.OperationID(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.ProgressResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, mgr.OperationID(), resp.ID)
	assert.Equal(t, "load", resp.CurrentStage)
	assert.InDelta(t, 25.0, resp.OverallPercentage, 1e-9)
	require.Len(t, resp.Stages, 2)
	assert.InDelta(t, 50.0, resp.Stages[0].Percentage, 1e-9)
	assert.Equal(t, "Loading...", resp.Stages[0].StageStep)
}

func TestProgressGetOperationNotFound(t *testing.T) {
	_, _, router := newProgressFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/progress/operations/unknown-id", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressResponseNameFallsBackToType(t *testing.T) {
	p := &progress.UniversalProgress{
		OperationID:       "op-1",
		OperationType:     progress.OpMaintenance,
		CurrentStageIndex: -1,
	}
	resp := handlers.ProgressFromService(p)
	assert.Equal(t, "maintenance", resp.OperationName)
	assert.Empty(t, resp.CurrentStage)
	assert.Empty(t, resp.Stages)
}

// runSSE serves the events endpoint until ctx expires and returns the body.
func runSSE(router *chi.Mux, ctx context.Context, target string, during func()) string {
	req := httptest.NewRequest("GET", target, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Go(func() {
		router.ServeHTTP(rec, req)
	})

	if during != nil {
		time.Sleep(50 * time.Millisecond)
		during()
	}
	wg.Wait()
	return rec.Body.String()
}

func TestProgressSSEConnection(t *testing.T) {
	_, _, router := newProgressFixture()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/progress/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), ":connected")
}

func TestProgressSSEDeliversEvents(t *testing.T) {
	_, svc, router := newProgressFixture()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var opID string
	body := runSSE(router, ctx, "/api/v1/progress/events", func() {
		mgr, err := svc.StartOperation(progress.OpStreamIngestion, models.NewULID(), "stream_source", nil)
		require.NoError(t, err)
		opID = mgr.OperationID()
		mgr.Complete("finished")
	})

	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "event: completed")
	assert.Contains(t, body, opID)

	// The data payload is the JSON API shape.
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var resp handlers.ProgressResponse
		require.NoError(t, json.Unmarshal([]byte(payload), &resp))
		assert.Equal(t, opID, resp.ID)
	}
}

func TestProgressSSEFiltersByOperationType(t *testing.T) {
	_, svc, router := newProgressFixture()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var wantID, otherID string
	body := runSSE(router, ctx, "/api/v1/progress/events?operation_type=stream_ingestion", func() {
		mgr, err := svc.StartOperation(progress.OpStreamIngestion, models.NewULID(), "stream_source", nil)
		require.NoError(t, err)
		wantID = mgr.OperationID()

		other, err := svc.StartOperation(progress.OpEpgIngestion, models.NewULID(), "epg_source", nil)
		require.NoError(t, err)
		otherID = other.OperationID()
	})

	assert.Contains(t, body, wantID)
	assert.NotContains(t, body, otherID)
}

func TestProgressSSETerminalEventsBypassStateFilter(t *testing.T) {
	_, svc, router := newProgressFixture()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// state/active_only query params are ignored for SSE so subscribers
	// always see the terminal event.
	body := runSSE(router, ctx, "/api/v1/progress/events?state=processing&active_only=true", func() {
		mgr, err := svc.StartOperation(progress.OpProxyRegeneration, models.NewULID(), "proxy", nil)
		require.NoError(t, err)
		mgr.Complete("done")
	})

	assert.Contains(t, body, "event: completed")
}

func TestProgressSSEHeartbeat(t *testing.T) {
	handler, _, router := newProgressFixture()
	handler.SetHeartbeatInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	body := runSSE(router, ctx, "/api/v1/progress/events", nil)
	assert.Contains(t, body, ":heartbeat")
}
