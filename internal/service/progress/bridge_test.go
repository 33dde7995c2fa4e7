package progress_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/chanarr/chanarr/internal/service/progress"
)

type fakeStage struct {
	id   string
	name string
}

func (s *fakeStage) ID() string   { return s.id }
func (s *fakeStage) Name() string { return s.name }
func (s *fakeStage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	return &core.StageResult{}, nil
}
func (s *fakeStage) Cleanup(ctx context.Context) error { return nil }

func pipelineStages() []core.Stage {
	return []core.Stage{
		&fakeStage{id: "load", name: "Load"},
		&fakeStage{id: "process", name: "Process"},
		&fakeStage{id: "save", name: "Save"},
	}
}

func newBridgeService() *progress.Service {
	return progress.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateStagesFromPipeline(t *testing.T) {
	infos := progress.CreateStagesFromPipeline(pipelineStages())
	require.Len(t, infos, 3)
	assert.Equal(t, "load", infos[0].ID)
	assert.Equal(t, "Load", infos[0].Name)
	for _, info := range infos {
		assert.InDelta(t, 1.0/3.0, info.Weight, 1e-9)
	}

	assert.Empty(t, progress.CreateStagesFromPipeline(nil))
}

func TestStartPipelineOperationTypeFromOwner(t *testing.T) {
	cases := []struct {
		ownerType string
		want      progress.OperationType
	}{
		{"proxy", progress.OpProxyRegeneration},
		{"stream_source", progress.OpStreamIngestion},
		{"epg_source", progress.OpEpgIngestion},
		{"something_else", progress.OpPipeline},
	}
	for _, tc := range cases {
		t.Run(tc.ownerType, func(t *testing.T) {
			svc := newBridgeService()
			mgr, err := progress.StartPipelineOperation(svc, tc.ownerType, models.NewULID(), "My Source", pipelineStages())
			require.NoError(t, err)

			op, err := svc.GetOperation(mgr.OperationID())
			require.NoError(t, err)
			assert.Equal(t, tc.want, op.OperationType)
			assert.Equal(t, "My Source", op.Metadata["owner_name"])
			assert.Len(t, op.Stages, 3)
		})
	}
}

func TestStartPipelineOperationOmitsEmptyOwnerName(t *testing.T) {
	svc := newBridgeService()
	mgr, err := progress.StartPipelineOperation(svc, "proxy", models.NewULID(), "", pipelineStages())
	require.NoError(t, err)

	op, err := svc.GetOperation(mgr.OperationID())
	require.NoError(t, err)
	assert.NotContains(t, op.Metadata, "owner_name")
}

func TestManagerReportsStageProgress(t *testing.T) {
	svc := newBridgeService()
	mgr, err := progress.StartPipelineOperation(svc, "proxy", models.NewULID(), "Proxy", pipelineStages())
	require.NoError(t, err)

	var reporter core.ProgressReporter = mgr
	ctx := context.Background()

	reporter.ReportProgress(ctx, "load", 0.5, "halfway")

	op, err := svc.GetOperation(mgr.OperationID())
	require.NoError(t, err)
	assert.Equal(t, 0, op.CurrentStageIndex)
	assert.InDelta(t, 0.5, op.Stages[0].Progress, 1e-9)
	assert.Equal(t, "halfway", op.Stages[0].Message)
	assert.Equal(t, progress.StateProcessing, op.Stages[0].State)
	assert.InDelta(t, 0.5/3.0, op.Progress, 1e-9)
}

func TestManagerReportsItemProgress(t *testing.T) {
	svc := newBridgeService()
	mgr, err := progress.StartPipelineOperation(svc, "stream_source", models.NewULID(), "Source", pipelineStages())
	require.NoError(t, err)

	ctx := context.Background()
	mgr.ReportItemProgress(ctx, "process", 25, 100, "channel-25")

	op, err := svc.GetOperation(mgr.OperationID())
	require.NoError(t, err)
	stage := op.Stages[1]
	assert.Equal(t, 25, stage.Current)
	assert.Equal(t, 100, stage.Total)
	assert.Equal(t, "channel-25", stage.CurrentItem)
	assert.InDelta(t, 0.25, stage.Progress, 1e-9)

	// A zero total updates counters without deriving progress.
	mgr.ReportItemProgress(ctx, "process", 0, 0, "unknown")
	op, err = svc.GetOperation(mgr.OperationID())
	require.NoError(t, err)
	assert.InDelta(t, 0.25, op.Stages[1].Progress, 1e-9)
}

func TestManagerIgnoresUnknownStage(t *testing.T) {
	svc := newBridgeService()
	mgr, err := progress.StartPipelineOperation(svc, "proxy", models.NewULID(), "Proxy", pipelineStages())
	require.NoError(t, err)

	ctx := context.Background()
	mgr.ReportProgress(ctx, "missing", 0.9, "nope")

	op, err := svc.GetOperation(mgr.OperationID())
	require.NoError(t, err)
	assert.Equal(t, -1, op.CurrentStageIndex)
	for _, stage := range op.Stages {
		assert.Zero(t, stage.Progress)
	}
}
