package pipeline

import (
	"testing"

	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStateChecker struct{}

func (fakeStateChecker) IsAnyIngesting() bool        { return false }
func (fakeStateChecker) ActiveIngestionCount() int   { return 0 }
func (fakeStateChecker) ActiveSourceNames() []string { return nil }

func newTestProxy() *models.Proxy {
	return &models.Proxy{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		Name:      "Test Proxy",
	}
}

func stageIDs(o *Orchestrator) []string {
	stages := o.Stages()
	ids := make([]string, 0, len(stages))
	for _, s := range stages {
		ids = append(ids, s.ID())
	}
	return ids
}

func TestNewDefaultFactory_StageOrder(t *testing.T) {
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)

	factory := NewDefaultFactory(nil, nil, nil, sandbox, nil, nil, "")
	orchestrator, err := factory.Create(newTestProxy())
	require.NoError(t, err)

	assert.Equal(t, []string{
		StageIDLoadChannels,
		StageIDMergeEPG,
		StageIDFiltering,
		StageIDDataMapping,
		StageIDNumbering,
		StageIDGenerateM3U,
		StageIDGenerateXMLTV,
		StageIDPublish,
	}, stageIDs(orchestrator))
}

func TestNewDefaultFactory_GuardRegisteredWithStateChecker(t *testing.T) {
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)

	factory := NewDefaultFactory(nil, nil, nil, sandbox, nil, fakeStateChecker{}, "")
	orchestrator, err := factory.Create(newTestProxy())
	require.NoError(t, err)

	ids := stageIDs(orchestrator)
	require.NotEmpty(t, ids)
	assert.Equal(t, StageIDIngestionGuard, ids[0])
	assert.Len(t, ids, 9)
}

func TestFactory_Create_ResolvesOutputPath(t *testing.T) {
	base := t.TempDir()
	sandbox, err := storage.NewSandbox(base)
	require.NoError(t, err)

	proxy := newTestProxy()
	proxy.OutputPath = "published/uk"

	factory := NewDefaultFactory(nil, nil, nil, sandbox, nil, nil, "")
	orchestrator, err := factory.Create(proxy)
	require.NoError(t, err)

	assert.Contains(t, orchestrator.State().OutputDir, "published")
}

func TestFactory_Create_RejectsEscapingOutputPath(t *testing.T) {
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)

	proxy := newTestProxy()
	proxy.OutputPath = "../outside"

	factory := NewDefaultFactory(nil, nil, nil, sandbox, nil, nil, "")
	_, err = factory.Create(proxy)
	assert.Error(t, err)
}
