package datamapping

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/chanarr/chanarr/internal/expression"
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *core.State {
	t.Helper()

	proxy := &models.Proxy{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		Name:      "Test Proxy",
	}
	return core.NewState(proxy)
}

func streamRule(name, expr string) *models.ProxyMappingRule {
	return &models.ProxyMappingRule{
		Rule: &models.DataMappingRule{
			BaseModel:  models.BaseModel{ID: models.NewULID()},
			Name:       name,
			SourceType: models.DataMappingRuleSourceTypeStream,
			Expression: expr,
			IsActive:   true,
		},
	}
}

func epgRule(name, expr string) *models.ProxyMappingRule {
	return &models.ProxyMappingRule{
		Rule: &models.DataMappingRule{
			BaseModel:  models.BaseModel{ID: models.NewULID()},
			Name:       name,
			SourceType: models.DataMappingRuleSourceTypeEPG,
			Expression: expr,
			IsActive:   true,
		},
	}
}

func channel(name, group, tvgID string) *models.Channel {
	return &models.Channel{
		ChannelName: name,
		GroupTitle:  group,
		TvgID:       tvgID,
		StreamURL:   "http://stream/" + name,
	}
}

func TestExecute_NoRulesIsNoop(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{channel("BBC One", "UK", "bbc1.uk")}

	stage := New()
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, "No mapping rules attached", result.Message)
	assert.Equal(t, "UK", state.Channels[0].GroupTitle)
}

func TestExecute_AppliesMatchingRule(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		channel("BBC News", "News", "bbcnews.uk"),
		channel("MTV", "Music", "mtv.uk"),
	}
	state.RebuildChannelMap()
	state.MappingRules = []*models.ProxyMappingRule{
		streamRule("uppercase news", `group_title equals "News" SET group_title = "NEWS"`),
	}

	stage := New()
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, "NEWS", state.Channels[0].GroupTitle)
	assert.Equal(t, "Music", state.Channels[1].GroupTitle)
	assert.Equal(t, 1, result.RecordsModified)
}

func TestExecute_ErroredRecordExcludedFromLineup(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{
		channel("BBC News", "News", "bbcnews.uk"),
		channel("MTV", "Music", "mtv.uk"),
	}
	state.RebuildChannelMap()
	state.MappingRules = []*models.ProxyMappingRule{
		// Valid syntax but the transform directive fails at evaluation time
		streamRule("bad transform", `group_title equals "News" TRANSFORM group_title = "@nope:x"`),
	}

	stage := New()
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	// The failing channel is removed rather than published half-mapped;
	// the untouched channel survives.
	require.Len(t, state.Channels, 1)
	assert.Equal(t, "MTV", state.Channels[0].ChannelName)
	require.Len(t, state.Errors, 1)
	assert.Contains(t, state.Errors[0].Error(), "BBC News")
	assert.Contains(t, result.Message, "1 dropped on error")
}

func TestExecute_RulesChainInOrder(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{channel("BBC News", "News", "bbcnews.uk")}
	state.RebuildChannelMap()
	state.MappingRules = []*models.ProxyMappingRule{
		streamRule("first", `group_title equals "News" SET group_title = "Current Affairs"`),
		streamRule("second", `group_title equals "Current Affairs" SET channel_name = "BBC News 24"`),
	}

	stage := New()
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	// The second rule matched the value the first rule wrote.
	assert.Equal(t, "Current Affairs", state.Channels[0].GroupTitle)
	assert.Equal(t, "BBC News 24", state.Channels[0].ChannelName)
}

func TestExecute_InactiveRuleSkipped(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{channel("BBC News", "News", "bbcnews.uk")}
	state.RebuildChannelMap()

	inactive := streamRule("disabled", `group_title equals "News" SET group_title = "NEWS"`)
	inactive.Rule.IsActive = false
	state.MappingRules = []*models.ProxyMappingRule{inactive}

	stage := New()
	result, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, "News", state.Channels[0].GroupTitle)
	assert.Equal(t, "No active mapping rules", result.Message)
}

func TestExecute_InvalidExpressionIsFatal(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{channel("BBC News", "News", "bbcnews.uk")}
	state.MappingRules = []*models.ProxyMappingRule{
		streamRule("broken", `group_title frobnicates "News" SET group_title = "x"`),
	}

	stage := New()
	_, err := stage.Execute(context.Background(), state)

	require.Error(t, err)
}

func TestExecute_SetLabelStoredOnChannel(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{channel("BBC News", "News", "bbcnews.uk")}
	state.RebuildChannelMap()
	state.MappingRules = []*models.ProxyMappingRule{
		streamRule("tag news", `group_title equals "News" SET_LABEL category = "news"`),
	}

	stage := New()
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	require.NotEmpty(t, state.Channels[0].Labels)

	var labels []expression.Label
	require.NoError(t, json.Unmarshal([]byte(state.Channels[0].Labels), &labels))
	require.Len(t, labels, 1)
	assert.Equal(t, "category", labels[0].Key)
	assert.Equal(t, "news", labels[0].Value)
}

func TestExecute_EpgRulesApplyToGuideChannels(t *testing.T) {
	state := newTestState(t)
	state.EpgChannels = []*models.EpgChannel{
		{ChannelID: "bbc1.uk", ChannelName: "BBC One", ChannelGroup: "UK"},
	}
	state.RebuildEpgChannelMap()
	state.MappingRules = []*models.ProxyMappingRule{
		epgRule("rename guide group", `channel_group equals "UK" SET channel_group = "United Kingdom"`),
	}

	stage := New()
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", state.EpgChannels[0].ChannelGroup)
}

func TestExecute_TvgIDChangeRebuildsChannelMap(t *testing.T) {
	state := newTestState(t)
	state.Channels = []*models.Channel{channel("BBC One", "UK", "old.id")}
	state.RebuildChannelMap()
	state.MappingRules = []*models.ProxyMappingRule{
		streamRule("fix id", `tvg_id equals "old.id" SET tvg_id = "bbc1.uk"`),
	}

	stage := New()
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	assert.Contains(t, state.ChannelMap, "bbc1.uk")
	assert.NotContains(t, state.ChannelMap, "old.id")
}

func TestMergeLabels(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		var stored string
		mergeLabels(&stored, []expression.Label{{Key: "a", Value: "1"}})

		var labels []expression.Label
		require.NoError(t, json.Unmarshal([]byte(stored), &labels))
		require.Len(t, labels, 1)
	})

	t.Run("appends to existing", func(t *testing.T) {
		stored := `[{"key":"a","value":"1"}]`
		mergeLabels(&stored, []expression.Label{{Key: "b", Value: "2"}})

		var labels []expression.Label
		require.NoError(t, json.Unmarshal([]byte(stored), &labels))
		require.Len(t, labels, 2)
		assert.Equal(t, "b", labels[1].Key)
	})

	t.Run("no labels leaves store alone", func(t *testing.T) {
		stored := `[{"key":"a","value":"1"}]`
		mergeLabels(&stored, nil)
		assert.Equal(t, `[{"key":"a","value":"1"}]`, stored)
	})
}

func TestStage_Interface(t *testing.T) {
	stage := New()
	assert.Equal(t, StageID, stage.ID())
	assert.Equal(t, StageName, stage.Name())
}

func TestNewConstructor(t *testing.T) {
	constructor := NewConstructor()
	stage := constructor(&core.Dependencies{})
	assert.NotNil(t, stage)
	assert.Equal(t, StageID, stage.ID())
}
