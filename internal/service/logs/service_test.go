package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLogAssignsIDAndCountsLevels(t *testing.T) {
	svc := New()
	svc.AddLog(LogEntry{Level: "info", Message: "hello", Module: "ingestor"})
	svc.AddLog(LogEntry{Level: "error", Message: "boom", Module: "ingestor"})
	svc.AddLog(LogEntry{Level: "info", Message: "again"})

	recent := svc.GetRecentLogs(0)
	require.Len(t, recent, 3)
	for _, entry := range recent {
		assert.NotEmpty(t, entry.ID)
	}

	stats := svc.GetStats()
	assert.Equal(t, int64(3), stats.TotalLogs)
	assert.Equal(t, int64(2), stats.LogsByLevel["info"])
	assert.Equal(t, int64(1), stats.LogsByLevel["error"])
	assert.Equal(t, int64(2), stats.LogsByModule["ingestor"])
	require.Len(t, stats.RecentErrors, 1)
	assert.Equal(t, "boom", stats.RecentErrors[0].Message)
}

func TestStatsIncludeAllLevels(t *testing.T) {
	stats := New().GetStats()
	for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
		count, ok := stats.LogsByLevel[level]
		assert.True(t, ok, level)
		assert.Zero(t, count)
	}
}

func TestRingEvictsOldestBeyondCapacity(t *testing.T) {
	svc := New()
	for i := 0; i < DefaultMaxLogs+50; i++ {
		svc.AddLog(LogEntry{Level: "info", Message: fmt.Sprintf("msg-%d", i)})
	}

	recent := svc.GetRecentLogs(0)
	require.Len(t, recent, DefaultMaxLogs)
	assert.Equal(t, "msg-50", recent[0].Message)
	assert.Equal(t, fmt.Sprintf("msg-%d", DefaultMaxLogs+49), recent[len(recent)-1].Message)

	stats := svc.GetStats()
	assert.Equal(t, int64(DefaultMaxLogs+50), stats.TotalLogs)
}

func TestGetRecentLogsLimit(t *testing.T) {
	svc := New()
	for i := 0; i < 10; i++ {
		svc.AddLog(LogEntry{Level: "info", Message: fmt.Sprintf("msg-%d", i)})
	}

	recent := svc.GetRecentLogs(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "msg-7", recent[0].Message)
	assert.Equal(t, "msg-9", recent[2].Message)

	assert.Len(t, svc.GetRecentLogs(100), 10)
}

func TestRecentErrorsAreBounded(t *testing.T) {
	svc := New()
	for i := 0; i < maxRecentErrors+5; i++ {
		svc.AddLog(LogEntry{Level: "error", Message: fmt.Sprintf("err-%d", i)})
	}

	stats := svc.GetStats()
	require.Len(t, stats.RecentErrors, maxRecentErrors)
	assert.Equal(t, "err-5", stats.RecentErrors[0].Message)
}

func TestSubscribeReceivesBroadcasts(t *testing.T) {
	svc := New()
	sub := svc.Subscribe(context.Background())
	defer svc.Unsubscribe(sub.ID)

	svc.AddLog(LogEntry{Level: "warn", Message: "watch out"})

	select {
	case entry := <-sub.Events:
		assert.Equal(t, "watch out", entry.Message)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestSubscriberDetachedOnContextCancel(t *testing.T) {
	svc := New()
	ctx, cancel := context.WithCancel(context.Background())
	sub := svc.Subscribe(ctx)
	require.Equal(t, 1, svc.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool {
		return svc.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-sub.Events
	assert.False(t, open)
}

func TestSubscriberDetachedOnDone(t *testing.T) {
	svc := New()
	sub := svc.Subscribe(context.Background())
	close(sub.Done)

	require.Eventually(t, func() bool {
		return svc.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestWrapHandlerCapturesRecords(t *testing.T) {
	svc := New()
	logger := slog.New(svc.WrapHandler(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger = logger.With("component", "scheduler")
	logger.Info("tick", "jobs", 3, "request_id", "req-1")
	logger.Error("job failed")

	recent := svc.GetRecentLogs(0)
	require.Len(t, recent, 2)

	first := recent[0]
	assert.Equal(t, "info", first.Level)
	assert.Equal(t, "tick", first.Message)
	assert.Equal(t, "scheduler", first.Module)
	assert.Equal(t, "scheduler", first.Target)
	assert.EqualValues(t, 3, first.Fields["jobs"])
	assert.Equal(t, "req-1", first.Context["request_id"])

	assert.Equal(t, "error", recent[1].Level)
	require.Len(t, svc.GetStats().RecentErrors, 1)
}

func TestLevelName(t *testing.T) {
	cases := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug - 4, "trace"},
		{slog.LevelDebug, "debug"},
		{slog.LevelInfo, "info"},
		{slog.LevelWarn, "warn"},
		{slog.LevelError, "error"},
		{slog.LevelError + 4, "error"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, levelName(tc.level), tc.level.String())
	}
}
