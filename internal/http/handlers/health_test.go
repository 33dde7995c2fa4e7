package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_GetLivez(t *testing.T) {
	h := NewHealthHandler("1.0.0")

	out, err := h.GetLivez(context.Background(), &LivezInput{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "ok", out.Body.Status)
}

func TestHealthHandler_GetReadyz_NoDatabase(t *testing.T) {
	h := NewHealthHandler("1.0.0")

	out, err := h.GetReadyz(context.Background(), &ReadyzInput{})
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, "not_ready", out.Body.Status)
	assert.Equal(t, "not_configured", out.Body.Components["database"])
	assert.Equal(t, "ok", out.Body.Components["scheduler"])
}

func TestHealthHandler_GetHealth(t *testing.T) {
	h := NewHealthHandler("1.0.0")

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "1.0.0", out.Body.Version)
	assert.NotEmpty(t, out.Body.Uptime)
	assert.NotZero(t, out.Body.CPUInfo.Cores)
}
