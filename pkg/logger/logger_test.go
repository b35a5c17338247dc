package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSONCarriesBuildID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")

	ctx := WithBuildID(context.Background(), "b-42")
	FromContext(ctx).Debug("block inverted", "block", "0")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "b-42", line["build_id"])
	assert.Equal(t, "0", line["block"])
}

func TestSetupWriter_LevelFiltering(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "text")
	WithComponent("merger").Info("hidden")
	assert.Empty(t, buf.String())

	WithComponent("merger").Warn("shown")
	assert.Contains(t, buf.String(), "component=merger")
}
