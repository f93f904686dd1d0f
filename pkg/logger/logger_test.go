package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/pkg/logger"
)

func TestFromContext_InjectsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "debug", "json")

	ctx := logger.WithContext(context.Background(), logger.ProjectIDKey, "p-1")
	ctx = logger.WithContext(ctx, logger.OperationKey, "chapter_plan")

	logger.Error(ctx, "generation failed", errors.New("boom"), "chapter", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "p-1", line["project_id"])
	assert.Equal(t, "chapter_plan", line["operation"])
	assert.Equal(t, "boom", line["error"])
	assert.EqualValues(t, 3, line["chapter"])
	assert.Equal(t, "ERROR", line["level"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "warn", "text")

	logger.Info(context.Background(), "hidden")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}
