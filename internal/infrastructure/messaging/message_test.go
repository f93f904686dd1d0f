package messaging

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, cfg.CalculateBackoff(2))
	assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(3))
	assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(10))
}

func TestPermanent(t *testing.T) {
	base := errors.New("precondition")
	err := fmt.Errorf("handler: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.NoError(t, Permanent(nil))
}

func TestMessagePayload(t *testing.T) {
	msg, err := NewMessage("m1", TypeAutoRunStep, "p1", AutoRunStepPayload{Start: true})
	require.NoError(t, err)
	assert.Equal(t, "p1", msg.ProjectID)

	var payload AutoRunStepPayload
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.True(t, payload.Start)

	assert.Empty(t, msg.GetMetadata("request_id"))
	msg.SetMetadata("request_id", "r1")
	assert.Equal(t, "r1", msg.GetMetadata("request_id"))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "dlq:stream:auto_run", StreamAutoRun.DLQStream())
	assert.Equal(t, ConsumerGroup("z_novel_forge:auto-run"), GroupName("z_novel_forge", "auto-run"))
	assert.Equal(t, ConsumerGroup("auto-run"), GroupName("", "auto-run"))
}
