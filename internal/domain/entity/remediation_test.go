package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionParams(t *testing.T) {
	tests := []struct {
		name       string
		actionType ActionType
		raw        map[string]any
		wantErr    bool
	}{
		{
			name:       "switch model valid",
			actionType: ActionSwitchModel,
			raw:        map[string]any{"new_model": "gpt-4o"},
		},
		{
			name:       "switch model missing model",
			actionType: ActionSwitchModel,
			raw:        map[string]any{"new_model": "  "},
			wantErr:    true,
		},
		{
			name:       "safety threshold valid",
			actionType: ActionIncreaseSafetyThreshold,
			raw:        map[string]any{"new_threshold": float64(85)},
		},
		{
			name:       "safety threshold out of range",
			actionType: ActionIncreaseSafetyThreshold,
			raw:        map[string]any{"new_threshold": float64(150)},
			wantErr:    true,
		},
		{
			name:       "disable endpoint valid",
			actionType: ActionDisableEndpoint,
			raw:        map[string]any{"endpoint": "/v1/projects/:project_id/requests"},
		},
		{
			name:       "rate limit valid with duration",
			actionType: ActionRateLimitUser,
			raw:        map[string]any{"new_limit": float64(60), "duration": "30m"},
		},
		{
			name:       "rate limit zero",
			actionType: ActionRateLimitUser,
			raw:        map[string]any{"new_limit": float64(0)},
			wantErr:    true,
		},
		{
			name:       "rate limit bad duration",
			actionType: ActionRateLimitUser,
			raw:        map[string]any{"new_limit": float64(60), "duration": "soon"},
			wantErr:    true,
		},
		{
			name:       "reset settings requires reason",
			actionType: ActionResetSettings,
			raw:        map[string]any{"reason": ""},
			wantErr:    true,
		},
		{
			name:       "empty parameters rejected",
			actionType: ActionChangeSystemPrompt,
			raw:        map[string]any{},
			wantErr:    true,
		},
		{
			name:       "unknown type rejected",
			actionType: ActionType("reboot"),
			raw:        map[string]any{"x": 1},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseActionParams(tt.actionType, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRemediationActionMarkExecuted(t *testing.T) {
	action, err := NewRemediationAction("inc-1", ActionSwitchModel, map[string]any{"new_model": "gpt-4o"})
	require.NoError(t, err)
	require.False(t, action.Executed)

	first := time.Now()
	assert.True(t, action.MarkExecuted(first))
	assert.True(t, action.Executed)
	require.NotNil(t, action.ExecutedAt)

	// executed 只能单向翻转
	assert.False(t, action.MarkExecuted(time.Now().Add(time.Minute)))
	assert.Equal(t, first, *action.ExecutedAt)
}

func TestConstraintHelpers(t *testing.T) {
	limit := 60
	c := &ProjectConstraints{
		ProjectID:         "p1",
		RateLimitPerMin:   &limit,
		DisabledEndpoints: []string{"/v1/projects/:project_id/requests"},
	}

	assert.False(t, c.IsEmpty())
	assert.True(t, c.IsEndpointDisabled("/v1/projects/:project_id/requests"))
	assert.False(t, c.IsEndpointDisabled("/v1/projects/:project_id/incidents"))

	wildcard := &ProjectConstraints{DisabledEndpoints: []string{"*"}}
	assert.True(t, wildcard.IsEndpointDisabled("/anything"))

	past := time.Now().Add(-time.Minute)
	expired := &ProjectConstraints{ExpiresAt: &past}
	assert.True(t, expired.IsExpired(time.Now()))
	assert.False(t, (&ProjectConstraints{}).IsExpired(time.Now()))
}
