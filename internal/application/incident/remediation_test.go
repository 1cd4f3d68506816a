package incident

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "llm-sentinel-api/pkg/errors"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
)

type fakeRemediationRepo struct {
	actions map[string]*entity.RemediationAction
	seq     int
}

func newFakeRemediationRepo() *fakeRemediationRepo {
	return &fakeRemediationRepo{actions: make(map[string]*entity.RemediationAction)}
}

func (f *fakeRemediationRepo) Create(ctx context.Context, action *entity.RemediationAction) error {
	f.seq++
	action.ID = fmt.Sprintf("act-%d", f.seq)
	f.actions[action.ID] = action
	return nil
}

func (f *fakeRemediationRepo) GetByID(ctx context.Context, id string) (*entity.RemediationAction, error) {
	return f.actions[id], nil
}

func (f *fakeRemediationRepo) MarkExecuted(ctx context.Context, id string, executedAt time.Time) (bool, error) {
	action, ok := f.actions[id]
	if !ok || action.Executed {
		return false, nil
	}
	action.Executed = true
	action.ExecutedAt = &executedAt
	return true, nil
}

func (f *fakeRemediationRepo) ListByIncident(ctx context.Context, incidentID string) ([]*entity.RemediationAction, error) {
	var matched []*entity.RemediationAction
	for _, action := range f.actions {
		if action.IncidentID == incidentID {
			matched = append(matched, action)
		}
	}
	return matched, nil
}

func (f *fakeRemediationRepo) Delete(ctx context.Context, id string) error {
	delete(f.actions, id)
	return nil
}

type appliedConstraint struct {
	kind  entity.ConstraintKind
	value repository.ConstraintValue
}

type fakeSettingsRepo struct {
	applied map[string][]appliedConstraint
	resets  []string
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{applied: make(map[string][]appliedConstraint)}
}

func (f *fakeSettingsRepo) GetConstraints(ctx context.Context, projectID string) (*entity.ProjectConstraints, error) {
	return &entity.ProjectConstraints{ProjectID: projectID}, nil
}

func (f *fakeSettingsRepo) ApplyConstraint(ctx context.Context, projectID string, kind entity.ConstraintKind, value repository.ConstraintValue) error {
	f.applied[projectID] = append(f.applied[projectID], appliedConstraint{kind: kind, value: value})
	return nil
}

func (f *fakeSettingsRepo) ResetConstraints(ctx context.Context, projectID string) error {
	f.resets = append(f.resets, projectID)
	return nil
}

func (f *fakeSettingsRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type fakeTransactor struct{}

func (fakeTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, projectID string) error {
	f.invalidated = append(f.invalidated, projectID)
	return nil
}

type remediationFixture struct {
	svc          *RemediationService
	incidentRepo *fakeIncidentRepo
	actionRepo   *fakeRemediationRepo
	settingsRepo *fakeSettingsRepo
	invalidator  *fakeInvalidator
	incident     *entity.Incident
}

func newRemediationFixture(t *testing.T) *remediationFixture {
	t.Helper()

	incidentRepo := newFakeIncidentRepo()
	actionRepo := newFakeRemediationRepo()
	settingsRepo := newFakeSettingsRepo()
	invalidator := &fakeInvalidator{}

	return &remediationFixture{
		svc:          NewRemediationService(incidentRepo, actionRepo, settingsRepo, fakeTransactor{}, invalidator),
		incidentRepo: incidentRepo,
		actionRepo:   actionRepo,
		settingsRepo: settingsRepo,
		invalidator:  invalidator,
		incident:     incidentRepo.add("p1", entity.IncidentStatusOpen),
	}
}

func TestRemediationCreate(t *testing.T) {
	t.Run("creates pending action", func(t *testing.T) {
		fx := newRemediationFixture(t)

		action, err := fx.svc.Create(context.Background(), "p1", fx.incident.ID,
			entity.ActionRateLimitUser, map[string]any{"new_limit": float64(100)})
		require.NoError(t, err)
		assert.False(t, action.Executed)
		assert.Nil(t, action.ExecutedAt)
	})

	t.Run("rejects unknown action type", func(t *testing.T) {
		fx := newRemediationFixture(t)

		_, err := fx.svc.Create(context.Background(), "p1", fx.incident.ID,
			entity.ActionType("reboot_universe"), map[string]any{"x": 1})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidActionType))
	})

	t.Run("rejects malformed parameters", func(t *testing.T) {
		fx := newRemediationFixture(t)

		_, err := fx.svc.Create(context.Background(), "p1", fx.incident.ID,
			entity.ActionRateLimitUser, map[string]any{"new_limit": float64(0)})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidActionParams))
	})

	t.Run("rejects empty parameters", func(t *testing.T) {
		fx := newRemediationFixture(t)

		_, err := fx.svc.Create(context.Background(), "p1", fx.incident.ID,
			entity.ActionSwitchModel, map[string]any{})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidActionParams))
	})

	t.Run("incident of another project is not found", func(t *testing.T) {
		fx := newRemediationFixture(t)

		_, err := fx.svc.Create(context.Background(), "p2", fx.incident.ID,
			entity.ActionSwitchModel, map[string]any{"new_model": "gpt-4"})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeIncidentNotFound))
	})
}

func TestRemediationApply(t *testing.T) {
	t.Run("marks executed and writes constraint", func(t *testing.T) {
		fx := newRemediationFixture(t)
		ctx := context.Background()

		action, err := fx.svc.Create(ctx, "p1", fx.incident.ID,
			entity.ActionSwitchModel, map[string]any{"new_model": "claude-3-haiku"})
		require.NoError(t, err)

		applied, err := fx.svc.Apply(ctx, "p1", fx.incident.ID, action.ID)
		require.NoError(t, err)
		assert.True(t, applied.Executed)
		require.NotNil(t, applied.ExecutedAt)

		require.Len(t, fx.settingsRepo.applied["p1"], 1)
		assert.Equal(t, entity.ConstraintForcedModel, fx.settingsRepo.applied["p1"][0].kind)
		assert.Equal(t, "claude-3-haiku", fx.settingsRepo.applied["p1"][0].value.StrValue)
		assert.Equal(t, []string{"p1"}, fx.invalidator.invalidated)
	})

	t.Run("applying twice is a conflict", func(t *testing.T) {
		fx := newRemediationFixture(t)
		ctx := context.Background()

		action, err := fx.svc.Create(ctx, "p1", fx.incident.ID,
			entity.ActionIncreaseSafetyThreshold, map[string]any{"new_threshold": float64(80)})
		require.NoError(t, err)

		_, err = fx.svc.Apply(ctx, "p1", fx.incident.ID, action.ID)
		require.NoError(t, err)

		_, err = fx.svc.Apply(ctx, "p1", fx.incident.ID, action.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeRemediationApplied))

		// 副作用只发生一次
		assert.Len(t, fx.settingsRepo.applied["p1"], 1)
	})

	t.Run("rate limit with duration sets expiry", func(t *testing.T) {
		fx := newRemediationFixture(t)
		ctx := context.Background()

		action, err := fx.svc.Create(ctx, "p1", fx.incident.ID,
			entity.ActionRateLimitUser, map[string]any{"new_limit": float64(60), "duration": "1h"})
		require.NoError(t, err)

		_, err = fx.svc.Apply(ctx, "p1", fx.incident.ID, action.ID)
		require.NoError(t, err)

		require.Len(t, fx.settingsRepo.applied["p1"], 1)
		applied := fx.settingsRepo.applied["p1"][0]
		assert.Equal(t, entity.ConstraintRateLimit, applied.kind)
		assert.Equal(t, 60, applied.value.IntValue)
		require.NotNil(t, applied.value.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(time.Hour), *applied.value.ExpiresAt, time.Minute)
	})

	t.Run("reset settings clears constraints", func(t *testing.T) {
		fx := newRemediationFixture(t)
		ctx := context.Background()

		action, err := fx.svc.Create(ctx, "p1", fx.incident.ID,
			entity.ActionResetSettings, map[string]any{"reason": "operator cleanup"})
		require.NoError(t, err)

		_, err = fx.svc.Apply(ctx, "p1", fx.incident.ID, action.ID)
		require.NoError(t, err)

		assert.Equal(t, []string{"p1"}, fx.settingsRepo.resets)
		assert.Empty(t, fx.settingsRepo.applied["p1"])
	})

	t.Run("unknown action is not found", func(t *testing.T) {
		fx := newRemediationFixture(t)

		_, err := fx.svc.Apply(context.Background(), "p1", fx.incident.ID, "missing")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeRemediationNotFound))
	})

	t.Run("action of another incident is not found", func(t *testing.T) {
		fx := newRemediationFixture(t)
		ctx := context.Background()
		other := fx.incidentRepo.add("p1", entity.IncidentStatusOpen)

		action, err := fx.svc.Create(ctx, "p1", fx.incident.ID,
			entity.ActionSwitchModel, map[string]any{"new_model": "gpt-4"})
		require.NoError(t, err)

		_, err = fx.svc.Apply(ctx, "p1", other.ID, action.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeRemediationNotFound))
	})
}

func TestRemediationDelete(t *testing.T) {
	t.Run("deletes pending action", func(t *testing.T) {
		fx := newRemediationFixture(t)
		ctx := context.Background()

		action, err := fx.svc.Create(ctx, "p1", fx.incident.ID,
			entity.ActionSwitchModel, map[string]any{"new_model": "gpt-4"})
		require.NoError(t, err)

		require.NoError(t, fx.svc.DeleteAction(ctx, "p1", fx.incident.ID, action.ID))

		actions, err := fx.svc.ListActions(ctx, "p1", fx.incident.ID)
		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	t.Run("applied action cannot be deleted", func(t *testing.T) {
		fx := newRemediationFixture(t)
		ctx := context.Background()

		action, err := fx.svc.Create(ctx, "p1", fx.incident.ID,
			entity.ActionSwitchModel, map[string]any{"new_model": "gpt-4"})
		require.NoError(t, err)
		_, err = fx.svc.Apply(ctx, "p1", fx.incident.ID, action.ID)
		require.NoError(t, err)

		err = fx.svc.DeleteAction(ctx, "p1", fx.incident.ID, action.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeRemediationApplied))
	})
}
