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
	"llm-sentinel-api/internal/infrastructure/messaging"
)

type fakeIncidentRepo struct {
	incidents map[string]*entity.Incident
	seq       int
}

func newFakeIncidentRepo() *fakeIncidentRepo {
	return &fakeIncidentRepo{incidents: make(map[string]*entity.Incident)}
}

func (f *fakeIncidentRepo) add(projectID string, status entity.IncidentStatus) *entity.Incident {
	f.seq++
	incident := entity.NewIncident(projectID, entity.SeverityMedium, entity.TriggerLatencyThreshold)
	incident.ID = fmt.Sprintf("inc-%d", f.seq)
	incident.Status = status
	if status == entity.IncidentStatusResolved {
		now := time.Now()
		incident.ResolvedAt = &now
	}
	f.incidents[incident.ID] = incident
	return incident
}

func (f *fakeIncidentRepo) Create(ctx context.Context, incident *entity.Incident) error {
	f.seq++
	incident.ID = fmt.Sprintf("inc-%d", f.seq)
	f.incidents[incident.ID] = incident
	return nil
}

func (f *fakeIncidentRepo) GetByID(ctx context.Context, id string) (*entity.Incident, error) {
	return f.incidents[id], nil
}

func (f *fakeIncidentRepo) FindOpenByTrigger(ctx context.Context, projectID string, triggerType entity.TriggerType) (*entity.Incident, error) {
	for _, incident := range f.incidents {
		if incident.ProjectID == projectID &&
			incident.TriggerType == triggerType &&
			incident.Status == entity.IncidentStatusOpen {
			return incident, nil
		}
	}
	return nil, nil
}

func (f *fakeIncidentRepo) Resolve(ctx context.Context, id string, resolvedAt time.Time) (bool, error) {
	incident, ok := f.incidents[id]
	if !ok || incident.Status != entity.IncidentStatusOpen {
		return false, nil
	}
	incident.Status = entity.IncidentStatusResolved
	incident.ResolvedAt = &resolvedAt
	return true, nil
}

func (f *fakeIncidentRepo) ListByProject(ctx context.Context, projectID string, filter *repository.IncidentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Incident], error) {
	var matched []*entity.Incident
	for _, incident := range f.incidents {
		if incident.ProjectID == projectID {
			matched = append(matched, incident)
		}
	}
	return repository.NewPagedResult(matched, int64(len(matched)), pagination), nil
}

type fakePublisher struct {
	events []*messaging.IncidentEventMessage
}

func (f *fakePublisher) PublishIncidentEvent(ctx context.Context, msgType string, event *messaging.IncidentEventMessage) (string, error) {
	f.events = append(f.events, event)
	return "1-0", nil
}

func TestServiceResolve(t *testing.T) {
	t.Run("resolves open incident", func(t *testing.T) {
		repo := newFakeIncidentRepo()
		open := repo.add("p1", entity.IncidentStatusOpen)
		publisher := &fakePublisher{}
		svc := NewService(repo, publisher)

		resolved, err := svc.Resolve(context.Background(), "p1", open.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.IncidentStatusResolved, resolved.Status)
		require.NotNil(t, resolved.ResolvedAt)
		require.Len(t, publisher.events, 1)
		assert.Equal(t, string(entity.IncidentStatusResolved), publisher.events[0].Status)
	})

	t.Run("resolving twice is a conflict", func(t *testing.T) {
		repo := newFakeIncidentRepo()
		open := repo.add("p1", entity.IncidentStatusOpen)
		svc := NewService(repo, nil)
		ctx := context.Background()

		_, err := svc.Resolve(ctx, "p1", open.ID)
		require.NoError(t, err)

		_, err = svc.Resolve(ctx, "p1", open.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeIncidentResolved))
	})

	t.Run("unknown incident is not found", func(t *testing.T) {
		svc := NewService(newFakeIncidentRepo(), nil)

		_, err := svc.Resolve(context.Background(), "p1", "missing")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeIncidentNotFound))
	})

	t.Run("incident of another project is not found", func(t *testing.T) {
		repo := newFakeIncidentRepo()
		open := repo.add("p2", entity.IncidentStatusOpen)
		svc := NewService(repo, nil)

		_, err := svc.Resolve(context.Background(), "p1", open.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeIncidentNotFound))

		// 归属校验失败不能泄露状态变化
		assert.Equal(t, entity.IncidentStatusOpen, repo.incidents[open.ID].Status)
	})
}

func TestServiceGet(t *testing.T) {
	repo := newFakeIncidentRepo()
	open := repo.add("p1", entity.IncidentStatusOpen)
	svc := NewService(repo, nil)

	incident, err := svc.Get(context.Background(), "p1", open.ID)
	require.NoError(t, err)
	assert.Equal(t, open.ID, incident.ID)

	_, err = svc.Get(context.Background(), "p2", open.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeIncidentNotFound))
}
