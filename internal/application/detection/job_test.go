package detection

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

type fakeProjectRepo struct {
	ids []string
	err error
}

func (f *fakeProjectRepo) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	for _, known := range f.ids {
		if known == id {
			return &entity.Project{ID: id, Status: entity.ProjectStatusActive}, nil
		}
	}
	return nil, nil
}

func (f *fakeProjectRepo) ListAllIDs(ctx context.Context) ([]string, error) {
	return f.ids, f.err
}

type fakeIncidentRepo struct {
	incidents map[string]*entity.Incident
	seq       int
}

func newFakeIncidentRepo() *fakeIncidentRepo {
	return &fakeIncidentRepo{incidents: make(map[string]*entity.Incident)}
}

func (f *fakeIncidentRepo) Create(ctx context.Context, incident *entity.Incident) error {
	for _, existing := range f.incidents {
		if existing.ProjectID == incident.ProjectID &&
			existing.TriggerType == incident.TriggerType &&
			existing.Status == entity.IncidentStatusOpen {
			return apperrors.Conflict(apperrors.CodeDuplicateIncident, "open incident already exists")
		}
	}
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

func (f *fakeIncidentRepo) openCount(projectID string) int {
	count := 0
	for _, incident := range f.incidents {
		if incident.ProjectID == projectID && incident.Status == entity.IncidentStatusOpen {
			count++
		}
	}
	return count
}

type fakeTransactor struct{}

func (fakeTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakePublisher struct {
	events []*messaging.IncidentEventMessage
}

func (f *fakePublisher) PublishIncidentEvent(ctx context.Context, msgType string, event *messaging.IncidentEventMessage) (string, error) {
	f.events = append(f.events, event)
	return "1-0", nil
}

func newTestJob(requestRepo *fakeRequestRepo, projectRepo *fakeProjectRepo, incidentRepo *fakeIncidentRepo, publisher *fakePublisher) *Job {
	detectors := newTestDetectors(requestRepo)
	return NewJob(projectRepo, incidentRepo, fakeTransactor{}, detectors, publisher)
}

func TestJobRunCreatesIncident(t *testing.T) {
	requestRepo := &fakeRequestRepo{records: map[string][]*entity.RequestRecord{
		"p1": latencyRecords("p1", 5000, 100, 105, 110, 115, 120, 125, 130, 135, 140, 145),
	}}
	incidentRepo := newFakeIncidentRepo()
	publisher := &fakePublisher{}
	job := newTestJob(requestRepo, &fakeProjectRepo{ids: []string{"p1"}}, incidentRepo, publisher)

	job.Run(context.Background())

	require.Equal(t, 1, incidentRepo.openCount("p1"))
	incident, err := incidentRepo.FindOpenByTrigger(context.Background(), "p1", entity.TriggerLatencyThreshold)
	require.NoError(t, err)
	require.NotNil(t, incident)
	assert.Equal(t, entity.IncidentStatusOpen, incident.Status)
	assert.NotEmpty(t, incident.RootCause)
	assert.NotEmpty(t, incident.RecommendedFix)
	assert.Equal(t, 1, incident.AffectedRequests)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, incident.ID, publisher.events[0].IncidentID)
}

func TestJobRunIsIdempotent(t *testing.T) {
	requestRepo := &fakeRequestRepo{records: map[string][]*entity.RequestRecord{
		"p1": latencyRecords("p1", 5000, 100, 105, 110, 115, 120, 125, 130, 135, 140, 145),
	}}
	incidentRepo := newFakeIncidentRepo()
	job := newTestJob(requestRepo, &fakeProjectRepo{ids: []string{"p1"}}, incidentRepo, &fakePublisher{})
	ctx := context.Background()

	job.Run(ctx)
	job.Run(ctx)

	assert.Equal(t, 1, incidentRepo.openCount("p1"))
}

func TestJobRunIsolatesProjectFailures(t *testing.T) {
	// p1 的读取会因样本不足返回 nil，p2 触发延迟异常
	requestRepo := &fakeRequestRepo{records: map[string][]*entity.RequestRecord{
		"p1": latencyRecords("p1", 100),
		"p2": latencyRecords("p2", 5000, 100, 105, 110, 115, 120, 125, 130, 135, 140, 145),
	}}
	incidentRepo := newFakeIncidentRepo()
	job := newTestJob(requestRepo, &fakeProjectRepo{ids: []string{"p1", "p2"}}, incidentRepo, &fakePublisher{})

	job.Run(context.Background())

	assert.Equal(t, 0, incidentRepo.openCount("p1"))
	assert.Equal(t, 1, incidentRepo.openCount("p2"))
}

func TestJobRunDoesNotReopenResolvedIncident(t *testing.T) {
	requestRepo := &fakeRequestRepo{records: map[string][]*entity.RequestRecord{
		"p1": latencyRecords("p1", 5000, 100, 105, 110, 115, 120, 125, 130, 135, 140, 145),
	}}
	incidentRepo := newFakeIncidentRepo()
	job := newTestJob(requestRepo, &fakeProjectRepo{ids: []string{"p1"}}, incidentRepo, &fakePublisher{})
	ctx := context.Background()

	job.Run(ctx)
	incident, err := incidentRepo.FindOpenByTrigger(ctx, "p1", entity.TriggerLatencyThreshold)
	require.NoError(t, err)
	require.NotNil(t, incident)

	ok, err := incidentRepo.Resolve(ctx, incident.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	job.Run(ctx)

	// 已解决的事件保持 resolved，持续的异常开出新事件
	resolved, err := incidentRepo.GetByID(ctx, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.IncidentStatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
}

func TestDeriveSeverity(t *testing.T) {
	tests := []struct {
		name     string
		result   *Result
		expected entity.IncidentSeverity
	}{
		{
			name: "high mean risk score",
			result: &Result{
				TriggerType: entity.TriggerRiskScoreAnomaly,
				Metadata:    map[string]any{"mean": 75.0},
			},
			expected: entity.SeverityHigh,
		},
		{
			name: "moderate risk score",
			result: &Result{
				TriggerType: entity.TriggerRiskScoreAnomaly,
				Metadata:    map[string]any{"mean": 20.0},
			},
			expected: entity.SeverityLow,
		},
		{
			name: "severe error rate jump",
			result: &Result{
				TriggerType: entity.TriggerErrorRateAnomaly,
				Metadata:    map[string]any{"delta": 0.6},
			},
			expected: entity.SeverityHigh,
		},
		{
			name: "latency spike",
			result: &Result{
				TriggerType: entity.TriggerLatencyThreshold,
				Metadata:    map[string]any{"mean": 500.0, "max_value": 2000.0},
			},
			expected: entity.SeverityMedium,
		},
		{
			name: "extreme latency spike",
			result: &Result{
				TriggerType: entity.TriggerLatencyThreshold,
				Metadata:    map[string]any{"mean": 100.0, "max_value": 5000.0},
			},
			expected: entity.SeverityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, deriveSeverity(tt.result))
		})
	}
}
