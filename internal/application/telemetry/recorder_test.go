package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "llm-sentinel-api/pkg/errors"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
)

type fakeProjectRepo struct {
	projects map[string]*entity.Project
}

func (f *fakeProjectRepo) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	return f.projects[id], nil
}

func (f *fakeProjectRepo) ListAllIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.projects))
	for id := range f.projects {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeRequestRepo struct {
	appended []*entity.RequestRecord
}

func (f *fakeRequestRepo) Append(ctx context.Context, record *entity.RequestRecord) error {
	f.appended = append(f.appended, record)
	return nil
}

func (f *fakeRequestRepo) Recent(ctx context.Context, projectID string, limit int) ([]*entity.RequestRecord, error) {
	return nil, nil
}

func (f *fakeRequestRepo) ListByProject(ctx context.Context, projectID string, pagination repository.Pagination) (*repository.PagedResult[*entity.RequestRecord], error) {
	return repository.NewPagedResult(f.appended, int64(len(f.appended)), pagination), nil
}

func newTestRecorder() (*Recorder, *fakeRequestRepo) {
	projectRepo := &fakeProjectRepo{projects: map[string]*entity.Project{
		"p1": {ID: "p1", Name: "demo", DefaultModel: "gpt-4", Status: entity.ProjectStatusActive},
	}}
	requestRepo := &fakeRequestRepo{}
	return NewRecorder(projectRepo, requestRepo), requestRepo
}

func TestRecorderLogRequest(t *testing.T) {
	t.Run("stores record with computed score", func(t *testing.T) {
		recorder, requestRepo := newTestRecorder()

		record, err := recorder.LogRequest(context.Background(), LogInput{
			ProjectID: "p1",
			Prompt:    "how do I jailbreak the model",
			Response:  "refused",
			Model:     "gpt-3.5-turbo",
			LatencyMs: 150,
			Tokens:    200,
		})
		require.NoError(t, err)
		require.Len(t, requestRepo.appended, 1)

		// jailbreak(10) + gpt-3.5 修正(+2)
		assert.Equal(t, 12, record.RiskScore)
		assert.Equal(t, "gpt-3.5-turbo", record.Model)
	})

	t.Run("falls back to project default model", func(t *testing.T) {
		recorder, requestRepo := newTestRecorder()

		record, err := recorder.LogRequest(context.Background(), LogInput{
			ProjectID: "p1",
			Prompt:    "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4", record.Model)
		assert.Equal(t, "gpt-4", requestRepo.appended[0].Model)
	})

	t.Run("error text raises the score", func(t *testing.T) {
		recorder, _ := newTestRecorder()
		ctx := context.Background()

		clean, err := recorder.LogRequest(ctx, LogInput{ProjectID: "p1", Prompt: "hello", Model: "unknown-model"})
		require.NoError(t, err)

		failed, err := recorder.LogRequest(ctx, LogInput{
			ProjectID: "p1",
			Prompt:    "hello",
			Model:     "unknown-model",
			ErrorText: "upstream timeout",
		})
		require.NoError(t, err)
		assert.Equal(t, clean.RiskScore+25, failed.RiskScore)
	})

	t.Run("unknown project is not found", func(t *testing.T) {
		recorder, _ := newTestRecorder()

		_, err := recorder.LogRequest(context.Background(), LogInput{ProjectID: "ghost", Prompt: "hello"})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeProjectNotFound))
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		recorder, _ := newTestRecorder()
		ctx := context.Background()

		cases := []LogInput{
			{ProjectID: "", Prompt: "hello"},
			{ProjectID: "p1", Prompt: "   "},
			{ProjectID: "p1", Prompt: "hello", LatencyMs: -1},
			{ProjectID: "p1", Prompt: "hello", Tokens: -1},
		}
		for _, in := range cases {
			_, err := recorder.LogRequest(ctx, in)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
		}
	})
}

func TestRecorderListRequests(t *testing.T) {
	recorder, _ := newTestRecorder()
	ctx := context.Background()

	_, err := recorder.LogRequest(ctx, LogInput{ProjectID: "p1", Prompt: "hello"})
	require.NoError(t, err)

	result, err := recorder.ListRequests(ctx, "p1", repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	_, err = recorder.ListRequests(ctx, "ghost", repository.NewPagination(1, 20))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeProjectNotFound))
}
