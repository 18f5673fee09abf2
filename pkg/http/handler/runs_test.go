package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/archiver/pkg/domain"
	"github.com/yurykabanov/archiver/pkg/storage"
)

// region runRepositoryMock
type runRepositoryMock struct {
	mock.Mock
}

func (m *runRepositoryMock) FindLatest(ctx context.Context) ([]storage.Run, error) {
	call := m.Called()
	runs, _ := call.Get(0).([]storage.Run)
	return runs, call.Error(1)
}

func (m *runRepositoryMock) FindWindows(ctx context.Context, source, day string) ([]domain.LogWindow, error) {
	call := m.Called(source, day)
	windows, _ := call.Get(0).([]domain.LogWindow)
	return windows, call.Error(1)
}

// endregion

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

var sources = []domain.Source{
	{Name: "app", Kind: domain.SourceKindDatabase},
	{Name: "api", Kind: domain.SourceKindLogs},
}

func TestRunMetricHandler(t *testing.T) {
	started := time.Date(2025, 7, 14, 3, 0, 0, 0, time.UTC)

	repo := &runRepositoryMock{}
	repo.On("FindLatest").Return([]storage.Run{{
		Id:          "run-1",
		Source:      "app",
		Kind:        "database",
		StartedAt:   started,
		FinishedAt:  started.Add(1500 * time.Millisecond),
		Trace:       "producing,uploading,pruning,cleaning_up,done",
		FailedPhase: sql.NullString{String: "pruning", Valid: true},
		Error:       sql.NullString{String: "listing unavailable", Valid: true},
		Uploaded:    1,
	}}, nil)

	rec := httptest.NewRecorder()
	NewRunMetricHandler(discardLogger(), sources, repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "app", got[0]["source"])
	assert.Equal(t, false, got[0]["succeeded"])
	assert.Equal(t, float64(started.UnixNano()/1e6), got[0]["started_at_mtime"])
	assert.Equal(t, float64(1500), got[0]["duration_ms"])
	assert.Equal(t, "pruning", got[0]["failed_phase"])
	assert.Equal(t, "listing unavailable", got[0]["error"])
	assert.Len(t, got[0]["trace"], 5)

	assert.Equal(t, "api", got[1]["source"])
	assert.Equal(t, "logs", got[1]["kind"])
	assert.Nil(t, got[1]["succeeded"])
	assert.NotContains(t, got[1], "started_at_mtime")
}

func TestRunMetricHandler_RepositoryFailure(t *testing.T) {
	repo := &runRepositoryMock{}
	repo.On("FindLatest").Return(nil, errors.New("database is locked"))

	rec := httptest.NewRecorder()
	NewRunMetricHandler(discardLogger(), sources, repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/runs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func windowRouter(repo RunRepository) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics/windows/{source}/{day}", NewWindowHandler(discardLogger(), repo))
	return router
}

func TestWindowHandler(t *testing.T) {
	repo := &runRepositoryMock{}
	repo.On("FindWindows", "api", "2025-07-14").Return([]domain.LogWindow{
		{Source: "api", Day: "2025-07-14", Hour: 0, Records: 3},
		{Source: "api", Day: "2025-07-14", Hour: 1, Failed: true},
	}, nil)

	rec := httptest.NewRecorder()
	windowRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/windows/api/2025-07-14", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"hour":0,"records":3,"skipped":false,"failed":false},{"hour":1,"records":0,"skipped":false,"failed":true}]`,
		rec.Body.String())
	repo.AssertExpectations(t)
}

func TestWindowHandler_InvalidDay(t *testing.T) {
	repo := &runRepositoryMock{}

	rec := httptest.NewRecorder()
	windowRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/windows/api/yesterday", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	repo.AssertNotCalled(t, "FindWindows", mock.Anything, mock.Anything)
}
