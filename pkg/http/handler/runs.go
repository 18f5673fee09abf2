package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/archiver/pkg/appcontext"
	"github.com/yurykabanov/archiver/pkg/domain"
	"github.com/yurykabanov/archiver/pkg/storage"
)

const queryTimeout = 10 * time.Second

type RunRepository interface {
	FindLatest(ctx context.Context) ([]storage.Run, error)
	FindWindows(ctx context.Context, source, day string) ([]domain.LogWindow, error)
}

// RunMetricHandler reports the latest run of every configured source.
type RunMetricHandler struct {
	logger  logrus.FieldLogger
	sources []domain.Source
	repo    RunRepository
}

func NewRunMetricHandler(logger logrus.FieldLogger, sources []domain.Source, repo RunRepository) *RunMetricHandler {
	return &RunMetricHandler{
		logger:  logger,
		sources: sources,
		repo:    repo,
	}
}

type runMetricResponse struct {
	Source      string   `json:"source"`
	Kind        string   `json:"kind"`
	Succeeded   *bool    `json:"succeeded"`
	StartedAt   int64    `json:"started_at_mtime,omitempty"`
	Duration    int64    `json:"duration_ms,omitempty"`
	Trace       []string `json:"trace,omitempty"`
	FailedPhase string   `json:"failed_phase,omitempty"`
	Error       string   `json:"error,omitempty"`
	Uploaded    int      `json:"uploaded"`
	Pruned      int      `json:"pruned"`
}

func (h *RunMetricHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	runs, err := h.repo.FindLatest(ctx)
	if err != nil {
		logger.WithError(err).Error("Unable to query latest runs")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	latest := make(map[string]storage.Run, len(runs))
	for _, run := range runs {
		latest[run.Source] = run
	}

	result := make([]runMetricResponse, 0, len(h.sources))

	for _, source := range h.sources {
		resp := runMetricResponse{Source: source.Name, Kind: string(source.Kind)}

		if run, ok := latest[source.Name]; ok {
			succeeded := run.Succeeded
			resp.Succeeded = &succeeded
			resp.StartedAt = run.StartedAt.UnixNano() / 1e6
			resp.Duration = run.FinishedAt.Sub(run.StartedAt).Nanoseconds() / 1e6
			resp.Trace = run.Phases()
			resp.FailedPhase = run.FailedPhase.String
			resp.Error = run.Error.String
			resp.Uploaded = run.Uploaded
			resp.Pruned = run.Pruned
		}

		result = append(result, resp)
	}

	writeJSON(w, logger, result)
}

// WindowHandler reports the exported hours of a log source for a day.
type WindowHandler struct {
	logger logrus.FieldLogger
	repo   RunRepository
}

func NewWindowHandler(logger logrus.FieldLogger, repo RunRepository) *WindowHandler {
	return &WindowHandler{
		logger: logger,
		repo:   repo,
	}
}

type windowResponse struct {
	Hour    int  `json:"hour"`
	Records int  `json:"records"`
	Skipped bool `json:"skipped"`
	Failed  bool `json:"failed"`
}

func (h *WindowHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)
	vars := mux.Vars(r)

	if _, err := time.Parse("2006-01-02", vars["day"]); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	windows, err := h.repo.FindWindows(ctx, vars["source"], vars["day"])
	if err != nil {
		logger.WithError(err).Error("Unable to query exported windows")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	result := make([]windowResponse, 0, len(windows))
	for _, window := range windows {
		result = append(result, windowResponse{
			Hour:    window.Hour,
			Records: window.Records,
			Skipped: window.Skipped,
			Failed:  window.Failed,
		})
	}

	writeJSON(w, logger, result)
}

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Unable to encode response")
	}
}
