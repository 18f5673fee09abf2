package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/archiver/pkg/domain"
)

const (
	runInsertQuery = `
		INSERT INTO runs (
			id, source, kind,
			started_at, finished_at,
			trace, failed_phase,
			produced, uploaded, pruned,
			error, succeeded
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	runSelectLatest = `
		SELECT
			r.id, r.source, r.kind,
			r.started_at, r.finished_at,
			r.trace, r.failed_phase,
			r.produced, r.uploaded, r.pruned,
			r.error, r.succeeded
		FROM runs r
		WHERE r.started_at = (
			SELECT MAX(started_at) FROM runs WHERE source = r.source
		)
		ORDER BY r.source
	`

	windowUpsertQuery = `
		INSERT INTO windows (source, day, hour, records, skipped, failed, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, day, hour) DO UPDATE SET
			records = excluded.records,
			skipped = excluded.skipped,
			failed = excluded.failed,
			recorded_at = excluded.recorded_at
	`

	windowEmptyQuery = `
		SELECT COUNT(*)
		FROM windows
		WHERE source = ? AND day = ? AND hour = ?
			AND records = 0 AND skipped = 0 AND failed = 0
	`

	windowSelectDay = `
		SELECT source, day, hour, records, skipped, failed
		FROM windows
		WHERE source = ? AND day = ?
		ORDER BY hour
	`
)

// Run is a stored run report.
type Run struct {
	Id          string
	Source      string
	Kind        string
	StartedAt   time.Time
	FinishedAt  time.Time
	Trace       string
	FailedPhase sql.NullString
	Produced    int
	Uploaded    int
	Pruned      int
	Error       sql.NullString
	Succeeded   bool
}

func (r Run) Phases() []string {
	if r.Trace == "" {
		return nil
	}
	return strings.Split(r.Trace, ",")
}

type RunRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{
		db:  db,
		now: time.Now,
	}
}

func (r *RunRepository) RecordRun(ctx context.Context, report domain.RunReport) error {
	phases := make([]string, 0, len(report.Trace))
	for _, p := range report.Trace {
		phases = append(phases, p.String())
	}

	var failedPhase, runErr sql.NullString
	if report.Err != nil {
		failedPhase = sql.NullString{String: report.FailedPhase.String(), Valid: true}
		runErr = sql.NullString{String: report.Err.Error(), Valid: true}
	}

	_, err := r.db.ExecContext(
		ctx, runInsertQuery,
		report.Id, report.Source, string(report.Kind),
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
		strings.Join(phases, ","), failedPhase,
		report.Produced, report.Uploaded, report.Pruned,
		runErr, report.Succeeded(),
	)

	return err
}

// FindLatest returns the most recent run of every source that has one.
func (r *RunRepository) FindLatest(ctx context.Context) ([]Run, error) {
	var runs []Run

	err := r.db.SelectContext(ctx, &runs, runSelectLatest)
	if err != nil {
		return nil, err
	}

	return runs, nil
}

// RecordWindow stores the outcome of an exported hour, replacing an earlier
// outcome of the same hour.
func (r *RunRepository) RecordWindow(ctx context.Context, window domain.LogWindow) error {
	_, err := r.db.ExecContext(
		ctx, windowUpsertQuery,
		window.Source, window.Day, window.Hour, window.Records, window.Skipped, window.Failed, r.now().UTC(),
	)

	return err
}

// EmptyWindowRecorded reports whether the hour was fetched successfully and
// yielded no records. Skipped and failed hours don't count.
func (r *RunRepository) EmptyWindowRecorded(ctx context.Context, source, day string, hour int) (bool, error) {
	var count int

	err := r.db.GetContext(ctx, &count, windowEmptyQuery, source, day, hour)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *RunRepository) FindWindows(ctx context.Context, source, day string) ([]domain.LogWindow, error) {
	var windows []domain.LogWindow

	err := r.db.SelectContext(ctx, &windows, windowSelectDay, source, day)
	if err != nil {
		return nil, err
	}

	return windows, nil
}
