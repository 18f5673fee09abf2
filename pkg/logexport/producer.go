// Package logexport exports a day of remote logs as hourly JSON Lines files.
package logexport

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/yurykabanov/archiver/pkg/appcontext"
	"github.com/yurykabanov/archiver/pkg/betterstack"
	"github.com/yurykabanov/archiver/pkg/domain"
)

const (
	// Layout of an explicit export day
	DayLayout = "2006-01-02"

	DefaultWindowDelay = time.Second
)

type FetchFailure string

const (
	// A fetch failure aborts the remaining windows of the day
	FetchFailureDay FetchFailure = "day"

	// A fetch failure drops the window, later windows are still exported
	FetchFailureHour FetchFailure = "hour"
)

type Fetcher interface {
	FetchWindow(ctx context.Context, req betterstack.WindowRequest, fn func([]domain.LogRecord) error) (int, error)
}

type Workdir interface {
	Allocate(name string) (string, error)
}

type WindowRecorder interface {
	RecordWindow(ctx context.Context, window domain.LogWindow) error

	// EmptyWindowRecorded reports whether the hour was fetched before and
	// had no records.
	EmptyWindowRecorded(ctx context.Context, source, day string, hour int) (bool, error)
}

type Config struct {
	// Minimal delay between two fetched windows, 0 disables throttling
	WindowDelay  time.Duration
	FetchFailure FetchFailure

	// Time zone the export day is split into hours in
	Location *time.Location
}

type Producer struct {
	logger logrus.FieldLogger

	fetcher Fetcher
	workdir Workdir
	windows WindowRecorder
	config  Config
}

// NewProducer creates a producer; windows may be nil.
func NewProducer(logger logrus.FieldLogger, fetcher Fetcher, workdir Workdir, windows WindowRecorder, config Config) *Producer {
	if config.FetchFailure == "" {
		config.FetchFailure = FetchFailureDay
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	return &Producer{
		logger:  logger,
		fetcher: fetcher,
		workdir: workdir,
		windows: windows,
		config:  config,
	}
}

// TargetDay returns the midnight of the day to export: the explicit day, or
// the day before now.
func TargetDay(day string, now time.Time, loc *time.Location) (time.Time, error) {
	if day != "" {
		t, err := time.ParseInLocation(DayLayout, day, loc)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid date %q", day)
		}
		return t, nil
	}

	y, m, d := now.In(loc).AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}

// FileStem is the common name of the hourly files, without extension.
func FileStem(source string, day time.Time, hour int) string {
	return fmt.Sprintf("%s-%s-%02d", source, day.Format(DayLayout), hour)
}

// Produce exports the 24 hourly windows of the target day. Windows whose
// output already exists are not fetched again.
func (p *Producer) Produce(ctx context.Context, source domain.Source, req domain.ProduceRequest) ([]domain.Artifact, error) {
	logger := appcontext.LoggerFromContext(p.logger, ctx)

	fail := func(err error) error {
		return &domain.ProductionError{Source: source.Name, Err: err}
	}

	day, err := TargetDay(req.Day, req.StartedAt, p.config.Location)
	if err != nil {
		return nil, fail(err)
	}

	dir, err := p.workdir.Allocate(source.Name)
	if err != nil {
		return nil, fail(err)
	}

	var limiter *rate.Limiter
	if p.config.WindowDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(p.config.WindowDelay), 1)
	}

	logger.WithField("day", day.Format(DayLayout)).Info("Exporting logs")

	var artifacts []domain.Artifact

	for hour := 0; hour < 24; hour++ {
		if err := ctx.Err(); err != nil {
			return artifacts, fail(err)
		}

		stem := FileStem(source.Name, day, hour)
		windowCtx := appcontext.WithWindow(ctx, fmt.Sprintf("%s %02d", day.Format(DayLayout), hour))
		windowLogger := appcontext.LoggerFromContext(p.logger, windowCtx)

		window := domain.LogWindow{Source: source.Name, Day: day.Format(DayLayout), Hour: hour}

		jsonlPath := filepath.Join(dir, stem+".jsonl")
		if _, err := os.Stat(jsonlPath); err == nil {
			windowLogger.Info("Window already exported, skipping")

			artifacts = append(artifacts, domain.Artifact{
				Path:      jsonlPath,
				Name:      stem + ".jsonl",
				Kind:      domain.ArtifactLogExport,
				CreatedAt: req.StartedAt,
				Adopted:   true,
			})

			window.Skipped = true
			p.recordWindow(windowCtx, windowLogger, window)
			continue
		}

		if p.emptyWindowRecorded(windowCtx, windowLogger, window) {
			windowLogger.Debug("Window is known to be empty, skipping")
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return artifacts, fail(err)
			}
		}

		from := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, p.config.Location)

		artifact, records, err := p.exportWindow(windowCtx, windowLogger, source, dir, stem, from, req.StartedAt)
		window.Records = records

		if err != nil {
			var fetchErr *domain.FetchError
			if p.config.FetchFailure == FetchFailureHour && errors.As(err, &fetchErr) {
				windowLogger.WithError(err).Error("Unable to fetch window, skipping it")

				window.Failed = true
				p.recordWindow(windowCtx, windowLogger, window)
				continue
			}

			return artifacts, fail(err)
		}

		p.recordWindow(windowCtx, windowLogger, window)

		if artifact != nil {
			artifacts = append(artifacts, *artifact)
		}
	}

	logger.WithField("files", len(artifacts)).Info("Logs exported")

	return artifacts, nil
}

// exportWindow fetches one window into the text file and converts it. The
// text file never outlives the call.
func (p *Producer) exportWindow(
	ctx context.Context,
	logger logrus.FieldLogger,
	source domain.Source,
	dir, stem string,
	from time.Time,
	startedAt time.Time,
) (*domain.Artifact, int, error) {
	txtPath := filepath.Join(dir, stem+".txt")
	jsonlPath := filepath.Join(dir, stem+".jsonl")

	f, err := os.Create(txtPath)
	if err != nil {
		return nil, 0, errors.Wrap(err, "unable to create text export")
	}
	defer os.Remove(txtPath)

	w := bufio.NewWriter(f)

	total, fetchErr := p.fetcher.FetchWindow(ctx, betterstack.WindowRequest{
		SourceID: source.Logs.SourceID,
		Token:    source.Logs.APIKey,
		From:     from,
		To:       from.Add(time.Hour - time.Second),
		PageSize: source.Logs.PageSize,
	}, func(records []domain.LogRecord) error {
		for _, r := range records {
			if _, err := fmt.Fprintf(w, "[%s] [%s] %s\n%s\n\n", r.Time, r.Level, r.Message, r.Payload); err != nil {
				return errors.Wrap(err, "unable to write text export")
			}
		}
		return nil
	})

	closeErr := multierr.Combine(w.Flush(), f.Close())

	if fetchErr != nil {
		return nil, total, fetchErr
	}
	if closeErr != nil {
		return nil, total, errors.Wrap(closeErr, "unable to finish text export")
	}

	if total == 0 {
		logger.Debug("Window has no records")
		return nil, 0, nil
	}

	stats, err := ConvertFile(txtPath, jsonlPath)
	if err != nil {
		return nil, total, err
	}

	fields := logrus.Fields{
		"records":          stats.Records,
		"format_errors":    stats.FormatErrors,
		"missing_payloads": stats.MissingPayloads,
		"payload_errors":   stats.PayloadErrors,
	}
	if stats.Errors() > 0 {
		logger.WithFields(fields).Warn("Window exported with malformed records")
	} else {
		logger.WithFields(fields).Info("Window exported")
	}

	return &domain.Artifact{
		Path:      jsonlPath,
		Name:      stem + ".jsonl",
		Kind:      domain.ArtifactLogExport,
		CreatedAt: startedAt,
	}, total, nil
}

func (p *Producer) emptyWindowRecorded(ctx context.Context, logger logrus.FieldLogger, window domain.LogWindow) bool {
	if p.windows == nil {
		return false
	}

	empty, err := p.windows.EmptyWindowRecorded(ctx, window.Source, window.Day, window.Hour)
	if err != nil {
		logger.WithError(err).Warn("Unable to look up exported window")
		return false
	}

	return empty
}

func (p *Producer) recordWindow(ctx context.Context, logger logrus.FieldLogger, window domain.LogWindow) {
	if p.windows == nil {
		return
	}

	if err := p.windows.RecordWindow(ctx, window); err != nil {
		logger.WithError(err).Warn("Unable to record exported window")
	}
}
