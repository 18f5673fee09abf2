package domain

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/yurykabanov/archiver/pkg/appcontext"
)

const recordTimeout = 10 * time.Second

// Orchestrator drives a single run of a source: produce, upload, prune and
// clean up local files. It knows nothing about schedules.
type Orchestrator struct {
	logger logrus.FieldLogger

	producers map[SourceKind]Producer
	storages  StorageResolver
	retention *RetentionManager
	files     FileRemover
	recorders []RunRecorder

	now   func() time.Time
	newId func() string
}

func NewOrchestrator(
	logger logrus.FieldLogger,
	producers map[SourceKind]Producer,
	storages StorageResolver,
	files FileRemover,
	recorders ...RunRecorder,
) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		producers: producers,
		storages:  storages,
		retention: NewRetentionManager(logger),
		files:     files,
		recorders: recorders,
		now:       time.Now,
		newId:     uuid.NewString,
	}
}

// RunContext is the state owned by one run. Nothing in it is shared with
// other runs.
type RunContext struct {
	Source  Source
	Storage RemoteStorage

	ctx       context.Context
	logger    logrus.FieldLogger
	report    RunReport
	artifacts []Artifact
}

func (r *RunContext) enter(p Phase) {
	r.report.Trace = append(r.report.Trace, p)
}

func (r *RunContext) phase() Phase {
	if len(r.report.Trace) == 0 {
		return PhaseIdle
	}
	return r.report.Trace[len(r.report.Trace)-1]
}

func (r *RunContext) fail(err error) {
	if r.report.Err == nil {
		r.report.FailedPhase = r.phase()
	}
	r.report.Err = multierr.Append(r.report.Err, err)
}

// Run executes one run of the source and reports how it went. It never
// panics and never returns before local artifacts are removed.
func (o *Orchestrator) Run(ctx context.Context, source Source, day string) (report RunReport) {
	source = source.WithDefaults()

	run := &RunContext{
		Source: source,
		report: RunReport{
			Id:        o.newId(),
			Source:    source.Name,
			Kind:      source.Kind,
			StartedAt: o.now(),
		},
	}

	ctx = appcontext.WithRunId(appcontext.WithSourceName(ctx, source.Name), run.report.Id)
	ctx = appcontext.WithStorageName(ctx, source.Storage)

	if source.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, source.Timeout)
		defer cancel()
	}

	run.ctx = ctx
	run.logger = appcontext.LoggerFromContext(o.logger, ctx)

	defer func() {
		if r := recover(); r != nil {
			run.logger.WithField("panic", r).Error("Run panicked")
			run.fail(fmt.Errorf("panic in phase %s: %v", run.phase(), r))
		}

		o.cleanUp(run)
		o.done(run)

		report = run.report
	}()

	run.logger.Info("Starting run")

	if !o.prepare(run) {
		return
	}

	if !o.produce(run, day) {
		return
	}

	o.upload(run)
	o.prune(run)

	return
}

func (o *Orchestrator) prepare(run *RunContext) bool {
	storage, err := o.storages.Storage(run.Source.Storage)
	if err != nil {
		run.logger.WithError(err).Error("Unable to resolve storage")
		run.fail(&ConfigError{Source: run.Source.Name, Reason: err.Error()})
		return false
	}
	run.Storage = storage

	return true
}

func (o *Orchestrator) produce(run *RunContext, day string) bool {
	run.enter(PhaseProducing)

	producer, ok := o.producers[run.Source.Kind]
	if !ok {
		run.fail(&ConfigError{Source: run.Source.Name, Reason: fmt.Sprintf("no producer for kind %q", run.Source.Kind)})
		run.logger.Error("No producer registered for source kind")
		return false
	}

	run.logger.Info("Producing artifacts")

	artifacts, err := producer.Produce(run.ctx, run.Source, ProduceRequest{
		StartedAt: run.report.StartedAt,
		Day:       day,
	})
	// partially written files belong to the run whatever the outcome
	run.artifacts = artifacts

	if err != nil {
		run.logger.WithError(err).Error("Unable to produce artifacts")
		var productionErr *ProductionError
		if !errors.As(err, &productionErr) {
			err = &ProductionError{Source: run.Source.Name, Err: err}
		}
		run.fail(err)
		return false
	}

	run.report.Produced = len(artifacts)
	run.logger.WithField("produced", len(artifacts)).Info("Artifacts produced")

	return true
}

func (o *Orchestrator) upload(run *RunContext) {
	run.enter(PhaseUploading)

	for _, artifact := range run.artifacts {
		logger := run.logger.WithField("file", artifact.Name)

		id, err := run.Storage.Upload(run.ctx, artifact.Path, run.Source.Container)
		if err != nil {
			logger.WithError(err).Error("Unable to upload artifact, skipping remaining uploads")
			run.fail(&UploadError{Path: artifact.Path, Err: err})
			return
		}

		run.report.Uploaded++
		logger.WithField("remote_id", id).Info("Artifact uploaded")
	}

	run.logger.WithField("uploaded", run.report.Uploaded).Info("Uploads finished")
}

func (o *Orchestrator) prune(run *RunContext) {
	run.enter(PhasePruning)

	keep := run.Source.KeepCount()

	deleted, err := o.retention.Prune(run.ctx, run.Storage, run.Source.Container, run.Source.Archives(), keep)
	run.report.Pruned = deleted

	if err != nil {
		run.logger.WithError(err).Error("Pruning finished with errors")
		for _, e := range multierr.Errors(err) {
			run.fail(e)
		}
		return
	}

	run.logger.WithFields(logrus.Fields{"pruned": deleted, "keep": keep}).Info("Old archives pruned")
}

func (o *Orchestrator) cleanUp(run *RunContext) {
	run.enter(PhaseCleaningUp)

	for _, artifact := range run.artifacts {
		if artifact.Adopted {
			continue
		}

		err := o.files.Remove(artifact.Path)
		if err != nil {
			run.logger.WithError(err).WithField("file", filepath.Base(artifact.Path)).Error("Unable to remove local artifact")
			run.fail(err)
		}
	}
}

func (o *Orchestrator) done(run *RunContext) {
	run.enter(PhaseDone)
	run.report.FinishedAt = o.now()

	report := run.report

	logger := run.logger.WithFields(logrus.Fields{
		"produced":    report.Produced,
		"uploaded":    report.Uploaded,
		"pruned":      report.Pruned,
		"errors":      report.ErrorCount(),
		"duration_ms": report.Duration().Nanoseconds() / 1e6,
	})

	if report.Succeeded() {
		logger.Info("Run finished successfully")
	} else {
		logger.WithError(report.Err).WithField("failed_phase", report.FailedPhase.String()).Error("Run finished with failure")
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	ctx = appcontext.WithRunId(appcontext.WithSourceName(ctx, report.Source), report.Id)

	for _, recorder := range o.recorders {
		if err := recorder.RecordRun(ctx, report); err != nil {
			logger.WithError(err).Warn("Unable to record run")
		}
	}
}
