package domain

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yurykabanov/archiver/pkg/appcontext"
)

// BackupManager binds sources to their schedules. Every source owns a worker
// goroutine and a single-slot queue, so runs of one source never overlap and
// a slow source never delays another one.
type BackupManager struct {
	logger logrus.FieldLogger

	order   []string
	sources map[string]Source
	active  map[string]chan time.Time

	runner  SourceRunner
	trigger Trigger

	concurrency int
}

type SourceRunner interface {
	Run(ctx context.Context, source Source, day string) RunReport
}

// Trigger invokes registered tasks according to their schedule expressions.
type Trigger interface {
	AddFunc(spec string, cmd func()) error
	Start()
	Stop()
}

func NewBackupManager(
	logger logrus.FieldLogger,
	sources []Source,
	runner SourceRunner,
	trigger Trigger,
	concurrency int,
) *BackupManager {
	order := make([]string, 0, len(sources))
	sourcesMap := make(map[string]Source, len(sources))

	for _, source := range sources {
		if _, ok := sourcesMap[source.Name]; !ok {
			order = append(order, source.Name)
		}
		sourcesMap[source.Name] = source
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	return &BackupManager{
		logger: logger,

		order:   order,
		sources: sourcesMap,
		active:  make(map[string]chan time.Time, len(sources)),

		runner:  runner,
		trigger: trigger,

		concurrency: concurrency,
	}
}

// Run schedules every source and blocks until ctx is done. Sources with an
// invalid schedule are reported and left out, the others keep running.
func (m *BackupManager) Run(ctx context.Context) {
	for _, name := range m.order {
		source := m.sources[name]
		ch := make(chan time.Time, 1)

		err := m.registerSource(source, ch)
		if err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"source": name,
				"spec":   source.CronSpec,
			}).Error("Unable to schedule source")
			continue
		}

		m.active[name] = ch
	}

	if len(m.active) == 0 {
		m.logger.Warn("No sources are scheduled")
	}

	m.logger.Debug("Starting cron")
	m.trigger.Start()

	wg := &sync.WaitGroup{}
	wg.Add(len(m.active))

	for name, ch := range m.active {
		go m.handleSourceRuns(ctx, wg, m.sources[name], ch)
	}

	<-ctx.Done()

	m.logger.Debug("Stopping cron")
	m.trigger.Stop()

	wg.Wait()
}

// RunOnce runs every source a single time and returns their reports in
// source order.
func (m *BackupManager) RunOnce(ctx context.Context, day string) []RunReport {
	reports := make([]RunReport, len(m.order))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, name := range m.order {
		i, source := i, m.sources[name]

		g.Go(func() error {
			reports[i] = m.runner.Run(ctx, source, day)
			return nil
		})
	}

	_ = g.Wait()

	return reports
}

func (m *BackupManager) handleSourceRuns(ctx context.Context, wg *sync.WaitGroup, source Source, ch <-chan time.Time) {
	defer wg.Done()

	baseCtx := appcontext.WithSourceName(ctx, source.Name)
	logger := appcontext.LoggerFromContext(m.logger, baseCtx)

	logger.WithFields(logrus.Fields{"spec": source.CronSpec}).Debug("Starting source handler")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Stopping source handler")
			return
		case firedAt := <-ch:
			logger.WithField("fired_at", firedAt).Info("Handling new run")
			m.runner.Run(ctx, source, "")
		}
	}
}

func (m *BackupManager) registerSource(source Source, ch chan<- time.Time) error {
	if source.CronSpec == "" {
		return &ConfigError{Source: source.Name, Reason: "cron_spec is required in scheduled mode"}
	}

	err := m.trigger.AddFunc(source.CronSpec, func() {
		m.dispatch(source, ch)
	})
	if err != nil {
		return &ConfigError{Source: source.Name, Reason: "invalid cron_spec: " + err.Error()}
	}

	m.logger.WithFields(logrus.Fields{
		"source":  source.Name,
		"trigger": source.TriggerName(),
		"spec":    source.CronSpec,
	}).Info("Source scheduled")

	return nil
}

func (m *BackupManager) dispatch(source Source, ch chan<- time.Time) {
	t := time.Now()

	fields := logrus.Fields{"source": source.Name, "trigger": source.TriggerName(), "fired_at": t}

	select {
	case ch <- t:
		m.logger.WithFields(fields).Info("Dispatched new run")
	default:
		m.logger.WithFields(fields).Warn("Previous run is still pending, dropping this one")
	}
}
