package domainfx

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/archiver/internal/configfx"
	"github.com/yurykabanov/archiver/pkg/domain"
	"github.com/yurykabanov/archiver/pkg/metrics"
	"github.com/yurykabanov/archiver/pkg/mount"
	"github.com/yurykabanov/archiver/pkg/storage"
)

const (
	ConfigRunConcurrency = "run.concurrency"
)

func Orchestrator(
	logger *logrus.Logger,
	producers map[domain.SourceKind]domain.Producer,
	storages domain.StorageResolver,
	workdir *mount.Manager,
	history *storage.RunRepository,
	collector *metrics.Collector,
) *domain.Orchestrator {
	return domain.NewOrchestrator(logger, producers, storages, workdir, history, collector)
}

func BackupManager(
	logger *logrus.Logger,
	v *viper.Viper,
	sources []domain.Source,
	orchestrator *domain.Orchestrator,
	trigger domain.Trigger,
) *domain.BackupManager {
	return domain.NewBackupManager(logger, sources, orchestrator, trigger, v.GetInt(ConfigRunConcurrency))
}

// RunBackupManager either follows the schedules until the application stops,
// or runs every source once and shuts the application down, with a non-zero
// exit code when a run failed.
func RunBackupManager(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	logger *logrus.Logger,
	invocation configfx.Invocation,
	backupManager *domain.BackupManager,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)

				if !invocation.Once {
					backupManager.Run(ctx)
					return
				}

				failed := 0
				for _, report := range backupManager.RunOnce(ctx, invocation.Day) {
					if !report.Succeeded() {
						failed++
					}
				}

				logger.WithField("failed", failed).Info("All sources processed")

				exitCode := 0
				if failed > 0 {
					exitCode = 1
				}

				if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					logger.WithError(err).Error("Unable to shut down")
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
