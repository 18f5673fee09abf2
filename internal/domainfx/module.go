package domainfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(LoadSources),
	fx.Provide(Location),
	fx.Provide(NewCron),
	fx.Provide(NewCronTrigger),
	fx.Provide(MountManager),
	fx.Provide(LogClient),
	fx.Provide(LogExportConfigProvider),
	fx.Provide(Producers),
	fx.Provide(Orchestrator),
	fx.Provide(BackupManager),
	fx.Invoke(RunBackupManager),
)
