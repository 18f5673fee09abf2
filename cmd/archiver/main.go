package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/yurykabanov/archiver/internal/configfx"
	"github.com/yurykabanov/archiver/internal/domainfx"
	"github.com/yurykabanov/archiver/internal/loggerfx"
	"github.com/yurykabanov/archiver/internal/metricsfx"
	"github.com/yurykabanov/archiver/internal/sqlfx"
	"github.com/yurykabanov/archiver/internal/storagefx"
)

func main() {
	logger := loggerfx.Logger()

	app := fx.New(
		fx.StartTimeout(30*time.Second),
		fx.StopTimeout(time.Minute),

		fx.Logger(logger),

		loggerfx.Module,
		configfx.Module,
		sqlfx.Module,
		storagefx.Module,
		metricsfx.Module,
		domainfx.Module,
	)

	app.Run()
}
