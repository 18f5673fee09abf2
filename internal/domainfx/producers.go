package domainfx

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/archiver/pkg/betterstack"
	"github.com/yurykabanov/archiver/pkg/domain"
	"github.com/yurykabanov/archiver/pkg/dump"
	"github.com/yurykabanov/archiver/pkg/logexport"
	"github.com/yurykabanov/archiver/pkg/mount"
)

const (
	ConfigWorkdir            = "workdir"
	ConfigDumpBinary         = "dump.binary"
	ConfigExportWindowDelay  = "export.window_delay"
	ConfigExportFetchFailure = "export.fetch_failure"
	ConfigExportEndpoint     = "export.endpoint"
	ConfigExportTimezone     = "export.timezone"
	ConfigExportTimeout      = "export.timeout"
)

func MountManager(v *viper.Viper) *mount.Manager {
	return mount.New(v.GetString(ConfigWorkdir))
}

func Location(v *viper.Viper) (*time.Location, error) {
	name := v.GetString(ConfigExportTimezone)
	if name == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s", ConfigExportTimezone)
	}
	return loc, nil
}

func LogExportConfigProvider(v *viper.Viper, loc *time.Location) (logexport.Config, error) {
	failure := logexport.FetchFailure(v.GetString(ConfigExportFetchFailure))

	switch failure {
	case "", logexport.FetchFailureDay, logexport.FetchFailureHour:
	default:
		return logexport.Config{}, errors.Errorf("%s must be %q or %q, got %q",
			ConfigExportFetchFailure, logexport.FetchFailureDay, logexport.FetchFailureHour, failure)
	}

	return logexport.Config{
		WindowDelay:  v.GetDuration(ConfigExportWindowDelay),
		FetchFailure: failure,
		Location:     loc,
	}, nil
}

func LogClient(v *viper.Viper) *betterstack.Client {
	opts := []betterstack.Option{betterstack.WithEndpoint(v.GetString(ConfigExportEndpoint))}
	if timeout := v.GetDuration(ConfigExportTimeout); timeout > 0 {
		opts = append(opts, betterstack.WithTimeout(timeout))
	}

	return betterstack.New(opts...)
}

func Producers(
	logger *logrus.Logger,
	v *viper.Viper,
	workdir *mount.Manager,
	client *betterstack.Client,
	windows logexport.WindowRecorder,
	exportConfig logexport.Config,
) map[domain.SourceKind]domain.Producer {
	return map[domain.SourceKind]domain.Producer{
		domain.SourceKindDatabase: dump.NewProducer(logger, dump.ExecRunner{}, workdir, v.GetString(ConfigDumpBinary)),
		domain.SourceKindLogs:     logexport.NewProducer(logger, client, workdir, windows, exportConfig),
	}
}
