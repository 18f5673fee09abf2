package configfx

import (
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yurykabanov/archiver/pkg/logexport"
)

const (
	EnvPrefix              = "archiver"
	DefaultConfigDirectory = "archiver"
	DefaultConfigFile      = "archiver"
)

var (
	defaultConfigPaths = []string{
		".",
		"./config",
		path.Join("/etc", DefaultConfigDirectory),
	}
)

// SetDefaults registers the values used when neither the config file nor the
// environment has a key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("workdir", "/tmp/archiver")
	v.SetDefault("dump.binary", "mysqldump")

	v.SetDefault("export.window_delay", logexport.DefaultWindowDelay)
	v.SetDefault("export.timeout", time.Minute)
	v.SetDefault("export.fetch_failure", "day")

	v.SetDefault("run.concurrency", 2)

	v.SetDefault("history.dsn", "./db/archiver.db")

	v.SetDefault("server.timeout.read", 10*time.Second)
	v.SetDefault("server.timeout.write", 10*time.Second)
}

func ViperProvider(logger *logrus.Logger, flagSet *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	err := v.BindPFlags(flagSet)
	if err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	// An explicitly given config file must exist and be valid
	if configFile := v.GetString(FlagConfig); configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		// Otherwise look in the default locations, running on env and
		// defaults alone is fine
		v.SetConfigName(DefaultConfigFile)

		for _, dir := range defaultConfigPaths {
			v.AddConfigPath(dir)
		}

		if err := v.ReadInConfig(); err != nil {
			logger.WithError(err).Warn("Couldn't read config file")
		}
	}

	return v, nil
}
