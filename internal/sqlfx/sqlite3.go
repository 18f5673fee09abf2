package sqlfx

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/archiver/pkg/storage"
)

const (
	ConfigHistoryDSN = "history.dsn"
)

type SqliteConfig struct {
	DSN          string
	DatabaseName string
}

func SqliteConfigProvider(v *viper.Viper) (*SqliteConfig, error) {
	config := &SqliteConfig{
		DSN:          v.GetString(ConfigHistoryDSN),
		DatabaseName: "archiver",
	}

	if config.DSN == "" {
		return nil, errors.Errorf("%s must not be empty", ConfigHistoryDSN)
	}

	return config, nil
}

func OpenSqliteDatabase(config *SqliteConfig, logger *logrus.Logger) (*sqlx.DB, error) {
	logger.WithField("dsn", config.DSN).Debug("Connecting to DB with DSN")

	if dir := databaseDir(config.DSN); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "Unable to create DB directory")
		}
	}

	return storage.Open(config.DSN, config.DatabaseName)
}

// databaseDir is the directory of a file DSN, empty for in-memory databases.
func databaseDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	if path == "" || strings.HasPrefix(path, ":memory:") {
		return ""
	}

	return filepath.Dir(path)
}

func CloseSqliteDatabase(lc fx.Lifecycle, db *sqlx.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
}
