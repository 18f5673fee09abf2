package domain

import (
	"fmt"
	"regexp"
	"time"
)

type SourceKind string

const (
	SourceKindDatabase SourceKind = "database"
	SourceKindLogs     SourceKind = "logs"
)

const (
	DefaultRetention = 2
	DefaultMySQLPort = 3306
	DefaultPageSize  = 1000
)

// Source describes one backup target. It is loaded once and never mutated.
type Source struct {
	Name      string         `mapstructure:"name"`
	Kind      SourceKind     `mapstructure:"kind"`
	CronSpec  string         `mapstructure:"cron_spec"`
	Retention int            `mapstructure:"retention"`
	Storage   string         `mapstructure:"storage"`
	Container string         `mapstructure:"container"`
	Timeout   time.Duration  `mapstructure:"timeout"`
	Database  DatabaseSource `mapstructure:"database"`
	Logs      LogSource      `mapstructure:"logs"`
}

type DatabaseSource struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type LogSource struct {
	SourceID string `mapstructure:"source_id"`
	APIKey   string `mapstructure:"api_key"`
	PageSize int    `mapstructure:"page_size"`
}

// KeepCount is the number of remote archives preserved by pruning.
func (s Source) KeepCount() int {
	if s.Retention <= 0 {
		return DefaultRetention
	}
	return s.Retention
}

// RemotePrefix is the name stem shared by every archive of the source.
func (s Source) RemotePrefix() string {
	if s.Kind == SourceKindLogs {
		return s.Name + "-"
	}
	return s.Name + "_backup_"
}

// Archives selects the remote files pruning may consider. Log archive names
// must also carry a full yyyy-MM-dd-HH stem, so a source named "api" never
// matches the files of "api-gateway".
func (s Source) Archives() ArchiveMatcher {
	m := PrefixMatcher(s.RemotePrefix())
	if s.Kind == SourceKindLogs {
		m.Pattern = regexp.MustCompile(`^` + regexp.QuoteMeta(m.Prefix) + `\d{4}-\d{2}-\d{2}-\d{2}\.jsonl$`)
	}
	return m
}

func (s Source) TriggerName() string {
	if s.Kind == SourceKindLogs {
		return "backup-logs-" + s.Name
	}
	return "backup-" + s.Name
}

// WithDefaults fills optional fields that have well-known defaults.
func (s Source) WithDefaults() Source {
	if s.Retention == 0 {
		s.Retention = DefaultRetention
	}
	if s.Kind == SourceKindDatabase && s.Database.Port == 0 {
		s.Database.Port = DefaultMySQLPort
	}
	if s.Kind == SourceKindLogs && s.Logs.PageSize == 0 {
		s.Logs.PageSize = DefaultPageSize
	}
	return s
}

// Validate reports the first problem that makes the source unusable.
func (s Source) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return &ConfigError{Source: s.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if s.Name == "" {
		return invalid("name is required")
	}
	if s.Retention < 0 {
		return invalid("retention must be positive, got %d", s.Retention)
	}
	if s.Storage == "" {
		return invalid("storage is required")
	}
	if s.Container == "" {
		return invalid("container is required")
	}

	switch s.Kind {
	case SourceKindDatabase:
		if s.Database.Host == "" || s.Database.User == "" || s.Database.Name == "" {
			return invalid("database host, user and name are required")
		}
	case SourceKindLogs:
		if s.Logs.SourceID == "" || s.Logs.APIKey == "" {
			return invalid("logs source_id and api_key are required")
		}
		if s.Logs.PageSize < 0 {
			return invalid("logs page_size must be positive, got %d", s.Logs.PageSize)
		}
	default:
		return invalid("unknown kind %q", s.Kind)
	}

	return nil
}
