package domainfx

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/archiver/pkg/domain"
)

const ConfigSources = "sources"

// LoadSources reads the configured sources. An invalid source is reported and
// left out, it never prevents the others from running.
func LoadSources(v *viper.Viper, logger *logrus.Logger) ([]domain.Source, error) {
	var configured []domain.Source

	err := v.UnmarshalKey(ConfigSources, &configured)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal sources")
	}

	seen := make(map[string]bool, len(configured))
	sources := make([]domain.Source, 0, len(configured))

	for _, source := range configured {
		err := source.Validate()
		if err == nil && seen[source.Name] {
			err = &domain.ConfigError{Source: source.Name, Reason: "source is configured twice"}
		}
		if err != nil {
			logger.WithError(err).WithField("source", source.Name).Error("Invalid source, skipping it")
			continue
		}

		seen[source.Name] = true
		sources = append(sources, source.WithDefaults())
	}

	if len(sources) == 0 {
		logger.Warn("No valid sources configured")
	}

	return sources, nil
}
