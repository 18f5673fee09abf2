package storagefx

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/archiver/pkg/domain"
	"github.com/yurykabanov/archiver/pkg/transfer"
)

const (
	ConfigStorages = "storages"

	connectTimeout = 30 * time.Second
)

const (
	TypeDrive = "drive"
	TypeGCS   = "gcs"
	TypeS3    = "s3"
	TypeLocal = "local"
)

type StorageConfig struct {
	Name            string `mapstructure:"name"`
	Type            string `mapstructure:"type"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Subject         string `mapstructure:"subject"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Root            string `mapstructure:"root"`
}

func LoadStorages(v *viper.Viper) ([]StorageConfig, error) {
	var configs []StorageConfig

	err := v.UnmarshalKey(ConfigStorages, &configs)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal storages")
	}

	return configs, nil
}

// TransferManager connects every configured storage. A storage that cannot be
// connected is reported and left out; runs of sources using it fail.
func TransferManager(lc fx.Lifecycle, logger *logrus.Logger, configs []StorageConfig) (*transfer.Manager, domain.StorageResolver) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	mounts := make(map[string]domain.RemoteStorage, len(configs))

	for _, config := range configs {
		logger := logger.WithFields(logrus.Fields{"storage": config.Name, "type": config.Type})

		if config.Name == "" {
			logger.Error("Storage has no name, skipping it")
			continue
		}
		if _, ok := mounts[config.Name]; ok {
			logger.Error("Storage is configured twice, skipping the duplicate")
			continue
		}

		mount, err := connect(ctx, lc, config)
		if err != nil {
			logger.WithError(err).Error("Unable to connect storage, skipping it")
			continue
		}

		mounts[config.Name] = mount
	}

	manager := transfer.NewManager(mounts)

	logger.WithField("storages", manager.Names()).Info("Storages connected")

	return manager, manager
}

func connect(ctx context.Context, lc fx.Lifecycle, config StorageConfig) (domain.RemoteStorage, error) {
	switch config.Type {
	case TypeDrive:
		return transfer.NewDriveMount(ctx, config.CredentialsFile, config.Subject)

	case TypeGCS:
		mount, err := transfer.NewGCSMount(ctx, config.CredentialsFile)
		if err != nil {
			return nil, err
		}

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return mount.Close()
			},
		})

		return mount, nil

	case TypeS3:
		return transfer.NewS3Mount(ctx, config.Region, config.Endpoint)

	case TypeLocal:
		if config.Root == "" {
			return nil, errors.New("local storage needs a root directory")
		}
		return transfer.NewLocalMount(config.Root), nil
	}

	return nil, errors.Errorf("unknown storage type %q", config.Type)
}
