package domain

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/yurykabanov/archiver/pkg/appcontext"
)

// ArchiveMatcher selects archive names. Prefix is also used to narrow the
// remote listing; a nil Pattern accepts every name with the prefix.
type ArchiveMatcher struct {
	Prefix  string
	Pattern *regexp.Regexp
}

func PrefixMatcher(prefix string) ArchiveMatcher {
	return ArchiveMatcher{Prefix: prefix}
}

func (m ArchiveMatcher) Match(name string) bool {
	if !strings.HasPrefix(name, m.Prefix) {
		return false
	}
	return m.Pattern == nil || m.Pattern.MatchString(name)
}

// RetentionManager keeps the most recent remote archives of a source and
// deletes the rest.
type RetentionManager struct {
	logger logrus.FieldLogger
}

func NewRetentionManager(logger logrus.FieldLogger) *RetentionManager {
	return &RetentionManager{logger: logger}
}

// Prune deletes every file of the container selected by archives, except the keep most recent ones. Deletion failures don't stop the pass,
// they are returned together with the number of deleted files. Only a failed
// listing is a RetentionError.
func (m *RetentionManager) Prune(
	ctx context.Context,
	storage RemoteStorage,
	container string,
	archives ArchiveMatcher,
	keep int,
) (int, error) {
	logger := appcontext.LoggerFromContext(m.logger, ctx).WithField("container", container)

	files, err := storage.List(ctx, container, archives.Prefix)
	if err != nil {
		return 0, &RetentionError{Container: container, Err: err}
	}

	expired := ExpiredFiles(files, archives, keep)
	if len(expired) == 0 {
		logger.WithField("total", len(files)).Debug("Nothing to prune")
		return 0, nil
	}

	logger.Infof("Found %d expired archives, keeping %d most recent", len(expired), keep)

	var errs error
	deleted := 0

	for _, file := range expired {
		err := storage.Delete(ctx, container, file.Id)
		if err != nil {
			logger.WithError(err).WithField("name", file.Name).Error("Unable to delete expired archive")
			errs = multierr.Append(errs, err)
			continue
		}

		deleted++
		logger.WithField("name", file.Name).Info("Deleted expired archive")
	}

	return deleted, errs
}

// ExpiredFiles returns selected files that fall outside the keep most recent
// ones. Recency is creation time, then name, both descending.
func ExpiredFiles(files []RemoteFile, archives ArchiveMatcher, keep int) []RemoteFile {
	if keep < 0 {
		keep = 0
	}

	var matching []RemoteFile
	for _, f := range files {
		if archives.Match(f.Name) {
			matching = append(matching, f)
		}
	}

	sort.SliceStable(matching, func(i, j int) bool {
		if !matching[i].CreatedAt.Equal(matching[j].CreatedAt) {
			return matching[i].CreatedAt.After(matching[j].CreatedAt)
		}
		return matching[i].Name > matching[j].Name
	})

	if len(matching) <= keep {
		return nil
	}

	return matching[keep:]
}
