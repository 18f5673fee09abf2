// Package dump produces compressed database dumps with mysqldump.
package dump

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/yurykabanov/archiver/pkg/appcontext"
	"github.com/yurykabanov/archiver/pkg/domain"
)

const (
	DefaultBinary = "mysqldump"

	// Timestamp layout of dump file names: yyyy_MM_dd_HH_mm_ss
	FileTimeLayout = "2006_01_02_15_04_05"

	maxStderrTail = 2048
)

// Runner executes the dump tool writing the dump to stdout.
type Runner interface {
	Run(ctx context.Context, name string, args []string, env []string, stdout io.Writer) error
}

type Workdir interface {
	Allocate(name string) (string, error)
}

type Producer struct {
	logger logrus.FieldLogger

	runner  Runner
	workdir Workdir
	binary  string
	level   int
}

func NewProducer(logger logrus.FieldLogger, runner Runner, workdir Workdir, binary string) *Producer {
	if binary == "" {
		binary = DefaultBinary
	}

	return &Producer{
		logger:  logger,
		runner:  runner,
		workdir: workdir,
		binary:  binary,
		level:   gzip.BestCompression,
	}
}

func FileName(source string, createdAt time.Time) string {
	return fmt.Sprintf("%s_backup_%s.sql.gz", source, createdAt.Format(FileTimeLayout))
}

// Args are the mysqldump arguments of a consistent, non-locking dump. The
// password is passed through the environment, see Env.
func Args(db domain.DatabaseSource) []string {
	return []string{
		"--single-transaction",
		"--skip-lock-tables",
		"--host=" + db.Host,
		"--port=" + strconv.Itoa(db.Port),
		"--user=" + db.User,
		db.Name,
	}
}

func Env(db domain.DatabaseSource) []string {
	return []string{"MYSQL_PWD=" + db.Password}
}

// Produce dumps the database of the source into a gzipped file. A file that
// has been created is returned even when the dump fails.
func (p *Producer) Produce(ctx context.Context, source domain.Source, req domain.ProduceRequest) ([]domain.Artifact, error) {
	logger := appcontext.LoggerFromContext(p.logger, ctx)

	fail := func(err error) error {
		return &domain.ProductionError{Source: source.Name, Err: err}
	}

	dir, err := p.workdir.Allocate(source.Name)
	if err != nil {
		return nil, fail(err)
	}

	artifact := domain.Artifact{
		Path:      filepath.Join(dir, FileName(source.Name, req.StartedAt)),
		Name:      FileName(source.Name, req.StartedAt),
		Kind:      domain.ArtifactCompressedDump,
		CreatedAt: req.StartedAt,
	}

	f, err := os.Create(artifact.Path)
	if err != nil {
		return nil, fail(errors.Wrap(err, "unable to create dump file"))
	}
	artifacts := []domain.Artifact{artifact}

	zw, err := gzip.NewWriterLevel(f, p.level)
	if err != nil {
		_ = f.Close()
		return artifacts, fail(err)
	}

	logger.WithField("file", artifact.Name).Info("Creating database dump")

	runErr := p.runner.Run(ctx, p.binary, Args(source.Database), Env(source.Database), zw)
	closeErr := multierr.Combine(zw.Close(), f.Close())

	if runErr != nil {
		return artifacts, fail(errors.Wrap(runErr, "dump tool failed"))
	}
	if closeErr != nil {
		return artifacts, fail(errors.Wrap(closeErr, "unable to finish dump file"))
	}

	if stat, err := os.Stat(artifact.Path); err == nil {
		logger.WithFields(logrus.Fields{"file": artifact.Name, "size": stat.Size()}).Info("Database dump created")
	}

	return artifacts, nil
}

// ExecRunner runs the dump tool as a subprocess.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, env []string, stdout io.Writer) error {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrTail {
			msg = msg[len(msg)-maxStderrTail:]
		}
		if msg == "" {
			return errors.Wrapf(err, "%s", name)
		}
		return errors.Wrapf(err, "%s: %s", name, msg)
	}

	return nil
}
