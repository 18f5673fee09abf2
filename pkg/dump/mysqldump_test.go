package dump

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/archiver/pkg/domain"
	"github.com/yurykabanov/archiver/pkg/mount"
)

// region runnerMock
type runnerMock struct {
	mock.Mock
	output string
}

func (m *runnerMock) Run(ctx context.Context, name string, args []string, env []string, stdout io.Writer) error {
	_, _ = io.WriteString(stdout, m.output)
	call := m.Called(ctx, name, args, env)
	return call.Error(0)
}

// endregion

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

var source = domain.Source{
	Name: "app",
	Kind: domain.SourceKindDatabase,
	Database: domain.DatabaseSource{
		Host:     "db.local",
		Port:     3307,
		User:     "backup",
		Password: "secret",
		Name:     "shop",
	},
}

var startedAt = time.Date(2025, 7, 14, 8, 9, 10, 0, time.UTC)

func readGzip(t *testing.T, path string) string {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	data, err := ioutil.ReadAll(zr)
	require.NoError(t, err)

	return string(data)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "app_backup_2025_07_14_08_09_10.sql.gz", FileName("app", startedAt))
}

func TestArgs(t *testing.T) {
	assert.Equal(t, []string{
		"--single-transaction",
		"--skip-lock-tables",
		"--host=db.local",
		"--port=3307",
		"--user=backup",
		"shop",
	}, Args(source.Database))
	assert.Equal(t, []string{"MYSQL_PWD=secret"}, Env(source.Database))
}

func TestProducer_Produce(t *testing.T) {
	base := t.TempDir()
	runner := &runnerMock{output: "CREATE TABLE orders (id INT);\n"}
	ctx := context.Background()

	runner.On("Run", ctx, "/usr/bin/mysqldump", Args(source.Database), Env(source.Database)).Return(nil)

	p := NewProducer(discardLogger(), runner, mount.New(base), "/usr/bin/mysqldump")

	artifacts, err := p.Produce(ctx, source, domain.ProduceRequest{StartedAt: startedAt})

	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, filepath.Join(base, "app", "app_backup_2025_07_14_08_09_10.sql.gz"), artifacts[0].Path)
	assert.Equal(t, "app_backup_2025_07_14_08_09_10.sql.gz", artifacts[0].Name)
	assert.Equal(t, domain.ArtifactCompressedDump, artifacts[0].Kind)
	assert.Equal(t, "CREATE TABLE orders (id INT);\n", readGzip(t, artifacts[0].Path))
	runner.AssertExpectations(t)
}

func TestProducer_Produce_ToolFailure(t *testing.T) {
	runner := &runnerMock{output: "CREATE TABLE"}
	runner.On("Run", mock.Anything, DefaultBinary, mock.Anything, mock.Anything).Return(errors.New("exit status 2"))

	p := NewProducer(discardLogger(), runner, mount.New(t.TempDir()), "")

	artifacts, err := p.Produce(context.Background(), source, domain.ProduceRequest{StartedAt: startedAt})

	assert.IsType(t, &domain.ProductionError{}, err)
	require.Len(t, artifacts, 1)
	assert.FileExists(t, artifacts[0].Path)
}

func TestProducer_Produce_WorkdirFailure(t *testing.T) {
	runner := &runnerMock{}

	p := NewProducer(discardLogger(), runner, mount.New("/dev/null"), "")

	artifacts, err := p.Produce(context.Background(), source, domain.ProduceRequest{StartedAt: startedAt})

	assert.IsType(t, &domain.ProductionError{}, err)
	assert.Empty(t, artifacts)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecRunner_Run(t *testing.T) {
	var out bytes.Buffer

	err := ExecRunner{}.Run(context.Background(), "sh", []string{"-c", "printf %s \"$MYSQL_PWD\""}, []string{"MYSQL_PWD=secret"}, &out)

	assert.Nil(t, err)
	assert.Equal(t, "secret", out.String())
}

func TestExecRunner_Run_Failure(t *testing.T) {
	var out bytes.Buffer

	err := ExecRunner{}.Run(context.Background(), "sh", []string{"-c", "echo 'Access denied' >&2; exit 2"}, nil, &out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access denied")
}
