package appcontext

import (
	"context"
	"io/ioutil"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoggerFromContext(t *testing.T) {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	ctx := WithWindow(WithStorageName(WithRunId(WithSourceName(context.Background(), "app"), "run-1"), "drive"), "2025-07-14 08")

	entry, ok := LoggerFromContext(logger, ctx).(*logrus.Entry)

	assert.True(t, ok)
	assert.Equal(t, logrus.Fields{
		"source":  "app",
		"run_id":  "run-1",
		"storage": "drive",
		"window":  "2025-07-14 08",
	}, entry.Data)
	assert.Equal(t, "run-1", RunIdFromContext(ctx))
}

func TestLoggerFromContext_Empty(t *testing.T) {
	logger := logrus.New()

	assert.Equal(t, logger, LoggerFromContext(logger, context.Background()))
	assert.Equal(t, "", RunIdFromContext(context.Background()))
}
