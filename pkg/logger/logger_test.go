package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	entry := GetLogger(context.Background())
	require.NotNil(t, entry)
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithLoggerRoundTrip(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("occurrence", "abc")
	ctx := WithLogger(context.Background(), custom)

	got := GetLogger(ctx)
	assert.Equal(t, "abc", got.Data["occurrence"])
}

func TestInit(t *testing.T) {
	require.NoError(t, Init("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, L.Logger.Formatter)

	require.NoError(t, Init("info", "text"))
	assert.IsType(t, &logrus.TextFormatter{}, L.Logger.Formatter)

	assert.Error(t, Init("noisy", "text"))
}

func TestLogOutput(t *testing.T) {
	orig := L.Logger.Out
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(orig)

	require.NoError(t, Init("info", "text"))
	G(context.Background()).WithField("tier", "tier1").Info("diagnosis started")
	assert.Contains(t, buf.String(), "diagnosis started")
	assert.Contains(t, buf.String(), "tier1")
}
