package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFieldNames(t *testing.T) {
	logger, err := New(Options{Level: "debug"})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	Component(logger, "aggregator").WithField("address", "T1").Info("flushed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "flushed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "aggregator", entry["component"])
	assert.Equal(t, "T1", entry["address"])
	assert.Contains(t, entry, "timestamp")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.log")
	logger, err := New(Options{File: path})
	require.NoError(t, err)

	logger.Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestComponent_NilLogger(t *testing.T) {
	assert.NotNil(t, Component(nil, "x"))
}
