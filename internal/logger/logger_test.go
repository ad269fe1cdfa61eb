package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_RejectsUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, initTo(&buf, "loud", "json"))
}

func TestInit_RejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, initTo(&buf, "info", "xml"))
}

func TestFor_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, initTo(&buf, "debug", "json"))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	l := For("scheduler")
	l.Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scheduler", line["component"])
	assert.Equal(t, "hello", line["message"])
}

func TestCron_ErrorCarriesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, initTo(&buf, "debug", "json"))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Cron(For("cron")).Error(errors.New("boom"), "panic", "entry", 3)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, float64(3), line["entry"])
}
