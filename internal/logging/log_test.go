package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewLogFactory(Options{Level: "debug", Format: FormatJSON, Writer: &buf})
	require.NoError(t, err)

	log := f.Logger().WithValues("environment", "staging")
	log.V(1).Info("declared unit", "unit", "Registry")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "declared unit", entry["msg"])
	assert.Equal(t, "staging", entry["environment"])
	assert.Equal(t, "Registry", entry["unit"])
}

func TestLevelFiltersVerbosity(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewLogFactory(Options{Level: "info", Format: FormatConsole, Writer: &buf})
	require.NoError(t, err)

	f.Logger().V(1).Info("hidden")
	assert.Empty(t, buf.String())

	f.Logger().Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInvalidOptions(t *testing.T) {
	_, err := NewLogFactory(Options{Level: "loud", Writer: &bytes.Buffer{}})
	assert.Error(t, err)

	_, err = NewLogFactory(Options{Format: "xml", Writer: &bytes.Buffer{}})
	assert.Error(t, err)
}
