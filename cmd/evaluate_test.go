package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/consolidation/core/decision"
)

func TestEvaluateCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"evaluate", "../qa/scenarios/overloaded_fleet.yaml"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var resp decision.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.Decision.RequiresNewDispatch)
	assert.Equal(t, "PCL-1002", resp.Decision.ParcelID)
}

func TestEvaluateCommandMissingFile(t *testing.T) {
	rootCmd.SetArgs([]string{"evaluate", "does-not-exist.yaml"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	assert.Error(t, rootCmd.Execute())
}
