package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/metric"
)

const healthyFlow = `
name: apply
flow:
  start:
    nextScreens:
      - name: details
  details:
    nextScreens:
      - name: pets
        condition: HasPets
      - name: done
  pets:
    nextScreens:
      - name: done
  done:
    nextScreens: []
`

const brokenFlow = `
name: broken
flow:
  start:
    nextScreens:
      - name: finish
  orphan:
    nextScreens:
      - name: finish
  finish:
    nextScreens: []
`

func writeFlow(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", writeFlow(t, healthyFlow))
	require.NoError(t, err)
	assert.Contains(t, out, "apply: healthy")

	broken := writeFlow(t, brokenFlow)
	out, err = execute(t, "validate", broken)
	require.NoError(t, err)
	assert.Contains(t, out, "broken: warnings")
	assert.Contains(t, out, "unreachable: orphan")

	_, err = execute(t, "validate", "--strict", broken)
	assert.Error(t, err)

	_, err = execute(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGraphCommand(t *testing.T) {
	path := writeFlow(t, healthyFlow)

	out, err := execute(t, "graph", path)
	require.NoError(t, err)
	assert.Contains(t, out, "flow apply (start: start, status: healthy)")
	assert.Contains(t, out, "details -> pets [HasPets]")
	assert.Contains(t, out, "details -> done\n")

	out, err = execute(t, "graph", "--json", "--flow", "apply", path)
	require.NoError(t, err)
	var result flowconfig.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "apply", result.Flow)
	assert.Contains(t, result.TerminalScreens, "done")

	_, err = execute(t, "graph", "--flow", "nope", path)
	assert.Error(t, err)
}

func TestScreensCommand(t *testing.T) {
	out, err := execute(t, "screens", writeFlow(t, healthyFlow))
	require.NoError(t, err)
	assert.Contains(t, out, "FLOW")
	for _, screen := range []string{"start", "details", "pets", "done"} {
		assert.Contains(t, out, screen)
	}
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formflow.json")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	assert.FileExists(t, path)

	out, err = execute(t, "config", "show", path)
	require.NoError(t, err)
	assert.Contains(t, out, "formflow_session")

	_, err = execute(t, "config", "init", filepath.Join(t.TempDir(), "formflow.yaml"))
	assert.Error(t, err)
}

func TestSubmissionsCountRequiresSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formflow.json")
	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)

	_, err = execute(t, "submissions", "count", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestSubmissionsCount(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "formflow.json")
	body := `{"storage": {"backend": "sqlite", "sqlite_path": "` + filepath.ToSlash(filepath.Join(dir, "forms.db")) + `"}}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0600))

	out, err := execute(t, "submissions", "count", cfgPath)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStatsCommand(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m := registry.CoreMetrics()
	m.RecordSubmitted("apply")
	m.RecordNavigation("apply", "screen")
	m.RecordValidationFailure("apply", "details")

	srv := httptest.NewServer(metric.NewServer(0, "", registry).Handler())
	defer srv.Close()

	out, err := execute(t, "stats", "--url", srv.URL+"/metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "apply")
	assert.Contains(t, out, "screen=1")
	assert.Contains(t, out, "details=1")

	out, err = execute(t, "stats", "--json", "--url", srv.URL+"/metrics")
	require.NoError(t, err)
	var summaries []metric.FlowSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, uint64(1), summaries[0].Submitted)

	_, err = execute(t, "stats", "--url", srv.URL+"/missing")
	assert.Error(t, err)
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "-", formatCounts(nil))
	assert.Equal(t, "a=1 b=2", formatCounts(map[string]uint64{"b": 2, "a": 1}))
}
