package workflows

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validWorkflowYAML = `
name: IT-Support
category: hardware
department: IT
sla:
  urgent_minutes: 240
  high_minutes: 480
  medium_minutes: 1440
  low_minutes: 2880
steps:
  - name: Triage
    role_id: l1-support
    order: 1
  - name: Resolve
    role_id: l2-support
    order: 2
transitions:
  - from: Triage
    to: Resolve
    action: approve
`

func writeWorkflowFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
}

func TestLoaderReadsWorkflowFiles(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "it-support.workflow.yaml", validWorkflowYAML)
	writeWorkflowFile(t, dir, "notes.txt", "not a workflow")

	result, err := NewLoader(dir).LoadAll()
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalFiles)
	require.Len(t, result.Workflows, 1)
	assert.Empty(t, result.Errors)

	wf := result.Workflows[0]
	assert.Equal(t, "IT-Support", wf.Draft.Name)
	assert.True(t, wf.Validation.OK())
	require.Len(t, wf.Draft.Steps, 2)
	assert.Equal(t, "l1-support", wf.Draft.Steps[0].RoleID)
	assert.EqualValues(t, 480, wf.Draft.SLA.HighMinutes)
}

func TestLoaderCollectsPerFileErrors(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "good.workflow.yaml", validWorkflowYAML)
	writeWorkflowFile(t, dir, "broken.workflow.yaml", "steps: [\n")

	result, err := NewLoader(dir).LoadAll()
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalFiles)
	assert.Len(t, result.Workflows, 1)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].FilePath, "broken.workflow.yaml")
}

func TestLoaderMissingDirIsEmpty(t *testing.T) {
	result, err := NewLoader(filepath.Join(t.TempDir(), "missing")).LoadAll()
	require.NoError(t, err)
	assert.Zero(t, result.TotalFiles)
	assert.Empty(t, result.Workflows)
}
