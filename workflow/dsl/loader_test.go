package dsl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stepflow/testutil/mocks"
	"github.com/BaSui01/stepflow/workflow"
)

const childYAML = `apiVersion: maestro/v1alpha1
kind: Workflow
metadata:
  name: child
spec:
  template:
    workflows:
      - name: grandchild
        url: nested/grandchild.yaml
    steps:
      - name: inner
        agent: b
`

const parentYAML = `apiVersion: maestro/v1alpha1
kind: Workflow
metadata:
  name: parent
spec:
  template:
    prompt: hi
    workflows:
      - name: child
        url: sub/child.yaml
    steps:
      - name: first
        agent: a
      - name: nested
        workflow: child
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileLoader_ResolvesRelativeToDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "child.yaml"), childYAML)

	def, err := NewFileLoader(dir, nil).Load(context.Background(), workflow.SubWorkflowRef{Name: "child", URL: "sub/child.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "child", def.Name)
	assert.Equal(t, filepath.Join(dir, "sub", "nested", "grandchild.yaml"), def.SubWorkflows["grandchild"].URL,
		"nested references resolve against the loaded file")
}

func TestFileLoader_FileScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "child.yaml")
	writeFile(t, path, childYAML)

	def, err := NewFileLoader("", nil).Load(context.Background(), workflow.SubWorkflowRef{URL: "file://" + path})
	require.NoError(t, err)
	assert.Equal(t, "child", def.Name)
}

func TestFileLoader_PicksByNameInMultiDocumentFile(t *testing.T) {
	dir := t.TempDir()
	other := `apiVersion: maestro/v1alpha1
kind: Workflow
metadata:
  name: other
spec:
  template:
    steps:
      - name: x
        agent: a
`
	writeFile(t, filepath.Join(dir, "all.yaml"), other+"---\n"+childYAML)
	l := NewFileLoader(dir, nil)

	def, err := l.Load(context.Background(), workflow.SubWorkflowRef{Name: "child", URL: "all.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "child", def.Name)

	_, err = l.Load(context.Background(), workflow.SubWorkflowRef{Name: "missing", URL: "all.yaml"})
	assert.ErrorContains(t, err, "not found")
}

func TestFileLoader_Errors(t *testing.T) {
	l := NewFileLoader(t.TempDir(), nil)
	ctx := context.Background()

	_, err := l.Load(ctx, workflow.SubWorkflowRef{})
	assert.ErrorContains(t, err, "empty")

	_, err = l.Load(ctx, workflow.SubWorkflowRef{URL: "https://example.com/child.yaml"})
	assert.ErrorContains(t, err, "only local files")

	_, err = l.Load(ctx, workflow.SubWorkflowRef{URL: "missing.yaml"})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.Load(cancelled, workflow.SubWorkflowRef{URL: "missing.yaml"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileLoader_DrivesEngine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "parent.yaml"), parentYAML)
	writeFile(t, filepath.Join(dir, "sub", "child.yaml"), `apiVersion: maestro/v1alpha1
kind: Workflow
metadata:
  name: child
spec:
  template:
    steps:
      - name: inner
        agent: b
`)

	p := NewParser()
	b, err := p.ParseFile(filepath.Join(dir, "parent.yaml"))
	require.NoError(t, err)
	require.Len(t, b.Workflows, 1)

	a := mocks.NewScriptedAgent("a").WithResponse("from a")
	inner := mocks.NewEchoAgent("b")
	e, err := workflow.New(b.Workflows[0],
		workflow.WithAgents(a, inner),
		workflow.WithLoader(NewFileLoader(dir, p)),
	)
	require.NoError(t, err)

	res, err := e.Run(context.Background(), "")
	require.NoError(t, err)
	nested, ok := res["nested"].(workflow.Result)
	require.True(t, ok)
	assert.Equal(t, "from a", nested["inner"])
}
