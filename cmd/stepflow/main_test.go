package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/testutil/fixtures"
	"github.com/BaSui01/stepflow/workflow"
)

func writeDefinitions(t *testing.T) (workflowPath, agentsPath string) {
	t.Helper()
	dir := t.TempDir()
	workflowPath = filepath.Join(dir, "workflow.yaml")
	agentsPath = filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(workflowPath, []byte(fixtures.WorkflowYAML), 0o644))
	require.NoError(t, os.WriteFile(agentsPath, []byte(fixtures.AgentsYAML), 0o644))
	return workflowPath, agentsPath
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Registry.Type = "file"
	cfg.Registry.BaseDir = t.TempDir()
	cfg.Engine.DryRun = true
	return cfg
}

func TestParseRunFlags(t *testing.T) {
	opts, err := parseRunFlags("run", []string{"-workflow", "wf.yaml", "-prompt", "hi", "-stream", "-dry-run"})
	require.NoError(t, err)
	assert.Equal(t, "wf.yaml", opts.workflowPath)
	assert.Equal(t, "hi", opts.prompt)
	assert.True(t, opts.stream)
	assert.True(t, opts.dryRun)

	_, err = parseRunFlags("run", nil)
	assert.ErrorContains(t, err, "-workflow is required")
}

func TestRunWorkflow_PrintsResultAndUsage(t *testing.T) {
	wf, agents := writeDefinitions(t)
	cfg := testConfig(t)
	cfg.Engine.RunLogDir = t.TempDir()

	var out bytes.Buffer
	err := runWorkflow(context.Background(), cfg, runOptions{workflowPath: wf, agentsPath: agents}, zap.NewNop(), &out)
	require.NoError(t, err)

	var got runOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "draft-review", got.Workflow)

	draft := agent.Answer("Write about Go.")
	assert.Equal(t, draft, got.Result["draft"])
	assert.Equal(t, agent.Answer(draft), got.Result["done"])
	assert.NotContains(t, got.Result, "rewrite")
	assert.Contains(t, got.Usage.Agents, "writer")
	assert.Positive(t, got.Usage.Total.TotalTokens)

	data, err := os.ReadFile(filepath.Join(cfg.Engine.RunLogDir, "draft-review.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestRunWorkflow_Stream(t *testing.T) {
	wf, agents := writeDefinitions(t)

	var out bytes.Buffer
	err := runWorkflow(context.Background(), testConfig(t),
		runOptions{workflowPath: wf, agentsPath: agents, stream: true, prompt: "Go"}, zap.NewNop(), &out)
	require.NoError(t, err)

	var events []workflow.StreamEvent
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var ev workflow.StreamEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 5, "three step events, the final result and the usage line")
	assert.Equal(t, workflow.StreamEventStep, events[0].Type)
	assert.Equal(t, "draft", events[0].StepName)
	assert.Equal(t, workflow.StreamEventFinalResult, events[3].Type)
	assert.Equal(t, -1, events[3].StepIndex)
}

func TestRunWorkflow_SavesAgentsToRegistry(t *testing.T) {
	wf, agents := writeDefinitions(t)
	cfg := testConfig(t)

	require.NoError(t, runWorkflow(context.Background(), cfg,
		runOptions{workflowPath: wf, agentsPath: agents}, zap.NewNop(), &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, manageAgents(context.Background(), cfg.Registry, agentsOptions{}, zap.NewNop(), &out))
	assert.Contains(t, out.String(), "reviewer")
	assert.Contains(t, out.String(), "writer")
}

func TestRunWorkflow_Errors(t *testing.T) {
	wf, _ := writeDefinitions(t)
	cfg := testConfig(t)

	err := runWorkflow(context.Background(), cfg, runOptions{workflowPath: wf, name: "missing"}, zap.NewNop(), &bytes.Buffer{})
	assert.ErrorContains(t, err, `workflow "missing" not found`)

	err = runWorkflow(context.Background(), cfg, runOptions{workflowPath: wf}, zap.NewNop(), &bytes.Buffer{})
	assert.Error(t, err, "agents are neither defined nor registered")

	cfg.Registry.Type = "bogus"
	err = runWorkflow(context.Background(), cfg, runOptions{workflowPath: wf}, zap.NewNop(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "open agent registry")
}

func TestValidateWorkflow(t *testing.T) {
	wf, agents := writeDefinitions(t)

	var out bytes.Buffer
	require.NoError(t, validateWorkflow(context.Background(), runOptions{workflowPath: wf, agentsPath: agents}, zap.NewNop(), &out))
	assert.Contains(t, out.String(), `workflow "draft-review" is valid (4 steps`)

	assert.Error(t, validateWorkflow(context.Background(), runOptions{workflowPath: wf}, zap.NewNop(), &out))
}

func TestManageAgents_SaveListRemove(t *testing.T) {
	_, agents := writeDefinitions(t)
	cfg := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, manageAgents(ctx, cfg.Registry, agentsOptions{agentsPath: agents}, zap.NewNop(), &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "reviewer")
	assert.Contains(t, lines[2], "writer")
	assert.Contains(t, lines[2], "mock-model")

	out.Reset()
	require.NoError(t, manageAgents(ctx, cfg.Registry, agentsOptions{remove: "writer"}, zap.NewNop(), &out))
	assert.NotContains(t, out.String(), "writer")

	err := manageAgents(ctx, cfg.Registry, agentsOptions{remove: "writer"}, zap.NewNop(), &out)
	assert.ErrorContains(t, err, "remove agent")
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger = initLogger(config.LogConfig{Level: "warn", Format: "json"})
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	assert.Contains(t, out.String(), "stepflow dev")
}
