package team

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"genforge/internal/config"
	"genforge/internal/types"
)

// scriptedClient returns responses in order, safely across goroutines.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.responses) {
		return "", fmt.Errorf("scripted client: no response for call %d", c.calls+1)
	}
	r := c.responses[c.calls]
	c.calls++
	return r, nil
}

// routingClient answers by prompt shape instead of call order, for
// concurrent runs where ordering is not deterministic.
type routingClient struct {
	mu    sync.Mutex
	calls int
}

func (c *routingClient) Complete(_ context.Context, _, user string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if strings.Contains(user, "Available agents") {
		return `{"rag_agent_id": "docs-rag", "details": {"docs-rag": {"reason": "covers the docs", "confidence": 0.9}}}`, nil
	}
	return "The gateway listens on port 8443.", nil
}

func section(body string) string {
	return fmt.Sprintf(`{"content": %q}`, body)
}

func fileJSON(path, content string) string {
	return fmt.Sprintf(`{"files": [{"path": %q, "content": %q}]}`, path, content)
}

const generatedSource = `package task

// Run executes the task.
func Run() error {
	return nil
}
`

const generatedTest = `package task

import "testing"

func TestRun(t *testing.T) {
	if err := Run(); err != nil {
		t.Fatal(err)
	}
}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "forge.db")
	cfg.Corpus.Dir = ""
	cfg.Tester.TestCommand = []string{"true"}
	return cfg
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gateway.md"),
		[]byte("The gateway listens on port 8443 and terminates TLS."), 0o644))
	return dir
}

func pipelineScript() []string {
	return []string{
		// Architect: eight document sections, task extraction, project details.
		section("A todo list web service."),
		section("Single service with a REST API."),
		section("cmd/ and internal/ layout."),
		section("One service owning all data."),
		section("- implement the task store"),
		section("gofmt."),
		section("Milestone 1: storage."),
		section("MIT."),
		`{"tasks": ["implement the task store"]}`,
		`{"project_name": "todo-service"}`,
		// Tester for the single task: skeleton, then tests.
		fileJSON("task/run.go", generatedSource),
		fileJSON("task/run_test.go", generatedTest),
	}
}

func TestRunDrivesArchitectThenTester(t *testing.T) {
	client := &scriptedClient{responses: pipelineScript()}
	tm, err := newWithClient(testConfig(t), client)
	require.NoError(t, err)
	defer tm.Close()

	dir := t.TempDir()
	result, err := tm.Run(context.Background(), "build me a todo list service", dir)
	require.NoError(t, err)

	assert.Equal(t, "todo-service", result.ProjectName)
	assert.FileExists(t, result.DocumentPath)

	require.Len(t, result.Tasks, 1)
	task := result.Tasks[0]
	assert.Equal(t, types.StatusDone, task.Status)
	assert.Contains(t, result.TestOutputs, task.ID)
	assert.FileExists(t, filepath.Join(dir, "task", "run.go"))
	assert.FileExists(t, filepath.Join(dir, "task", "run_test.go"))

	assert.Equal(t, 12, client.calls)
}

func TestQueryWithoutDelegates(t *testing.T) {
	tm, err := newWithClient(testConfig(t), &scriptedClient{})
	require.NoError(t, err)
	defer tm.Close()

	state, err := tm.Query(context.Background(), "cli", "task-1", "anything")
	require.NoError(t, err)
	assert.Equal(t, types.ResponseNoAgentAvailable, state.ResponseType)
}

func TestQueryAllRunsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	cfg := testConfig(t)
	cfg.Corpus.Dir = writeCorpus(t)

	client := &routingClient{}
	tm, err := newWithClient(cfg, client)
	require.NoError(t, err)
	defer tm.Close()

	reqs := []QueryRequest{
		{AgentID: "architect", TaskID: "t1", Query: "what port does the gateway listen on"},
		{AgentID: "tester", TaskID: "t2", Query: "how is TLS terminated at the gateway"},
		{AgentID: "coder", TaskID: "t3", Query: "where does the gateway terminate TLS"},
	}
	results, err := tm.QueryAll(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, types.ResponseAnswered, r.ResponseType)
		assert.Equal(t, "The gateway listens on port 8443.", r.Response)
	}
}

func TestResolveAwaitingFeedsAnswerBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Corpus.Dir = writeCorpus(t)

	tm, err := newWithClient(cfg, &routingClient{})
	require.NoError(t, err)
	defer tm.Close()

	task := types.NewTask("implement the gateway client")
	task.Status = types.StatusAwaiting
	task.Question = "what port does the gateway listen on"

	require.NoError(t, tm.resolveAwaiting(context.Background(), &task))
	assert.Equal(t, types.StatusResponded, task.Status)
	assert.Equal(t, "The gateway listens on port 8443.", task.AdditionalInfo)
}
