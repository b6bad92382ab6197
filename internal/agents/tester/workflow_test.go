package tester

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genforge/internal/types"
)

type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _, _ string) (string, error) {
	if c.calls >= len(c.responses) {
		return "", fmt.Errorf("scripted client: no response for call %d", c.calls+1)
	}
	r := c.responses[c.calls]
	c.calls++
	return r, nil
}

const skeletonSource = `package mathutil

// Add returns the sum of a and b.
func Add(a, b int) int {
	return 0
}
`

const testSource = `package mathutil

import "testing"

func TestAdd(t *testing.T) {
	if got := Add(1, 2); got != 3 {
		t.Fatalf("Add(1, 2) = %d, want 3", got)
	}
}
`

func filesJSON(t *testing.T, files ...GeneratedFile) string {
	t.Helper()
	blob, err := json.Marshal(map[string][]GeneratedFile{"files": files})
	require.NoError(t, err)
	return string(blob)
}

func newTester(t *testing.T, client *scriptedClient) *Tester {
	t.Helper()
	ts, err := New(Config{AgentID: "tester-1", AgentName: "tester", LLM: client})
	require.NoError(t, err)
	t.Cleanup(ts.Close)
	return ts
}

func TestRunGeneratesValidatesAndWrites(t *testing.T) {
	client := &scriptedClient{responses: []string{
		filesJSON(t, GeneratedFile{Path: "mathutil/add.go", Content: skeletonSource}),
		filesJSON(t, GeneratedFile{Path: "mathutil/add_test.go", Content: testSource}),
	}}
	ts := newTester(t, client)

	dir := t.TempDir()
	state := NewState(types.NewTask("implement Add"), dir, "a math utility library", []string{"true"})
	state, err := ts.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, types.StatusDone, state.CurrentTask.Status)
	assert.True(t, state.TestsPassed)
	require.Len(t, state.WrittenFiles, 2)

	written, err := os.ReadFile(filepath.Join(dir, "mathutil", "add.go"))
	require.NoError(t, err)
	assert.Equal(t, skeletonSource, string(written))
	_, err = os.Stat(filepath.Join(dir, "mathutil", "add_test.go"))
	require.NoError(t, err)
}

func TestRunMarksTaskIncompleteWhenTestsFail(t *testing.T) {
	client := &scriptedClient{responses: []string{
		filesJSON(t, GeneratedFile{Path: "mathutil/add.go", Content: skeletonSource}),
		filesJSON(t, GeneratedFile{Path: "mathutil/add_test.go", Content: testSource}),
	}}
	ts := newTester(t, client)

	state := NewState(types.NewTask("implement Add"), t.TempDir(), "", []string{"false"})
	state, err := ts.Run(context.Background(), state)
	require.NoError(t, err)

	assert.False(t, state.TestsPassed)
	assert.Equal(t, types.StatusIncomplete, state.CurrentTask.Status)
}

func TestRunRetriesUnparseableSkeleton(t *testing.T) {
	broken := "package mathutil\n\nfunc Add(a, b int int {\n"
	client := &scriptedClient{responses: []string{
		filesJSON(t, GeneratedFile{Path: "mathutil/add.go", Content: broken}),
		filesJSON(t, GeneratedFile{Path: "mathutil/add.go", Content: skeletonSource}),
		filesJSON(t, GeneratedFile{Path: "mathutil/add_test.go", Content: testSource}),
	}}
	ts := newTester(t, client)

	state := NewState(types.NewTask("implement Add"), t.TempDir(), "", nil)
	state, err := ts.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, types.StatusDone, state.CurrentTask.Status)
	assert.Equal(t, 3, client.calls, "broken skeleton costs one extra generation call")
}

func TestRunRejectsEscapingPath(t *testing.T) {
	client := &scriptedClient{responses: []string{
		filesJSON(t, GeneratedFile{Path: "../outside.go", Content: skeletonSource}),
	}}
	ts := newTester(t, client)

	state := NewState(types.NewTask("implement Add"), t.TempDir(), "", nil)
	_, err := ts.Run(context.Background(), state)
	require.Error(t, err)
}

func TestRunIdleTaskPassesThrough(t *testing.T) {
	client := &scriptedClient{}
	ts := newTester(t, client)

	task := types.NewTask("implement Add")
	task.Status = types.StatusDone
	state := NewState(task, t.TempDir(), "", nil)

	state, err := ts.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, ModeNone, state.Mode)
	assert.Zero(t, client.calls)
}
