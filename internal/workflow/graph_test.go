package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCheckpointer struct {
	nodes []string
}

func (r *recordingCheckpointer) Save(_ context.Context, _ string, node string, _ any) error {
	r.nodes = append(r.nodes, node)
	return nil
}

// buildLinearGraph wires entry -> work -> exit driven by the Stage field.
func buildLinearGraph(t *testing.T, work NodeFunc[*testState]) *Graph[*testState] {
	t.Helper()

	g := NewGraph[*testState]("test-agent").
		AddNode("entry", Instrument("entry", func(_ context.Context, s *testState) (*testState, error) {
			s.Stage = "working"
			return s, nil
		})).
		AddNode("work", Contain("test-agent", "work", DefaultPolicy(), Instrument("work", work))).
		AddNode("exit", Instrument("exit", passthrough)).
		SetEntry("entry").
		SetExit("exit").
		SetRouter(RouteOnErrors("test-agent", 3, func(s *testState) string {
			if s.Stage == "working" {
				return "work"
			}
			return "exit"
		}))
	require.NoError(t, g.Build())
	return g
}

func TestGraphRunsToExit(t *testing.T) {
	cp := &recordingCheckpointer{}
	g := buildLinearGraph(t, func(_ context.Context, s *testState) (*testState, error) {
		s.Stage = "finished"
		return s, nil
	}).WithCheckpointer(cp, "session-1")

	s, err := g.Run(context.Background(), &testState{})
	require.NoError(t, err)
	assert.Equal(t, "finished", s.Stage)
	assert.Equal(t, "exit", s.LastNode)
	assert.Equal(t, "exit", s.ActiveNode)

	if diff := cmp.Diff([]string{"entry", "work", "exit"}, cp.nodes); diff != "" {
		t.Errorf("checkpoint sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestGraphRetriesFailingNode(t *testing.T) {
	attempts := 0
	g := buildLinearGraph(t, func(_ context.Context, s *testState) (*testState, error) {
		attempts++
		if attempts < 3 {
			return s, errors.New("transient")
		}
		s.Stage = "finished"
		return s, nil
	})

	s, err := g.Run(context.Background(), &testState{})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "two contained failures then success")
	assert.Zero(t, s.ErrorCount, "success resets the error count")
}

func TestGraphAbortsWhenBudgetExhausted(t *testing.T) {
	attempts := 0
	g := buildLinearGraph(t, func(_ context.Context, s *testState) (*testState, error) {
		attempts++
		return s, errors.New("persistent")
	})

	s, err := g.Run(context.Background(), &testState{})
	require.Error(t, err)
	assert.True(t, IsAbort(err))
	assert.Equal(t, 3, attempts, "budget of 3 allows the initial attempt plus two retries")
	assert.Equal(t, 3, s.ErrorCount)
	assert.NotEmpty(t, s.ErrorMessage)
}

func TestGraphEscalatingErrorStopsRun(t *testing.T) {
	g := buildLinearGraph(t, func(_ context.Context, s *testState) (*testState, error) {
		return s, Programming(errors.New("nil delegate"))
	})

	s, err := g.Run(context.Background(), &testState{})
	require.Error(t, err)
	assert.False(t, IsAbort(err))
	assert.Equal(t, KindProgramming, KindOf(err))
	assert.Equal(t, 1, s.ErrorCount)
}

func TestGraphBuildValidation(t *testing.T) {
	g := NewGraph[*testState]("incomplete")
	assert.Error(t, g.Build(), "missing router")

	g.SetRouter(func(s *testState) (string, error) { return "", nil })
	assert.Error(t, g.Build(), "missing entry")

	g.SetEntry("entry").SetExit("exit")
	assert.Error(t, g.Build(), "entry not registered")

	g.AddNode("entry", passthrough).AddNode("exit", passthrough)
	assert.NoError(t, g.Build())
}

func TestGraphRejectsUnknownRoute(t *testing.T) {
	g := NewGraph[*testState]("test-agent").
		AddNode("entry", passthrough).
		AddNode("exit", passthrough).
		SetEntry("entry").
		SetExit("exit").
		SetRouter(func(s *testState) (string, error) { return "missing", nil })
	require.NoError(t, g.Build())

	_, err := g.Run(context.Background(), &testState{})
	require.Error(t, err)
	assert.Equal(t, KindProgramming, KindOf(err))
}
