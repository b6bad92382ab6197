package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeState struct {
	Stage   string         `json:"stage"`
	Counter int            `json:"counter"`
	Extras  map[string]int `json:"extras"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-1", "rag-middleware"))

	saved := probeState{Stage: "forward_to_rag", Counter: 2, Extras: map[string]int{"a|t": 1}}
	require.NoError(t, s.Save(ctx, "sess-1", "query_evaluation", probeState{Stage: "evaluate_query"}))
	require.NoError(t, s.Save(ctx, "sess-1", "forward_to_rag", saved))

	var loaded probeState
	node, err := s.LoadLatest(ctx, "sess-1", &loaded)
	require.NoError(t, err)
	assert.Equal(t, "forward_to_rag", node)
	assert.Equal(t, saved, loaded)
}

func TestLoadLatestWithoutCheckpoints(t *testing.T) {
	s := openTestStore(t)

	var st probeState
	_, err := s.LoadLatest(context.Background(), "missing", &st)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestNodesPreserveSaveOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, node := range []string{"entry", "query_evaluation", "agent_selection", "exit"} {
		require.NoError(t, s.Save(ctx, "sess-1", node, probeState{Stage: node}))
	}

	nodes, err := s.Nodes(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"entry", "query_evaluation", "agent_selection", "exit"}, nodes)
}

func TestSessionsListing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "sess-1", "architect"))
	require.NoError(t, s.CreateSession(ctx, "sess-2", "tester"))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.ElementsMatch(t, []string{"sess-1", "sess-2"}, ids)
	require.NoError(t, s.CreateSession(ctx, "sess-3", "architect"))
	sessions, err = s.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}
