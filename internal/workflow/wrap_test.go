package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	BaseState
	Stage string
}

func passthrough(_ context.Context, s *testState) (*testState, error) { return s, nil }

func TestInstrumentUpdatesTransitionPair(t *testing.T) {
	s := &testState{}
	s.ActiveNode = "previous"

	var seenLast, seenActive string
	node := Instrument("evaluate", func(_ context.Context, s *testState) (*testState, error) {
		seenLast = s.LastNode
		seenActive = s.ActiveNode
		return s, nil
	})

	out, err := node(context.Background(), s)
	require.NoError(t, err)

	// During execution the node in progress is the active node.
	assert.Equal(t, "previous", seenLast)
	assert.Equal(t, "evaluate", seenActive)

	// After completion last and active coincide.
	assert.Equal(t, "evaluate", out.LastNode)
	assert.Equal(t, "evaluate", out.ActiveNode)
}

func TestInstrumentChainsAcrossNodes(t *testing.T) {
	s := &testState{}
	first := Instrument("first", passthrough)
	second := Instrument("second", passthrough)

	s, err := first(context.Background(), s)
	require.NoError(t, err)
	s, err = second(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "second", s.LastNode)
	assert.Equal(t, "second", s.ActiveNode)
}

func TestInstrumentPassesErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	node := Instrument("broken", func(_ context.Context, s *testState) (*testState, error) {
		return s, boom
	})

	s, err := node(context.Background(), &testState{})
	require.ErrorIs(t, err, boom)

	// The completion update runs on the failure path too, so the threshold
	// router retries the failing node via LastNode.
	assert.Equal(t, "broken", s.LastNode)
	assert.Equal(t, "broken", s.ActiveNode)
	assert.Zero(t, s.ErrorCount, "instrumentation does not touch error bookkeeping")
}

func TestContainResetsOnSuccess(t *testing.T) {
	s := &testState{}
	s.ErrorCount = 2
	s.ErrorMessage = "stale"

	node := Contain("tester", "generate", DefaultPolicy(), passthrough)
	out, err := node(context.Background(), s)
	require.NoError(t, err)
	assert.Zero(t, out.ErrorCount)
	assert.Empty(t, out.ErrorMessage)
}

func TestContainSwallowsTransientErrors(t *testing.T) {
	node := Contain("tester", "generate", DefaultPolicy(), func(_ context.Context, s *testState) (*testState, error) {
		return s, errors.New("model hiccup")
	})

	out, err := node(context.Background(), &testState{})
	require.NoError(t, err, "transient failures return the mutated state, not an error")
	assert.Equal(t, 1, out.ErrorCount)
	assert.Contains(t, out.ErrorMessage, `agent "tester"`)
	assert.Contains(t, out.ErrorMessage, `node "generate"`)
	assert.Contains(t, out.ErrorMessage, "model hiccup")
}

func TestContainEscalatesByKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"validation", Validation(errors.New("missing field"))},
		{"programming", Programming(errors.New("nil delegate"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node := Contain("tester", "generate", DefaultPolicy(), func(_ context.Context, s *testState) (*testState, error) {
				return s, tc.err
			})
			out, err := node(context.Background(), &testState{})
			require.Error(t, err, "escalating kinds propagate to the caller")
			assert.Equal(t, 1, out.ErrorCount)
			assert.NotEmpty(t, out.ErrorMessage)
		})
	}
}

func TestContainIncrementsExactlyOncePerFailure(t *testing.T) {
	s := &testState{}
	node := Contain("tester", "generate", DefaultPolicy(), func(_ context.Context, s *testState) (*testState, error) {
		return s, errors.New("again")
	})
	for i := 1; i <= 3; i++ {
		var err error
		s, err = node(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, i, s.ErrorCount)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(errors.New("plain")))
	assert.Equal(t, KindTransient, KindOf(Transient(errors.New("x"))))
	assert.Equal(t, KindValidation, KindOf(Validation(errors.New("x"))))
	assert.Equal(t, KindProgramming, KindOf(Programming(errors.New("x"))))
	// Tags survive wrapping.
	wrapped := fmt.Errorf("node failed: %w", Validation(errors.New("x")))
	assert.Equal(t, KindValidation, KindOf(wrapped))
}
