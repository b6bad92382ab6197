package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteOnErrorsDelegatesWhenClean(t *testing.T) {
	calls := 0
	route := RouteOnErrors("architect", 3, func(s *testState) string {
		calls++
		return "extract_tasks"
	})

	next, err := route(&testState{})
	require.NoError(t, err)
	assert.Equal(t, "extract_tasks", next)
	assert.Equal(t, 1, calls)
}

func TestRouteOnErrorsRetriesLastNode(t *testing.T) {
	calls := 0
	route := RouteOnErrors("architect", 3, func(s *testState) string {
		calls++
		return "should-not-be-asked"
	})

	for count := 1; count < 3; count++ {
		s := &testState{}
		s.ErrorCount = count
		s.LastNode = "generate_requirements"

		next, err := route(s)
		require.NoError(t, err)
		assert.Equal(t, "generate_requirements", next)
	}
	assert.Zero(t, calls, "router must not consult the wrapped function on an errored state")
}

func TestRouteOnErrorsAbortsAtThreshold(t *testing.T) {
	calls := 0
	route := RouteOnErrors("architect", 3, func(s *testState) string {
		calls++
		return ""
	})

	s := &testState{}
	s.ErrorCount = 3

	_, err := route(s)
	require.Error(t, err)
	assert.True(t, IsAbort(err))
	assert.Zero(t, calls)

	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "architect", ae.Agent)
	assert.Equal(t, 3, ae.Count)
}

func TestRouteOnErrorsDefaultThreshold(t *testing.T) {
	route := RouteOnErrors("architect", 0, func(s *testState) string { return "n" })

	s := &testState{}
	s.ErrorCount = DefaultErrorThreshold
	_, err := route(s)
	assert.True(t, IsAbort(err))
}
