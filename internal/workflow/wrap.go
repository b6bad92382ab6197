package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"genforge/internal/logging"
)

// NodeFunc is the contract every workflow node satisfies: it receives the
// state, mutates it, and returns it. Long-running sub-calls (model or
// delegate invocations) block inside the node; there are no intra-node yield
// points.
type NodeFunc[S State] func(ctx context.Context, state S) (S, error)

// RouterFunc decides the next node name from an error-free state. Routers
// are pure with respect to state.
type RouterFunc[S State] func(state S) string

// Instrument records node transitions on the state's bookkeeping fields.
//
// Before invoking fn the previous active node is captured into LastNode and
// ActiveNode becomes name. After fn returns, LastNode and ActiveNode are both
// set to name, signalling completion; the update runs on the failure path
// too, so a contained failure leaves the failing node as LastNode and the
// threshold router retries that same node. The error itself passes through
// unmodified - Instrument does no error handling.
//
// Composition order: Instrument wraps the raw node, Contain wraps the result.
func Instrument[S State](name string, fn NodeFunc[S]) NodeFunc[S] {
	return func(ctx context.Context, state S) (S, error) {
		m := state.Bookkeeping()
		m.LastNode = m.ActiveNode
		m.ActiveNode = name

		out, err := fn(ctx, state)

		m.LastNode = name
		m.ActiveNode = name
		return out, err
	}
}

// Contain guards a node against recoverable failures.
//
// On success the error bookkeeping is reset and the result returned
// unmodified. On failure ErrorCount is incremented and ErrorMessage is set to
// a diagnostic naming the agent, the node, and the underlying error. Failures
// the policy escalates (validation and programming defects under
// DefaultPolicy) are returned to the caller after the state update; all
// others are swallowed and the mutated state is handed back with a nil error,
// which is the designed recoverable path that lets the router decide what to
// do next.
func Contain[S State](agent, node string, policy Policy, fn NodeFunc[S]) NodeFunc[S] {
	return func(ctx context.Context, state S) (S, error) {
		out, err := fn(ctx, state)
		if err == nil {
			m := out.Bookkeeping()
			m.ErrorCount = 0
			m.ErrorMessage = ""
			return out, nil
		}

		m := state.Bookkeeping()
		m.ErrorCount++
		m.ErrorMessage = fmt.Sprintf("agent %q: node %q: %v", agent, node, err)
		logging.L(logging.CategoryWorkflow).Error("node failed",
			zap.String("agent", agent),
			zap.String("node", node),
			zap.String("kind", KindOf(err).String()),
			zap.Int("error_count", m.ErrorCount),
			zap.Error(err))

		if policy.Escalate != nil && policy.Escalate(err) {
			return state, err
		}
		return state, nil
	}
}
