package workflow

import (
	"go.uber.org/zap"

	"genforge/internal/logging"
)

// DefaultErrorThreshold is the error budget applied when a workflow does not
// configure its own.
const DefaultErrorThreshold = 3

// RouteOnErrors enforces the retry budget before consulting the real router.
//
// With budget b the routing policy is:
//   - ErrorCount >= b: return an AbortError; the workflow halts.
//   - 0 < ErrorCount < b: return LastNode without calling r, retrying the
//     node that just failed.
//   - ErrorCount == 0: return r(state) verbatim.
//
// A single node is therefore retried at most b-1 times before the workflow
// escalates, and r is only ever asked to decide on an error-free state.
func RouteOnErrors[S State](agent string, maxErrorThreshold int, r RouterFunc[S]) func(S) (string, error) {
	if maxErrorThreshold <= 0 {
		maxErrorThreshold = DefaultErrorThreshold
	}
	log := logging.L(logging.CategoryWorkflow)
	return func(state S) (string, error) {
		m := state.Bookkeeping()
		switch {
		case m.ErrorCount >= maxErrorThreshold:
			err := &AbortError{Agent: agent, Count: m.ErrorCount, Threshold: maxErrorThreshold}
			log.Error("error budget exhausted", zap.String("agent", agent),
				zap.Int("error_count", m.ErrorCount), zap.Int("threshold", maxErrorThreshold))
			return "", err
		case m.ErrorCount > 0:
			log.Info("transient error, retrying last node",
				zap.String("agent", agent),
				zap.String("node", m.LastNode),
				zap.Int("error_count", m.ErrorCount))
			return m.LastNode, nil
		default:
			return r(state), nil
		}
	}
}
