package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"genforge/internal/logging"
)

// Checkpointer persists a state record between node invocations. The store
// only needs to round-trip the record losslessly; reads and writes for a
// given workflow are serialized by the workflow's own node sequence.
type Checkpointer interface {
	Save(ctx context.Context, sessionID, node string, state any) error
}

// Graph is a directed graph of named nodes driven by a routing function. A
// single graph run executes one node at a time, strictly sequentially: the
// entry node runs first, then the loop of "route, invoke" repeats until the
// router names the exit node, which runs last.
type Graph[S State] struct {
	agent string
	nodes map[string]NodeFunc[S]
	entry string
	exit  string
	route func(S) (string, error)

	checkpointer Checkpointer
	sessionID    string

	built bool
}

// NewGraph creates an empty graph for the named agent.
func NewGraph[S State](agent string) *Graph[S] {
	return &Graph[S]{
		agent: agent,
		nodes: make(map[string]NodeFunc[S]),
	}
}

// AddNode registers a node under name. Registration is validated in Build;
// there is no runtime reflection on node signatures.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	g.nodes[name] = fn
	return g
}

// SetEntry names the node that starts every run.
func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	g.entry = name
	return g
}

// SetExit names the terminal node. When the router returns this name the
// node is executed and the run stops.
func (g *Graph[S]) SetExit(name string) *Graph[S] {
	g.exit = name
	return g
}

// SetRouter installs the routing function, typically already wrapped by
// RouteOnErrors.
func (g *Graph[S]) SetRouter(route func(S) (string, error)) *Graph[S] {
	g.route = route
	return g
}

// WithCheckpointer persists the state record after every completed node,
// keyed by sessionID.
func (g *Graph[S]) WithCheckpointer(cp Checkpointer, sessionID string) *Graph[S] {
	g.checkpointer = cp
	g.sessionID = sessionID
	return g
}

// Build validates the graph once, at construction time.
func (g *Graph[S]) Build() error {
	if g.route == nil {
		return fmt.Errorf("graph %q: no router configured", g.agent)
	}
	if g.entry == "" {
		return fmt.Errorf("graph %q: no entry node configured", g.agent)
	}
	if g.exit == "" {
		return fmt.Errorf("graph %q: no exit node configured", g.agent)
	}
	for _, name := range []string{g.entry, g.exit} {
		if _, ok := g.nodes[name]; !ok {
			return fmt.Errorf("graph %q: node %q not registered", g.agent, name)
		}
	}
	for name, fn := range g.nodes {
		if fn == nil {
			return fmt.Errorf("graph %q: node %q is nil", g.agent, name)
		}
	}
	g.built = true
	return nil
}

// Run drives state through the graph until the exit node completes or a
// fatal error surfaces. The returned state is the final state even on error,
// so callers can inspect bookkeeping and chat history after an abort.
func (g *Graph[S]) Run(ctx context.Context, state S) (S, error) {
	if !g.built {
		if err := g.Build(); err != nil {
			return state, err
		}
	}
	log := logging.L(logging.CategoryWorkflow)

	state, err := g.invoke(ctx, g.entry, state)
	if err != nil {
		return state, err
	}

	for {
		next, err := g.route(state)
		if err != nil {
			return state, err
		}
		log.Debug("routed", zap.String("agent", g.agent), zap.String("next", next))

		state, err = g.invoke(ctx, next, state)
		if err != nil {
			return state, err
		}
		if next == g.exit {
			return state, nil
		}
	}
}

func (g *Graph[S]) invoke(ctx context.Context, name string, state S) (S, error) {
	fn, ok := g.nodes[name]
	if !ok {
		return state, Programming(fmt.Errorf("graph %q: router selected unknown node %q", g.agent, name))
	}
	state, err := fn(ctx, state)
	if err != nil {
		return state, err
	}
	if g.checkpointer != nil {
		if cpErr := g.checkpointer.Save(ctx, g.sessionID, name, state); cpErr != nil {
			logging.L(logging.CategoryWorkflow).Warn("checkpoint failed",
				zap.String("agent", g.agent), zap.String("node", name), zap.Error(cpErr))
		}
	}
	return state, nil
}
