package middleware

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/registry"
	"genforge/internal/types"
	"genforge/internal/workflow"
)

// ErrorThreshold is the default per-(agent, task) error budget. A caller that
// keeps failing on one task gets its queries rejected instead of burning
// model calls.
const ErrorThreshold = 3

// Node names of the query-routing graph.
const (
	NodeEntry           = "entry"
	NodeQueryEvaluation = "query_evaluation"
	NodeAgentSelection  = "agent_selection"
	NodeForwardToRAG    = "forward_to_rag"
	NodeRefineResponse  = "response_refinement"
	NodeExit            = "exit"
)

// Config wires a Middleware instance.
type Config struct {
	AgentID   string
	AgentName string
	LLM       llm.Client
	Registry  *registry.Registry

	// ErrorThreshold is the per-(agent, task) budget; zero means the default.
	ErrorThreshold int
	// MaxRouterErrors is the generic workflow budget; zero means the default.
	MaxRouterErrors int

	Checkpointer workflow.Checkpointer
	SessionID    string
}

// Middleware routes queries from agents to registered retrieval delegates.
// One Middleware serves many sequential ProcessQuery calls; concurrent runs
// need separate QueryState instances but may share the Middleware, since the
// registry is read-only during execution.
type Middleware struct {
	agentID   string
	agentName string
	llm       llm.Client
	registry  *registry.Registry
	threshold int
	graph     *workflow.Graph[*QueryState]
	log       *zap.Logger
}

// New builds the middleware and its graph. The registry should already hold
// every delegate; New enables the sentinel entry.
func New(cfg Config) (*Middleware, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("middleware: LLM client is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("middleware: registry is required")
	}
	m := &Middleware{
		agentID:   cfg.AgentID,
		agentName: cfg.AgentName,
		llm:       cfg.LLM,
		registry:  cfg.Registry,
		threshold: cfg.ErrorThreshold,
		log:       logging.L(logging.CategoryMiddleware),
	}
	if m.threshold <= 0 {
		m.threshold = ErrorThreshold
	}
	m.registry.EnsureSentinel()

	policy := workflow.DefaultPolicy()
	contained := func(name string, fn workflow.NodeFunc[*QueryState]) workflow.NodeFunc[*QueryState] {
		return workflow.Contain(cfg.AgentName, name, policy, workflow.Instrument(name, fn))
	}

	g := workflow.NewGraph[*QueryState](cfg.AgentName).
		AddNode(NodeEntry, workflow.Instrument(NodeEntry, m.entryNode)).
		AddNode(NodeQueryEvaluation, contained(NodeQueryEvaluation, m.evaluateNode)).
		AddNode(NodeAgentSelection, contained(NodeAgentSelection, m.selectNode)).
		AddNode(NodeForwardToRAG, contained(NodeForwardToRAG, m.forwardNode)).
		AddNode(NodeRefineResponse, contained(NodeRefineResponse, m.refineNode)).
		AddNode(NodeExit, workflow.Instrument(NodeExit, m.exitNode)).
		SetEntry(NodeEntry).
		SetExit(NodeExit).
		SetRouter(workflow.RouteOnErrors(cfg.AgentName, cfg.MaxRouterErrors, m.route))
	if cfg.Checkpointer != nil {
		g.WithCheckpointer(cfg.Checkpointer, cfg.SessionID)
	}
	if err := g.Build(); err != nil {
		return nil, err
	}
	m.graph = g
	return m, nil
}

// ProcessQuery drives one query through the graph. When the run ends in a
// fatal error the diagnostic is appended to the chat history so the caller's
// transcript records why no answer arrived.
func (m *Middleware) ProcessQuery(ctx context.Context, state *QueryState) (*QueryState, error) {
	state, err := m.graph.Run(ctx, state)
	if err != nil {
		state.AddMessage(types.RoleSystem, fmt.Sprintf("%s: %s", m.agentName, state.ErrorMessage))
	}
	return state, err
}

// route maps the current mode and stage to the next node. It is pure with
// respect to state; retry and abort decisions live in the RouteOnErrors
// wrapper.
func (m *Middleware) route(state *QueryState) string {
	if state.Mode != ModeProcessingQuery {
		return NodeExit
	}
	switch state.Stage {
	case StageEvaluateQuery:
		return NodeQueryEvaluation
	case StageSelectAgent:
		return NodeAgentSelection
	case StageForwardToRAG:
		return NodeForwardToRAG
	case StageRefineResponse:
		return NodeRefineResponse
	case StageFinished:
		return NodeExit
	default:
		m.log.Warn("unrecognized stage, routing to exit", zap.String("stage", string(state.Stage)))
		return NodeExit
	}
}

// entryNode arms query processing when the project is being monitored and
// the task is new; any other state falls through to exit untouched.
func (m *Middleware) entryNode(_ context.Context, state *QueryState) (*QueryState, error) {
	if state.ProjectStatus == types.ProjectMonitoring && state.CurrentTask.Status == types.StatusNew {
		state.Mode = ModeProcessingQuery
		state.Stage = StageEvaluateQuery
	}
	return state, nil
}

// evaluateNode reconciles the error registry, consults the cache, and
// enforces the per-(agent, task) budget before any model call is spent.
func (m *Middleware) evaluateNode(_ context.Context, state *QueryState) (*QueryState, error) {
	m.reconcileErrors(state)

	if state.Cache != nil {
		if cached, ok := state.Cache.Get(state.Query); ok {
			m.log.Info("query answered from cache", zap.String("agent", state.AgentID), zap.String("task", state.TaskID))
			state.Response = cached
			state.ResponseType = types.ResponseFromCache
			state.Stage = StageFinished
			return state, nil
		}
	}

	key := ErrorKey{AgentID: state.AgentID, TaskID: state.TaskID}
	if state.ErrorRegistry[key] >= m.threshold {
		msg := fmt.Sprintf("Agent %q has exceeded the error threshold for task %q. "+
			"No further queries will be processed for this task.", state.AgentID, state.TaskID)
		m.log.Warn("query rejected", zap.String("agent", state.AgentID), zap.String("task", state.TaskID),
			zap.Int("errors", state.ErrorRegistry[key]))
		state.Response = msg
		state.ResponseType = types.ResponseRejected
		state.Stage = StageFinished
		state.AddMessage(types.RoleSystem, msg)
		return state, nil
	}

	state.Stage = StageSelectAgent
	return state, nil
}

// selectNode asks the ranking model to pick a delegate from the registry
// listing.
func (m *Middleware) selectNode(ctx context.Context, state *QueryState) (*QueryState, error) {
	if m.registry.Count() == 0 {
		m.log.Warn("no RAG agents registered")
		state.ResponseType = types.ResponseNoAgentAvailable
		state.Stage = StageFinished
		return state, nil
	}

	var resp selectionResponse
	err := llm.InvokeStructured(ctx, m.llm, selectionPrompt, map[string]any{
		"agent_list": m.registry.Listing(),
		"query":      state.Query,
	}, selectionSchema, &resp)
	if err != nil {
		return state, err
	}

	selected := strings.TrimSpace(resp.RagAgentID)
	if selected == registry.SentinelID {
		m.log.Info("ranking model selected the sentinel, no suitable agent",
			zap.String("query", state.Query))
		state.ResponseType = types.ResponseNoAgentAvailable
		state.Stage = StageFinished
		return state, nil
	}

	if _, ok := m.registry.Resolve(selected); !ok {
		// Not fatal here: the forward node checks for an unset selection.
		m.log.Warn("selected agent not found in registry", zap.String("selected", selected))
		selected = ""
	}
	state.SelectedAgentID = selected
	state.SelectionDetails = resp.Details
	state.Stage = StageForwardToRAG
	return state, nil
}

// forwardNode invokes the selected delegate synchronously. Delegate failures
// are transient from the workflow's point of view but are also counted
// against the caller's per-task budget.
func (m *Middleware) forwardNode(ctx context.Context, state *QueryState) (*QueryState, error) {
	key := ErrorKey{AgentID: state.AgentID, TaskID: state.TaskID}

	entry, ok := m.registry.Resolve(state.SelectedAgentID)
	if !ok {
		state.ErrorRegistry[key]++
		return state, fmt.Errorf("selected agent %q is not resolvable", state.SelectedAgentID)
	}

	in := types.RAGInput{
		AgentID:     state.AgentID,
		TaskID:      state.TaskID,
		Query:       state.Query,
		CurrentTask: types.NewTask("Generate an appropriate answer for the incoming request for information."),
		ChatHistory: append([]types.Message(nil), state.ChatHistory...),
	}

	out, err := entry.Agent.Invoke(ctx, in)
	if err != nil {
		state.ErrorRegistry[key]++
		return state, fmt.Errorf("delegate %q: %w", entry.ID, err)
	}

	state.DelegateOutput = &out
	state.Stage = StageRefineResponse
	return state, nil
}

// refineNode trims and propagates the delegate's response, and caches
// answered queries for future lookups.
func (m *Middleware) refineNode(_ context.Context, state *QueryState) (*QueryState, error) {
	if state.DelegateOutput == nil {
		return state, workflow.Programming(fmt.Errorf("refine reached without delegate output"))
	}

	refined := strings.TrimSpace(state.DelegateOutput.Response)
	state.Response = refined
	state.ResponseType = state.DelegateOutput.ResponseType

	if state.ResponseType == types.ResponseAnswered && refined != "" && state.Cache != nil {
		state.Cache.Add(state.Query, refined)
	}

	state.Stage = StageFinished
	return state, nil
}

// exitNode finalizes task status. A processing run that arrives here in any
// stage but FINISHED signals a routing bug and is marked INCOMPLETE.
func (m *Middleware) exitNode(_ context.Context, state *QueryState) (*QueryState, error) {
	if state.Mode == ModeProcessingQuery {
		if state.Stage == StageFinished {
			state.CurrentTask.Status = types.StatusDone
		} else {
			m.log.Warn("exited mid-processing, marking task incomplete",
				zap.String("stage", string(state.Stage)))
			state.CurrentTask.Status = types.StatusIncomplete
		}
	}
	return state, nil
}

// reconcileErrors purges stale per-task error entries when an agent moves to
// a new task, and seeds a zero count for the current one.
func (m *Middleware) reconcileErrors(state *QueryState) {
	if state.ErrorRegistry == nil {
		state.ErrorRegistry = make(map[ErrorKey]int)
	}
	if state.AgentLastTask == nil {
		state.AgentLastTask = make(map[string]string)
	}

	last, seen := state.AgentLastTask[state.AgentID]
	if seen && last != state.TaskID {
		for key := range state.ErrorRegistry {
			if key.AgentID == state.AgentID && key.TaskID != state.TaskID {
				delete(state.ErrorRegistry, key)
			}
		}
		state.ErrorRegistry[ErrorKey{AgentID: state.AgentID, TaskID: state.TaskID}] = 0
		m.log.Debug("task transition, purged stale error entries",
			zap.String("agent", state.AgentID),
			zap.String("previous_task", last),
			zap.String("current_task", state.TaskID))
	}
	state.AgentLastTask[state.AgentID] = state.TaskID
}
