// Package team wires the GenForge agents together and drives the full
// pipeline: the architect drafts requirements and a task queue, queries
// raised along the way are routed through the RAG middleware, and the tester
// works the queue.
package team

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"genforge/internal/agents/architect"
	"genforge/internal/agents/rag"
	"genforge/internal/agents/tester"
	"genforge/internal/config"
	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/middleware"
	"genforge/internal/registry"
	"genforge/internal/store"
	"genforge/internal/types"
)

// Team owns the assembled agents. Construct with New, release with Close.
type Team struct {
	cfg       *config.Config
	llm       llm.Client
	registry  *registry.Registry
	store     *store.Store
	mw        *middleware.Middleware
	architect *architect.Architect
	tester    *tester.Tester
	ragAgent  *rag.Agent
	log       *zap.Logger
}

// RunResult summarizes a full pipeline run.
type RunResult struct {
	ProjectName  string
	DocumentPath string
	Tasks        []types.Task
	TestOutputs  map[string]string
}

// New assembles the team from configuration. The corpus directory is
// optional; without it no retrieval delegate is registered and the
// middleware answers every query with NO_AGENT_AVAILABLE.
func New(cfg *config.Config) (*Team, error) {
	client, err := newClient(cfg.LLM)
	if err != nil {
		return nil, err
	}
	return newWithClient(cfg, client)
}

func newWithClient(cfg *config.Config, client llm.Client) (*Team, error) {
	t := &Team{
		cfg:      cfg,
		llm:      client,
		registry: registry.New(),
		log:      logging.L(logging.CategoryTeam),
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	t.store = st

	if cfg.Corpus.Dir != "" {
		agent, err := rag.New("docs-rag", "Documentation RAG", client, cfg.Corpus.Dir)
		if err != nil {
			t.log.Warn("corpus unavailable, continuing without retrieval delegate",
				zap.String("dir", cfg.Corpus.Dir), zap.Error(err))
		} else {
			t.ragAgent = agent
			if err := t.registry.Register(agent, rag.Description); err != nil {
				st.Close()
				return nil, err
			}
		}
	}

	mw, err := middleware.New(middleware.Config{
		AgentID:         "rag-middleware",
		AgentName:       "rag-middleware",
		LLM:             client,
		Registry:        t.registry,
		ErrorThreshold:  cfg.Workflow.QueryErrorThreshold,
		MaxRouterErrors: cfg.Workflow.MaxRouterErrors,
		Checkpointer:    st,
		SessionID:       newSessionID("query"),
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	t.mw = mw

	arch, err := architect.New(architect.Config{
		AgentID:         "architect",
		AgentName:       "architect",
		LLM:             client,
		MaxRouterErrors: cfg.Workflow.MaxRouterErrors,
		Checkpointer:    st,
		SessionID:       newSessionID("architect"),
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	t.architect = arch

	ts, err := tester.New(tester.Config{
		AgentID:         "tester",
		AgentName:       "tester",
		LLM:             client,
		MaxRouterErrors: cfg.Workflow.MaxRouterErrors,
		Checkpointer:    st,
		SessionID:       newSessionID("tester"),
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	t.tester = ts

	return t, nil
}

func newClient(cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "gemini":
		return llm.NewGeminiClient(context.Background(), cfg.APIKey, cfg.Model)
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("team: unknown LLM provider %q", cfg.Provider)
	}
}

// Watch starts the corpus watcher when a retrieval delegate is present.
func (t *Team) Watch(ctx context.Context) error {
	if t.ragAgent == nil {
		return nil
	}
	return t.ragAgent.Watch(ctx)
}

// Close releases the store, the tester's parser, and the corpus watcher.
func (t *Team) Close() error {
	if t.ragAgent != nil {
		t.ragAgent.Stop()
	}
	if t.tester != nil {
		t.tester.Close()
	}
	return t.store.Close()
}

// Registry exposes the delegate registry for inspection.
func (t *Team) Registry() *registry.Registry { return t.registry }

// Run drives the full pipeline: architect first, AWAITING tasks resolved
// through the middleware, then the tester per extracted task.
func (t *Team) Run(ctx context.Context, prompt, projectDir string) (*RunResult, error) {
	archState, err := t.architect.Run(ctx, architect.NewState(prompt, projectDir))
	if err != nil {
		return nil, fmt.Errorf("team: architect: %w", err)
	}
	if archState.CurrentTask.Status != types.StatusDone {
		return nil, fmt.Errorf("team: architect finished with task status %s", archState.CurrentTask.Status)
	}

	result := &RunResult{
		ProjectName:  archState.ProjectName,
		DocumentPath: archState.DocumentPath,
		Tasks:        archState.Tasks,
		TestOutputs:  make(map[string]string),
	}
	overview := archState.Requirements.ProjectSummary

	for i := range result.Tasks {
		task := &result.Tasks[i]

		if task.Status == types.StatusAwaiting {
			if err := t.resolveAwaiting(ctx, task); err != nil {
				t.log.Warn("question unresolved, task stays awaiting",
					zap.String("task", task.ID), zap.Error(err))
				continue
			}
		}

		state := tester.NewState(*task, projectDir, overview, t.cfg.Tester.TestCommand)
		state, err := t.tester.Run(ctx, state)
		if err != nil {
			return result, fmt.Errorf("team: tester on task %q: %w", task.ID, err)
		}
		*task = state.CurrentTask
		result.TestOutputs[task.ID] = state.TestOutput

		t.log.Info("task finished",
			zap.String("task", task.ID),
			zap.String("status", string(task.Status)))
	}
	return result, nil
}

// resolveAwaiting routes a task's question through the middleware and feeds
// the answer back into the task.
func (t *Team) resolveAwaiting(ctx context.Context, task *types.Task) error {
	if task.Question == "" {
		return fmt.Errorf("awaiting task %q has no question", task.ID)
	}
	out, err := t.Query(ctx, "architect", task.ID, task.Question)
	if err != nil {
		return err
	}
	if out.ResponseType != types.ResponseAnswered && out.ResponseType != types.ResponseFromCache {
		return fmt.Errorf("question not answered: %s", out.ResponseType)
	}
	task.AdditionalInfo = out.Response
	task.Status = types.StatusResponded
	return nil
}

// Query runs one query through the middleware with a fresh state.
func (t *Team) Query(ctx context.Context, agentID, taskID, query string) (*middleware.QueryState, error) {
	state := middleware.NewQueryState(agentID, taskID, query)
	return t.mw.ProcessQuery(ctx, state)
}

// QueryRequest is one entry of a concurrent query batch.
type QueryRequest struct {
	AgentID string
	TaskID  string
	Query   string
}

// QueryAll runs the batch concurrently. Each run owns its state object; the
// registry is the only shared resource and is read-only during execution.
// The first error cancels the remaining runs.
func (t *Team) QueryAll(ctx context.Context, reqs []QueryRequest) ([]*middleware.QueryState, error) {
	results := make([]*middleware.QueryState, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			state, err := t.mw.ProcessQuery(gctx, middleware.NewQueryState(req.AgentID, req.TaskID, req.Query))
			if err != nil {
				return err
			}
			results[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func newSessionID(kind string) string {
	return kind + "-" + uuid.NewString()
}
