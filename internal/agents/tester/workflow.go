package tester

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"genforge/internal/codeparse"
	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/types"
	"genforge/internal/workflow"
)

// Node names of the tester graph.
const (
	NodeEntry            = "entry"
	NodeGenerateSkeleton = "generate_skeleton"
	NodeGenerateTests    = "generate_tests"
	NodeSaveFiles        = "save_files"
	NodeRunTests         = "run_tests"
	NodeExit             = "exit"
)

// Config wires a Tester.
type Config struct {
	AgentID   string
	AgentName string
	LLM       llm.Client

	MaxRouterErrors int
	Checkpointer    workflow.Checkpointer
	SessionID       string
}

// Tester drives the test-generation workflow.
type Tester struct {
	agentID   string
	agentName string
	llm       llm.Client
	validator *codeparse.Validator
	graph     *workflow.Graph[*State]
	log       *zap.Logger
}

// New builds the tester and its graph. Close releases the parser.
func New(cfg Config) (*Tester, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("tester: LLM client is required")
	}
	t := &Tester{
		agentID:   cfg.AgentID,
		agentName: cfg.AgentName,
		llm:       cfg.LLM,
		validator: codeparse.NewValidator(),
		log:       logging.L(logging.CategoryTester),
	}

	policy := workflow.DefaultPolicy()
	contained := func(name string, fn workflow.NodeFunc[*State]) workflow.NodeFunc[*State] {
		return workflow.Contain(cfg.AgentName, name, policy, workflow.Instrument(name, fn))
	}

	g := workflow.NewGraph[*State](cfg.AgentName).
		AddNode(NodeEntry, workflow.Instrument(NodeEntry, t.entryNode)).
		AddNode(NodeGenerateSkeleton, contained(NodeGenerateSkeleton, t.generateSkeletonNode)).
		AddNode(NodeGenerateTests, contained(NodeGenerateTests, t.generateTestsNode)).
		AddNode(NodeSaveFiles, contained(NodeSaveFiles, t.saveFilesNode)).
		AddNode(NodeRunTests, contained(NodeRunTests, t.runTestsNode)).
		AddNode(NodeExit, workflow.Instrument(NodeExit, t.exitNode)).
		SetEntry(NodeEntry).
		SetExit(NodeExit).
		SetRouter(workflow.RouteOnErrors(cfg.AgentName, cfg.MaxRouterErrors, t.route))
	if cfg.Checkpointer != nil {
		g.WithCheckpointer(cfg.Checkpointer, cfg.SessionID)
	}
	if err := g.Build(); err != nil {
		return nil, err
	}
	t.graph = g
	return t, nil
}

// Close releases the source validator.
func (t *Tester) Close() {
	t.validator.Close()
}

// Run drives one tester invocation through the graph.
func (t *Tester) Run(ctx context.Context, state *State) (*State, error) {
	return t.graph.Run(ctx, state)
}

func (t *Tester) route(state *State) string {
	if state.Mode != ModeTestGeneration {
		return NodeExit
	}
	switch state.Stage {
	case StageGenerateSkeleton:
		return NodeGenerateSkeleton
	case StageGenerateTests:
		return NodeGenerateTests
	case StageSaveFiles:
		return NodeSaveFiles
	case StageRunTests:
		return NodeRunTests
	case StageFinished:
		return NodeExit
	default:
		t.log.Warn("unrecognized test generation stage", zap.String("stage", string(state.Stage)))
		return NodeExit
	}
}

func (t *Tester) entryNode(_ context.Context, state *State) (*State, error) {
	if state.ProjectStatus == types.ProjectExecuting && state.CurrentTask.Status == types.StatusNew {
		state.Mode = ModeTestGeneration
		state.Stage = StageGenerateSkeleton
	}
	return state, nil
}

// generateSkeletonNode asks the model for function skeletons and validates
// every file before accepting the batch.
func (t *Tester) generateSkeletonNode(ctx context.Context, state *State) (*State, error) {
	var resp filesResponse
	err := llm.InvokeStructured(ctx, t.llm, skeletonPrompt, map[string]any{
		"requirements_overview": state.RequirementsOverview,
		"task_description":      state.CurrentTask.Description,
	}, filesSchema, &resp)
	if err != nil {
		return state, err
	}

	files, err := t.acceptFiles(ctx, resp.Files)
	if err != nil {
		return state, fmt.Errorf("skeleton generation: %w", err)
	}
	state.SkeletonFiles = files
	t.log.Info("skeletons generated", zap.String("agent", t.agentID), zap.Int("files", len(files)))

	state.Stage = StageGenerateTests
	return state, nil
}

// generateTestsNode asks the model for unit tests covering the skeletons.
func (t *Tester) generateTestsNode(ctx context.Context, state *State) (*State, error) {
	var b strings.Builder
	for _, f := range state.SkeletonFiles {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", f.Path, f.Content)
	}

	var resp filesResponse
	err := llm.InvokeStructured(ctx, t.llm, testsPrompt, map[string]any{
		"skeleton_files":   b.String(),
		"task_description": state.CurrentTask.Description,
	}, filesSchema, &resp)
	if err != nil {
		return state, err
	}

	files, err := t.acceptFiles(ctx, resp.Files)
	if err != nil {
		return state, fmt.Errorf("test generation: %w", err)
	}
	state.TestFiles = files
	t.log.Info("tests generated", zap.String("agent", t.agentID), zap.Int("files", len(files)))

	state.Stage = StageSaveFiles
	return state, nil
}

// saveFilesNode writes the accepted files under the project directory.
func (t *Tester) saveFilesNode(_ context.Context, state *State) (*State, error) {
	state.WrittenFiles = state.WrittenFiles[:0]
	for _, f := range append(append([]GeneratedFile{}, state.SkeletonFiles...), state.TestFiles...) {
		abs := filepath.Join(state.ProjectDirectory, f.Path)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return state, fmt.Errorf("create directory for %q: %w", f.Path, err)
		}
		if err := os.WriteFile(abs, []byte(f.Content), 0o644); err != nil {
			return state, fmt.Errorf("write %q: %w", f.Path, err)
		}
		state.WrittenFiles = append(state.WrittenFiles, abs)
	}
	t.log.Info("files written", zap.String("agent", t.agentID), zap.Int("files", len(state.WrittenFiles)))

	state.Stage = StageRunTests
	return state, nil
}

// runTestsNode executes the configured test command in the project directory
// with combined output captured into state. A failing test run is an outcome,
// not a node error.
func (t *Tester) runTestsNode(ctx context.Context, state *State) (*State, error) {
	if len(state.TestCommand) == 0 {
		t.log.Info("no test command configured, skipping run", zap.String("agent", t.agentID))
		state.TestsPassed = true
		state.Stage = StageFinished
		return state, nil
	}

	cmd := exec.CommandContext(ctx, state.TestCommand[0], state.TestCommand[1:]...)
	cmd.Dir = state.ProjectDirectory
	out, err := cmd.CombinedOutput()
	state.TestOutput = string(out)
	state.TestsPassed = err == nil
	if err != nil {
		t.log.Warn("test command failed",
			zap.String("agent", t.agentID),
			zap.Strings("command", state.TestCommand),
			zap.Error(err))
	}

	state.Stage = StageFinished
	return state, nil
}

func (t *Tester) exitNode(_ context.Context, state *State) (*State, error) {
	if state.Mode == ModeTestGeneration {
		if state.Stage == StageFinished && state.TestsPassed {
			state.CurrentTask.Status = types.StatusDone
		} else {
			state.CurrentTask.Status = types.StatusIncomplete
		}
	}
	return state, nil
}

// acceptFiles validates model-produced files: paths must stay inside the
// project directory and Go sources must parse.
func (t *Tester) acceptFiles(ctx context.Context, files []GeneratedFile) ([]GeneratedFile, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("model produced no files")
	}
	out := make([]GeneratedFile, 0, len(files))
	for _, f := range files {
		clean := filepath.Clean(f.Path)
		if clean == "" || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
			return nil, workflow.Validation(fmt.Errorf("file path %q escapes the project directory", f.Path))
		}
		if strings.HasSuffix(clean, ".go") {
			if err := t.validator.Validate(ctx, []byte(f.Content)); err != nil {
				return nil, fmt.Errorf("file %q: %w", clean, err)
			}
		}
		out = append(out, GeneratedFile{Path: clean, Content: f.Content})
	}
	return out, nil
}
