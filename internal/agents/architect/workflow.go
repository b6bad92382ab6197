package architect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/types"
	"genforge/internal/workflow"
)

// Node names of the architect graph.
const (
	NodeEntry                = "entry"
	NodeGenerateRequirements = "generate_requirements"
	NodeExtractTasks         = "extract_tasks"
	NodeSaveRequirements     = "save_requirements"
	NodeGatherProjectDetails = "gather_project_details"
	NodeAnswerQuery          = "answer_query"
	NodeExit                 = "exit"
)

// RequirementsFileName is where the document lands under the project's docs
// directory.
const RequirementsFileName = "requirements_document.md"

// Config wires an Architect.
type Config struct {
	AgentID   string
	AgentName string
	LLM       llm.Client

	MaxRouterErrors int
	Checkpointer    workflow.Checkpointer
	SessionID       string
}

// Architect drives the requirements workflow.
type Architect struct {
	agentID   string
	agentName string
	llm       llm.Client
	graph     *workflow.Graph[*State]
	log       *zap.Logger
}

// New builds the architect and its graph.
func New(cfg Config) (*Architect, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("architect: LLM client is required")
	}
	a := &Architect{
		agentID:   cfg.AgentID,
		agentName: cfg.AgentName,
		llm:       cfg.LLM,
		log:       logging.L(logging.CategoryArchitect),
	}

	policy := workflow.DefaultPolicy()
	contained := func(name string, fn workflow.NodeFunc[*State]) workflow.NodeFunc[*State] {
		return workflow.Contain(cfg.AgentName, name, policy, workflow.Instrument(name, fn))
	}

	g := workflow.NewGraph[*State](cfg.AgentName).
		AddNode(NodeEntry, workflow.Instrument(NodeEntry, a.entryNode)).
		AddNode(NodeGenerateRequirements, contained(NodeGenerateRequirements, a.generateRequirementsNode)).
		AddNode(NodeExtractTasks, contained(NodeExtractTasks, a.extractTasksNode)).
		AddNode(NodeSaveRequirements, contained(NodeSaveRequirements, a.saveRequirementsNode)).
		AddNode(NodeGatherProjectDetails, contained(NodeGatherProjectDetails, a.gatherProjectDetailsNode)).
		AddNode(NodeAnswerQuery, contained(NodeAnswerQuery, a.answerQueryNode)).
		AddNode(NodeExit, workflow.Instrument(NodeExit, a.exitNode)).
		SetEntry(NodeEntry).
		SetExit(NodeExit).
		SetRouter(workflow.RouteOnErrors(cfg.AgentName, cfg.MaxRouterErrors, a.route))
	if cfg.Checkpointer != nil {
		g.WithCheckpointer(cfg.Checkpointer, cfg.SessionID)
	}
	if err := g.Build(); err != nil {
		return nil, err
	}
	a.graph = g
	return a, nil
}

// Run drives one architect invocation through the graph.
func (a *Architect) Run(ctx context.Context, state *State) (*State, error) {
	return a.graph.Run(ctx, state)
}

func (a *Architect) route(state *State) string {
	switch state.Mode {
	case ModeDocumentGeneration:
		switch state.Stage {
		case StageGenerateRequirements:
			return NodeGenerateRequirements
		case StageExtractTasks:
			return NodeExtractTasks
		case StageSaveRequirements:
			return NodeSaveRequirements
		case StageGatherProjectDetails:
			return NodeGatherProjectDetails
		case StageFinished:
			return NodeExit
		default:
			a.log.Warn("unrecognized document generation stage", zap.String("stage", string(state.Stage)))
			return NodeExit
		}
	case ModeAnswerQuery:
		if state.Stage == StageFinished {
			return NodeExit
		}
		return NodeAnswerQuery
	default:
		return NodeExit
	}
}

// entryNode decides the operational mode from project and task status.
func (a *Architect) entryNode(_ context.Context, state *State) (*State, error) {
	switch {
	case state.ProjectStatus == types.ProjectInitial && state.CurrentTask.Status == types.StatusNew:
		state.Mode = ModeDocumentGeneration
		state.Stage = StageGenerateRequirements
	case state.ProjectStatus == types.ProjectMonitoring && state.CurrentTask.Status == types.StatusAwaiting:
		state.Mode = ModeAnswerQuery
		state.Stage = StageNone
	default:
		state.Mode = ModeNone
	}
	a.log.Info("architect mode decided",
		zap.String("agent", a.agentID),
		zap.String("mode", string(state.Mode)),
		zap.String("project_status", string(state.ProjectStatus)),
		zap.String("task_status", string(state.CurrentTask.Status)))
	return state, nil
}

// generateRequirementsNode fills the document section by section. Sections
// build on earlier ones, so the order is fixed.
func (a *Architect) generateRequirementsNode(ctx context.Context, state *State) (*State, error) {
	doc := &state.Requirements
	steps := []struct {
		name   string
		prompt *llm.Prompt
		vars   func() map[string]any
		dest   *string
	}{
		{"project_summary", projectSummaryPrompt, func() map[string]any {
			return map[string]any{
				"user_request":     state.UserPrompt,
				"task_description": state.CurrentTask.Description,
			}
		}, &doc.ProjectSummary},
		{"system_architecture", systemArchitecturePrompt, func() map[string]any {
			return map[string]any{"project_overview": doc.ProjectSummary}
		}, &doc.SystemArchitecture},
		{"file_structure", fileStructurePrompt, func() map[string]any {
			return map[string]any{
				"project_overview":    doc.ProjectSummary,
				"system_architecture": doc.SystemArchitecture,
			}
		}, &doc.FileStructure},
		{"microservice_design", microserviceDesignPrompt, func() map[string]any {
			return map[string]any{
				"project_overview":    doc.ProjectSummary,
				"system_architecture": doc.SystemArchitecture,
			}
		}, &doc.MicroserviceDesign},
		{"tasks_summary", tasksSummaryPrompt, func() map[string]any {
			return map[string]any{
				"project_overview":    doc.ProjectSummary,
				"system_architecture": doc.SystemArchitecture,
				"microservice_design": doc.MicroserviceDesign,
			}
		}, &doc.TasksSummary},
		{"code_standards", codeStandardsPrompt, func() map[string]any {
			return map[string]any{
				"user_request":             state.UserPrompt,
				"user_requested_standards": state.RequestedStandards,
			}
		}, &doc.CodeStandards},
		{"implementation_plan", implementationPlanPrompt, func() map[string]any {
			return map[string]any{
				"system_architecture": doc.SystemArchitecture,
				"microservice_design": doc.MicroserviceDesign,
				"file_structure":      doc.FileStructure,
			}
		}, &doc.ImplementationPlan},
		{"license_terms", licenseTermsPrompt, func() map[string]any {
			return map[string]any{
				"user_request": state.UserPrompt,
				"license_text": state.LicenseText,
			}
		}, &doc.LicenseTerms},
	}

	for _, step := range steps {
		// Completed sections survive a contained retry of this node.
		if *step.dest != "" {
			continue
		}
		var resp sectionResponse
		if err := llm.InvokeStructured(ctx, a.llm, step.prompt, step.vars(), sectionSchema, &resp); err != nil {
			return state, fmt.Errorf("section %q: %w", step.name, err)
		}
		*step.dest = resp.Content
		a.log.Info("document section generated", zap.String("agent", a.agentID), zap.String("section", step.name))
	}

	state.Stage = StageExtractTasks
	return state, nil
}

// extractTasksNode turns the tasks summary into a task queue.
func (a *Architect) extractTasksNode(ctx context.Context, state *State) (*State, error) {
	var resp taskListResponse
	err := llm.InvokeStructured(ctx, a.llm, extractTasksPrompt, map[string]any{
		"tasks_summary": state.Requirements.TasksSummary,
	}, taskListSchema, &resp)
	if err != nil {
		return state, err
	}
	if len(resp.Tasks) == 0 {
		return state, workflow.Validation(fmt.Errorf("task extraction produced no tasks"))
	}

	state.Tasks = state.Tasks[:0]
	for _, desc := range resp.Tasks {
		desc = strings.TrimSpace(desc)
		if desc == "" {
			continue
		}
		state.Tasks = append(state.Tasks, types.NewTask(desc))
	}
	a.log.Info("task queue built", zap.String("agent", a.agentID), zap.Int("tasks", len(state.Tasks)))

	state.Stage = StageSaveRequirements
	return state, nil
}

// saveRequirementsNode writes the document under ProjectDirectory/docs.
func (a *Architect) saveRequirementsNode(_ context.Context, state *State) (*State, error) {
	docsDir := filepath.Join(state.ProjectDirectory, "docs")
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		return state, fmt.Errorf("create docs directory: %w", err)
	}

	path := filepath.Join(docsDir, RequirementsFileName)
	if err := os.WriteFile(path, []byte(state.Requirements.Markdown()), 0o644); err != nil {
		return state, fmt.Errorf("write requirements document: %w", err)
	}
	state.DocumentPath = path
	a.log.Info("requirements document written", zap.String("agent", a.agentID), zap.String("path", path))

	state.Stage = StageGatherProjectDetails
	return state, nil
}

// gatherProjectDetailsNode derives the project name from the user request.
func (a *Architect) gatherProjectDetailsNode(ctx context.Context, state *State) (*State, error) {
	var resp projectDetailsResponse
	err := llm.InvokeStructured(ctx, a.llm, projectDetailsPrompt, map[string]any{
		"user_request": state.UserPrompt,
	}, projectDetailsSchema, &resp)
	if err != nil {
		return state, err
	}

	state.ProjectName = strings.TrimSpace(resp.ProjectName)
	a.log.Info("project details gathered", zap.String("agent", a.agentID), zap.String("project", state.ProjectName))

	state.Stage = StageFinished
	return state, nil
}

// answerQueryNode answers an AWAITING task's question from the requirements
// document and marks the task responded.
func (a *Architect) answerQueryNode(ctx context.Context, state *State) (*State, error) {
	if state.CurrentTask.Question == "" {
		return state, workflow.Validation(fmt.Errorf("awaiting task %q carries no question", state.CurrentTask.ID))
	}

	var resp answerResponse
	err := llm.InvokeStructured(ctx, a.llm, answerQueryPrompt, map[string]any{
		"requirements_document": state.Requirements.Markdown(),
		"question":              state.CurrentTask.Question,
	}, answerSchema, &resp)
	if err != nil {
		return state, err
	}

	state.QueryAnswer = strings.TrimSpace(resp.Answer)
	state.CurrentTask.AdditionalInfo = state.QueryAnswer
	state.CurrentTask.Status = types.StatusResponded
	state.AddMessage(types.RoleAssistant, state.QueryAnswer)

	state.Stage = StageFinished
	return state, nil
}

// exitNode finalizes task status for document generation runs.
func (a *Architect) exitNode(_ context.Context, state *State) (*State, error) {
	if state.Mode == ModeDocumentGeneration {
		if state.Stage == StageFinished {
			state.CurrentTask.Status = types.StatusDone
		} else {
			a.log.Warn("exited before finishing document generation", zap.String("stage", string(state.Stage)))
			state.CurrentTask.Status = types.StatusIncomplete
		}
	}
	return state, nil
}
