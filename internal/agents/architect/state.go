// Package architect implements the requirements-drafting agent: it turns a
// user prompt into a requirements document, extracts a task queue from it,
// and answers follow-up questions other agents raise while executing those
// tasks.
package architect

import (
	"strings"

	"genforge/internal/types"
	"genforge/internal/workflow"
)

// Mode is the architect's operational mode, decided at the entry node.
type Mode string

const (
	ModeNone               Mode = ""
	ModeDocumentGeneration Mode = "document_generation"
	ModeAnswerQuery        Mode = "answer_query"
)

// Stage is the sub-state within ModeDocumentGeneration.
type Stage string

const (
	StageNone                 Stage = ""
	StageGenerateRequirements Stage = "generate_requirements"
	StageExtractTasks         Stage = "extract_tasks"
	StageSaveRequirements     Stage = "save_requirements"
	StageGatherProjectDetails Stage = "gather_project_details"
	StageFinished             Stage = "finished"
)

// RequirementsDocument holds the generated sections. Section order in
// Markdown matches generation order.
type RequirementsDocument struct {
	ProjectSummary     string `json:"project_summary"`
	SystemArchitecture string `json:"system_architecture"`
	FileStructure      string `json:"file_structure"`
	MicroserviceDesign string `json:"microservice_design"`
	TasksSummary       string `json:"tasks_summary"`
	CodeStandards      string `json:"code_standards"`
	ImplementationPlan string `json:"implementation_plan"`
	LicenseTerms       string `json:"license_terms"`
}

// Markdown renders the document with one heading per section.
func (d RequirementsDocument) Markdown() string {
	sections := []struct {
		title string
		body  string
	}{
		{"Project Summary", d.ProjectSummary},
		{"System Architecture", d.SystemArchitecture},
		{"File Structure", d.FileStructure},
		{"Microservice Design", d.MicroserviceDesign},
		{"Tasks Summary", d.TasksSummary},
		{"Code Standards", d.CodeStandards},
		{"Implementation Plan", d.ImplementationPlan},
		{"License Terms", d.LicenseTerms},
	}
	var b strings.Builder
	b.WriteString("# Requirements Document\n")
	for _, s := range sections {
		if s.body == "" {
			continue
		}
		b.WriteString("\n## " + s.title + "\n\n" + strings.TrimSpace(s.body) + "\n")
	}
	return b.String()
}

// State is the architect's workflow state.
type State struct {
	workflow.BaseState

	Mode  Mode  `json:"operational_mode"`
	Stage Stage `json:"current_mode_stage"`

	RequestedStandards string `json:"requested_standards"`
	LicenseText        string `json:"license_text"`

	Requirements RequirementsDocument `json:"requirements_document"`
	Tasks        []types.Task         `json:"tasks"`
	ProjectName  string               `json:"project_name"`
	DocumentPath string               `json:"document_path"`

	// Answer produced in ModeAnswerQuery.
	QueryAnswer string `json:"query_answer"`
}

// NewState prepares a document-generation run.
func NewState(userPrompt, projectDir string) *State {
	s := &State{}
	s.UserPrompt = userPrompt
	s.ProjectDirectory = projectDir
	s.ProjectStatus = types.ProjectInitial
	s.CurrentTask = types.NewTask("Produce the project requirements document.")
	return s
}

// NewQueryAnswerState prepares an answer-query run for an AWAITING task.
func NewQueryAnswerState(task types.Task, requirements RequirementsDocument, projectDir string) *State {
	s := &State{Requirements: requirements}
	s.ProjectDirectory = projectDir
	s.ProjectStatus = types.ProjectMonitoring
	s.CurrentTask = task
	return s
}
