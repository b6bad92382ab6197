// Package tester implements the test-writing agent: it generates function
// skeletons and unit tests for a task, validates the source before writing
// it, and runs the project's test command.
package tester

import (
	"genforge/internal/types"
	"genforge/internal/workflow"
)

// Mode is the tester's operational mode.
type Mode string

const (
	ModeNone           Mode = ""
	ModeTestGeneration Mode = "test_generation"
)

// Stage is the sub-state within ModeTestGeneration.
type Stage string

const (
	StageNone             Stage = ""
	StageGenerateSkeleton Stage = "generate_skeleton"
	StageGenerateTests    Stage = "generate_tests"
	StageSaveFiles        Stage = "save_files"
	StageRunTests         Stage = "run_tests"
	StageFinished         Stage = "finished"
)

// GeneratedFile is one model-produced source file, path relative to the
// project directory.
type GeneratedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// State is the tester's workflow state.
type State struct {
	workflow.BaseState

	Mode  Mode  `json:"operational_mode"`
	Stage Stage `json:"current_mode_stage"`

	// RequirementsOverview gives the model document context for the task.
	RequirementsOverview string `json:"requirements_overview"`

	SkeletonFiles []GeneratedFile `json:"skeleton_files"`
	TestFiles     []GeneratedFile `json:"test_files"`
	WrittenFiles  []string        `json:"written_files"`

	TestCommand []string `json:"test_command"`
	TestOutput  string   `json:"test_output"`
	TestsPassed bool     `json:"tests_passed"`
}

// NewState prepares a test-generation run for task.
func NewState(task types.Task, projectDir, requirementsOverview string, testCommand []string) *State {
	s := &State{
		RequirementsOverview: requirementsOverview,
		TestCommand:          testCommand,
	}
	s.ProjectDirectory = projectDir
	s.ProjectStatus = types.ProjectExecuting
	s.CurrentTask = task
	return s
}
