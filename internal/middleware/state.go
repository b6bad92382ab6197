// Package middleware implements the RAG query router: a six-stage workflow
// that evaluates an inbound query, consults a fuzzy cache, selects a delegate
// from the agent registry via a model ranking call, forwards the query,
// refines the response, and finalizes task status.
package middleware

import (
	"fmt"
	"strings"

	"genforge/internal/types"
	"genforge/internal/workflow"
)

// Mode is the middleware's operational mode.
type Mode string

const (
	// ModeNone routes straight to the exit node.
	ModeNone Mode = ""
	// ModeProcessingQuery is active while a query moves through the stages.
	ModeProcessingQuery Mode = "processing_query"
)

// Stage is the sub-state within ModeProcessingQuery. Transitions are driven
// solely by this field.
type Stage string

const (
	StageNone           Stage = ""
	StageEvaluateQuery  Stage = "evaluate_query"
	StageSelectAgent    Stage = "select_agent"
	StageForwardToRAG   Stage = "forward_to_rag"
	StageRefineResponse Stage = "refine_response"
	StageFinished       Stage = "finished"
)

// ErrorKey scopes an error count to one (agent, task) pair. The per-task
// budget is independent of the workflow's generic error count.
type ErrorKey struct {
	AgentID string
	TaskID  string
}

// MarshalText keys the error registry in checkpointed JSON.
func (k ErrorKey) MarshalText() ([]byte, error) {
	return []byte(k.AgentID + "|" + k.TaskID), nil
}

// UnmarshalText restores a key written by MarshalText.
func (k *ErrorKey) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), "|", 2)
	if len(parts) != 2 {
		return fmt.Errorf("middleware: malformed error key %q", text)
	}
	k.AgentID, k.TaskID = parts[0], parts[1]
	return nil
}

// QueryState is the middleware's unified workflow state. Each run owns its
// state exclusively; the registry is the only resource shared across
// concurrent runs.
type QueryState struct {
	workflow.BaseState

	Mode  Mode  `json:"operational_mode"`
	Stage Stage `json:"current_mode_stage"`

	// Inbound query identity.
	AgentID string `json:"agent_id"`
	TaskID  string `json:"task_id"`
	Query   string `json:"query"`

	// Outcome.
	ResponseType types.ResponseType `json:"response_type"`
	Response     string             `json:"response"`

	// SelectedAgentID is a lookup key resolved against the registry at use
	// time, never a stored reference: the middleware does not own agent
	// lifecycle.
	SelectedAgentID  string                     `json:"selected_agent_id"`
	SelectionDetails map[string]SelectionDetail `json:"selection_details,omitempty"`

	// Internal bookkeeping.
	Cache          *FuzzyCache       `json:"cache"`
	ErrorRegistry  map[ErrorKey]int  `json:"error_registry"`
	AgentLastTask  map[string]string `json:"agent_last_task"`
	DelegateOutput *types.RAGOutput  `json:"delegate_output,omitempty"`
}

// SelectionDetail is the ranking metadata the model returns per agent.
type SelectionDetail struct {
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// NewQueryState builds a state ready for ProcessQuery. The caller supplies
// the long-lived parts (cache, error registry) when queries share history;
// zero values are initialized here.
func NewQueryState(agentID, taskID, query string) *QueryState {
	s := &QueryState{
		AgentID:       agentID,
		TaskID:        taskID,
		Query:         query,
		ResponseType:  types.ResponseNotAddressed,
		Cache:         NewFuzzyCache(),
		ErrorRegistry: make(map[ErrorKey]int),
		AgentLastTask: make(map[string]string),
	}
	s.ProjectStatus = types.ProjectMonitoring
	s.CurrentTask = types.NewTask(query)
	return s
}

// ResetForQuery prepares an existing state (with its cache and error
// registry intact) for the next query from an agent.
func (s *QueryState) ResetForQuery(agentID, taskID, query string) {
	s.Mode = ModeNone
	s.Stage = StageNone
	s.AgentID = agentID
	s.TaskID = taskID
	s.Query = query
	s.Response = ""
	s.ResponseType = types.ResponseNotAddressed
	s.SelectedAgentID = ""
	s.SelectionDetails = nil
	s.DelegateOutput = nil
	s.ErrorCount = 0
	s.ErrorMessage = ""
	s.ProjectStatus = types.ProjectMonitoring
	s.CurrentTask = types.NewTask(query)
}
