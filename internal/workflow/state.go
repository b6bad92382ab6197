// Package workflow implements the state machine core every GenForge agent is
// built on: node instrumentation, error containment, threshold routing, and a
// sequential graph driver. A workflow is a directed graph of named nodes; a
// node is any function satisfying NodeFunc, validated once when the graph is
// built. State flows through nodes by reference and is owned exclusively by
// the running workflow instance.
package workflow

import (
	"genforge/internal/types"
)

// Meta carries the node transition and error bookkeeping shared by every
// workflow state.
//
// Invariants:
//   - ActiveNode always equals the most recently entered node; LastNode equals
//     the node that completed immediately prior. They are updated as a pair on
//     node entry and exit, and coincide while the workflow is idle between
//     nodes.
//   - ErrorCount is reset to zero exactly when a contained node completes
//     without error, and incremented on every contained failure.
type Meta struct {
	LastNode     string `json:"last_node"`
	ActiveNode   string `json:"active_node"`
	ErrorCount   int    `json:"error_count"`
	ErrorMessage string `json:"error_message"`
}

// Bookkeeping returns the Meta itself so that any state embedding it
// satisfies the State interface.
func (m *Meta) Bookkeeping() *Meta { return m }

// State is satisfied by any workflow state record. The wrappers use the
// returned Meta to update bookkeeping in place.
type State interface {
	Bookkeeping() *Meta
}

// BaseState is the common contract shared by all agent workflow states.
// Concrete workflows embed it and add their own operational-mode and
// mode-stage fields.
type BaseState struct {
	Meta

	UserPrompt       string              `json:"user_prompt"`
	ProjectStatus    types.ProjectStatus `json:"project_status"`
	ProjectDirectory string              `json:"project_directory"`
	CurrentTask      types.Task          `json:"current_task"`
	ChatHistory      []types.Message     `json:"chat_history"`
}

// AddMessage appends a message to the chat history.
func (s *BaseState) AddMessage(role types.ChatRole, text string) {
	s.ChatHistory = append(s.ChatHistory, types.Message{Role: role, Text: text})
}
