// Package types provides shared type definitions used across GenForge packages.
// This package exists to break import cycles between the workflow core, the
// middleware, and the concrete agents. Types in this package are foundational
// data records with no complex dependencies.
package types

import (
	"context"

	"github.com/google/uuid"
)

// Status tracks the progress of a single task.
type Status string

const (
	StatusNone       Status = "NONE"
	StatusNew        Status = "NEW"
	StatusAwaiting   Status = "AWAITING"
	StatusResponded  Status = "RESPONDED"
	StatusInProgress Status = "INPROGRESS"
	StatusAbandoned  Status = "ABANDONED"
	StatusDone       Status = "DONE"
	StatusIncomplete Status = "INCOMPLETE"
)

// ProjectStatus tracks the phase a whole project run is in.
type ProjectStatus string

const (
	ProjectNone       ProjectStatus = "NONE"
	ProjectReceived   ProjectStatus = "RECEIVED"
	ProjectNew        ProjectStatus = "NEW"
	ProjectInitial    ProjectStatus = "INITIAL"
	ProjectExecuting  ProjectStatus = "EXECUTING"
	ProjectMonitoring ProjectStatus = "MONITORING"
	ProjectReviewing  ProjectStatus = "REVIEWING"
	ProjectResolving  ProjectStatus = "RESOLVING"
	ProjectHalted     ProjectStatus = "HALTED"
	ProjectDone       ProjectStatus = "DONE"
)

// ChatRole identifies the sender of a chat message.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleTool      ChatRole = "tool"
)

// Message is one entry in a workflow's chat history. Histories are
// append-only and chronological.
type Message struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// Task is a unit of work. Tasks move across agent boundaries by value;
// concurrent workflows never share one by reference.
type Task struct {
	ID             string `json:"id"`
	Status         Status `json:"status"`
	Description    string `json:"description"`
	Question       string `json:"question,omitempty"`        // set when Status is AWAITING
	AdditionalInfo string `json:"additional_info,omitempty"` // filled once the question is answered
}

// NewTask creates a NEW task with a fresh ID.
func NewTask(description string) Task {
	return Task{
		ID:          uuid.NewString(),
		Status:      StatusNew,
		Description: description,
	}
}

// ResponseType indicates how a query was addressed by the RAG layer.
type ResponseType string

const (
	ResponseNotAddressed     ResponseType = "not_addressed"
	ResponseFromCache        ResponseType = "rag_cache"
	ResponseRejected         ResponseType = "rejected"
	ResponseNoAgentAvailable ResponseType = "no_rag_to_answer"
	ResponseAnswered         ResponseType = "rag_answered"
)

// RAGInput is the input record a retrieval delegate declares. Middleware
// constructs it from the subset of its own state the contract names.
type RAGInput struct {
	AgentID     string    `json:"agent_id"`
	TaskID      string    `json:"task_id"`
	Query       string    `json:"query"`
	CurrentTask Task      `json:"current_task"`
	ChatHistory []Message `json:"chat_history"`
}

// RAGOutput is the record a retrieval delegate returns.
type RAGOutput struct {
	Task         Task              `json:"task"`
	ChatHistory  []Message         `json:"chat_history"`
	Response     string            `json:"response"`
	ResponseType ResponseType      `json:"response_type"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RAGAgent is the capability contract every retrieval delegate exposes.
// The middleware never owns a delegate's lifecycle; it only invokes it.
type RAGAgent interface {
	ID() string
	Name() string
	Invoke(ctx context.Context, in RAGInput) (RAGOutput, error)
}
