package architect

import "genforge/internal/llm"

// sectionResponse is the structured shape every document-section call shares.
type sectionResponse struct {
	Content string `json:"content"`
}

var sectionSchema = llm.Schema{
	Name:     "document_section",
	Required: []string{"content"},
	Instructions: `{
  "content": "<the generated markdown section>"
}`,
}

var projectSummaryPrompt = llm.MustPrompt("project_summary", `Write the project summary section of a requirements document.

User request:
{{.user_request}}

Current task:
{{.task_description}}

Cover the project's purpose, scope, and primary users in markdown prose.`)

var systemArchitecturePrompt = llm.MustPrompt("system_architecture", `Write the system architecture section of a requirements document.

Project overview:
{{.project_overview}}

Describe components, their responsibilities, and how they communicate.`)

var fileStructurePrompt = llm.MustPrompt("file_structure", `Write the file structure section of a requirements document.

Project overview:
{{.project_overview}}

System architecture:
{{.system_architecture}}

Lay out the repository tree with a one-line purpose per directory.`)

var microserviceDesignPrompt = llm.MustPrompt("microservice_design", `Write the service design section of a requirements document.

Project overview:
{{.project_overview}}

System architecture:
{{.system_architecture}}

For each service: API surface, data owned, and dependencies on other services.`)

var tasksSummaryPrompt = llm.MustPrompt("tasks_summary", `Write the tasks summary section of a requirements document.

Project overview:
{{.project_overview}}

System architecture:
{{.system_architecture}}

Service design:
{{.microservice_design}}

Produce a markdown bullet list of concrete implementation tasks, one per line,
each independently actionable.`)

var codeStandardsPrompt = llm.MustPrompt("code_standards", `Write the code standards section of a requirements document.

User request:
{{.user_request}}

Standards requested by the user:
{{.user_requested_standards}}`)

var implementationPlanPrompt = llm.MustPrompt("implementation_plan", `Write the implementation plan section of a requirements document.

System architecture:
{{.system_architecture}}

Service design:
{{.microservice_design}}

File structure:
{{.file_structure}}

Order the work into milestones with entry and exit criteria.`)

var licenseTermsPrompt = llm.MustPrompt("license_terms", `Write the license terms section of a requirements document.

User request:
{{.user_request}}

License text to honor:
{{.license_text}}`)

// taskListResponse is the structured shape of the task-extraction call.
type taskListResponse struct {
	Tasks []string `json:"tasks"`
}

var taskListSchema = llm.Schema{
	Name:     "task_list",
	Required: []string{"tasks"},
	Instructions: `{
  "tasks": ["<task description>", "<task description>"]
}`,
}

var extractTasksPrompt = llm.MustPrompt("extract_tasks", `Extract the individual implementation tasks from this tasks summary.

Tasks summary:
{{.tasks_summary}}

Return every task as its own entry, preserving document order.`)

// projectDetailsResponse is the structured shape of the detail-gathering call.
type projectDetailsResponse struct {
	ProjectName string `json:"project_name"`
}

var projectDetailsSchema = llm.Schema{
	Name:     "project_details",
	Required: []string{"project_name"},
	Instructions: `{
  "project_name": "<short kebab-case project name>"
}`,
}

var projectDetailsPrompt = llm.MustPrompt("project_details", `Derive a short project name from this request.

User request:
{{.user_request}}`)

// answerResponse is the structured shape of the answer-query call.
type answerResponse struct {
	Answer string `json:"answer"`
}

var answerSchema = llm.Schema{
	Name:     "query_answer",
	Required: []string{"answer"},
	Instructions: `{
  "answer": "<direct answer to the question>"
}`,
}

var answerQueryPrompt = llm.MustPrompt("answer_query", `Answer a question raised while implementing this project. Ground the answer
in the requirements document; when the document is silent, say so and give
your best recommendation.

Requirements document:
{{.requirements_document}}

Question:
{{.question}}`)
