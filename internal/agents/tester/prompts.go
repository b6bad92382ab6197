package tester

import "genforge/internal/llm"

// filesResponse is the structured shape the generation calls share.
type filesResponse struct {
	Files []GeneratedFile `json:"files"`
}

var filesSchema = llm.Schema{
	Name:     "generated_files",
	Required: []string{"files"},
	Instructions: `{
  "files": [
    {"path": "<path relative to the project root>", "content": "<complete Go source>"}
  ]
}`,
}

var skeletonPrompt = llm.MustPrompt("generate_skeleton", `Generate Go function skeletons for this task: exported signatures with doc
comments and bodies that return zero values. Complete compilable files only.

Project context:
{{.requirements_overview}}

Task:
{{.task_description}}`)

var testsPrompt = llm.MustPrompt("generate_tests", `Generate Go unit tests for these skeletons using the standard testing
package. One _test.go file per skeleton file found below. Complete compilable
files only.

Skeleton files:
{{.skeleton_files}}

Task:
{{.task_description}}`)
