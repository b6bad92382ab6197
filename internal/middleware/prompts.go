package middleware

import "genforge/internal/llm"

var selectionPrompt = llm.MustPrompt("rag_agent_selection", `You route questions to specialist retrieval agents.

Available agents, one per line as "id: description":
{{.agent_list}}

Question:
{{.query}}

Pick the single agent best suited to answer the question. If none of the
agents can answer it, pick the fallback entry. For every agent, explain in
one sentence why it is or is not suitable and give a confidence score
between 0.0 and 1.0.`)

// selectionSchema is the structured contract for the ranking call.
var selectionSchema = llm.Schema{
	Name:     "rag_agent_selection",
	Required: []string{"rag_agent_id", "details"},
	Instructions: `{
  "rag_agent_id": "<id of the chosen agent>",
  "details": {
    "<agent id>": {"reason": "<one sentence>", "confidence": <0.0-1.0>}
  }
}`,
}

// selectionResponse mirrors selectionSchema.
type selectionResponse struct {
	RagAgentID string                     `json:"rag_agent_id"`
	Details    map[string]SelectionDetail `json:"details"`
}
