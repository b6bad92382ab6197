// Package llm defines the language-model contract the workflow core consumes
// and the providers that satisfy it. The core treats a model as an opaque
// function from rendered prompt to text; structured calls layer a JSON schema
// check and a parse-retry loop on top.
package llm

import "context"

// Client is the minimal contract a language-model provider satisfies.
// Timeouts are the provider's responsibility; callers pass ctx through from
// the running workflow node.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
