package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genforge/internal/workflow"
)

// scriptedClient returns canned responses in order.
type scriptedClient struct {
	responses []string
	err       error
	prompts   []string
	systems   []string
}

func (c *scriptedClient) Complete(_ context.Context, system, user string) (string, error) {
	c.systems = append(c.systems, system)
	c.prompts = append(c.prompts, user)
	if c.err != nil {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return "", errors.New("scripted client exhausted")
	}
	r := c.responses[0]
	c.responses = c.responses[1:]
	return r, nil
}

var testSchema = Schema{
	Name:         "selection",
	Required:     []string{"rag_agent_id", "details"},
	Instructions: `{"rag_agent_id": "<id>", "details": {}}`,
}

var testPrompt = MustPrompt("test", "Pick an agent for: {{.query}}")

type selection struct {
	RagAgentID string         `json:"rag_agent_id"`
	Details    map[string]any `json:"details"`
}

func TestInvokeStructuredParsesFirstResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"rag_agent_id": "doc-agent", "details": {}}`}}

	var out selection
	err := InvokeStructured(context.Background(), client, testPrompt, map[string]any{"query": "q"}, testSchema, &out)
	require.NoError(t, err)
	assert.Equal(t, "doc-agent", out.RagAgentID)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Pick an agent for: q")
	assert.Contains(t, client.systems[0], "rag_agent_id")
}

func TestInvokeStructuredStripsCodeFences(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"```json\n{\"rag_agent_id\": \"doc-agent\", \"details\": {}}\n```",
	}}

	var out selection
	err := InvokeStructured(context.Background(), client, testPrompt, map[string]any{"query": "q"}, testSchema, &out)
	require.NoError(t, err)
	assert.Equal(t, "doc-agent", out.RagAgentID)
}

func TestInvokeStructuredRetriesWithMissingKeys(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"rag_agent_id": "doc-agent"}`, // missing "details"
		`{"rag_agent_id": "doc-agent", "details": {}}`,
	}}

	var out selection
	err := InvokeStructured(context.Background(), client, testPrompt, map[string]any{"query": "q"}, testSchema, &out)
	require.NoError(t, err)
	assert.Equal(t, "doc-agent", out.RagAgentID)

	// The retry carries the previous output and the missing-key list.
	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], `{"rag_agent_id": "doc-agent"}`)
	assert.Contains(t, client.prompts[1], "details")
}

func TestInvokeStructuredSecondFailureIsValidation(t *testing.T) {
	client := &scriptedClient{responses: []string{"not json", "still not json"}}

	var out selection
	err := InvokeStructured(context.Background(), client, testPrompt, map[string]any{"query": "q"}, testSchema, &out)
	require.Error(t, err)
	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "selection", perr.Schema)
}

func TestInvokeStructuredTransportErrorIsTransient(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection reset")}

	var out selection
	err := InvokeStructured(context.Background(), client, testPrompt, map[string]any{"query": "q"}, testSchema, &out)
	require.Error(t, err)
	assert.Equal(t, workflow.KindTransient, workflow.KindOf(err))
}

func TestPromptRenderMissingVariable(t *testing.T) {
	p := MustPrompt("strict", "Hello {{.name}}")
	_, err := p.Render(map[string]any{})
	assert.Error(t, err)
}
