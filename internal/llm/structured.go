package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"genforge/internal/logging"
	"genforge/internal/workflow"
)

// Schema describes the structured-output contract for a model call.
// Required names the top-level keys that must be present in the response;
// a "successful" parse with a missing required key is the same class of
// failure as a parse error.
type Schema struct {
	Name         string
	Required     []string
	Instructions string
}

// ParseError reports a structured response that failed to parse or came back
// without required keys.
type ParseError struct {
	Schema      string
	Raw         string
	MissingKeys []string
	Err         error
}

func (e *ParseError) Error() string {
	if len(e.MissingKeys) > 0 {
		return fmt.Sprintf("schema %q: response missing required keys %v", e.Schema, e.MissingKeys)
	}
	return fmt.Sprintf("schema %q: response did not parse: %v", e.Schema, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var retryPrompt = MustPrompt("structured_retry", `Your previous response could not be used.

Previous response:
{{.previous}}

Problem: {{.problem}}

Answer the original request again, as a single JSON object matching the schema exactly.

Original request:
{{.request}}`)

// InvokeStructured renders prompt with vars, invokes the client demanding a
// JSON object matching schema, and decodes the result into out. A response
// that fails to parse or misses required keys is retried once with the
// previous output and the problem description fed back; a second failure is
// returned as a validation error.
func InvokeStructured(ctx context.Context, client Client, prompt *Prompt, vars map[string]any, schema Schema, out any) error {
	rendered, err := prompt.Render(vars)
	if err != nil {
		return workflow.Programming(err)
	}
	system := systemInstruction(schema)

	raw, err := client.Complete(ctx, system, rendered)
	if err != nil {
		return fmt.Errorf("llm: %s: %w", prompt.Name, err)
	}
	perr := decode(raw, schema, out)
	if perr == nil {
		return nil
	}
	logging.L(logging.CategoryLLM).Warn("structured response rejected, retrying",
		zap.String("prompt", prompt.Name),
		zap.String("schema", schema.Name),
		zap.Strings("missing_keys", perr.MissingKeys),
		zap.Error(perr.Err))

	retryUser, err := retryPrompt.Render(map[string]any{
		"previous": raw,
		"problem":  perr.Error(),
		"request":  rendered,
	})
	if err != nil {
		return workflow.Programming(err)
	}
	raw, err = client.Complete(ctx, system, retryUser)
	if err != nil {
		return fmt.Errorf("llm: %s: retry: %w", prompt.Name, err)
	}
	if perr := decode(raw, schema, out); perr != nil {
		return workflow.Validation(perr)
	}
	return nil
}

func systemInstruction(schema Schema) string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else. No prose, no code fences.\n")
	fmt.Fprintf(&b, "Schema %q:\n%s\n", schema.Name, schema.Instructions)
	if len(schema.Required) > 0 {
		fmt.Fprintf(&b, "Required keys: %s\n", strings.Join(schema.Required, ", "))
	}
	return b.String()
}

func decode(raw string, schema Schema, out any) *ParseError {
	cleaned := extractJSON(raw)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return &ParseError{Schema: schema.Name, Raw: raw, Err: err}
	}
	var missing []string
	for _, key := range schema.Required {
		if _, ok := probe[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &ParseError{Schema: schema.Name, Raw: raw, MissingKeys: missing}
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &ParseError{Schema: schema.Name, Raw: raw, Err: err}
	}
	return nil
}

// extractJSON strips code fences and surrounding prose, keeping the outermost
// JSON object. Models occasionally fence their output despite instructions.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}
