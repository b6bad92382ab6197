// Package codeparse validates generated Go source with tree-sitter before it
// is written to disk. Model output is untrusted: a file that does not parse
// never reaches the project directory.
package codeparse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// Issue is one syntax problem found in a source file.
type Issue struct {
	Line    uint32
	Column  uint32
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%d:%d: %s", i.Line+1, i.Column+1, i.Message)
}

// ValidationError reports every syntax issue in a rejected file.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "source failed validation: " + strings.Join(parts, "; ")
}

// Function is a top-level function found in a parsed file.
type Function struct {
	Name      string
	Signature string
}

// Validator parses Go source. A Validator owns one tree-sitter parser and is
// not safe for concurrent use; Close releases the parser.
type Validator struct {
	parser *sitter.Parser
}

// NewValidator creates a Go source validator.
func NewValidator() *Validator {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &Validator{parser: p}
}

// Close releases the underlying parser.
func (v *Validator) Close() {
	v.parser.Close()
}

// Validate parses source and returns a ValidationError listing every ERROR
// and missing node when the file does not form a valid parse tree.
func (v *Validator) Validate(ctx context.Context, source []byte) error {
	tree, err := v.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return fmt.Errorf("codeparse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}

	verr := &ValidationError{}
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch {
		case n.IsMissing():
			verr.Issues = append(verr.Issues, Issue{
				Line:    n.StartPoint().Row,
				Column:  n.StartPoint().Column,
				Message: fmt.Sprintf("missing %s", n.Type()),
			})
			return
		case n.Type() == "ERROR":
			verr.Issues = append(verr.Issues, Issue{
				Line:    n.StartPoint().Row,
				Column:  n.StartPoint().Column,
				Message: "syntax error",
			})
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	if len(verr.Issues) == 0 {
		verr.Issues = append(verr.Issues, Issue{Message: "syntax error"})
	}
	return verr
}

// Functions lists the top-level function declarations in source. The tester
// uses the list to check that generated tests cover every generated skeleton.
func (v *Validator) Functions(ctx context.Context, source []byte) ([]Function, error) {
	tree, err := v.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("codeparse: %w", err)
	}
	defer tree.Close()

	text := func(n *sitter.Node) string { return n.Content(source) }

	var fns []Function
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		if n.Type() != "function_declaration" && n.Type() != "method_declaration" {
			continue
		}
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := text(nameNode)
		sig := "func " + name
		if params := n.ChildByFieldName("parameters"); params != nil {
			sig += text(params)
		}
		if result := n.ChildByFieldName("result"); result != nil {
			sig += " " + text(result)
		}
		fns = append(fns, Function{Name: name, Signature: sig})
	}
	return fns, nil
}

// PackageName returns the package clause of source, or "" when absent.
func (v *Validator) PackageName(ctx context.Context, source []byte) (string, error) {
	tree, err := v.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return "", fmt.Errorf("codeparse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		if n.Type() != "package_clause" {
			continue
		}
		for j := 0; j < int(n.ChildCount()); j++ {
			c := n.Child(j)
			if c.Type() == "package_identifier" {
				return c.Content(source), nil
			}
		}
	}
	return "", nil
}
