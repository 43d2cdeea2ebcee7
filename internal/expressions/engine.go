package expressions

import (
	"context"
	"strings"
)

// Engine evaluates expressions against pipeline data.
// Three implementations: Expr (transition predicates, default), CEL
// (predicates with the "cel:" prefix), GoJQ (extracting fields from
// LLM JSON replies, "jq:" prefix).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry routes an expression to an engine by prefix.
// "cel:<expr>" → CEL, "jq:<expr>" → GoJQ, anything else → Expr.
type Registry struct {
	expr *ExprEngine
	cel  *CELEngine
	jq   *GoJQEngine
}

// NewRegistry creates a Registry with all three engines ready.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Registry{
		expr: NewExprEngine(),
		cel:  celEngine,
		jq:   NewGoJQEngine(),
	}, nil
}

// Evaluate strips the engine prefix and dispatches to the matching engine.
func (r *Registry) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	switch {
	case strings.HasPrefix(expression, "cel:"):
		return r.cel.Evaluate(ctx, strings.TrimPrefix(expression, "cel:"), data)
	case strings.HasPrefix(expression, "jq:"):
		return r.jq.Evaluate(ctx, strings.TrimPrefix(expression, "jq:"), data)
	default:
		return r.expr.Evaluate(ctx, expression, data)
	}
}
