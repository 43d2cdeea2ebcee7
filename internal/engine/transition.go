package engine

import (
	"context"
	"log/slog"

	"github.com/avelez/codetour/internal/expressions"
)

// DefaultLabel is the implicit key installed by Then.
const DefaultLabel = "default"

// Predicate decides whether a conditional edge matches a step's
// post-process result.
type Predicate func(result any) bool

type transitionKind int

const (
	kindLabel transitionKind = iota
	kindPredicate
)

// transition is one (key, successor) pair of a node's transition table.
// The key is a discriminated union: a plain label or a predicate.
type transition struct {
	kind  transitionKind
	label string
	pred  Predicate
	to    *Node
}

// addLabelEdge registers a labeled edge. Registering the same label twice
// overwrites the prior successor in place (keeping its registration
// position) and logs a warning.
func (n *Node) addLabelEdge(label string, to *Node) {
	for i := range n.transitions {
		t := &n.transitions[i]
		if t.kind == kindLabel && t.label == label {
			n.logger.Warn("overwriting transition",
				slog.String("step", n.step.Name()),
				slog.String("label", label))
			t.to = to
			return
		}
	}
	n.transitions = append(n.transitions, transition{kind: kindLabel, label: label, to: to})
}

// Then registers next under the implicit "default" label and returns next so
// linear pipelines chain: a.Then(b).Then(c).
func (n *Node) Then(next *Node) *Node {
	n.addLabelEdge(DefaultLabel, next)
	return next
}

// On starts a labeled edge: node.On("needs_review").To(review).
func (n *Node) On(label string) *EdgeBuilder {
	return &EdgeBuilder{src: n, label: label}
}

// When starts a predicate edge: node.When(pred).To(target). Predicate edges
// match only when pred returns true for the step's post-process result, and
// only if no plain-label edge was registered before them: a label edge is
// taken unconditionally the moment selection reaches it, so predicates
// registered after one are unreachable. Register predicate edges first.
func (n *Node) When(pred Predicate) *EdgeBuilder {
	return &EdgeBuilder{src: n, pred: pred}
}

// EdgeBuilder is the transient value pairing a source node with a pending
// edge key. It exists only to complete the node.On(label).To(target) wiring
// form and holds no state afterwards.
type EdgeBuilder struct {
	src   *Node
	label string
	pred  Predicate
}

// To installs the pending edge and returns the target for chaining.
func (e *EdgeBuilder) To(target *Node) *Node {
	if e.pred != nil {
		e.src.transitions = append(e.src.transitions, transition{kind: kindPredicate, pred: e.pred, to: target})
		return target
	}
	e.src.addLabelEdge(e.label, target)
	return target
}

// selectNext applies the transition-selection rule to result: scan edges in
// registration order; take a predicate edge only if it evaluates true,
// otherwise keep scanning; take a label edge unconditionally. Returns nil
// when nothing matches, which terminates the run.
func (n *Node) selectNext(result any) *Node {
	for _, t := range n.transitions {
		switch t.kind {
		case kindPredicate:
			if t.pred(result) {
				return t.to
			}
		default:
			return t.to
		}
	}
	return nil
}

// ExprPredicate compiles an expression into a Predicate using the given
// registry ("cel:" prefix selects CEL, plain expressions use expr-lang). The
// step result is bound as `result`. Evaluation errors and non-boolean
// results are logged and treated as no-match.
func ExprPredicate(reg *expressions.Registry, expression string, logger *slog.Logger) Predicate {
	return func(result any) bool {
		out, err := reg.Evaluate(context.Background(), expression, map[string]any{"result": result})
		if err != nil {
			logger.Warn("predicate evaluation failed",
				slog.String("expression", expression),
				slog.String("error", err.Error()))
			return false
		}
		b, ok := out.(bool)
		if !ok {
			logger.Warn("predicate did not yield a boolean",
				slog.String("expression", expression))
			return false
		}
		return b
	}
}
