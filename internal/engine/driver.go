package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avelez/codetour/internal/logging"
)

// Node wraps a Step with its retry policy, fixed parameters and transition
// table. Nodes and their transitions are wired once when the pipeline is
// assembled and reused for every run. A Node carries no per-run state;
// attempt counters live in the driver's execution frame, so the same node
// graph may be shared across concurrent drivers.
type Node struct {
	step        Step
	retry       RetryPolicy
	params      map[string]any
	transitions []transition
	logger      *slog.Logger
}

// Name returns the wrapped step's name.
func (n *Node) Name() string { return n.step.Name() }

// SetParams fixes the node's parameters. Set once before a run; exposed to
// the step phases via ParamsFrom and read-only during execution.
func (n *Node) SetParams(params map[string]any) { n.params = params }

// Builder creates nodes sharing one logger.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder returns a Builder. A nil logger falls back to text output on
// stderr.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Builder{logger: logger}
}

// Node wraps step with the given retry policy.
func (b *Builder) Node(step Step, retry RetryPolicy) *Node {
	return &Node{
		step:   step,
		retry:  retry.normalize(),
		logger: b.logger,
	}
}

// Driver walks the node graph from a start node until the transition rule
// yields no successor. A Driver owns one shared Context and one visited
// history, both run-scoped; use one Driver per concurrent run.
type Driver struct {
	start   *Node
	current *Node
	shared  *Context
	history []*Node
	logger  *slog.Logger
}

// NewDriver creates a Driver rooted at start.
func NewDriver(start *Node, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Driver{
		start:   start,
		current: start,
		shared:  NewContext(),
		logger:  logger,
	}
}

// Run executes the pipeline. initialParams is merged into the shared context
// (existing keys overwritten), the cursor returns to the start node and the
// visited history is cleared; then nodes execute one at a time (Prep, the
// retry-wrapped Exec, Post) with the post-process result feeding transition
// selection. Run returns the last post-process result, or the first
// unhandled phase error (shared context and history are left as reached).
func (d *Driver) Run(ctx context.Context, initialParams map[string]any) (any, error) {
	d.shared.Merge(initialParams)
	d.current = d.start
	d.history = d.history[:0]

	var result any
	for node := d.start; node != nil; {
		d.current = node
		d.history = append(d.history, node)

		stepCtx := logging.WithStep(withParams(ctx, node.params), node.step.Name())
		logging.LogWith(stepCtx, d.logger).Debug("step started")

		prepRes, err := node.step.Prep(stepCtx, d.shared)
		if err != nil {
			return nil, fmt.Errorf("step %s: prep: %w", node.step.Name(), err)
		}

		// execWithRetry already returns a typed error carrying the step name.
		execRes, err := d.execWithRetry(stepCtx, node, prepRes)
		if err != nil {
			return nil, err
		}

		result, err = node.step.Post(stepCtx, d.shared, prepRes, execRes)
		if err != nil {
			return nil, fmt.Errorf("step %s: post: %w", node.step.Name(), err)
		}

		logging.LogWith(stepCtx, d.logger).Debug("step finished")
		node = node.selectNext(result)
	}

	d.current = nil
	return result, nil
}

// execWithRetry attempts Exec up to the node's MaxAttempts. Failed attempts
// before the last one pause for the policy delay, then retry; a non-retryable
// failure stops the loop early. After the final failure ExecFallback runs
// exactly once with that failure; its result (or re-raised error) becomes the
// step outcome. The attempt counter is part of this run's frame, carried on
// the context, never stored on the node.
func (d *Driver) execWithRetry(ctx context.Context, node *Node, prepRes any) (any, error) {
	attempts := node.retry.MaxAttempts

	var lastErr error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := logging.WithAttempt(ctx, attempt)
		made = attempt

		out, err := node.step.Exec(attemptCtx, prepRes)
		if err == nil {
			return out, nil
		}
		lastErr = err
		logging.LogWith(attemptCtx, d.logger).Warn("step attempt failed",
			slog.String("error", err.Error()))

		if !IsRetryable(err) {
			break
		}
		if attempt < attempts && node.retry.Delay > 0 {
			// Blocking pause between attempts; runs are synchronous and
			// cancellation across steps is out of scope.
			time.Sleep(node.retry.Delay)
		}
	}

	fallbackCtx := logging.WithAttempt(ctx, made)
	out, err := node.step.ExecFallback(fallbackCtx, prepRes, lastErr)
	if err != nil {
		return nil, classifyExecError(node.step.Name(), made, err)
	}
	logging.LogWith(fallbackCtx, d.logger).Info("fallback supplied a result")
	return out, nil
}

// Reset returns the driver to its initial state: cursor back to the start
// node, shared context emptied, history cleared. Node topology is untouched.
func (d *Driver) Reset() {
	d.current = d.start
	d.shared.Clear()
	d.history = d.history[:0]
}

// Shared returns the driver's shared context.
func (d *Driver) Shared() *Context { return d.shared }

// Current returns the node the cursor points at: the start node before a
// run, the executing node during one, nil after normal termination.
func (d *Driver) Current() *Node { return d.current }

// History returns the nodes visited by the current run, in order.
func (d *Driver) History() []*Node { return d.history }
