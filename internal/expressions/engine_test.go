package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEngine_Evaluate(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), `result == "ok"`, map[string]any{"result": "ok"})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), `result == "ok"`, map[string]any{"result": "failed"})
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestExprEngine_SharedContextAccess(t *testing.T) {
	e := NewExprEngine()

	data := map[string]any{
		"result": map[string]any{"chapters": 4},
		"shared": map[string]any{"language": "english"},
	}
	out, err := e.Evaluate(context.Background(), `shared.language == "english" && result.chapters > 2`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExprEngine_UndefinedVariableIsNil(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), `missing == nil`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExprEngine_EmptyExpression(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestExprEngine_CompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), `result ==`, map[string]any{"result": 1})
	assert.Error(t, err)
}

func TestCELEngine_Evaluate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), `result == "done"`, map[string]any{"result": "done"})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCELEngine_MissingBindingsDefault(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	// No data at all; shared defaults to an empty map.
	out, err := e.Evaluate(context.Background(), `size(shared) == 0`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestGoJQEngine_SingleOutput(t *testing.T) {
	e := NewGoJQEngine()

	data := map[string]any{
		"abstractions": []any{
			map[string]any{"name": "Driver"},
			map[string]any{"name": "Step"},
		},
	}
	out, err := e.Evaluate(context.Background(), `.abstractions | length`, data)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestGoJQEngine_MultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()

	data := map[string]any{
		"abstractions": []any{
			map[string]any{"name": "Driver"},
			map[string]any{"name": "Step"},
		},
	}
	out, err := e.Evaluate(context.Background(), `.abstractions[].name`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"Driver", "Step"}, out)
}

func TestGoJQEngine_ArrayInput(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `.[1]`, map[string]any{"input": []any{1.0, 2.0, 3.0}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)
}

func TestRegistry_PrefixDispatch(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	data := map[string]any{"result": "ok"}

	out, err := r.Evaluate(context.Background(), `result == "ok"`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = r.Evaluate(context.Background(), `cel:result == "ok"`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = r.Evaluate(context.Background(), `jq:.result`, data)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
