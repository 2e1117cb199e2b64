package dsl_test

import (
	"encoding/json"
	"testing"

	"github.com/kagenti/mcp-gateway/internal/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_StringConcatenationScenario(t *testing.T) {
	ctx := dsl.EvalContext{
		Args:   map[string]any{"user": map[string]any{"id": 42.0}},
		Config: map[string]any{"baseUrl": "https://x"},
	}
	v, err := dsl.Eval(`config.baseUrl + "/users/" + toString(args.user.id)`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://x/users/42", v.AsString())
}

func TestEval_DivisionByZeroIsDSLError(t *testing.T) {
	_, err := dsl.Eval("1/0", dsl.EvalContext{})
	require.Error(t, err)
}

func TestEval_TotalMemberAccessReturnsNullOnAbsence(t *testing.T) {
	v, err := dsl.Eval("args.missing.deeper", dsl.EvalContext{Args: map[string]any{}})
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEval_TernaryIsLazy(t *testing.T) {
	v, err := dsl.Eval(`true ? "yes" : 1/0`, dsl.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, "yes", v.AsString())
}

func TestEval_PipeIsSugarForCall(t *testing.T) {
	a, err := dsl.Eval(`args.name | toString`, dsl.EvalContext{Args: map[string]any{"name": "bob"}})
	require.NoError(t, err)
	b, err := dsl.Eval(`toString(args.name)`, dsl.EvalContext{Args: map[string]any{"name": "bob"}})
	require.NoError(t, err)
	assert.Equal(t, b.AsString(), a.AsString())
}

func TestEval_UnknownFunctionErrors(t *testing.T) {
	_, err := dsl.Eval("nope(1)", dsl.EvalContext{})
	assert.Error(t, err)
}

func TestEval_DefaultBuiltin(t *testing.T) {
	v, err := dsl.Eval(`default(args.missing, "fallback")`, dsl.EvalContext{Args: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "fallback", v.AsString())

	v, err = dsl.Eval(`default(args.present, "fallback")`, dsl.EvalContext{Args: map[string]any{"present": "value"}})
	require.NoError(t, err)
	assert.Equal(t, "value", v.AsString())
}

func TestEval_MapFilterFindSort(t *testing.T) {
	ctx := dsl.EvalContext{Args: map[string]any{
		"items": []any{
			map[string]any{"id": 2.0, "name": "b"},
			map[string]any{"id": 1.0, "name": "a"},
		},
	}}

	v, err := dsl.Eval(`map(args.items, "name")`, ctx)
	require.NoError(t, err)
	assert.Equal(t, `["b","a"]`, mustJSON(t, v))

	v, err = dsl.Eval(`filter(args.items, "name", "a")`, ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, len(v.ToAny().([]any)))

	v, err = dsl.Eval(`find(args.items, "name", "b")`, ctx)
	require.NoError(t, err)
	assert.False(t, v.IsNull())

	v, err = dsl.Eval(`sort(args.items, "id")`, ctx)
	require.NoError(t, err)
	first := v.Index(0)
	assert.Equal(t, "a", first.Member("name").AsString())
}

func TestEval_ObjectAndArrayLiterals(t *testing.T) {
	v, err := dsl.Eval(`{id: 1, tags: ["a", "b"]}`, dsl.EvalContext{})
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"tags":["a","b"]}`, mustJSON(t, v))
}

func TestParse_RoundTripEquivalence(t *testing.T) {
	exprs := []string{
		`config.baseUrl + "/users/" + toString(args.user.id)`,
		`a.b[0] == 1 ? "x" : "y"`,
		`args.name | toString`,
	}
	for _, src := range exprs {
		e1, err := dsl.Parse(src)
		require.NoError(t, err)
		printed := e1.String()
		e2, err := dsl.Parse(printed)
		require.NoError(t, err, "re-parsing printed form %q", printed)

		v1, err1 := dsl.Eval(src, dsl.EvalContext{
			Args:   map[string]any{"user": map[string]any{"id": 1.0}, "name": "bob"},
			Config: map[string]any{"baseUrl": "https://x"},
		})
		v2, err2 := dsl.Eval(e2.String(), dsl.EvalContext{
			Args:   map[string]any{"user": map[string]any{"id": 1.0}, "name": "bob"},
			Config: map[string]any{"baseUrl": "https://x"},
		})
		require.Equal(t, err1 == nil, err2 == nil)
		if err1 == nil {
			assert.Equal(t, v1.AsString(), v2.AsString())
		}
	}
}

func TestEval_JSONPathBuiltin(t *testing.T) {
	ctx := dsl.EvalContext{Response: map[string]any{
		"store": map[string]any{"book": []any{
			map[string]any{"title": "Go in Action"},
		}},
	}}
	v, err := dsl.Eval(`jsonpath(response, "$.store.book[0].title")`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Go in Action", v.AsString())
}

func TestEngine_EvaluateStringSurfacesDSLError(t *testing.T) {
	e := dsl.NewEngine()
	_, err := e.EvaluateString("1/0", dsl.EvalContext{})
	require.Error(t, err)
}

func mustJSON(t *testing.T, v dsl.Value) string {
	t.Helper()
	b, err := json.Marshal(v.ToAny())
	require.NoError(t, err)
	return string(b)
}
