package celengine

import (
	"testing"

	"github.com/google/cel-go/cel"
	"github.com/stretchr/testify/require"
)

func newRepEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(
		Variable{Name: "total_sales", Type: cel.IntType},
		Variable{Name: "total_revenue", Type: cel.DoubleType},
		Variable{Name: "level", Type: cel.IntType},
	)
	require.NoError(t, err)
	return e
}

func TestEvaluate(t *testing.T) {
	e := newRepEvaluator(t)
	attrs := map[string]any{"total_sales": int64(12), "total_revenue": 450.5, "level": int64(2)}

	ok, err := e.Evaluate("total_sales >= 10 && level > 1", attrs)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate("total_revenue > 1000.0", attrs)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidate_RejectsUnknownAndNonBool(t *testing.T) {
	e := newRepEvaluator(t)

	require.Error(t, e.Validate("unknown_field > 1"))
	require.Error(t, e.Validate("total_sales + 1"))
	require.NoError(t, e.Validate("level == 3"))
}

func TestEvaluate_MixedNumericComparison(t *testing.T) {
	e := newRepEvaluator(t)
	attrs := map[string]any{"total_sales": int64(12), "total_revenue": 450.5, "level": int64(2)}

	require.NoError(t, e.Validate("total_revenue >= 100"))

	ok, err := e.Evaluate("total_revenue >= 100 && total_sales > 11.5", attrs)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate("total_revenue < 450", attrs)
	require.NoError(t, err)
	require.False(t, ok)
}
