package celengine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

// Evaluator compiles boolean expressions once per (env, expression) and caches the
// program. Variables are declared up front so unknown identifiers fail at compile time.
type Evaluator struct {
	env      *cel.Env
	programs sync.Map
}

// Variable declares one input of the expression environment.
type Variable struct {
	Name string
	Type *cel.Type
}

// NewEvaluator builds the environment. Ordering comparisons accept mixed int and
// double operands, so `total_revenue >= 100` needs no `100.0`.
func NewEvaluator(vars ...Variable) (*Evaluator, error) {
	opts := make([]cel.EnvOption, 0, len(vars)+1)
	opts = append(opts, cel.CrossTypeNumericComparisons(true))
	for _, v := range vars {
		opts = append(opts, cel.Variable(v.Name, v.Type))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, err
	}
	return &Evaluator{env: env}, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	if v, ok := e.programs.Load(expr); ok {
		return v.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}

	e.programs.Store(expr, prg)
	return prg, nil
}

// Validate compiles expr without running it.
func (e *Evaluator) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

func (e *Evaluator) Evaluate(expr string, attrs map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		zap.L().Debug("non-bool expression result", zap.String("expr", expr), zap.Any("value", out.Value()))
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}

	return b, nil
}
