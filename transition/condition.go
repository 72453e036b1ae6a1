package transition

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/cel-go/cel"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/util"
)

// Condition is a compiled transition predicate.
type Condition interface {
	Evaluate(snap model.Snapshot) (bool, error)
}

type conditionFunc func(snap model.Snapshot) (bool, error)

func (f conditionFunc) Evaluate(snap model.Snapshot) (bool, error) {
	return f(snap)
}

var (
	celOnce sync.Once
	celEnv  *cel.Env
	celErr  error
)

func getCelEnv() (*cel.Env, error) {
	celOnce.Do(func() {
		celEnv, celErr = cel.NewEnv(
			cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("flags", cel.MapType(cel.StringType, cel.BoolType)),
		)
	})
	return celEnv, celErr
}

// CompileCondition turns a condition definition into an evaluable predicate.
func CompileCondition(def model.ConditionDef) (Condition, error) {
	switch def.Type {
	case model.CONDITION_ALWAYS, "":
		return conditionFunc(func(model.Snapshot) (bool, error) { return true, nil }), nil
	case model.CONDITION_EQUALS, model.CONDITION_NOT_EQUALS:
		if def.Variable == "" {
			return nil, fmt.Errorf("%s condition needs a variable", def.Type)
		}
		negate := def.Type == model.CONDITION_NOT_EQUALS
		return conditionFunc(func(snap model.Snapshot) (bool, error) {
			value, ok := util.Lookup(snap.Variables, def.Variable)
			equal := ok && valuesEqual(value, def.Value)
			return equal != negate, nil
		}), nil
	case model.CONDITION_EXISTS:
		if def.Variable == "" {
			return nil, fmt.Errorf("exists condition needs a variable")
		}
		return conditionFunc(func(snap model.Snapshot) (bool, error) {
			_, ok := util.Lookup(snap.Variables, def.Variable)
			return ok, nil
		}), nil
	case model.CONDITION_FLAG:
		if def.Flag == "" {
			return nil, fmt.Errorf("flag condition needs a flag")
		}
		return conditionFunc(func(snap model.Snapshot) (bool, error) {
			return snap.Flags[def.Flag], nil
		}), nil
	case model.CONDITION_EXPR:
		return compileExpr(def.Expression)
	case model.CONDITION_CEL:
		return compileCel(def.Expression)
	}
	return nil, fmt.Errorf("unknown condition type %s", def.Type)
}

func compileExpr(expression string) (Condition, error) {
	if expression == "" {
		return nil, fmt.Errorf("expr condition needs an expression")
	}
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{"vars": map[string]any{}, "flags": map[string]bool{}}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("expr compile error in %q: %w", expression, err)
	}
	return conditionFunc(func(snap model.Snapshot) (bool, error) {
		env := make(map[string]any, len(snap.Variables)+2)
		for k, v := range snap.Variables {
			env[k] = v
		}
		env["vars"] = snap.Variables
		env["flags"] = snap.Flags
		out, err := vm.Run(program, env)
		if err != nil {
			return false, fmt.Errorf("expr evaluation failed for %q: %w", expression, err)
		}
		return asBool(expression, out)
	}), nil
}

func compileCel(expression string) (Condition, error) {
	if expression == "" {
		return nil, fmt.Errorf("cel condition needs an expression")
	}
	env, err := getCelEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error in %q: %w", expression, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error for %q: %w", expression, err)
	}
	return conditionFunc(func(snap model.Snapshot) (bool, error) {
		out, _, err := program.Eval(map[string]any{
			"vars":  snap.Variables,
			"flags": snap.Flags,
		})
		if err != nil {
			return false, fmt.Errorf("CEL evaluation failed for %q: %w", expression, err)
		}
		return asBool(expression, out.Value())
	}), nil
}

func asBool(expression string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, want bool", expression, v)
	}
	return b, nil
}

// valuesEqual compares numbers by value and everything else by text, so a
// stored "450" matches a definition value of 450.
func valuesEqual(a any, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
