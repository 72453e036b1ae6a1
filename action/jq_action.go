package action

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"
)

const JQ = "jq"

// NewJqAction evaluates params["query"] against {"vars": ..., "params": ...}. An
// object result is the context patch; any other result is stored under
// params["target"].
func NewJqAction() Handler {
	return HandlerFunc(func(ctx context.Context, req Request) (Result, error) {
		expression, _ := req.Params["query"].(string)
		if expression == "" {
			return Result{}, fmt.Errorf("step %s, query can not be empty", req.StepId)
		}
		query, err := gojq.Parse(expression)
		if err != nil {
			return Result{}, fmt.Errorf("jq parse error in %q: %w", expression, err)
		}
		code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
		if err != nil {
			return Result{}, fmt.Errorf("jq compile error in %q: %w", expression, err)
		}
		input := map[string]any{
			"vars":   normalize(req.Snapshot.Variables),
			"params": normalize(req.Params),
		}
		iter := code.RunWithContext(ctx, input)
		out, ok := iter.Next()
		if !ok {
			return Result{Success: true}, nil
		}
		if err, isErr := out.(error); isErr {
			return Result{}, fmt.Errorf("jq evaluation failed for %q: %w", expression, err)
		}
		if patch, isMap := out.(map[string]any); isMap {
			return Result{Success: true, ContextPatch: patch}, nil
		}
		target, _ := req.Params["target"].(string)
		if target == "" {
			return Result{}, fmt.Errorf("jq result %T needs a target variable", out)
		}
		return Result{Success: true, ContextPatch: map[string]any{target: out}}, nil
	})
}

// normalize converts values into the types gojq accepts.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float32:
		return float64(val)
	case []string:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
