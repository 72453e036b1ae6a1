package action

import "context"

const JSON_MAP = "json_map"

// NewJsonMapAction copies its resolved params into the context. Params holding
// jsonpath references are resolved before the handler runs.
func NewJsonMapAction() Handler {
	return HandlerFunc(func(ctx context.Context, req Request) (Result, error) {
		patch := make(map[string]any, len(req.Params))
		for k, v := range req.Params {
			patch[k] = v
		}
		return Result{Success: true, ContextPatch: patch}, nil
	})
}
