package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/mohitkumar/chatflow/logger"
	"go.uber.org/zap"
)

const JAVASCRIPT = "javascript"

// NewJsAction runs params["script"] with $ bound to the context variables and
// params bound to the resolved step params. Whatever $ holds afterwards is
// returned as the context patch.
func NewJsAction() Handler {
	return HandlerFunc(func(ctx context.Context, req Request) (Result, error) {
		script, _ := req.Params["script"].(string)
		if script == "" {
			return Result{}, fmt.Errorf("step %s, script can not be empty", req.StepId)
		}
		logger.Debug("running javascript action", zap.String("contact", req.ContactId), zap.String("step", req.StepId))
		data, err := json.Marshal(req.Snapshot.Variables)
		if err != nil {
			return Result{}, err
		}
		params, err := json.Marshal(req.Params)
		if err != nil {
			return Result{}, err
		}
		vm := goja.New()
		stop := context.AfterFunc(ctx, func() {
			vm.Interrupt("context done")
		})
		defer stop()
		expression := fmt.Sprintf("var $ = %s;\nvar params = %s;\n", data, params) + script
		if _, err := vm.RunString(expression); err != nil {
			return Result{}, fmt.Errorf("error executing javascript %w", err)
		}
		val, err := vm.RunString("$")
		if err != nil {
			return Result{}, fmt.Errorf("error executing javascript %w", err)
		}
		res, err := json.Marshal(val.Export())
		if err != nil {
			return Result{}, err
		}
		var output map[string]any
		if err := json.Unmarshal(res, &output); err != nil {
			return Result{}, fmt.Errorf("javascript action must leave an object in $: %w", err)
		}
		return Result{Success: true, ContextPatch: output}, nil
	})
}
