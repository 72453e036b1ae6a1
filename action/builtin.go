package action

import "github.com/mohitkumar/chatflow/model"

// RegisterBuiltins adds the script, transform and generic http handlers plus one
// http handler per configured endpoint.
func RegisterBuiltins(b *Builder, httpActions []HttpActionConfig) *Builder {
	b.Register(JAVASCRIPT, NewJsAction(), model.FAILURE_POLICY_HALT).
		Register(JQ, NewJqAction(), model.FAILURE_POLICY_HALT).
		Register(JSON_MAP, NewJsonMapAction(), model.FAILURE_POLICY_HALT).
		Register(HTTP, NewHttpAction(HttpActionConfig{}), model.FAILURE_POLICY_HALT)
	for _, conf := range httpActions {
		b.Register(conf.Name, NewHttpAction(conf), model.FailurePolicy(conf.OnFailure))
	}
	return b
}
