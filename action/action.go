package action

import (
	"context"
	"fmt"
	"sort"

	"github.com/mohitkumar/chatflow/model"
)

// Request is what a handler sees: the resolved step params and a read-only
// snapshot of the contact's context.
type Request struct {
	ContactId string
	FlowName  string
	StepId    string
	Params    map[string]any
	Snapshot  model.Snapshot
}

// Result reports the outcome of an action. ContextPatch is merged into the
// context variables in the same commit as the step.
type Result struct {
	Success      bool
	ContextPatch map[string]any
}

type Handler interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

type HandlerFunc func(ctx context.Context, req Request) (Result, error)

func (f HandlerFunc) Invoke(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

type entry struct {
	handler Handler
	policy  model.FailurePolicy
}

// Registry maps action names to handlers. It is built once and never changes.
type Registry struct {
	entries map[string]entry
}

type Builder struct {
	entries map[string]entry
	err     error
}

func NewBuilder() *Builder {
	return &Builder{entries: make(map[string]entry)}
}

// Register adds a handler. policy is the failure policy used when a step does not
// declare one; empty means halt.
func (b *Builder) Register(name string, handler Handler, policy model.FailurePolicy) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" || handler == nil {
		b.err = fmt.Errorf("action name and handler are required")
		return b
	}
	if _, ok := b.entries[name]; ok {
		b.err = fmt.Errorf("action %s registered twice", name)
		return b
	}
	if policy == "" {
		policy = model.FAILURE_POLICY_HALT
	}
	b.entries[name] = entry{handler: handler, policy: policy}
	return b
}

func (b *Builder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	entries := make(map[string]entry, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	return &Registry{entries: entries}, nil
}

func (r *Registry) Get(name string) (Handler, bool) {
	e, ok := r.entries[name]
	return e.handler, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Policy resolves the failure policy of a step: the step's own setting wins over
// the action default.
func (r *Registry) Policy(name string, stepPolicy model.FailurePolicy) model.FailurePolicy {
	if stepPolicy != "" {
		return stepPolicy
	}
	if e, ok := r.entries[name]; ok {
		return e.policy
	}
	return model.FAILURE_POLICY_HALT
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
