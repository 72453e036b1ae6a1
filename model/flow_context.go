package model

import "time"

type FlowState int

const RUNNING FlowState = 1
const HALTED FlowState = 2

const maxAppliedEntries = 64
const maxCompletedEntries = 256

type FlowContext struct {
	ContactId      string          `json:"contactId"`
	FlowName       string          `json:"flowName"`
	FlowVersion    int             `json:"flowVersion"`
	InstanceId     string          `json:"instanceId"`
	ActiveStep     string          `json:"activeStep"`
	StepEntered    bool            `json:"stepEntered"`
	StepSeq        int64           `json:"stepSeq"`
	Attempts       int             `json:"attempts"`
	Variables      map[string]any  `json:"variables"`
	Flags          map[string]bool `json:"flags"`
	State          FlowState       `json:"state"`
	LastError      string          `json:"lastError,omitempty"`
	AppliedEntries []string        `json:"appliedEntries"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Snapshot is a read-only copy of the variables and flags handed to conditions,
// templates and actions.
type Snapshot struct {
	Variables map[string]any
	Flags     map[string]bool
}

func NewFlowContext(contactId string, def *FlowDefinition, instanceId string, entryStep string) *FlowContext {
	now := time.Now().UTC()
	return &FlowContext{
		ContactId:   contactId,
		FlowName:    def.Name,
		FlowVersion: def.Version,
		InstanceId:  instanceId,
		ActiveStep:  entryStep,
		Variables:   make(map[string]any),
		Flags:       make(map[string]bool),
		State:       RUNNING,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (fc *FlowContext) Snapshot() Snapshot {
	vars := make(map[string]any, len(fc.Variables))
	for k, v := range fc.Variables {
		vars[k] = deepCopy(v)
	}
	flags := make(map[string]bool, len(fc.Flags))
	for k, v := range fc.Flags {
		flags[k] = v
	}
	return Snapshot{Variables: vars, Flags: flags}
}

func (fc *FlowContext) SetFlag(name string) {
	if fc.Flags == nil {
		fc.Flags = make(map[string]bool)
	}
	fc.Flags[name] = true
}

func (fc *FlowContext) HasFlag(name string) bool {
	return fc.Flags[name]
}

func (fc *FlowContext) SetVariable(name string, value any) {
	if fc.Variables == nil {
		fc.Variables = make(map[string]any)
	}
	fc.Variables[name] = value
}

// MoveTo points the context at a new step. Transient flags and the attempt
// counter belong to the step being left.
func (fc *FlowContext) MoveTo(stepId string) {
	fc.ActiveStep = stepId
	fc.StepEntered = false
	fc.StepSeq++
	fc.Attempts = 0
	fc.Flags = make(map[string]bool)
}

func (fc *FlowContext) HasApplied(entryId string) bool {
	for _, id := range fc.AppliedEntries {
		if id == entryId {
			return true
		}
	}
	return false
}

func (fc *FlowContext) MarkApplied(entryId string) {
	if fc.HasApplied(entryId) {
		return
	}
	fc.AppliedEntries = append(fc.AppliedEntries, entryId)
	if len(fc.AppliedEntries) > maxAppliedEntries {
		fc.AppliedEntries = fc.AppliedEntries[len(fc.AppliedEntries)-maxAppliedEntries:]
	}
}

// CompletedFlows is what remains of a contact's flows once they complete: the
// last instance and the entries they applied.
type CompletedFlows struct {
	ContactId      string    `json:"contactId"`
	LastInstanceId string    `json:"lastInstanceId,omitempty"`
	AppliedEntries []string  `json:"appliedEntries"`
	CompletedAt    time.Time `json:"completedAt"`
}

func (c *CompletedFlows) HasApplied(entryId string) bool {
	if c == nil {
		return false
	}
	for _, id := range c.AppliedEntries {
		if id == entryId {
			return true
		}
	}
	return false
}

// Add folds a completed context into c, keeping the most recent entries.
func (c *CompletedFlows) Add(fc *FlowContext) {
	c.ContactId = fc.ContactId
	c.LastInstanceId = fc.InstanceId
	c.CompletedAt = time.Now().UTC()
	for _, id := range fc.AppliedEntries {
		if !c.HasApplied(id) {
			c.AppliedEntries = append(c.AppliedEntries, id)
		}
	}
	if len(c.AppliedEntries) > maxCompletedEntries {
		c.AppliedEntries = c.AppliedEntries[len(c.AppliedEntries)-maxCompletedEntries:]
	}
}

func (fc *FlowContext) CorrelationHint() string {
	return fc.InstanceId + ":" + fc.ActiveStep
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
