package model

type InstructionKind string

const INSTRUCTION_SEND InstructionKind = "send"
const INSTRUCTION_AWAIT_STRUCTURED_REPLY InstructionKind = "await-structured-reply"

type OutboundInstruction struct {
	Kind            InstructionKind `json:"kind"`
	RenderedContent string          `json:"renderedContent"`
	CorrelationHint string          `json:"correlationHint,omitempty"`
}

// StructuredReply is a reply that was produced by an interactive form or similar and
// must be validated before it is written into the flow context.
type StructuredReply struct {
	ExternalId      string         `json:"externalId"`
	ContactId       string         `json:"contactId"`
	CorrelationHint string         `json:"correlationHint"`
	Values          map[string]any `json:"values"`
}
