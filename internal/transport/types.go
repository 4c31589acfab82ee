// Package transport implements the per-session WebSocket connection manager
// (C6): envelope construction, visibility filtering, pre-connect buffering,
// strict per-chat_id sequence numbering, and inbound message routing to the
// Coordinator and Resume Coordinator.
package transport

import "encoding/json"

// OutboundType is one of the closed set of chat.<kind> envelope types the
// server may emit.
type OutboundType string

const (
	TypeResumeBoundary OutboundType = "chat.resume_boundary"
	TypeSelectSpeaker  OutboundType = "chat.select_speaker"
	TypePrint          OutboundType = "chat.print"
	TypeText           OutboundType = "chat.text"
	TypeInputRequest   OutboundType = "chat.input_request"
	TypeInputTimeout   OutboundType = "chat.input_timeout"
	TypeInputAck       OutboundType = "chat.input_ack"
	TypeToolCall       OutboundType = "chat.tool_call"
	TypeToolResponse   OutboundType = "chat.tool_response"
	TypeToolProgress   OutboundType = "chat.tool_progress"
	TypeUsageDelta     OutboundType = "chat.usage_delta"
	TypeUsageSummary   OutboundType = "chat.usage_summary"
	TypeRunComplete    OutboundType = "chat.run_complete"
	TypeError          OutboundType = "chat.error"

	// TypeAttachmentUploaded reports an artifact (screenshot, recording,
	// generated file) a tool produced and internal/artifacts persisted.
	TypeAttachmentUploaded OutboundType = "chat.attachment_uploaded"
)

// InboundType is one of the closed set of message types a client may send.
type InboundType string

const (
	InboundUserInputSubmit InboundType = "user.input.submit"
	InboundInlineComponent InboundType = "inline_component.result"
	InboundArtifactPatch   InboundType = "artifact_patch"
	InboundClientResume    InboundType = "client.resume"
)

// ErrorCode is the closed set of error codes a chat.error envelope may carry.
type ErrorCode string

const (
	ErrSchemaValidationFailed ErrorCode = "SCHEMA_VALIDATION_FAILED"
	ErrInputRequestNotFound   ErrorCode = "INPUT_REQUEST_NOT_FOUND"
	ErrToolExecutionError     ErrorCode = "TOOL_EXECUTION_ERROR"
	ErrUIToolTimeout          ErrorCode = "UI_TOOL_TIMEOUT"
	ErrResumeFailed           ErrorCode = "RESUME_FAILED"
	ErrPersistenceError       ErrorCode = "PERSISTENCE_ERROR"
	ErrWorkflowNotFound       ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrAgentInitializationErr ErrorCode = "AGENT_INITIALIZATION_FAILED"
	ErrTransportError         ErrorCode = "TRANSPORT_ERROR"
	ErrRateLimitExceeded      ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// Envelope is the outbound wire frame: {type, data, seq, chat_id, corr?, replay?}.
type Envelope struct {
	Type   OutboundType `json:"type"`
	Data   any          `json:"data,omitempty"`
	Seq    uint64       `json:"seq"`
	ChatID string       `json:"chat_id"`
	Corr   string       `json:"corr,omitempty"`
	Replay bool         `json:"replay,omitempty"`

	// Agent and Hidden drive visibility filtering; they are not part of the
	// wire payload (they ride alongside Data internally and are stripped
	// before marshaling — see (*Envelope).MarshalJSON).
	Agent  string `json:"-"`
	Hidden bool   `json:"-"`
}

// wireEnvelope is the JSON shape actually sent on the wire; Agent/Hidden are
// internal-only and never serialized.
type wireEnvelope struct {
	Type   OutboundType `json:"type"`
	Data   any          `json:"data,omitempty"`
	Seq    uint64       `json:"seq"`
	ChatID string       `json:"chat_id"`
	Corr   string       `json:"corr,omitempty"`
	Replay bool         `json:"replay,omitempty"`
}

// MarshalJSON emits only the wire-visible fields.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{
		Type:   e.Type,
		Data:   e.Data,
		Seq:    e.Seq,
		ChatID: e.ChatID,
		Corr:   e.Corr,
		Replay: e.Replay,
	})
}

// ErrorData is the data payload of a chat.error envelope.
type ErrorData struct {
	Message     string    `json:"message"`
	ErrorCode   ErrorCode `json:"error_code"`
	Details     any       `json:"details,omitempty"`
	Recoverable bool      `json:"recoverable"`
}

// UserInputSubmit is the inbound user.input.submit payload.
type UserInputSubmit struct {
	ChatID        string `json:"chat_id"`
	RequestID     string `json:"request_id"`
	Text          string `json:"text"`
	LastClientSeq uint64 `json:"last_client_seq"`
}

// InlineComponentResult is the inbound inline_component.result payload.
type InlineComponentResult struct {
	ChatID string         `json:"chat_id"`
	Corr   string         `json:"corr"`
	Data   map[string]any `json:"data"`
}

// ArtifactPatch is the inbound artifact_patch payload.
type ArtifactPatch struct {
	ChatID string `json:"chat_id"`
	Corr   string `json:"corr"`
	Patch  []any  `json:"patch"`
}

// ClientResume is the inbound client.resume payload.
type ClientResume struct {
	ChatID          string `json:"chat_id"`
	LastClientIndex uint64 `json:"lastClientIndex"`
}

// inboundPeek is the generic shape every inbound message is first decoded
// into to read its Type, before re-decoding the full raw bytes into the
// type-specific payload struct.
type inboundPeek struct {
	Type InboundType `json:"type"`
}
