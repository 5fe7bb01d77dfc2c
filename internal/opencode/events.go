// Package opencode talks to a local opencode server: an HTTP client for
// prompts and session control, and an SSE consumer for the event stream.
package opencode

import "encoding/json"

// Event is the envelope of every server-sent event. Properties stays raw
// until the type is known.
type Event struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// Event types the projector routes on.
const (
	EventSessionStatus   = "session.status"
	EventSessionCreated  = "session.created"
	EventSessionUpdated  = "session.updated"
	EventSessionIdle     = "session.idle"
	EventSessionError    = "session.error"
	EventSessionDiff     = "session.diff"
	EventMessageUpdated  = "message.updated"
	EventPartUpdated     = "message.part.updated"
	EventQuestionAsked   = "question.asked"
	EventPermissionAsked = "permission.asked"
)

// Part types within an assistant message.
const (
	PartText       = "text"
	PartReasoning  = "reasoning"
	PartTool       = "tool"
	PartStepStart  = "step-start"
	PartStepFinish = "step-finish"
	PartPatch      = "patch"
	PartFile       = "file"
)

// Tool invocation states.
const (
	ToolRunning   = "running"
	ToolCompleted = "completed"
	ToolError     = "error"
)

// SessionStatus carries a session's busy/idle transition.
type SessionStatus struct {
	SessionID string `json:"sessionID"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// SessionInfo describes a session in created/updated events.
type SessionInfo struct {
	Info Session `json:"info"`
}

// SessionIdle marks the end of a turn.
type SessionIdle struct {
	SessionID string `json:"sessionID"`
}

// SessionError carries a turn failure. Error stays raw so "aborted" can
// be matched without caring about the payload shape.
type SessionError struct {
	SessionID string          `json:"sessionID"`
	Error     json.RawMessage `json:"error"`
}

// MessageUpdated announces a message header; parts arriving before it are
// buffered by the projector.
type MessageUpdated struct {
	Info MessageInfo `json:"info"`
}

// MessageInfo is the message header inside message.updated.
type MessageInfo struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"`
}

// PartUpdated carries one incremental message part.
type PartUpdated struct {
	Part Part `json:"part"`
}

// Part is an incremental fragment of an assistant message.
type Part struct {
	ID        string     `json:"id"`
	MessageID string     `json:"messageID"`
	SessionID string     `json:"sessionID"`
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	Tool      string     `json:"tool,omitempty"`
	CallID    string     `json:"callID,omitempty"`
	State     *ToolState `json:"state,omitempty"`

	// File parts (outbound prompts).
	MIME string `json:"mime,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ToolState is the progress of a tool part.
type ToolState struct {
	Status   string          `json:"status"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   string          `json:"output,omitempty"`
	Title    string          `json:"title,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// QuestionAsked opens an interactive prompt with one or more questions.
type QuestionAsked struct {
	RequestID string     `json:"requestID"`
	SessionID string     `json:"sessionID"`
	Questions []Question `json:"questions"`
}

// Question is one multiple-choice question.
type Question struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// PermissionAsked requests approval for a tool invocation.
type PermissionAsked struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Title     string `json:"title"`
	Tool      string `json:"tool,omitempty"`
}

// Decode unmarshals the typed payload for ev into out.
func (ev Event) Decode(out any) error {
	return json.Unmarshal(ev.Properties, out)
}
