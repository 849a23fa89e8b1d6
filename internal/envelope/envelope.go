// ABOUTME: Request/response envelope shared by gateway, orchestrator, and agents.
// ABOUTME: Decodes with json.Number so payload numbers keep their literal form.

package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Envelope types used across the system.
const (
	TypeOrchestratorRequest  = "orchestrator.request"
	TypeOrchestratorResponse = "orchestrator.response"
	TypeTaskUpdated          = "task.updated"
	TypeError                = "error"
)

// Payload status values returned by the orchestrator.
const (
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrInvalidEnvelope is returned when a decoded envelope misses required fields.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Envelope is the unit of exchange on every hop.
// RunID and UserID are kept untyped because clients occasionally send
// numbers or objects there; accessors only honor string values.
type Envelope struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	UserID    any    `json:"userId,omitempty"`
	RunID     any    `json:"runId,omitempty"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	TS        string `json:"ts"`
	Payload   any    `json:"payload,omitempty"`
}

// New creates an envelope with a generated id and the current timestamp.
func New(typ, source, sessionID string, payload map[string]any) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      typ,
		Source:    source,
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
}

// NewError builds an error envelope carrying a stable code and trace id.
func NewError(source, sessionID, code, message, traceID string) *Envelope {
	return New(TypeError, source, sessionID, map[string]any{
		"code":    code,
		"message": message,
		"traceId": traceID,
	})
}

// Decode reads a single envelope from r and validates its required fields.
func Decode(r io.Reader) (*Envelope, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodeBytes is Decode for an in-memory document.
func DecodeBytes(data []byte) (*Envelope, error) {
	return Decode(bytes.NewReader(data))
}

// Validate checks the fields every hop relies on.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEnvelope)
	}
	if e.SessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrInvalidEnvelope)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidEnvelope)
	}
	return nil
}

// PayloadMap returns the payload when it is a JSON object, nil otherwise.
func (e *Envelope) PayloadMap() map[string]any {
	m, _ := e.Payload.(map[string]any)
	return m
}

// RunIDString returns the run id if it is a non-empty string.
func (e *Envelope) RunIDString() string {
	s, _ := e.RunID.(string)
	return s
}

// UserIDString returns the user id if it is a non-empty string.
func (e *Envelope) UserIDString() string {
	s, _ := e.UserID.(string)
	return s
}

// Intent returns payload.intent when it is a string.
func (e *Envelope) Intent() string {
	return e.payloadString("intent")
}

// Input returns payload.input as-is, or nil.
func (e *Envelope) Input() any {
	if p := e.PayloadMap(); p != nil {
		return p["input"]
	}
	return nil
}

// Status returns payload.status when it is a string.
func (e *Envelope) Status() string {
	return e.payloadString("status")
}

// Route returns payload.route when it is a string.
func (e *Envelope) Route() string {
	return e.payloadString("route")
}

// TaskID returns payload.taskId when it is a string.
func (e *Envelope) TaskID() string {
	return e.payloadString("taskId")
}

func (e *Envelope) payloadString(field string) string {
	p := e.PayloadMap()
	if p == nil {
		return ""
	}
	s, _ := p[field].(string)
	return s
}

// Clone returns a deep copy by round-tripping through JSON.
func (e *Envelope) Clone() (*Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	return Unmarshal(data)
}

// Unmarshal decodes an envelope without validating required fields.
// Used for stored responses that were validated when first received.
func Unmarshal(data []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}
