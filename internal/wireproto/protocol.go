// Package wireproto defines the JSON envelope and per-event payload shapes
// exchanged between editor clients and the collaboration server, following
// the same "const block of event-type names, one struct per message" shape
// as the teacher's WebSocket protocol package.
package wireproto

import "encoding/json"

// Client → Server event types.
const (
	TypeJoinSession      = "JOIN_SESSION"
	TypeLeaveSession     = "LEAVE_SESSION"
	TypeCreateObject     = "CREATE_OBJECT"
	TypeDeleteObject     = "DELETE_OBJECT"
	TypeUpdateTransform  = "UPDATE_TRANSFORM"
	TypeUpdateProperties = "UPDATE_PROPERTIES"
	TypeUpdateName       = "UPDATE_NAME"
	TypeSelectObject     = "SELECT_OBJECT"
)

// Server → Client event types.
const (
	TypeFullStateSync    = "FULL_STATE_SYNC"
	TypeObjectCreated    = "OBJECT_CREATED"
	TypeObjectDeleted    = "OBJECT_DELETED"
	TypeTransformUpdated = "TRANSFORM_UPDATED"
	TypePropertiesUpdated = "PROPERTIES_UPDATED"
	TypeNameUpdated      = "NAME_UPDATED"
	TypeUserJoined       = "USER_JOINED"
	TypeUserLeft         = "USER_LEFT"
	TypeUserSelected     = "USER_SELECTED"
	TypeError            = "ERROR"
)

// Error codes, per spec.md §6.
const (
	ErrNotJoined           = "NOT_JOINED"
	ErrIdentityMismatch    = "IDENTITY_MISMATCH"
	ErrDuplicateUser       = "DUPLICATE_USER"
	ErrDuplicateObject     = "DUPLICATE_OBJECT"
	ErrUnknownObject       = "UNKNOWN_OBJECT"
	ErrRateLimited         = "RATE_LIMITED"
	ErrOverloaded          = "OVERLOADED"
	ErrGlobalSessionLimit  = "GLOBAL_SESSION_LIMIT"
	ErrSessionFull         = "SESSION_FULL"
	ErrMalformed           = "MALFORMED"
)

// Envelope wraps every frame with routing and attribution fields. Payload
// is left as raw JSON so the Connection Handler can dispatch on EventType
// before deciding which concrete payload struct to unmarshal into.
type Envelope struct {
	EventType    string          `json:"event_type"`
	Timestamp    int64           `json:"timestamp"`
	SourceUserID string          `json:"source_user_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// ParsePayload decodes the envelope's raw payload into v. An empty payload
// (e.g. LEAVE_SESSION) leaves v untouched.
func (e *Envelope) ParsePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// NewEnvelope builds an outgoing envelope, marshaling payload to RawMessage.
func NewEnvelope(eventType string, timestamp int64, sourceUserID string, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Envelope{
		EventType:    eventType,
		Timestamp:    timestamp,
		SourceUserID: sourceUserID,
		Payload:      raw,
	}, nil
}

// Transform is the three-triple spatial transform shared by every Object.
type Transform struct {
	Position [3]float64 `json:"position"`
	Rotation [3]float64 `json:"rotation"` // Euler radians
	Scale    [3]float64 `json:"scale"`
}

// JoinSessionPayload is the JOIN_SESSION payload.
type JoinSessionPayload struct {
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
}

type CreateObjectPayload struct {
	ObjectID     string      `json:"object_id"`
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	AssetID      *string     `json:"asset_id,omitempty"`
	AssetLibrary *string     `json:"asset_library,omitempty"`
	Transform    Transform   `json:"transform"`
	Properties   RawProps    `json:"properties"`
}

type DeleteObjectPayload struct {
	ObjectID string `json:"object_id"`
}

type UpdateTransformPayload struct {
	ObjectID  string    `json:"object_id"`
	Transform Transform `json:"transform"`
}

type UpdatePropertiesPayload struct {
	ObjectID   string   `json:"object_id"`
	Properties RawProps `json:"properties"`
}

type UpdateNamePayload struct {
	ObjectID string `json:"object_id"`
	Name     string `json:"name"`
}

type SelectObjectPayload struct {
	ObjectID *string `json:"object_id"`
}

// RawProps defers property-shape validation to internal/scene, which knows
// the kind-specific schema; the wire layer treats it as an opaque bag.
type RawProps map[string]any

// ErrorPayload is the body of a server → client ERROR frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
