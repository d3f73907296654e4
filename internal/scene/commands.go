package scene

// Command kinds, matching the Event Log Store's entry.kind (spec.md §4.A)
// one-for-one; the persisted log is literally a record of accepted
// commands of these kinds.
type CommandKind string

const (
	CmdCreateObject     CommandKind = "CREATE_OBJECT"
	CmdDeleteObject     CommandKind = "DELETE_OBJECT"
	CmdUpdateTransform  CommandKind = "UPDATE_TRANSFORM"
	CmdUpdateProperties CommandKind = "UPDATE_PROPERTIES"
	CmdUpdateName       CommandKind = "UPDATE_NAME"
)

// RejectReason enumerates the non-error, non-broadcast outcomes a
// transition can produce, plus the semantic rejections that do surface to
// the originator as an ERROR frame. Stale-LWW and idempotent-delete are
// NOT reasons — they are represented by Result.Accepted == false with
// Reason == "" ("no-op", not an error; see spec.md §4.B and §7).
type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectUnknownObject    RejectReason = "UNKNOWN_OBJECT"
	RejectDuplicateObject  RejectReason = "DUPLICATE_OBJECT"
)

// CreateObjectCmd carries everything needed to insert a new Object.
type CreateObjectCmd struct {
	ObjectID     string
	Name         string
	Kind         Kind
	AssetID      *string
	AssetLibrary *string
	Transform    Transform
	Properties   Properties
	TimestampMS  int64
	UserID       string
}

type DeleteObjectCmd struct {
	ObjectID    string
	TimestampMS int64
	UserID      string
}

type UpdateTransformCmd struct {
	ObjectID    string
	Transform   Transform
	TimestampMS int64
	UserID      string
}

type UpdatePropertiesCmd struct {
	ObjectID    string
	Properties  Properties
	TimestampMS int64
	UserID      string
}

type UpdateNameCmd struct {
	ObjectID    string
	Name        string
	TimestampMS int64
	UserID      string
}

// Result is the outcome of any mutating transition.
//
//   - Accepted && Broadcast != nil: apply succeeded, fan out Broadcast to
//     every other connected user.
//   - !Accepted && Reason == RejectNone: a semantically valid no-op (stale
//     LWW update, idempotent delete-of-missing) — no broadcast, no error.
//   - !Accepted && Reason != RejectNone: reject to the originator only,
//     as an ERROR frame carrying Reason.
type Result struct {
	Accepted  bool
	Reason    RejectReason
	Broadcast any // one of the *Event types below
}

// ObjectCreatedEvent is the broadcast payload for an accepted CREATE_OBJECT.
type ObjectCreatedEvent struct {
	Object    Object
	CreatedBy string
}

// ObjectDeletedEvent is the broadcast payload for an accepted DELETE_OBJECT.
type ObjectDeletedEvent struct {
	ObjectID  string
	DeletedBy string
}

// TransformUpdatedEvent is the broadcast payload for an accepted UPDATE_TRANSFORM.
type TransformUpdatedEvent struct {
	ObjectID    string
	Transform   Transform
	UpdatedBy   string
	TimestampMS int64
}

// PropertiesUpdatedEvent is the broadcast payload for an accepted UPDATE_PROPERTIES.
type PropertiesUpdatedEvent struct {
	ObjectID    string
	Properties  Properties
	UpdatedBy   string
	TimestampMS int64
}

// NameUpdatedEvent is the broadcast payload for an accepted UPDATE_NAME.
type NameUpdatedEvent struct {
	ObjectID    string
	Name        string
	UpdatedBy   string
	TimestampMS int64
}
