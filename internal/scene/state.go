package scene

// State is the canonical per-session object + user map. It has no I/O and
// no locking — the Session Actor is the sole caller and already serializes
// access by construction (spec.md §4.B, §5).
type State struct {
	Objects map[string]Object
	Users   map[string]User

	// createdIDs is every object id ever accepted by CREATE_OBJECT this
	// session, including ones later deleted. ApplyDeleteObject only removes
	// from Objects, never from this set — ids are never reused after
	// deletion (spec.md §3 invariant 1). Persisted across compaction via
	// CreatedIDs/SeedCreatedIDs since deleted ids otherwise leave no trace
	// in Objects for a snapshot to carry forward.
	createdIDs map[string]struct{}

	seatCounter int // monotonic; never decreases when users leave (spec.md §4.F)
}

// NewState returns an empty canonical state, the starting point for a
// brand-new session and the fold seed for log replay.
func NewState() *State {
	return &State{
		Objects:    make(map[string]Object),
		Users:      make(map[string]User),
		createdIDs: make(map[string]struct{}),
	}
}

// CreatedIDs returns a copy of every object id ever created this session,
// live or deleted — the tombstone set a compaction snapshot must persist
// so a later CREATE_OBJECT can never reuse a deleted id.
func (s *State) CreatedIDs() []string {
	ids := make([]string, 0, len(s.createdIDs))
	for id := range s.createdIDs {
		ids = append(ids, id)
	}
	return ids
}

// SeedCreatedIDs marks ids as already-created without touching Objects.
// Used when reconstructing State from a persisted snapshot: the snapshot's
// live objects are restored directly into s.Objects (bypassing
// ApplyCreateObject), so the tombstone set has to be seeded explicitly or a
// recovered session would forget about ids deleted before the snapshot was
// taken.
func (s *State) SeedCreatedIDs(ids []string) {
	for _, id := range ids {
		s.createdIDs[id] = struct{}{}
	}
}

// ApplyCreateObject implements the CREATE_OBJECT rule in spec.md §4.B.
func (s *State) ApplyCreateObject(cmd CreateObjectCmd) Result {
	if _, used := s.createdIDs[cmd.ObjectID]; used {
		return Result{Accepted: false, Reason: RejectDuplicateObject}
	}
	obj := Object{
		ID:            cmd.ObjectID,
		Name:          cmd.Name,
		Kind:          cmd.Kind,
		AssetID:       cmd.AssetID,
		AssetLibrary:  cmd.AssetLibrary,
		Transform:     cmd.Transform,
		Properties:    cmd.Properties,
		CreatedBy:     cmd.UserID,
		CreatedAt:     cmd.TimestampMS,
		LastUpdatedBy: cmd.UserID,
		LastUpdatedAt: cmd.TimestampMS,
	}
	s.Objects[cmd.ObjectID] = obj
	s.createdIDs[cmd.ObjectID] = struct{}{}
	return Result{
		Accepted:  true,
		Broadcast: ObjectCreatedEvent{Object: obj, CreatedBy: cmd.UserID},
	}
}

// ApplyDeleteObject implements the DELETE_OBJECT rule: idempotent, no
// broadcast and no error when the object is already gone.
func (s *State) ApplyDeleteObject(cmd DeleteObjectCmd) Result {
	if _, exists := s.Objects[cmd.ObjectID]; !exists {
		return Result{Accepted: false, Reason: RejectNone}
	}
	delete(s.Objects, cmd.ObjectID)
	return Result{
		Accepted:  true,
		Broadcast: ObjectDeletedEvent{ObjectID: cmd.ObjectID, DeletedBy: cmd.UserID},
	}
}

// ApplyUpdateTransform implements the LWW rule for transforms.
func (s *State) ApplyUpdateTransform(cmd UpdateTransformCmd) Result {
	obj, exists := s.Objects[cmd.ObjectID]
	if !exists {
		return Result{Accepted: false, Reason: RejectUnknownObject}
	}
	if !lwwWins(cmd.TimestampMS, obj.LastUpdatedAt) {
		return Result{Accepted: false, Reason: RejectNone}
	}
	obj.Transform = cmd.Transform
	obj.LastUpdatedBy = cmd.UserID
	obj.LastUpdatedAt = cmd.TimestampMS
	s.Objects[cmd.ObjectID] = obj
	return Result{
		Accepted: true,
		Broadcast: TransformUpdatedEvent{
			ObjectID:    cmd.ObjectID,
			Transform:   cmd.Transform,
			UpdatedBy:   cmd.UserID,
			TimestampMS: cmd.TimestampMS,
		},
	}
}

// ApplyUpdateProperties implements the LWW rule for properties.
func (s *State) ApplyUpdateProperties(cmd UpdatePropertiesCmd) Result {
	obj, exists := s.Objects[cmd.ObjectID]
	if !exists {
		return Result{Accepted: false, Reason: RejectUnknownObject}
	}
	if !lwwWins(cmd.TimestampMS, obj.LastUpdatedAt) {
		return Result{Accepted: false, Reason: RejectNone}
	}
	obj.Properties = cmd.Properties
	obj.LastUpdatedBy = cmd.UserID
	obj.LastUpdatedAt = cmd.TimestampMS
	s.Objects[cmd.ObjectID] = obj
	return Result{
		Accepted: true,
		Broadcast: PropertiesUpdatedEvent{
			ObjectID:    cmd.ObjectID,
			Properties:  cmd.Properties,
			UpdatedBy:   cmd.UserID,
			TimestampMS: cmd.TimestampMS,
		},
	}
}

// ApplyUpdateName implements the LWW rule for names.
func (s *State) ApplyUpdateName(cmd UpdateNameCmd) Result {
	obj, exists := s.Objects[cmd.ObjectID]
	if !exists {
		return Result{Accepted: false, Reason: RejectUnknownObject}
	}
	if !lwwWins(cmd.TimestampMS, obj.LastUpdatedAt) {
		return Result{Accepted: false, Reason: RejectNone}
	}
	obj.Name = cmd.Name
	obj.LastUpdatedBy = cmd.UserID
	obj.LastUpdatedAt = cmd.TimestampMS
	s.Objects[cmd.ObjectID] = obj
	return Result{
		Accepted: true,
		Broadcast: NameUpdatedEvent{
			ObjectID:    cmd.ObjectID,
			Name:        cmd.Name,
			UpdatedBy:   cmd.UserID,
			TimestampMS: cmd.TimestampMS,
		},
	}
}

// lwwWins reports whether an update carrying incoming should replace a
// field currently stamped at current. Strictly greater wins; ties discard
// the later arrival (spec.md §4.B).
func lwwWins(incoming, current int64) bool {
	return incoming > current
}

// Snapshot returns a value copy of the object/user maps suitable for
// serializing to a snapshot file or a FULL_STATE_SYNC frame — mutating the
// returned maps never affects s.
func (s *State) Snapshot() (objects map[string]Object, users map[string]User) {
	objects = make(map[string]Object, len(s.Objects))
	for id, o := range s.Objects {
		objects[id] = o.Clone()
	}
	users = make(map[string]User, len(s.Users))
	for id, u := range s.Users {
		users[id] = u.Clone()
	}
	return objects, users
}
