package scene

// palette assigns a readable color per seat. The seat counter counts every
// join in the session and is never reused, so colors repeat from the 13th
// join onward, even when fewer than 12 users are present.
var palette = []Vec3{
	{0.90, 0.30, 0.24}, // red
	{0.20, 0.60, 0.86}, // blue
	{0.30, 0.80, 0.40}, // green
	{0.95, 0.77, 0.06}, // yellow
	{0.61, 0.35, 0.71}, // purple
	{0.95, 0.45, 0.13}, // orange
	{0.09, 0.63, 0.62}, // teal
	{0.91, 0.30, 0.62}, // pink
	{0.52, 0.60, 0.00}, // olive
	{0.40, 0.40, 0.80}, // periwinkle
	{0.70, 0.50, 0.30}, // brown
	{0.50, 0.50, 0.50}, // gray
}

// PresenceResult mirrors Result but for JOIN/LEAVE/SELECT, which never hit
// the event log (spec.md §4.F — presence is ephemeral, not durable).
type PresenceResult struct {
	Accepted  bool
	Reason    RejectReason
	Broadcast any
}

const RejectDuplicateUser RejectReason = "DUPLICATE_USER"
const RejectSessionFull RejectReason = "SESSION_FULL"

// UserJoinedEvent is the broadcast payload for an accepted JOIN_SESSION.
type UserJoinedEvent struct {
	User User
}

// UserLeftEvent is the broadcast payload for a LEAVE_SESSION or disconnect.
type UserLeftEvent struct {
	UserID string
}

// UserSelectedEvent is the broadcast payload for a SELECT_OBJECT.
type UserSelectedEvent struct {
	UserID   string
	ObjectID *string
}

// Join implements spec.md §4.F: duplicate user ID rejects, the session's
// per-user cap rejects, otherwise the user is seated with the next color in
// rotation and the seat counter never goes backwards.
func (s *State) Join(userID, displayName string, connectedAt int64, userLimit int) PresenceResult {
	if _, exists := s.Users[userID]; exists {
		return PresenceResult{Accepted: false, Reason: RejectDuplicateUser}
	}
	if len(s.Users) >= userLimit {
		return PresenceResult{Accepted: false, Reason: RejectSessionFull}
	}
	seat := s.seatCounter
	s.seatCounter++
	u := User{
		UserID:      userID,
		DisplayName: displayName,
		ColorRGB:    palette[seat%len(palette)],
		ConnectedAt: connectedAt,
		seatIndex:   seat,
	}
	s.Users[userID] = u
	return PresenceResult{Accepted: true, Broadcast: UserJoinedEvent{User: u}}
}

// Leave removes a user's presence. It is idempotent: leaving twice (or
// leaving a user that never joined) is a silent no-op, matching the
// DELETE_OBJECT idempotency rule.
func (s *State) Leave(userID string) PresenceResult {
	if _, exists := s.Users[userID]; !exists {
		return PresenceResult{Accepted: false, Reason: RejectNone}
	}
	delete(s.Users, userID)
	return PresenceResult{Accepted: true, Broadcast: UserLeftEvent{UserID: userID}}
}

// Select records which object a user is inspecting. Unlike the mutating
// object commands, selections are not subject to LWW against object state —
// the last SELECT_OBJECT from a given user always wins for that user.
func (s *State) Select(userID string, objectID *string) PresenceResult {
	u, exists := s.Users[userID]
	if !exists {
		return PresenceResult{Accepted: false, Reason: RejectNone}
	}
	if objectID != nil {
		if _, ok := s.Objects[*objectID]; !ok {
			return PresenceResult{Accepted: false, Reason: RejectUnknownObject}
		}
	}
	u.SelectedObject = objectID
	s.Users[userID] = u
	return PresenceResult{Accepted: true, Broadcast: UserSelectedEvent{UserID: userID, ObjectID: objectID}}
}

// String gives RejectReason a readable form for log lines and ERROR frames.
func (r RejectReason) String() string {
	if r == RejectNone {
		return "none"
	}
	return string(r)
}
