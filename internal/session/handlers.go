package session

import (
	"time"

	"github.com/ehrlich-b/scened/internal/scene"
	"github.com/ehrlich-b/scened/internal/wireproto"
)

func transformKey(objectID, userID string) string { return objectID + "|" + userID }

func (a *Actor) handleJoin(req *joinRequest) {
	res := a.state.Join(req.userID, req.displayName, req.connectedAt, a.cfg.UserLimit)
	if !res.Accepted {
		req.reply <- joinReply{accepted: false, reason: res.Reason}
		return
	}
	eg := newEgress(a.cfg.EgressQueueSize)
	a.egress[req.userID] = eg

	objects, users := a.state.Snapshot()
	req.reply <- joinReply{
		accepted: true,
		egress:   eg,
		snapshot: FullStateSync{Objects: objects, Users: users, YouAre: req.userID},
	}

	if evt, ok := res.Broadcast.(scene.UserJoinedEvent); ok {
		a.fanout(req.userID, "", wireproto.TypeUserJoined, userJoinedWire(evt), time.Time{})
		if au, ok := a.metrics.(auditor); ok {
			au.UserJoined(a.SessionID, req.userID)
		}
	}
}

func (a *Actor) handleLeave(userID string) {
	res := a.state.Leave(userID)
	if eg, ok := a.egress[userID]; ok {
		eg.Close()
		delete(a.egress, userID)
	}
	if !res.Accepted {
		return
	}
	a.fanout(userID, "", wireproto.TypeUserLeft, struct {
		UserID string `json:"user_id"`
	}{userID}, time.Time{})
	if au, ok := a.metrics.(auditor); ok {
		au.UserLeft(a.SessionID, userID)
	}
}

func (a *Actor) handleSelect(req *selectRequest) {
	res := a.state.Select(req.userID, req.objectID)
	if !res.Accepted {
		if res.Reason != scene.RejectNone {
			a.sendError(req.userID, wireproto.ErrorPayload{Code: string(res.Reason), Message: "select_object rejected"})
		}
		return
	}
	evt := res.Broadcast.(scene.UserSelectedEvent)
	a.fanout(req.userID, "", wireproto.TypeUserSelected, struct {
		UserID   string  `json:"user_id"`
		ObjectID *string `json:"object_id"`
	}{evt.UserID, evt.ObjectID}, time.Time{})
}

func (a *Actor) handleCreate(cmd scene.CreateObjectCmd, recvTime time.Time) {
	res := a.state.ApplyCreateObject(cmd)
	if !res.Accepted {
		a.sendError(cmd.UserID, wireproto.ErrorPayload{Code: string(res.Reason), Message: "create_object rejected"})
		return
	}
	a.appendEntry(scene.CmdCreateObject, cmd.UserID, cmd.TimestampMS, cmd)
	evt := res.Broadcast.(scene.ObjectCreatedEvent)
	a.fanout(cmd.UserID, "", wireproto.TypeObjectCreated, objectCreatedWire(evt), recvTime)
}

func (a *Actor) handleDelete(cmd scene.DeleteObjectCmd, recvTime time.Time) {
	res := a.state.ApplyDeleteObject(cmd)
	if !res.Accepted {
		// Idempotent delete-of-missing is a silent no-op, never an error.
		return
	}
	a.appendEntry(scene.CmdDeleteObject, cmd.UserID, cmd.TimestampMS, cmd)
	evt := res.Broadcast.(scene.ObjectDeletedEvent)
	a.fanout(cmd.UserID, "", wireproto.TypeObjectDeleted, struct {
		ObjectID  string `json:"object_id"`
		DeletedBy string `json:"deleted_by"`
	}{evt.ObjectID, evt.DeletedBy}, recvTime)
}

func (a *Actor) handleTransform(cmd scene.UpdateTransformCmd, recvTime time.Time) {
	res := a.state.ApplyUpdateTransform(cmd)
	if !res.Accepted {
		if res.Reason != scene.RejectNone {
			a.sendError(cmd.UserID, wireproto.ErrorPayload{Code: string(res.Reason), Message: "update_transform rejected"})
		}
		// stale LWW write: silent discard, no error, no broadcast
		return
	}
	a.appendEntry(scene.CmdUpdateTransform, cmd.UserID, cmd.TimestampMS, cmd)
	a.metrics.TransformUpdate()
	evt := res.Broadcast.(scene.TransformUpdatedEvent)
	a.fanout(cmd.UserID, transformKey(evt.ObjectID, evt.UpdatedBy), wireproto.TypeTransformUpdated, transformUpdatedWire(evt), recvTime)
}

func (a *Actor) handleProperties(cmd scene.UpdatePropertiesCmd, recvTime time.Time) {
	res := a.state.ApplyUpdateProperties(cmd)
	if !res.Accepted {
		if res.Reason != scene.RejectNone {
			a.sendError(cmd.UserID, wireproto.ErrorPayload{Code: string(res.Reason), Message: "update_properties rejected"})
		}
		return
	}
	a.appendEntry(scene.CmdUpdateProperties, cmd.UserID, cmd.TimestampMS, cmd)
	evt := res.Broadcast.(scene.PropertiesUpdatedEvent)
	a.fanout(cmd.UserID, "", wireproto.TypePropertiesUpdated, propertiesUpdatedWire(evt), recvTime)
}

func (a *Actor) handleName(cmd scene.UpdateNameCmd, recvTime time.Time) {
	res := a.state.ApplyUpdateName(cmd)
	if !res.Accepted {
		if res.Reason != scene.RejectNone {
			a.sendError(cmd.UserID, wireproto.ErrorPayload{Code: string(res.Reason), Message: "update_name rejected"})
		}
		return
	}
	a.appendEntry(scene.CmdUpdateName, cmd.UserID, cmd.TimestampMS, cmd)
	evt := res.Broadcast.(scene.NameUpdatedEvent)
	a.fanout(cmd.UserID, "", wireproto.TypeNameUpdated, struct {
		ObjectID    string `json:"object_id"`
		Name        string `json:"name"`
		UpdatedBy   string `json:"updated_by"`
		TimestampMS int64  `json:"timestamp_ms"`
	}{evt.ObjectID, evt.Name, evt.UpdatedBy, evt.TimestampMS}, recvTime)
}

// wire-shape helpers translate scene's internal event structs into the
// exact JSON shapes wireproto promises clients (spec.md §6).

func userJoinedWire(evt scene.UserJoinedEvent) any {
	return struct {
		UserID      string    `json:"user_id"`
		DisplayName string    `json:"display_name"`
		ColorRGB    scene.Vec3 `json:"color_rgb"`
	}{evt.User.UserID, evt.User.DisplayName, evt.User.ColorRGB}
}

func objectCreatedWire(evt scene.ObjectCreatedEvent) any {
	return struct {
		Object    scene.Object `json:"object"`
		CreatedBy string       `json:"created_by"`
	}{evt.Object, evt.CreatedBy}
}

func transformUpdatedWire(evt scene.TransformUpdatedEvent) any {
	return struct {
		ObjectID    string         `json:"object_id"`
		Transform   scene.Transform `json:"transform"`
		UpdatedBy   string         `json:"updated_by"`
		TimestampMS int64          `json:"timestamp_ms"`
	}{evt.ObjectID, evt.Transform, evt.UpdatedBy, evt.TimestampMS}
}

func propertiesUpdatedWire(evt scene.PropertiesUpdatedEvent) any {
	return struct {
		ObjectID    string           `json:"object_id"`
		Properties  scene.Properties `json:"properties"`
		UpdatedBy   string           `json:"updated_by"`
		TimestampMS int64            `json:"timestamp_ms"`
	}{evt.ObjectID, evt.Properties, evt.UpdatedBy, evt.TimestampMS}
}
