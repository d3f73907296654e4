package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/ehrlich-b/scened/internal/scene"
	"github.com/ehrlich-b/scened/internal/session"
	"github.com/ehrlich-b/scened/internal/wireproto"
)

// runReader drains wsConn until it closes or ctx is canceled, translating
// each envelope into a Session Actor command. IDENTITY_MISMATCH is
// enforced here (source_user_id must match the identity this connection
// joined with); NOT_JOINED cannot occur past awaitJoin since a connection
// is always joined before the reader starts.
//
// The whole loop runs under a deferred recover so a decode bug anywhere
// downstream becomes a MALFORMED error frame and a closed connection
// instead of taking the process down — the one place this server needs
// more defensive recovery than the teacher's narrower handlers.
func runReader(ctx context.Context, wsConn *websocket.Conn, actor *session.Actor, userID string, limiter *rate.Limiter, cfg Config, metrics Metrics, log *slog.Logger, activity chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in connection reader, closing", "error", r, "stack", string(debug.Stack()))
			writeError(ctx, wsConn, wireproto.ErrMalformed)
			wsConn.Close(websocket.StatusInternalError, "internal error")
		}
	}()

	for {
		_, data, err := wsConn.Read(ctx)
		if err != nil {
			return
		}
		select {
		case activity <- struct{}{}:
		default:
		}

		var env wireproto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			writeError(ctx, wsConn, wireproto.ErrMalformed)
			return
		}
		if env.SourceUserID != userID {
			writeError(ctx, wsConn, wireproto.ErrIdentityMismatch)
			continue
		}
		if !limiter.Allow() {
			writeError(ctx, wsConn, wireproto.ErrRateLimited)
			wsConn.Close(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		ts := clampTimestamp(env.Timestamp, cfg.ClockSkewForward, metrics)
		if err := dispatchCommand(ctx, actor, userID, ts, env); err != nil {
			writeError(ctx, wsConn, wireproto.ErrMalformed)
			return
		}
	}
}

// clampTimestamp enforces the clock-skew-forward bound from SPEC_FULL.md
// §9(b): a client clock too far ahead of the server cannot poison LWW
// comparisons for every future write to an object.
func clampTimestamp(ts int64, forward time.Duration, metrics Metrics) int64 {
	max := time.Now().Add(forward).UnixMilli()
	if ts > max {
		metrics.ClockSkewClamped()
		return max
	}
	return ts
}

func dispatchCommand(ctx context.Context, actor *session.Actor, userID string, ts int64, env wireproto.Envelope) error {
	switch env.EventType {
	case wireproto.TypeLeaveSession:
		return actor.Leave(ctx, userID)

	case wireproto.TypeSelectObject:
		var p wireproto.SelectObjectPayload
		if err := env.ParsePayload(&p); err != nil {
			return err
		}
		return actor.Select(ctx, userID, p.ObjectID)

	case wireproto.TypeCreateObject:
		var p wireproto.CreateObjectPayload
		if err := env.ParsePayload(&p); err != nil {
			return err
		}
		if p.ObjectID == "" {
			return fmt.Errorf("conn: empty object_id")
		}
		kind := scene.Kind(p.Type)
		if !kind.Valid() {
			return fmt.Errorf("conn: unknown object kind %q", p.Type)
		}
		if err := scene.ValidateAssetRef(kind, p.AssetID, p.AssetLibrary); err != nil {
			return fmt.Errorf("conn: %w", err)
		}
		props := wireProperties(p.Properties)
		if err := scene.ValidateProperties(kind, props); err != nil {
			return fmt.Errorf("conn: %w", err)
		}
		return actor.CreateObject(ctx, scene.CreateObjectCmd{
			ObjectID:     p.ObjectID,
			Name:         p.Name,
			Kind:         kind,
			AssetID:      p.AssetID,
			AssetLibrary: p.AssetLibrary,
			Transform:    wireTransform(p.Transform),
			Properties:   props,
			TimestampMS:  ts,
			UserID:       userID,
		})

	case wireproto.TypeDeleteObject:
		var p wireproto.DeleteObjectPayload
		if err := env.ParsePayload(&p); err != nil {
			return err
		}
		return actor.DeleteObject(ctx, scene.DeleteObjectCmd{ObjectID: p.ObjectID, TimestampMS: ts, UserID: userID})

	case wireproto.TypeUpdateTransform:
		var p wireproto.UpdateTransformPayload
		if err := env.ParsePayload(&p); err != nil {
			return err
		}
		return actor.UpdateTransform(ctx, scene.UpdateTransformCmd{
			ObjectID: p.ObjectID, Transform: wireTransform(p.Transform), TimestampMS: ts, UserID: userID,
		})

	case wireproto.TypeUpdateProperties:
		var p wireproto.UpdatePropertiesPayload
		if err := env.ParsePayload(&p); err != nil {
			return err
		}
		return actor.UpdateProperties(ctx, scene.UpdatePropertiesCmd{
			ObjectID: p.ObjectID, Properties: wireProperties(p.Properties), TimestampMS: ts, UserID: userID,
		})

	case wireproto.TypeUpdateName:
		var p wireproto.UpdateNamePayload
		if err := env.ParsePayload(&p); err != nil {
			return err
		}
		return actor.UpdateName(ctx, scene.UpdateNameCmd{ObjectID: p.ObjectID, Name: p.Name, TimestampMS: ts, UserID: userID})

	default:
		return nil // unknown event types are ignored, not fatal
	}
}

func wireTransform(t wireproto.Transform) scene.Transform {
	return scene.Transform{
		Position: scene.Vec3(t.Position),
		Rotation: scene.Vec3(t.Rotation),
		Scale:    scene.Vec3(t.Scale),
	}
}

func wireProperties(raw wireproto.RawProps) scene.Properties {
	var p scene.Properties
	data, err := json.Marshal(raw)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(data, &p)
	return p
}
