// Package conn implements the Connection Handler (spec.md §4.D): one
// goroutine pair (reader + writer) per WebSocket connection, envelope
// parsing, per-connection rate limiting, and routing to the owning
// Session Actor. The accept/writer-goroutine/reader-loop shape mirrors
// the teacher's handleClientWS/handleDaemonWS in internal/relay/handler.go.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/ehrlich-b/scened/internal/logger"
	"github.com/ehrlich-b/scened/internal/registry"
	"github.com/ehrlich-b/scened/internal/scene"
	"github.com/ehrlich-b/scened/internal/session"
	"github.com/ehrlich-b/scened/internal/wireproto"
)

// Config carries the subset of config.Server a connection handler needs.
type Config struct {
	JoinTimeout         time.Duration
	ConnectionIdle      time.Duration
	ConnectionPingGrace time.Duration
	MessageRateLimit    float64
	MessageRateBurst    int
	ClockSkewForward    time.Duration
}

// Metrics is the narrow telemetry surface the handler touches directly
// (most counting happens inside the actor).
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	ClockSkewClamped()
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened() {}
func (noopMetrics) ConnectionClosed() {}
func (noopMetrics) ClockSkewClamped() {}

const writeTimeout = 5 * time.Second

// Serve upgrades r to a WebSocket and runs the connection's full lifecycle:
// awaiting JOIN_SESSION, registering with reg, then pumping reader and
// writer loops until the socket closes.
func Serve(w http.ResponseWriter, r *http.Request, reg *registry.Registry, cfg Config, metrics Metrics) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	log := logger.For("conn")

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer wsConn.Close(websocket.StatusInternalError, "unexpected close")
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	actor, userID, joinedSessionID, err := awaitJoin(ctx, wsConn, reg, cfg)
	if err != nil {
		log.Debug("connection closed before joining", "error", err)
		return
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.MessageRateLimit), cfg.MessageRateBurst)

	accepted, reason, eg, snapshot, err := actor.Join(ctx, userID, joinedSessionID.displayName, time.Now().UnixMilli())
	if err != nil {
		return
	}
	if !accepted {
		writeError(ctx, wsConn, string(reason))
		wsConn.Close(websocket.StatusPolicyViolation, string(reason))
		return
	}
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		actor.Leave(leaveCtx, userID)
	}()

	writerDone := make(chan struct{})
	go runWriter(ctx, wsConn, eg, writerDone)

	if err := sendFullStateSync(ctx, wsConn, joinedSessionID.sessionID, snapshot); err != nil {
		wsConn.Close(websocket.StatusInternalError, "failed to send initial sync")
		<-writerDone
		return
	}

	activity := make(chan struct{}, 1)
	go runPing(ctx, wsConn, cfg, activity, cancel)
	runReader(ctx, wsConn, actor, userID, limiter, cfg, metrics, log, activity)

	wsConn.Close(websocket.StatusNormalClosure, "closing")
	<-writerDone
}

type joinInfo struct {
	sessionID   string
	displayName string
}

// awaitJoin reads the connection's first frame, which must be JOIN_SESSION,
// within cfg.JoinTimeout, and resolves the owning actor via the registry.
func awaitJoin(ctx context.Context, wsConn *websocket.Conn, reg *registry.Registry, cfg Config) (*session.Actor, string, joinInfo, error) {
	joinCtx, cancel := context.WithTimeout(ctx, cfg.JoinTimeout)
	defer cancel()

	_, data, err := wsConn.Read(joinCtx)
	if err != nil {
		wsConn.Close(websocket.StatusPolicyViolation, "join timeout")
		return nil, "", joinInfo{}, err
	}

	var env wireproto.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		wsConn.Close(websocket.StatusPolicyViolation, "malformed envelope")
		return nil, "", joinInfo{}, err
	}
	if env.EventType != wireproto.TypeJoinSession {
		writeError(ctx, wsConn, wireproto.ErrNotJoined)
		wsConn.Close(websocket.StatusPolicyViolation, "expected JOIN_SESSION")
		return nil, "", joinInfo{}, errors.New("conn: first frame was not JOIN_SESSION")
	}
	var payload wireproto.JoinSessionPayload
	if err := env.ParsePayload(&payload); err != nil || payload.SessionID == "" || env.SourceUserID == "" {
		writeError(ctx, wsConn, wireproto.ErrMalformed)
		wsConn.Close(websocket.StatusPolicyViolation, "malformed join payload")
		return nil, "", joinInfo{}, errors.New("conn: malformed JOIN_SESSION payload")
	}

	actor, err := reg.JoinOrCreate(payload.SessionID)
	if err != nil {
		writeError(ctx, wsConn, wireproto.ErrGlobalSessionLimit)
		wsConn.Close(websocket.StatusPolicyViolation, "global session limit")
		return nil, "", joinInfo{}, err
	}
	return actor, env.SourceUserID, joinInfo{sessionID: payload.SessionID, displayName: payload.DisplayName}, nil
}

func sendFullStateSync(ctx context.Context, wsConn *websocket.Conn, sessionID string, snap session.FullStateSync) error {
	env, err := wireproto.NewEnvelope(wireproto.TypeFullStateSync, time.Now().UnixMilli(), snap.YouAre, struct {
		SessionID string                  `json:"session_id"`
		Objects   map[string]scene.Object `json:"objects"`
		Users     map[string]scene.User   `json:"users"`
	}{sessionID, snap.Objects, snap.Users})
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsConn.Write(writeCtx, websocket.MessageText, data)
}

func writeError(ctx context.Context, wsConn *websocket.Conn, code string) {
	env, err := wireproto.NewEnvelope(wireproto.TypeError, time.Now().UnixMilli(), "", wireproto.ErrorPayload{
		Code:    code,
		Message: fmt.Sprintf("rejected: %s", code),
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	wsConn.Write(writeCtx, websocket.MessageText, data)
}
