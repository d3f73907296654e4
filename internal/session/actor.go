// Package session implements the Session Actor: one goroutine per session
// draining a command mailbox in strict serial order, the only writer of a
// session's scene.State and eventlog.Log. Presence (JOIN/LEAVE/SELECT) is
// handled by the same actor loop (handlers.go), with its state transitions
// in internal/scene's presence.go (spec.md §4.C, §4.F).
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/scened/internal/eventlog"
	"github.com/ehrlich-b/scened/internal/logger"
	"github.com/ehrlich-b/scened/internal/scene"
	"github.com/ehrlich-b/scened/internal/wireproto"
)

// Metrics is the subset of internal/telemetry an actor needs; kept as a
// narrow interface here so session never imports telemetry directly.
type Metrics interface {
	MessageIn()
	MessageOut()
	TransformUpdate()
	ObserveFanout(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) MessageIn()                  {}
func (noopMetrics) MessageOut()                 {}
func (noopMetrics) TransformUpdate()            {}
func (noopMetrics) ObserveFanout(time.Duration) {}

// auditor is an optional capability of Metrics: a durable session_events
// audit trail (internal/telemetry.Recorder backed by a Store). Checked via
// type assertion, like registry's sessionCounter, so the narrow Metrics
// interface above doesn't have to grow for a feature most callers (tests,
// noopMetrics) don't need.
type auditor interface {
	UserJoined(sessionID, userID string)
	UserLeft(sessionID, userID string)
}

// Config is the subset of config.Server an actor needs, passed explicitly
// so this package never imports internal/config.
type Config struct {
	UserLimit          int
	EgressQueueSize    int
	CompactionInterval int
}

// Actor owns one session's canonical state, its durable log, and the
// egress queue of every currently-joined user.
type Actor struct {
	SessionID string

	state   *scene.State
	log     *eventlog.Log
	cfg     Config
	metrics Metrics
	egress  map[string]*Egress

	mailbox chan mailboxMsg
	done    chan struct{}
}

type mailboxMsg struct {
	join     *joinRequest
	leave    *leaveRequest
	sel      *selectRequest
	create   *scene.CreateObjectCmd
	del      *scene.DeleteObjectCmd
	xform    *scene.UpdateTransformCmd
	props    *scene.UpdatePropertiesCmd
	name     *scene.UpdateNameCmd
	recvTime time.Time
}

type joinRequest struct {
	userID      string
	displayName string
	connectedAt int64
	reply       chan joinReply
}

type joinReply struct {
	accepted bool
	reason   scene.RejectReason
	egress   *Egress
	snapshot FullStateSync
}

type leaveRequest struct {
	userID string
}

type selectRequest struct {
	userID   string
	objectID *string
}

// FullStateSync is the payload handed back to a freshly joined connection.
type FullStateSync struct {
	Objects map[string]scene.Object `json:"objects"`
	Users   map[string]scene.User   `json:"users"`
	YouAre  string                  `json:"you_are"`
}

// New constructs an actor from a freshly-opened log and an already-replayed
// initial state (built by internal/registry's recovery path, or empty for a
// brand-new session).
func New(sessionID string, initial *scene.State, log *eventlog.Log, cfg Config, metrics Metrics) *Actor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if initial == nil {
		initial = scene.NewState()
	}
	return &Actor{
		SessionID: sessionID,
		state:     initial,
		log:       log,
		cfg:       cfg,
		metrics:   metrics,
		egress:    make(map[string]*Egress),
		mailbox:   make(chan mailboxMsg, 256),
		done:      make(chan struct{}),
	}
}

// Run drains the mailbox until ctx is canceled, then writes a final
// snapshot and closes the log — graceful shutdown per spec.md's "on
// shutdown the actor drains its mailbox, writes a final snapshot, closes
// the log."
func (a *Actor) Run(ctx context.Context) {
	defer close(a.done)
	log := logger.For("session").With("session_id", a.SessionID)
	for {
		select {
		case <-ctx.Done():
			a.drainAndExit(log)
			return
		case msg := <-a.mailbox:
			a.dispatch(msg, log)
		}
	}
}

func (a *Actor) drainAndExit(log *slog.Logger) {
	for {
		select {
		case msg := <-a.mailbox:
			a.dispatch(msg, log)
		default:
			a.compactNow(log)
			for _, eg := range a.egress {
				eg.Close()
			}
			if err := a.log.Close(); err != nil {
				log.Warn("close log failed", "error", err)
			}
			return
		}
	}
}

// Wait blocks until Run has finished shutting down.
func (a *Actor) Wait() { <-a.done }

func (a *Actor) dispatch(msg mailboxMsg, log *slog.Logger) {
	a.metrics.MessageIn()
	switch {
	case msg.join != nil:
		a.handleJoin(msg.join)
	case msg.leave != nil:
		a.handleLeave(msg.leave.userID)
	case msg.sel != nil:
		a.handleSelect(msg.sel)
	case msg.create != nil:
		a.handleCreate(*msg.create, msg.recvTime)
	case msg.del != nil:
		a.handleDelete(*msg.del, msg.recvTime)
	case msg.xform != nil:
		a.handleTransform(*msg.xform, msg.recvTime)
	case msg.props != nil:
		a.handleProperties(*msg.props, msg.recvTime)
	case msg.name != nil:
		a.handleName(*msg.name, msg.recvTime)
	default:
		log.Warn("empty mailbox message received")
	}
}

// appendEntry persists an accepted mutating command and triggers
// compaction when the configured threshold is crossed.
func (a *Actor) appendEntry(kind scene.CommandKind, userID string, ts int64, cmd any) {
	log := logger.For("session")
	payload, err := json.Marshal(cmd)
	if err != nil {
		log.Error("marshal log entry failed", "session_id", a.SessionID, "error", err)
		return
	}
	shouldCompact, err := a.log.Append(eventlog.Entry{
		Kind:        string(kind),
		TimestampMS: ts,
		UserID:      userID,
		Payload:     payload,
	})
	if err != nil {
		log.Error("append log entry failed", "session_id", a.SessionID, "error", err)
		return
	}
	if shouldCompact {
		a.compactNow(log)
	}
}

func (a *Actor) compactNow(log *slog.Logger) {
	correlationID := uuid.New().String()
	objects, users := a.state.Snapshot()
	blob, err := json.Marshal(struct {
		Seq        int64                   `json:"seq"`
		Objects    map[string]scene.Object `json:"objects"`
		Users      map[string]scene.User   `json:"users"`
		CreatedIDs []string                `json:"created_ids"`
	}{a.log.Seq(), objects, users, a.state.CreatedIDs()})
	if err != nil {
		log.Warn("snapshot marshal failed", "session_id", a.SessionID, "correlation_id", correlationID, "error", err)
		return
	}
	if err := a.log.Compact(blob); err != nil {
		log.Warn("snapshot compaction failed", "session_id", a.SessionID, "correlation_id", correlationID, "error", err)
		return
	}
	log.Info("session compacted", "session_id", a.SessionID, "correlation_id", correlationID, "objects", len(objects), "users", len(users))
}

// fanout delivers env to every joined user except sourceUserID (the
// originator of the command being broadcast), using key to opt the send
// into coalescing (pass "" to disable). Recipients whose queue is full are
// dropped: their egress is Drop()ped and removed from the actor; no
// OVERLOADED frame is sent to them.
func (a *Actor) fanout(sourceUserID string, key string, eventType string, payload any, recvTime time.Time) {
	for userID, eg := range a.egress {
		if userID == sourceUserID {
			continue
		}
		env, err := wireproto.NewEnvelope(eventType, time.Now().UnixMilli(), sourceUserID, payload)
		if err != nil {
			continue
		}
		if eg.Send(key, env) {
			eg.Drop()
			delete(a.egress, userID)
			continue
		}
		a.metrics.MessageOut()
	}
	if !recvTime.IsZero() {
		a.metrics.ObserveFanout(time.Since(recvTime))
	}
}

// sendError delivers an ERROR frame to exactly one user (the originator of
// a rejected command); never logged, never fanned out.
func (a *Actor) sendError(userID string, code wireproto.ErrorPayload) {
	eg, ok := a.egress[userID]
	if !ok {
		return
	}
	env, err := wireproto.NewEnvelope(wireproto.TypeError, time.Now().UnixMilli(), userID, code)
	if err != nil {
		return
	}
	if eg.Send("", env) {
		eg.Drop()
		delete(a.egress, userID)
		return
	}
	a.metrics.MessageOut()
}
