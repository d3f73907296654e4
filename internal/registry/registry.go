// Package registry implements the Session Registry (spec.md §4.E): the
// process-wide session_id -> actor map, global session cap enforcement,
// and Recovery Boot (§4.H), matching the teacher's PeerDirectory/
// SessionManager sync.RWMutex-guarded map pattern.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ehrlich-b/scened/internal/eventlog"
	"github.com/ehrlich-b/scened/internal/logger"
	"github.com/ehrlich-b/scened/internal/scene"
	"github.com/ehrlich-b/scened/internal/session"
)

// ErrGlobalSessionLimit is returned by JoinOrCreate when a brand-new
// session would exceed the configured global cap. Existing sessions keep
// accepting joins regardless of this limit.
var ErrGlobalSessionLimit = fmt.Errorf("registry: global session limit reached")

// Config carries the subset of config.Server the registry and the actors
// it spawns need.
type Config struct {
	DataDir            string
	GlobalSessionLimit int
	SessionUserLimit   int
	EgressQueueSize    int
	CompactionInterval int
}

// entry pairs a running actor with the cancel func for its own derived
// context, so a single session can be torn down (explicit host close,
// spec.md invariant 6) without canceling every other session in the
// process.
type entry struct {
	actor  *session.Actor
	cancel context.CancelFunc
}

// Registry is the process-wide session_id -> actor map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]entry

	cfg     Config
	metrics session.Metrics
	ctx     context.Context
}

// New constructs an empty registry. ctx governs the lifetime of every
// actor the registry spawns — canceling it triggers every actor's
// graceful-shutdown path.
func New(ctx context.Context, cfg Config, metrics session.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]entry),
		cfg:      cfg,
		metrics:  metrics,
		ctx:      ctx,
	}
}

// Lookup returns the actor for sessionID if one is already running.
func (r *Registry) Lookup(sessionID string) (*session.Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	return e.actor, ok
}

// Count reports how many sessions are currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// JoinOrCreate resolves sessionID to a running actor, spawning a new one if
// none is running yet — rebuilt from any log/snapshot already persisted for
// sessionID, or empty if there is none. New sessions are subject to the
// global cap; joins to an already-running session are not.
func (r *Registry) JoinOrCreate(sessionID string) (*session.Actor, error) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		return e.actor, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the write lock: another goroutine may have created it
	// between the RUnlock above and this Lock.
	if e, ok := r.sessions[sessionID]; ok {
		return e.actor, nil
	}
	if len(r.sessions) >= r.cfg.GlobalSessionLimit {
		return nil, ErrGlobalSessionLimit
	}

	state, lastSeq, err := Rebuild(r.cfg.DataDir, sessionID)
	if err != nil {
		return nil, err
	}
	actor, cancel, err := r.spawn(sessionID, state, lastSeq)
	if err != nil {
		return nil, err
	}
	r.sessions[sessionID] = entry{actor: actor, cancel: cancel}
	r.noteSpawned(sessionID)
	return actor, nil
}

// sessionCounter is the narrow slice of telemetry.Recorder the registry
// touches directly; session.Metrics has no notion of session lifecycle
// since actors don't know about their own registration. SessionSpawned
// and SessionRemoved also record a durable audit row (session_events)
// when the Recorder has a backing Store, so "when was this session first
// seen / torn down" survives a restart independent of the in-memory gauge.
type sessionCounter interface {
	SessionSpawned(sessionID string)
	SessionRemoved(sessionID string)
}

func (r *Registry) noteSpawned(sessionID string) {
	if sc, ok := r.metrics.(sessionCounter); ok {
		sc.SessionSpawned(sessionID)
	}
}

func (r *Registry) noteRemoved(sessionID string) {
	if sc, ok := r.metrics.(sessionCounter); ok {
		sc.SessionRemoved(sessionID)
	}
}

func (r *Registry) spawn(sessionID string, initial *scene.State, initialSeq int64) (*session.Actor, context.CancelFunc, error) {
	log, err := eventlog.Open(r.cfg.DataDir, sessionID, r.cfg.CompactionInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: open log for %q: %w", sessionID, err)
	}
	log.ResumeSeq(initialSeq)
	actor := session.New(sessionID, initial, log, session.Config{
		UserLimit:          r.cfg.SessionUserLimit,
		EgressQueueSize:    r.cfg.EgressQueueSize,
		CompactionInterval: r.cfg.CompactionInterval,
	}, r.metrics)
	actorCtx, cancel := context.WithCancel(r.ctx)
	go actor.Run(actorCtx)
	return actor, cancel, nil
}

// Remove drops sessionID from the registry once its actor has fully shut
// down. Registries never shrink proactively otherwise — sessions persist
// for the life of the process once created.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	r.noteRemoved(sessionID)
}

// Close performs the "explicit host close" session teardown from spec.md
// invariant 6: cancels the named session's actor (which drains its
// mailbox, writes a final snapshot, and closes its log), then drops it
// from the registry. The persisted log/snapshot files are left on disk —
// only an operator deleting them from the data directory reclaims that
// space. A later join to the same session_id spawns a brand-new actor
// that recovers from whatever was last persisted. Reports false if no
// such session is currently registered.
func (r *Registry) Close(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	e.actor.Wait()
	r.noteRemoved(sessionID)
	return true
}

// WaitAll blocks until every currently-registered actor has finished
// draining its mailbox and writing its final snapshot — called after the
// registry's ctx has been canceled so process shutdown doesn't race ahead
// of each session's own graceful shutdown (spec.md §5) and strand a
// session's last few mutations uncompacted.
func (r *Registry) WaitAll() {
	r.mu.RLock()
	actors := make([]*session.Actor, 0, len(r.sessions))
	for _, e := range r.sessions {
		actors = append(actors, e.actor)
	}
	r.mu.RUnlock()
	for _, a := range actors {
		a.Wait()
	}
}

// Boot performs Recovery Boot (spec.md §4.H): enumerate every persisted
// session under cfg.DataDir, replay its log into a scene.State, and
// register a running actor for it — before any connection arrives.
func (r *Registry) Boot() error {
	ids, err := eventlog.ListSessionIDs(r.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("registry: list persisted sessions: %w", err)
	}
	log := logger.For("registry")
	for _, id := range ids {
		state, lastSeq, err := Rebuild(r.cfg.DataDir, id)
		if err != nil {
			log.Error("recovery failed, skipping session", "session_id", id, "error", err)
			continue
		}
		actor, cancel, err := r.spawn(id, state, lastSeq)
		if err != nil {
			log.Error("failed to spawn recovered actor", "session_id", id, "error", err)
			continue
		}
		r.mu.Lock()
		r.sessions[id] = entry{actor: actor, cancel: cancel}
		r.mu.Unlock()
		r.noteSpawned(id)
		log.Info("recovered session", "session_id", id, "objects", len(state.Objects))
	}
	return nil
}
