package telemetry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Recorder implements session.Metrics and conn.Metrics with atomic
// counters plus a rolling fan-out latency window, and periodically syncs
// the counters to a Store for restart continuity. It is the concrete
// type wired into the registry and connection handler at startup; both
// interfaces are satisfied structurally so telemetry stays decoupled
// from the packages it observes.
type Recorder struct {
	activeSessions     atomic.Int64
	activeConnections  atomic.Int64
	messagesIn         atomic.Int64
	messagesOut        atomic.Int64
	transformUpdates   atomic.Int64
	clockSkewClamped   atomic.Int64

	mu         sync.Mutex
	latSamples []time.Duration
	latNext    int
	latFilled  bool

	store *Store
}

// NewRecorder creates a Recorder with a rolling latency window of size
// samples (spec.md's default is 1000 samples). A nil store disables
// restart-continuity persistence, useful for tests.
func NewRecorder(size int, store *Store) *Recorder {
	if size <= 0 {
		size = 1000
	}
	r := &Recorder{
		latSamples: make([]time.Duration, size),
		store:      store,
	}
	if store != nil {
		if counters, err := store.LoadCounters(); err == nil {
			r.messagesIn.Store(counters["messages_in_total"])
			r.messagesOut.Store(counters["messages_out_total"])
			r.transformUpdates.Store(counters["transform_updates_total"])
			r.clockSkewClamped.Store(counters["clock_skew_clamped_total"])
		}
	}
	return r
}

// session.Metrics

func (r *Recorder) MessageIn()          { r.messagesIn.Add(1) }
func (r *Recorder) MessageOut()         { r.messagesOut.Add(1) }
func (r *Recorder) TransformUpdate()    { r.transformUpdates.Add(1) }

func (r *Recorder) ObserveFanout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latSamples[r.latNext] = d
	r.latNext++
	if r.latNext >= len(r.latSamples) {
		r.latNext = 0
		r.latFilled = true
	}
}

// conn.Metrics

func (r *Recorder) ConnectionOpened()  { r.activeConnections.Add(1) }
func (r *Recorder) ConnectionClosed()  { r.activeConnections.Add(-1) }
func (r *Recorder) ClockSkewClamped()  { r.clockSkewClamped.Add(1) }

// registry-level counters, adjusted directly (not part of either narrow
// interface since only the registry spawns/removes sessions). Each also
// appends a durable session_events row when a Store is attached, so a
// session's create/destroy history outlives the in-memory gauge.
func (r *Recorder) SessionSpawned(sessionID string) {
	r.activeSessions.Add(1)
	r.appendAudit(sessionID, "session_spawned", "", nil)
}

func (r *Recorder) SessionRemoved(sessionID string) {
	r.activeSessions.Add(-1)
	r.appendAudit(sessionID, "session_removed", "", nil)
}

// UserJoined and UserLeft record presence transitions in the same audit
// trail (spec.md §4.F); selection changes are deliberately not audited
// since they are ephemeral and excluded from the durable log too.
func (r *Recorder) UserJoined(sessionID, userID string) {
	r.appendAudit(sessionID, "user_joined", userID, nil)
}

func (r *Recorder) UserLeft(sessionID, userID string) {
	r.appendAudit(sessionID, "user_left", userID, nil)
}

func (r *Recorder) appendAudit(sessionID, event, userID string, detail *string) {
	if r.store == nil {
		return
	}
	if err := r.store.AppendSessionEvent(sessionID, event, userID, detail); err != nil {
		slog.Default().Warn("telemetry: append session event failed", "session_id", sessionID, "event", event, "error", err)
	}
}

// Snapshot is the JSON shape served at GET /metrics.
type Snapshot struct {
	ActiveSessions         int64   `json:"active_sessions"`
	ActiveConnections      int64   `json:"active_connections"`
	MessagesInTotal        int64   `json:"messages_in_total"`
	MessagesOutTotal       int64   `json:"messages_out_total"`
	TransformUpdatesTotal  int64   `json:"transform_updates_total"`
	ClockSkewClampedTotal  int64   `json:"clock_skew_clamped_total"`
	FanoutLatencyP50Ms     float64 `json:"fanout_latency_p50_ms"`
	FanoutLatencyP95Ms     float64 `json:"fanout_latency_p95_ms"`
	FanoutLatencyP99Ms     float64 `json:"fanout_latency_p99_ms"`
}

func (r *Recorder) Snapshot() Snapshot {
	p50, p95, p99 := r.percentiles()
	return Snapshot{
		ActiveSessions:        r.activeSessions.Load(),
		ActiveConnections:     r.activeConnections.Load(),
		MessagesInTotal:       r.messagesIn.Load(),
		MessagesOutTotal:      r.messagesOut.Load(),
		TransformUpdatesTotal: r.transformUpdates.Load(),
		ClockSkewClampedTotal: r.clockSkewClamped.Load(),
		FanoutLatencyP50Ms:    p50,
		FanoutLatencyP95Ms:    p95,
		FanoutLatencyP99Ms:    p99,
	}
}

func (r *Recorder) percentiles() (p50, p95, p99 float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.latNext
	if r.latFilled {
		n = len(r.latSamples)
	}
	if n == 0 {
		return 0, 0, 0
	}
	samples := make([]time.Duration, n)
	copy(samples, r.latSamples[:n])
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	percentile := func(p float64) float64 {
		idx := int(p * float64(len(samples)-1))
		return float64(samples[idx]) / float64(time.Millisecond)
	}
	return percentile(0.50), percentile(0.95), percentile(0.99)
}

// SyncToStore persists current counters. Call this periodically (e.g. a
// ticker in main) so counters survive a restart; a missing store is a
// silent no-op.
func (r *Recorder) SyncToStore() error {
	if r.store == nil {
		return nil
	}
	snap := r.Snapshot()
	return r.store.SyncCounters(map[string]int64{
		"active_sessions":          snap.ActiveSessions,
		"messages_in_total":        snap.MessagesInTotal,
		"messages_out_total":       snap.MessagesOutTotal,
		"transform_updates_total":  snap.TransformUpdatesTotal,
		"clock_skew_clamped_total": snap.ClockSkewClampedTotal,
	})
}

// LogSummary writes a single human-readable operator log line summarizing
// fan-out volume and the current p99 latency, e.g. msg="relay summary"
// messages_out=42,118 messages_in=40,977 active_sessions=3
// active_connections=7 fanout_p99_ms=2. Called on the same
// periodic tick as SyncToStore; kept separate since one is for durability,
// this is for a human reading the log tail during an incident.
func (r *Recorder) LogSummary(log *slog.Logger) {
	snap := r.Snapshot()
	log.Info("relay summary",
		"messages_out", humanize.Comma(snap.MessagesOutTotal),
		"messages_in", humanize.Comma(snap.MessagesInTotal),
		"active_sessions", humanize.Comma(snap.ActiveSessions),
		"active_connections", humanize.Comma(snap.ActiveConnections),
		"fanout_p99_ms", snap.FanoutLatencyP99Ms,
	)
}

// Handler serves the current snapshot as JSON at GET /metrics.
func (r *Recorder) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(r.Snapshot())
	}
}
