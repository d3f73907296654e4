// Package eventlog implements the durable, append-only per-session event
// log: newline-delimited JSON entries fsync'd before append returns, plus
// snapshot-based compaction so replay never has to fold an unbounded log.
// The write-temp-fsync-rename pattern mirrors how the teacher persists its
// manifest and memory files; the append/compact/replay shape mirrors
// hashicorp/serf's Snapshotter.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const tmpSuffix = ".tmp"

// Entry is one accepted mutating command, persisted verbatim so replay can
// rebuild canonical state by folding entries through scene's transitions.
// Seq is assigned by Log.Append, strictly increasing per session starting
// at 1 (spec.md §4.A) — callers never set it themselves.
type Entry struct {
	Seq         int64           `json:"seq"`
	Kind        string          `json:"kind"`
	TimestampMS int64           `json:"timestamp_ms"`
	UserID      string          `json:"user_id"`
	Payload     json.RawMessage `json:"payload"`
}

// Log owns one session's on-disk log file plus its snapshot sibling.
type Log struct {
	dir         string
	sessionID   string
	fh          *os.File
	appendCount int
	compactAt   int
	seq         int64
}

// logPath returns the append-only log file for a session.
func logPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".log")
}

// snapshotPath returns the compacted-state snapshot file for a session.
func snapshotPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".snapshot.json")
}

// Open opens (creating if absent) the append-only log for sessionID.
// compactAt is the number of appended entries after which Append triggers
// a caller-supplied compaction (config.Server.CompactionInterval).
func Open(dir, sessionID string, compactAt int) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create data dir: %w", err)
	}
	fh, err := os.OpenFile(logPath(dir, sessionID), os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open log: %w", err)
	}
	return &Log{dir: dir, sessionID: sessionID, fh: fh, compactAt: compactAt}, nil
}

// Seq returns the most recently assigned sequence number, 0 if none yet.
func (l *Log) Seq() int64 { return l.seq }

// ResumeSeq seeds the log's sequence counter when recovering a session
// whose highest persisted seq is already known (from a snapshot and/or the
// entries replayed after it) — the next Append continues from seq+1
// instead of restarting at 1 and recreating sequence numbers that were
// already handed out before the crash/restart.
func (l *Log) ResumeSeq(seq int64) { l.seq = seq }

// Append writes one entry, fsyncs it, and reports whether the caller should
// now call Compact (the log has crossed its entry-count threshold). e.Seq
// is overwritten with the next sequence number regardless of what the
// caller passed in — sequence assignment is the log's responsibility
// (spec.md §4.A: "sequence numbers are strictly increasing per session
// starting at 1").
func (l *Log) Append(e Entry) (shouldCompact bool, err error) {
	l.seq++
	e.Seq = l.seq
	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("eventlog: marshal entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.fh.Write(data); err != nil {
		return false, fmt.Errorf("eventlog: write entry: %w", err)
	}
	if err := l.fh.Sync(); err != nil {
		return false, fmt.Errorf("eventlog: fsync entry: %w", err)
	}
	l.appendCount++
	return l.compactAt > 0 && l.appendCount >= l.compactAt, nil
}

// Compact writes snapshot (an opaque, already-serialized state blob) to a
// temp file, fsyncs it, renames it into place, then truncates the log —
// everything before the snapshot is now redundant.
func (l *Log) Compact(snapshot []byte) error {
	tmp := snapshotPath(l.dir, l.sessionID) + tmpSuffix
	tf, err := os.OpenFile(tmp, os.O_RDWR|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("eventlog: open snapshot temp file: %w", err)
	}
	if _, err := tf.Write(snapshot); err != nil {
		tf.Close()
		return fmt.Errorf("eventlog: write snapshot: %w", err)
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return fmt.Errorf("eventlog: fsync snapshot: %w", err)
	}
	if err := tf.Close(); err != nil {
		return fmt.Errorf("eventlog: close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, snapshotPath(l.dir, l.sessionID)); err != nil {
		return fmt.Errorf("eventlog: install snapshot: %w", err)
	}

	if err := l.fh.Truncate(0); err != nil {
		return fmt.Errorf("eventlog: truncate log: %w", err)
	}
	if _, err := l.fh.Seek(0, 0); err != nil {
		return fmt.Errorf("eventlog: seek log: %w", err)
	}
	l.appendCount = 0
	return nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	return l.fh.Close()
}

// Replay loads the snapshot (if any) and returns it alongside the entries
// appended since — the caller folds snapshot + entries to reconstruct
// canonical state. A missing snapshot returns a nil blob and every log
// entry; a missing log (fresh session) returns no entries.
func Replay(dir, sessionID string) (snapshot []byte, entries []Entry, err error) {
	snapPath := snapshotPath(dir, sessionID)
	if data, readErr := os.ReadFile(snapPath); readErr == nil {
		snapshot = data
	} else if !os.IsNotExist(readErr) {
		return nil, nil, fmt.Errorf("eventlog: read snapshot: %w", readErr)
	}

	fh, err := os.Open(logPath(dir, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot, nil, nil
		}
		return nil, nil, fmt.Errorf("eventlog: open log for replay: %w", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// A trailing partial line means the process died mid-write; the
			// entry was never fsync'd as complete, so it is safe to drop.
			break
		}
		entries = append(entries, e)
	}
	return snapshot, entries, nil
}

// ListSessionIDs enumerates every session with a persisted log or snapshot
// under dir, for Recovery Boot to iterate.
func ListSessionIDs(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return nil, fmt.Errorf("eventlog: glob logs: %w", err)
	}
	seen := make(map[string]struct{}, len(matches))
	var ids []string
	for _, m := range matches {
		id := filepath.Base(m)
		id = id[:len(id)-len(".log")]
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	snapMatches, err := filepath.Glob(filepath.Join(dir, "*.snapshot.json"))
	if err != nil {
		return nil, fmt.Errorf("eventlog: glob snapshots: %w", err)
	}
	for _, m := range snapMatches {
		id := filepath.Base(m)
		id = id[:len(id)-len(".snapshot.json")]
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
