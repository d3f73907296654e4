package eventlog

import (
	"encoding/json"
	"os"
	"testing"
)

func TestAppendAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "sess1", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{"object_id": "o1"})
	if _, err := l.Append(Entry{Kind: "CREATE_OBJECT", TimestampMS: 100, UserID: "u1", Payload: payload}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(Entry{Kind: "DELETE_OBJECT", TimestampMS: 200, UserID: "u1", Payload: payload}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	snapshot, entries, err := Replay(dir, "sess1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if snapshot != nil {
		t.Fatalf("expected no snapshot before compaction, got %d bytes", len(snapshot))
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != "CREATE_OBJECT" || entries[1].Kind != "DELETE_OBJECT" {
		t.Fatalf("entries out of order: %+v", entries)
	}
	if entries[0].Seq != 1 || entries[1].Seq != 2 {
		t.Fatalf("expected seq 1 then 2, got %d then %d", entries[0].Seq, entries[1].Seq)
	}
}

func TestResumeSeqContinuesNumbering(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "sess1", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.ResumeSeq(41)
	if _, err := l.Append(Entry{Kind: "CREATE_OBJECT", TimestampMS: 1, UserID: "u1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if l.Seq() != 42 {
		t.Fatalf("expected seq to continue from resumed value, got %d", l.Seq())
	}
}

func TestCompactionTriggersAtThreshold(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "sess1", 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	shouldCompact, err := l.Append(Entry{Kind: "CREATE_OBJECT", TimestampMS: 1, UserID: "u1"})
	if err != nil || shouldCompact {
		t.Fatalf("first append should not yet trigger compaction: compact=%v err=%v", shouldCompact, err)
	}
	shouldCompact, err = l.Append(Entry{Kind: "CREATE_OBJECT", TimestampMS: 2, UserID: "u1"})
	if err != nil || !shouldCompact {
		t.Fatalf("second append should trigger compaction: compact=%v err=%v", shouldCompact, err)
	}
}

func TestCompactWritesSnapshotAndTruncatesLog(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "sess1", 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	if _, err := l.Append(Entry{Kind: "CREATE_OBJECT", TimestampMS: 1, UserID: "u1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	snapshotBlob := []byte(`{"objects":{}}`)
	if err := l.Compact(snapshotBlob); err != nil {
		t.Fatalf("compact: %v", err)
	}

	snapshot, entries, err := Replay(dir, "sess1")
	if err != nil {
		t.Fatalf("replay after compaction: %v", err)
	}
	if string(snapshot) != string(snapshotBlob) {
		t.Fatalf("snapshot mismatch: got %s", snapshot)
	}
	if len(entries) != 0 {
		t.Fatalf("expected log truncated after compaction, got %d entries", len(entries))
	}
}

func TestReplayMissingSessionReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	snapshot, entries, err := Replay(dir, "never-existed")
	if err != nil {
		t.Fatalf("replay of missing session should not error: %v", err)
	}
	if snapshot != nil || entries != nil {
		t.Fatalf("expected nil snapshot/entries, got %v / %v", snapshot, entries)
	}
}

func TestReplayDropsTrailingPartialLine(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "sess1", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.Append(Entry{Kind: "CREATE_OBJECT", TimestampMS: 1, UserID: "u1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	l.Close()

	// Simulate a crash mid-write: append a truncated JSON fragment with no
	// trailing newline.
	f, err := os.OpenFile(logPath(dir, "sess1"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.WriteString(`{"kind":"DELETE_OB`); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	f.Close()

	_, entries, err := Replay(dir, "sess1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the partial trailing line to be dropped, got %d entries", len(entries))
	}
}

func TestListSessionIDs(t *testing.T) {
	dir := t.TempDir()
	l1, _ := Open(dir, "a", 0)
	l1.Append(Entry{Kind: "CREATE_OBJECT"})
	l1.Close()
	l2, _ := Open(dir, "b", 1)
	l2.Append(Entry{Kind: "CREATE_OBJECT"})
	l2.Compact([]byte(`{}`))
	l2.Close()

	ids, err := ListSessionIDs(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both sessions listed, got %v", ids)
	}
}
