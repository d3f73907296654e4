package registry

import (
	"context"
	"testing"
	"time"

	"github.com/ehrlich-b/scened/internal/scene"
)

func testConfig(dir string) Config {
	return Config{
		DataDir:            dir,
		GlobalSessionLimit: 2,
		SessionUserLimit:   10,
		EgressQueueSize:    64,
		CompactionInterval: 0,
	}
}

func TestJoinOrCreateSpawnsAndReuses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx, testConfig(t.TempDir()), nil)

	a1, err := r.JoinOrCreate("room-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	a2, err := r.JoinOrCreate("room-1")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("expected the same actor instance for the same session id")
	}
}

func TestJoinOrCreateEnforcesGlobalCap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx, testConfig(t.TempDir()), nil)

	if _, err := r.JoinOrCreate("room-1"); err != nil {
		t.Fatalf("room-1: %v", err)
	}
	if _, err := r.JoinOrCreate("room-2"); err != nil {
		t.Fatalf("room-2: %v", err)
	}
	if _, err := r.JoinOrCreate("room-3"); err != ErrGlobalSessionLimit {
		t.Fatalf("expected ErrGlobalSessionLimit for a 3rd new session, got %v", err)
	}
	// Existing sessions still accept joins past the cap.
	if _, err := r.JoinOrCreate("room-1"); err != nil {
		t.Fatalf("existing session should still be reachable: %v", err)
	}
}

func TestBootRecoversPersistedSessions(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	r := New(ctx, testConfig(dir), nil)
	actor, err := r.JoinOrCreate("room-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := actor.CreateObject(context.Background(), scene.CreateObjectCmd{
		ObjectID: "o1", Name: "Cube", Kind: scene.KindCube, TimestampMS: 100, UserID: "u1",
	}); err != nil {
		t.Fatalf("create object: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the actor process before shutdown
	cancel()
	actor.Wait()

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	r2 := New(ctx2, testConfig(dir), nil)
	if err := r2.Boot(); err != nil {
		t.Fatalf("boot: %v", err)
	}
	recovered, ok := r2.Lookup("room-1")
	if !ok {
		t.Fatalf("expected room-1 to be recovered")
	}
	_ = recovered
	if r2.Count() != 1 {
		t.Fatalf("expected 1 recovered session, got %d", r2.Count())
	}
}
