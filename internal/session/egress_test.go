package session

import (
	"context"
	"testing"
	"time"

	"github.com/ehrlich-b/scened/internal/eventlog"
	"github.com/ehrlich-b/scened/internal/scene"
	"github.com/ehrlich-b/scened/internal/wireproto"
)

func TestEgressCoalescesSameKeySends(t *testing.T) {
	eg := newEgress(4)

	env1, _ := wireproto.NewEnvelope(wireproto.TypeTransformUpdated, 100, "u1", nil)
	env2, _ := wireproto.NewEnvelope(wireproto.TypeTransformUpdated, 200, "u1", nil)
	env3, _ := wireproto.NewEnvelope(wireproto.TypeTransformUpdated, 300, "u1", nil)

	if overloaded := eg.Send("o1|u1", env1); overloaded {
		t.Fatalf("first send should not overload")
	}
	if overloaded := eg.Send("o1|u1", env2); overloaded {
		t.Fatalf("second same-key send should coalesce, not overload")
	}
	if overloaded := eg.Send("o1|u1", env3); overloaded {
		t.Fatalf("third same-key send should coalesce, not overload")
	}

	if n := len(eg.ch); n != 1 {
		t.Fatalf("expected exactly one slot queued after coalescing, got %d", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := eg.Recv(ctx)
	if !ok {
		t.Fatalf("expected a queued envelope")
	}
	if got.Timestamp != env3.Timestamp {
		t.Fatalf("expected coalescing to keep the latest write (timestamp %d), got %d", env3.Timestamp, got.Timestamp)
	}

	select {
	case <-eg.ch:
		t.Fatalf("expected only one slot to have been queued")
	default:
	}
}

func TestEgressDistinctKeysDoNotCoalesce(t *testing.T) {
	eg := newEgress(4)

	envA, _ := wireproto.NewEnvelope(wireproto.TypeTransformUpdated, 100, "u1", nil)
	envB, _ := wireproto.NewEnvelope(wireproto.TypeTransformUpdated, 200, "u1", nil)

	eg.Send("o1|u1", envA)
	eg.Send("o2|u1", envB)

	if n := len(eg.ch); n != 2 {
		t.Fatalf("expected two distinct slots queued, got %d", n)
	}
}

func TestEgressSendReportsOverloadWhenQueueFull(t *testing.T) {
	eg := newEgress(2)

	env, _ := wireproto.NewEnvelope(wireproto.TypeObjectCreated, 100, "u1", nil)
	for i := 0; i < 2; i++ {
		// key "" never coalesces, so each send reserves its own slot.
		if overloaded := eg.Send("", env); overloaded {
			t.Fatalf("send %d should fit in the queue, not overload", i)
		}
	}
	if overloaded := eg.Send("", env); !overloaded {
		t.Fatalf("third send into a capacity-2 queue should report overload")
	}
}

func TestEgressRecvUnblocksOnDrop(t *testing.T) {
	eg := newEgress(1)
	eg.Drop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := eg.Recv(ctx)
	if ok {
		t.Fatalf("expected Recv to report closed after Drop")
	}
}

// TestFanoutDropsOverloadedRecipientButReachesOthers covers the S6
// backpressure scenario end-to-end through the actor: a recipient whose
// egress queue is already full is dropped (its egress closes), while every
// other joined user still receives the broadcast that triggered the drop.
func TestFanoutDropsOverloadedRecipientButReachesOthers(t *testing.T) {
	dir := t.TempDir()
	log, err := eventlog.Open(dir, "sess1", 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	a := New("sess1", nil, log, Config{UserLimit: 10, EgressQueueSize: 2, CompactionInterval: 0}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		a.Wait()
	}()
	go a.Run(ctx)

	_, _, egSlow, _, err := a.Join(ctx, "slow", "Slow", 100)
	if err != nil || egSlow == nil {
		t.Fatalf("join slow: accepted=%v err=%v", egSlow != nil, err)
	}
	_, _, egFast, _, err := a.Join(ctx, "fast", "Fast", 100)
	if err != nil || egFast == nil {
		t.Fatalf("join fast: accepted=%v err=%v", egFast != nil, err)
	}

	// fast keeps draining for the whole test so its queue never fills.
	fastSeen := make(chan struct{}, 16)
	go func() {
		for {
			if _, ok := egFast.Recv(context.Background()); !ok {
				return
			}
			fastSeen <- struct{}{}
		}
	}()

	// slow never drains, and each create below uses key "" (never
	// coalesces), so its capacity-2 queue fills and then overflows well
	// before all three creates are through.
	for i := 0; i < 3; i++ {
		if err := a.CreateObject(ctx, scene.CreateObjectCmd{
			ObjectID: "o" + string(rune('1'+i)), Name: "Cube", Kind: scene.KindCube,
			Transform: scene.Transform{Scale: scene.Vec3{1, 1, 1}},
			TimestampMS: int64(200 + i), UserID: "origin",
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		select {
		case <-fastSeen:
		case <-time.After(time.Second):
			t.Fatalf("expected fast to receive broadcast %d", i)
		}
	}

	// Drain whatever slow's queue had buffered before the drop, then expect
	// Recv to report closed — Drop only signals e.dropped, it doesn't clear
	// e.ch, so the close is only guaranteed visible once the buffer empties.
	recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recvCancel()
	for {
		_, ok := egSlow.Recv(recvCtx)
		if !ok {
			break
		}
		if recvCtx.Err() != nil {
			t.Fatalf("expected slow's egress to eventually close after overload")
		}
	}
}
