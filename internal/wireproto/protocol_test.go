package wireproto

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := CreateObjectPayload{
		ObjectID:  "o1",
		Name:      "Cube",
		Type:      "cube",
		Transform: Transform{Position: [3]float64{1, 2, 3}},
	}
	env, err := NewEnvelope(TypeCreateObject, 1000, "u1", payload)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.EventType != TypeCreateObject {
		t.Errorf("event type = %q, want %q", decoded.EventType, TypeCreateObject)
	}

	var got CreateObjectPayload
	if err := decoded.ParsePayload(&got); err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if got.ObjectID != "o1" || got.Transform.Position[0] != 1 {
		t.Errorf("payload round-trip mismatch: %+v", got)
	}
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	env, err := NewEnvelope(TypeLeaveSession, 1000, "u1", nil)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	var v struct{}
	if err := env.ParsePayload(&v); err != nil {
		t.Errorf("parse empty payload should be a no-op: %v", err)
	}
}
