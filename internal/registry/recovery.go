package registry

import (
	"encoding/json"
	"fmt"

	"github.com/ehrlich-b/scened/internal/eventlog"
	"github.com/ehrlich-b/scened/internal/scene"
)

// snapshotBlob mirrors the struct internal/session marshals in Actor.compactNow.
type snapshotBlob struct {
	Seq        int64                   `json:"seq"`
	Objects    map[string]scene.Object `json:"objects"`
	Users      map[string]scene.User   `json:"users"`
	CreatedIDs []string                `json:"created_ids"`
}

// Rebuild folds a session's snapshot (if any) and its subsequent log
// entries through scene's transitions to reconstruct canonical state, and
// reports the highest sequence number seen so a newly spawned actor's log
// can resume numbering from there instead of restarting at 1 (spec.md
// §4.A). Users are never restored, per spec.md §4.H — presence is
// ephemeral.
func Rebuild(dir, sessionID string) (*scene.State, int64, error) {
	snapshot, entries, err := eventlog.Replay(dir, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("recovery: replay %q: %w", sessionID, err)
	}

	state := scene.NewState()
	var lastSeq int64
	if snapshot != nil {
		var blob snapshotBlob
		if err := json.Unmarshal(snapshot, &blob); err != nil {
			return nil, 0, fmt.Errorf("recovery: decode snapshot for %q: %w", sessionID, err)
		}
		for id, obj := range blob.Objects {
			state.Objects[id] = obj
		}
		state.SeedCreatedIDs(blob.CreatedIDs)
		lastSeq = blob.Seq
	}

	for _, e := range entries {
		if err := applyEntry(state, e); err != nil {
			return nil, 0, fmt.Errorf("recovery: replay entry for %q: %w", sessionID, err)
		}
		if e.Seq > lastSeq {
			lastSeq = e.Seq
		}
	}
	return state, lastSeq, nil
}

// applyEntry decodes one persisted log entry and folds it into state via
// the exact same transition scene.State exposes to the live actor — replay
// and live processing share one code path, so recovered state can never
// drift from what a live run would have produced.
func applyEntry(state *scene.State, e eventlog.Entry) error {
	switch scene.CommandKind(e.Kind) {
	case scene.CmdCreateObject:
		var cmd scene.CreateObjectCmd
		if err := json.Unmarshal(e.Payload, &cmd); err != nil {
			return err
		}
		state.ApplyCreateObject(cmd)
	case scene.CmdDeleteObject:
		var cmd scene.DeleteObjectCmd
		if err := json.Unmarshal(e.Payload, &cmd); err != nil {
			return err
		}
		state.ApplyDeleteObject(cmd)
	case scene.CmdUpdateTransform:
		var cmd scene.UpdateTransformCmd
		if err := json.Unmarshal(e.Payload, &cmd); err != nil {
			return err
		}
		state.ApplyUpdateTransform(cmd)
	case scene.CmdUpdateProperties:
		var cmd scene.UpdatePropertiesCmd
		if err := json.Unmarshal(e.Payload, &cmd); err != nil {
			return err
		}
		state.ApplyUpdateProperties(cmd)
	case scene.CmdUpdateName:
		var cmd scene.UpdateNameCmd
		if err := json.Unmarshal(e.Payload, &cmd); err != nil {
			return err
		}
		state.ApplyUpdateName(cmd)
	default:
		return fmt.Errorf("unknown log entry kind %q", e.Kind)
	}
	return nil
}
