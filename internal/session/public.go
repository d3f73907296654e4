package session

import (
	"context"
	"errors"
	"time"

	"github.com/ehrlich-b/scened/internal/scene"
)

// ErrActorClosed is returned when a command is submitted to an actor whose
// Run loop has already exited.
var ErrActorClosed = errors.New("session: actor is closed")

func (a *Actor) submit(ctx context.Context, msg mailboxMsg) error {
	msg.recvTime = time.Now()
	select {
	case a.mailbox <- msg:
		return nil
	case <-a.done:
		return ErrActorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join asks the actor to seat a new user. It blocks for the actor's
// synchronous reply, which carries either the rejection reason or the
// user's Egress handle plus an initial FULL_STATE_SYNC payload.
func (a *Actor) Join(ctx context.Context, userID, displayName string, connectedAt int64) (accepted bool, reason scene.RejectReason, egress *Egress, snapshot FullStateSync, err error) {
	reply := make(chan joinReply, 1)
	req := &joinRequest{userID: userID, displayName: displayName, connectedAt: connectedAt, reply: reply}
	if err := a.submit(ctx, mailboxMsg{join: req}); err != nil {
		return false, "", nil, FullStateSync{}, err
	}
	select {
	case r := <-reply:
		return r.accepted, r.reason, r.egress, r.snapshot, nil
	case <-ctx.Done():
		return false, "", nil, FullStateSync{}, ctx.Err()
	}
}

// Leave tells the actor a user has left, explicitly or via disconnect.
func (a *Actor) Leave(ctx context.Context, userID string) error {
	return a.submit(ctx, mailboxMsg{leave: &leaveRequest{userID: userID}})
}

// Select submits a SELECT_OBJECT command. Selections are ephemeral and
// never reach the durable log.
func (a *Actor) Select(ctx context.Context, userID string, objectID *string) error {
	return a.submit(ctx, mailboxMsg{sel: &selectRequest{userID: userID, objectID: objectID}})
}

func (a *Actor) CreateObject(ctx context.Context, cmd scene.CreateObjectCmd) error {
	return a.submit(ctx, mailboxMsg{create: &cmd})
}

func (a *Actor) DeleteObject(ctx context.Context, cmd scene.DeleteObjectCmd) error {
	return a.submit(ctx, mailboxMsg{del: &cmd})
}

func (a *Actor) UpdateTransform(ctx context.Context, cmd scene.UpdateTransformCmd) error {
	return a.submit(ctx, mailboxMsg{xform: &cmd})
}

func (a *Actor) UpdateProperties(ctx context.Context, cmd scene.UpdatePropertiesCmd) error {
	return a.submit(ctx, mailboxMsg{props: &cmd})
}

func (a *Actor) UpdateName(ctx context.Context, cmd scene.UpdateNameCmd) error {
	return a.submit(ctx, mailboxMsg{name: &cmd})
}
