package conn

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"

	"github.com/ehrlich-b/scened/internal/session"
)

// runWriter is the connection's sole consumer of its Egress queue — the
// teacher's "writer goroutine drains the Send channel" pattern. It returns
// once the egress is closed or dropped (including when the actor has
// dropped this recipient for a full queue); it does not write an
// OVERLOADED frame and does not close the socket itself.
func runWriter(ctx context.Context, wsConn *websocket.Conn, eg *session.Egress, done chan<- struct{}) {
	defer close(done)
	for {
		env, ok := eg.Recv(ctx)
		if !ok {
			return
		}
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = wsConn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
}
