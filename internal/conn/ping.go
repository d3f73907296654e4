package conn

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

// runPing enforces spec.md's connection idle timeout: after cfg.
// ConnectionIdle with no inbound traffic, send a WebSocket ping; if no pong
// arrives within cfg.ConnectionPingGrace, cancel the connection. activity
// is signaled by the reader loop on every successful read and resets the
// idle timer, so a chatty connection never gets pinged.
func runPing(ctx context.Context, wsConn *websocket.Conn, cfg Config, activity <-chan struct{}, cancel context.CancelFunc) {
	idle := cfg.ConnectionIdle
	if idle <= 0 {
		idle = 120 * time.Second
	}
	grace := cfg.ConnectionPingGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}

	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-activity:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		case <-timer.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, grace)
			err := wsConn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				cancel()
				return
			}
			timer.Reset(idle)
		}
	}
}
