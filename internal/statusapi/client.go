package statusapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"stationsync/internal/metrics"
)

// Dial connects to a locally-running status feed and returns a channel of
// Snapshots, closed when the connection drops or ctx is cancelled.
func Dial(ctx context.Context, port int) (<-chan metrics.Snapshot, error) {
	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("statusapi: dial %s: %w", url, err)
	}

	out := make(chan metrics.Snapshot, 4)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var snap metrics.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
