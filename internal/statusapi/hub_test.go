package statusapi

import (
	"testing"

	"github.com/rs/zerolog"

	"stationsync/internal/metrics"
)

func TestNewHubTracksNoClientsInitially(t *testing.T) {
	c := metrics.NewCollector(zerolog.Nop())
	defer c.Close()
	h := newHub(c, zerolog.Nop())
	if len(h.clients) != 0 {
		t.Fatalf("clients = %d, want 0", len(h.clients))
	}
}

func TestBroadcastWithNoClientsDoesNotPanic(t *testing.T) {
	c := metrics.NewCollector(zerolog.Nop())
	defer c.Close()
	h := newHub(c, zerolog.Nop())
	h.broadcast(c.Snapshot())
}
