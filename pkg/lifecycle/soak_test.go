package lifecycle

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ghostbridge/ghostbridge/internal/testutil"
	"github.com/ghostbridge/ghostbridge/pkg/envelope"
)

// TestSoakMaterializeVanishChurn hammers the live table from many
// goroutines while the background sweep runs, checking that every
// instance ends up vanished exactly once.
func TestSoakMaterializeVanishChurn(t *testing.T) {
	testutil.RequireLong(t)

	m := NewManager(Options{
		SweepInterval: 10 * time.Millisecond,
		HistoryLimit:  100_000,
	})
	m.Start()
	defer m.Close()

	const workers = 16
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				now := time.Now().UnixMilli()
				ttl := int64(20 + i%80)
				env := &envelope.Envelope{
					Header: envelope.Header{
						ID:          fmt.Sprintf("soak-%d-%d", w, i),
						Class:       envelope.ClassWhisper,
						CreatedAtMs: now,
						TTLMs:       ttl,
						ExpiresAtMs: now + ttl,
					},
					Payload: envelope.Payload{
						Class:  envelope.ClassWhisper,
						Fields: map[string][]byte{"body": []byte("soak")},
					},
					Security:     envelope.SecurityContext{Tier: envelope.TierResistant},
					VanishMethod: envelope.VanishZeroize,
				}
				id, err := m.Materialize(env)
				if err != nil {
					continue
				}
				if i%3 == 0 {
					m.Vanish(id, "burn")
					m.Vanish(id, "burn")
				}
			}
		}(w)
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for m.LiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if live := m.LiveCount(); live != 0 {
		t.Fatalf("%d instances still live after soak", live)
	}
}
