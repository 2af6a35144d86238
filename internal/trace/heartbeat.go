package trace

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat emits a periodic liveness event so a stalled verification shows up as
// heartbeats without span ends.
type Heartbeat struct {
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// StartHeartbeat starts emitting to t every interval. It returns nil when t is
// disabled or interval is not positive.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{})}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for n := 1; ; n++ {
			select {
			case now := <-ticker.C:
				t.Emit(&Event{Time: now, Kind: KindHeartbeat, Scope: ScopeDriver, Name: "heartbeat", Detail: fmt.Sprintf("#%d", n)})
			case <-h.stop:
				return
			}
		}
	}()
	return h
}

// Stop ends the heartbeat and waits for its goroutine. It is safe on nil.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	h.wg.Wait()
}
