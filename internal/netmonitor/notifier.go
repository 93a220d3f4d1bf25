package netmonitor

import (
	"sync"
	"time"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

// Notifier is the process-wide reconnect broadcast primitive: a
// mutex-guarded channel that is closed and replaced on every broadcast, the
// Go idiom for a one-shot fan-out signal. Forwarders call C() once and
// select on the returned channel to learn about the next fleet reconnect.
//
// It also guards the overlapping-reconnect check, since both live under the
// same invariant: at most one reconnect in flight, no more than one per
// constants.MinReconnectInterval.
type Notifier struct {
	mu            sync.Mutex
	ch            chan struct{}
	reconnecting  bool
	lastReconnect time.Time
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// C returns the channel that closes on the next Broadcast.
func (n *Notifier) C() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Broadcast wakes every current waiter and installs a fresh channel for the
// next round.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// TryBeginReconnect reports whether a reconnect may start now, and if so
// marks one as in flight. Callers must pair a true result with FinishReconnect.
func (n *Notifier) TryBeginReconnect() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reconnecting {
		return false
	}
	if !n.lastReconnect.IsZero() && time.Since(n.lastReconnect) < constants.MinReconnectInterval {
		return false
	}
	n.reconnecting = true
	n.lastReconnect = time.Now()
	return true
}

func (n *Notifier) FinishReconnect() {
	n.mu.Lock()
	n.reconnecting = false
	n.mu.Unlock()
}
