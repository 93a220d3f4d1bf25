// Package pool implements the portforwarder pool: one pre-warmed
// session slot, kept topped up by two background refill workers, with a
// width-10 semaphore bounding concurrent take_stream operations. A
// "session" is one httpstream.Connection dialed to the target pod's
// portforward subresource; "take_stream(port)" creates a fresh error+data
// stream pair on that connection.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/apimachinery/pkg/util/httpstream"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/hcavarsan/kftray-sub001/internal/podwatcher"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

const (
	prewarmSlots      = 1
	backgroundRefills = 2
	semaphoreWidth    = 10
	createTimeout     = 3 * time.Second
	acquireTimeout    = 2 * time.Second
	maxConsecFailures = 3
)

// Pool hands out data streams to a target pod, keeping a warm session ready
// so the common case of acquiring a stream never pays dial latency.
type Pool struct {
	restCfg   *rest.Config
	clientset kubernetes.Interface
	namespace string
	watcher   *podwatcher.Watcher

	sem chan struct{}

	mu          sync.Mutex
	slot        *session
	generation  uint64
	consecFails int32

	cancel context.CancelFunc
}

// New starts a pool targeting pods resolved by watcher. The pool begins
// pre-warming its slot immediately in the background.
func New(restCfg *rest.Config, clientset kubernetes.Interface, namespace string, watcher *podwatcher.Watcher) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		restCfg:   restCfg,
		clientset: clientset,
		namespace: namespace,
		watcher:   watcher,
		sem:       make(chan struct{}, semaphoreWidth),
		cancel:    cancel,
	}

	for i := 0; i < backgroundRefills; i++ {
		go p.refillLoop(ctx)
	}
	go p.watchPodChanges(ctx)

	return p
}

// Close tears down the pool and its background workers.
func (p *Pool) Close() {
	p.cancel()
	p.mu.Lock()
	if p.slot != nil {
		_ = p.slot.Close()
		p.slot = nil
	}
	p.mu.Unlock()
}

func (p *Pool) watchPodChanges(ctx context.Context) {
	for {
		ch := p.watcher.Subscribe()
		select {
		case <-ctx.Done():
			return
		case <-ch:
			p.invalidate()
		}
	}
}

// invalidate bumps the generation counter and drops the current slot,
// forcing the next acquire (or refill pass) to dial a fresh session
// against the newly chosen pod.
func (p *Pool) invalidate() {
	p.mu.Lock()
	p.generation++
	old := p.slot
	p.slot = nil
	p.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// refillLoop keeps the pre-warmed slot full, throttling itself after
// maxConsecFailures consecutive dial failures to avoid hammering a pod
// that is not accepting connections.
func (p *Pool) refillLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.mu.Lock()
		needsFill := p.slot == nil
		fails := p.consecFails
		p.mu.Unlock()

		if fails >= maxConsecFailures {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(fails) * time.Second):
			}
			p.mu.Lock()
			needsFill = p.slot == nil
			p.mu.Unlock()
		}

		if !needsFill {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		s, err := p.dialWithRetry(ctx)
		if err != nil {
			atomic.AddInt32(&p.consecFails, 1)
			slog.Debug("pool refill failed", slogutil.Error(err))
			continue
		}

		p.mu.Lock()
		if p.slot == nil {
			p.slot = s
			atomic.StoreInt32(&p.consecFails, 0)
		} else {
			go func() { _ = s.Close() }()
		}
		p.mu.Unlock()
	}
}

// dialWithRetry resolves the current ready pod and dials a session,
// retrying exactly once via backoff after any dial error (such as a
// transient 404 when the pod is replaced mid dial).
func (p *Pool) dialWithRetry(ctx context.Context) (*session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, createTimeout)
	defer cancel()

	var s *session
	boff := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 1)
	err := backoff.Retry(func() error {
		pod, err := p.watcher.CurrentReadyPod()
		if err != nil {
			return backoff.Permanent(ErrNoReadyPod)
		}
		dialed, dialErr := dialSession(p.restCfg, p.clientset, p.namespace, pod.Name)
		if dialErr != nil {
			return dialErr
		}
		s = dialed
		return nil
	}, backoff.WithContext(boff, dialCtx))
	return s, err
}

// Acquire returns a data stream for remotePort, using the pre-warmed slot
// when available and dialing a fresh session otherwise. The returned
// stream is owned by the caller; closing it does not close the underlying
// session.
func (p *Pool) Acquire(ctx context.Context, remotePort uint16) (httpstream.Stream, <-chan error, error) {
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	p.mu.Lock()
	s := p.slot
	p.mu.Unlock()

	if s == nil {
		dialed, err := p.dialWithRetry(ctx)
		if err != nil {
			return nil, nil, err
		}
		s = dialed
		p.mu.Lock()
		if p.slot == nil {
			p.slot = s
		}
		p.mu.Unlock()
	}

	// A session supports many concurrently created streams, so it stays in
	// the slot for the next caller; only a failed take_stream evicts it.
	stream, errCh, err := takeStream(s, remotePort)
	if err != nil {
		p.mu.Lock()
		if p.slot == s {
			p.slot = nil
		}
		p.mu.Unlock()
		_ = s.Close()
		return nil, nil, err
	}

	return stream, errCh, nil
}
