// Package clientfactory resolves (context, kubeconfig) pairs into
// authenticated, cached Kubernetes clients, the way the teacher's
// pkg/kube.Flags wraps genericclioptions.ConfigFlags, generalized to
// accept an explicit context/kubeconfig pair per rule instead of one
// process-wide flag set, and to try a TLS-strategy ladder instead of
// trusting a single REST config unconditionally.
package clientfactory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Request identifies the cluster a rule wants to talk to.
type Request struct {
	Context    string
	Kubeconfig []string
	Namespace  string
	Insecure   bool
}

func (r Request) cacheKey(digest string) string {
	return fmt.Sprintf("%s|%s|%s|%t", r.Context, digest, r.Namespace, r.Insecure)
}

// Client is a reference-counted handle on a *kubernetes.Clientset and its
// *rest.Config. Callers must call Release when done; the underlying entry
// is evicted from the cache once its count reaches zero and it has been
// invalidated.
type Client struct {
	*kubernetes.Clientset
	RESTConfig *rest.Config

	factory *Factory
	key     string
}

// Release drops this handle's reference. It never forcibly closes
// in-flight requests; it only makes the entry eligible for eviction on the
// next kubeconfig change.
func (c *Client) Release() {
	c.factory.release(c.key)
}

type cacheEntry struct {
	client     *kubernetes.Clientset
	restConfig *rest.Config
	refs       int
	invalid    bool
}

// Factory caches authenticated clients by (context, kubeconfig digest,
// namespace, insecure flag) and watches the resolved kubeconfig paths for
// changes that should invalidate them.
type Factory struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry

	watcher     *fsnotify.Watcher
	watchedOnce sync.Map
}

// New creates a Factory with its own fsnotify watcher. Call Close when the
// process is shutting down.
func New() (*Factory, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create kubeconfig watcher: %w", err)
	}
	f := &Factory{
		entries: make(map[string]*cacheEntry),
		watcher: w,
	}
	go f.watchLoop()
	return f, nil
}

// Close stops the kubeconfig watcher.
func (f *Factory) Close() error {
	return f.watcher.Close()
}

func (f *Factory) watchLoop() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				f.invalidateByPath(ev.Name)
			}
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *Factory) invalidateByPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// A kubeconfig write can affect any cached entry; since entries don't
	// record which paths fed them individually (they're merged), mark
	// every entry invalid and let idle ones (refs == 0) get pruned below.
	for key, e := range f.entries {
		e.invalid = true
		if e.refs == 0 {
			delete(f.entries, key)
		}
	}
	_ = path
}

// Get returns a reference-counted Client for req, resolving and caching a
// new one if needed.
func (f *Factory) Get(ctx context.Context, req Request) (*Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if len(req.Kubeconfig) > 0 {
		rules.Precedence = req.Kubeconfig
	}

	overrides := &clientcmd.ConfigOverrides{}
	if req.Context != "" && req.Context != "@current" {
		overrides.CurrentContext = req.Context
	}

	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)
	rawConfig, err := loader.RawConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContext, err)
	}

	contextName := req.Context
	if contextName == "" || contextName == "@current" {
		contextName = rawConfig.CurrentContext
	}
	if _, ok := rawConfig.Contexts[contextName]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoContext, contextName)
	}

	digest := digestKubeconfig(rules.Precedence)
	req.Insecure = req.Insecure || contextForcesInsecure(rawConfig, contextName)
	key := req.cacheKey(digest)

	f.mu.Lock()
	if e, ok := f.entries[key]; ok && !e.invalid {
		e.refs++
		f.mu.Unlock()
		return &Client{Clientset: e.client, RESTConfig: e.restConfig, factory: f, key: key}, nil
	}
	f.mu.Unlock()

	restCfg, err := loader.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	setKubernetesDefaults(restCfg)

	if converted, convErr := convertPKCS8ToPKCS1(restCfg.KeyData); convErr == nil {
		restCfg.KeyData = converted
	}
	withKeepalivePool(restCfg)

	cs, err := f.connect(ctx, *restCfg, req.Insecure)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.entries[key] = &cacheEntry{client: cs.client, restConfig: cs.restConfig, refs: 1}
	f.mu.Unlock()

	f.watchPaths(rules.Precedence)

	return &Client{Clientset: cs.client, RESTConfig: cs.restConfig, factory: f, key: key}, nil
}

func (f *Factory) release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 && e.invalid {
		delete(f.entries, key)
	}
}

func (f *Factory) watchPaths(paths []string) {
	for _, p := range paths {
		if _, loaded := f.watchedOnce.LoadOrStore(p, struct{}{}); !loaded {
			_ = f.watcher.Add(p)
		}
	}
}

type connected struct {
	client     *kubernetes.Clientset
	restConfig *rest.Config
}

// connect attempts the TLS strategy ladder described in SPEC_FULL §4.2,
// keeping the first strategy whose ServerVersion() call succeeds.
func (f *Factory) connect(ctx context.Context, base rest.Config, insecureFirst bool) (connected, error) {
	strategies := []func(*rest.Config){
		modernTLS,
		classicTLS,
	}
	if insecureFirst {
		strategies = []func(*rest.Config){
			forceInsecure,
			modernTLS,
			classicTLS,
		}
	} else if base.TLSClientConfig.Insecure {
		strategies = append(strategies, forceInsecure)
	}

	var lastErr error
	for _, apply := range strategies {
		cfg := base
		apply(&cfg)

		cs, err := kubernetes.NewForConfig(&cfg)
		if err != nil {
			lastErr = err
			continue
		}

		_, err = cs.Discovery().ServerVersion()
		if err == nil {
			return connected{client: cs, restConfig: &cfg}, nil
		}
		lastErr = err
	}

	if lastErr != nil && isCertError(lastErr) {
		return connected{}, fmt.Errorf("%w: %v", ErrCertRejected, lastErr)
	}
	return connected{}, fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

func modernTLS(cfg *rest.Config) {
	cfg.TLSClientConfig.MinVersion = tls.VersionTLS12
}

func classicTLS(cfg *rest.Config) {
	cfg.TLSClientConfig.MinVersion = tls.VersionTLS10
}

// withKeepalivePool threads an HTTP/1.1 keepalive transport with a bounded
// idle pool through the REST config, matching SPEC_FULL §4.2's "HTTP/1.1
// keepalive (90s) and a bounded idle pool" requirement.
func withKeepalivePool(cfg *rest.Config) {
	cfg.WrapTransport = func(rt http.RoundTripper) http.RoundTripper {
		base, ok := rt.(*http.Transport)
		if !ok {
			return rt
		}
		clone := base.Clone()
		clone.MaxIdleConnsPerHost = 8
		clone.IdleConnTimeout = 90 * time.Second
		clone.ForceAttemptHTTP2 = false
		return clone
	}
}

func forceInsecure(cfg *rest.Config) {
	cfg.TLSClientConfig.Insecure = true
	cfg.TLSClientConfig.CAData = nil
	cfg.TLSClientConfig.CAFile = ""
}

func isCertError(err error) bool {
	if err == nil {
		return false
	}
	var certErr *tls.CertificateVerificationError
	return errors.As(err, &certErr)
}
