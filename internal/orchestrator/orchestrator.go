// Package orchestrator wires the client factory, pod watcher, stream pool,
// forwarders, HTTP logger and hosts-file agent into running rules, and
// implements netmonitor.Source/Restarter so a network monitor can drive
// fleet-wide restarts. Grounded on the top-level "acquire dependencies, run
// forwarder, tear down on cancel" shape of the teacher's
// cmd/client/main.go Run, generalized from one process-lifetime set of
// forwarders to many independently startable/stoppable rules.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	corev1 "k8s.io/api/core/v1"

	"github.com/hcavarsan/kftray-sub001/internal/clientfactory"
	"github.com/hcavarsan/kftray-sub001/internal/hostsfile"
	"github.com/hcavarsan/kftray-sub001/internal/httplogger"
	"github.com/hcavarsan/kftray-sub001/internal/model"
	"github.com/hcavarsan/kftray-sub001/internal/netmonitor"
	"github.com/hcavarsan/kftray-sub001/internal/podwatcher"
	"github.com/hcavarsan/kftray-sub001/internal/pool"
	"github.com/hcavarsan/kftray-sub001/internal/proxytunnel"
	"github.com/hcavarsan/kftray-sub001/internal/resolver"
	"github.com/hcavarsan/kftray-sub001/internal/store"
	"github.com/hcavarsan/kftray-sub001/internal/tcpforward"
	"github.com/hcavarsan/kftray-sub001/internal/udpforward"
	"github.com/hcavarsan/kftray-sub001/pkg/constants"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// forwarder is the subset of tcpforward.Listener / udpforward.Forwarder
// the orchestrator drives; both satisfy it without modification.
type forwarder interface {
	Serve(ctx context.Context)
	Close() error
}

// rule bundles every resource a running config owns, released atomically
// on Stop per SPEC_FULL §3's ownership note.
type rule struct {
	cfg          model.Config
	cancel       context.CancelFunc
	client       *clientfactory.Client
	watcher      *podwatcher.Watcher
	pool         *pool.Pool
	fwd          forwarder
	logger       *httplogger.Logger
	actualPort   uint16
	proxyPodName string
}

// Options configures an Orchestrator. Hosts and Reg are optional: a nil
// Hosts disables domain_enabled handling (rules still start, in degraded
// mode); a nil Reg skips Prometheus registration.
type Options struct {
	Store    *store.Store
	Clients  *clientfactory.Factory
	Hosts    *hostsfile.Manager
	Notifier *netmonitor.Notifier
	LogDir   string
	Reg      prometheus.Registerer
}

// Orchestrator is the Start/Stop surface of SPEC_FULL §4.10, holding the
// global rule registry described in §5 (sync.Mutex-guarded map keyed by
// "<id>_<service>").
type Orchestrator struct {
	store    *store.Store
	clients  *clientfactory.Factory
	hosts    *hostsfile.Manager
	notifier *netmonitor.Notifier
	logDir   string
	reg      prometheus.Registerer

	mu    sync.Mutex
	rules map[string]*rule

	states chan model.ConfigState
	errs   chan error
}

// New constructs an Orchestrator. Its state/error channels are buffered
// (32 entries each): sends never block, a full channel drops the
// notification and logs it.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		store:    opts.Store,
		clients:  opts.Clients,
		hosts:    opts.Hosts,
		notifier: opts.Notifier,
		logDir:   opts.LogDir,
		reg:      opts.Reg,
		rules:    make(map[string]*rule),
		states:   make(chan model.ConfigState, 32),
		errs:     make(chan error, 32),
	}
}

// States delivers a ConfigState change whenever a rule starts or stops.
func (o *Orchestrator) States() <-chan model.ConfigState { return o.states }

// Errors delivers per-rule failures observed outside of Start's own
// accumulated return value (e.g. a restart triggered by the network
// monitor).
func (o *Orchestrator) Errors() <-chan error { return o.errs }

func ruleKey(cfg model.Config) string {
	return fmt.Sprintf("%d_%s", cfg.ID, cfg.Selector())
}

func (o *Orchestrator) emitState(cfg model.Config, running bool) {
	select {
	case o.states <- model.ConfigState{ConfigID: cfg.ID, IsRunning: running}:
	default:
		slog.Warn("state channel full, dropping state change", slog.Int64(constants.LogFieldConfigID, cfg.ID))
	}
}

func (o *Orchestrator) emitError(err error) {
	select {
	case o.errs <- err:
	default:
		slog.Warn("error channel full, dropping error", slogutil.Error(err))
	}
}

// Start brings up every config in configs whose protocol matches protocol,
// per SPEC_FULL §4.10: successes are recorded even when others fail.
func (o *Orchestrator) Start(ctx context.Context, configs []model.Config, protocol string) ([]int64, []RuleError) {
	var succeeded []int64
	var errs []RuleError
	for _, cfg := range configs {
		if cfg.Protocol != protocol {
			continue
		}
		if err := o.startRule(ctx, cfg); err != nil {
			errs = append(errs, RuleError{ConfigID: cfg.ID, Err: err})
			continue
		}
		succeeded = append(succeeded, cfg.ID)
	}
	return succeeded, errs
}

func (o *Orchestrator) startRule(parent context.Context, cfg model.Config) error {
	if cfg.Protocol == model.ProtocolUDP &&
		(cfg.WorkloadType == model.WorkloadProxy || cfg.WorkloadType == model.WorkloadExpose) {
		return ErrUnsupportedProtocol
	}

	ruleCtx, cancel := context.WithCancel(parent)
	started := false
	var cleanups []func()
	defer func() {
		if started {
			return
		}
		cancel()
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	client, err := o.clients.Get(ruleCtx, clientfactory.Request{
		Context:    cfg.Context,
		Kubeconfig: cfg.Kubeconfig,
		Namespace:  cfg.Namespace,
	})
	if err != nil {
		return err
	}
	cleanups = append(cleanups, client.Release)

	watchCfg := cfg
	var proxyPodName string
	if cfg.WorkloadType == model.WorkloadProxy || cfg.WorkloadType == model.WorkloadExpose {
		name, err := o.deployProxyPod(ruleCtx, client, cfg)
		if err != nil {
			return err
		}
		proxyPodName = name
		cleanups = append(cleanups, func() { removeProxyPod(client.Clientset, cfg.Namespace, name) })
		watchCfg.WorkloadType = model.WorkloadPod
		watchCfg.Target = fmt.Sprintf("%s=%d_%s", ruleLabel, cfg.ID, cfg.Service+cfg.Target)
	}

	watcher, err := podwatcher.New(ruleCtx, client.Clientset, cfg.Namespace, watchCfg)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, watcher.Close)

	pod, err := waitReadyPod(ruleCtx, watcher)
	if err != nil {
		return err
	}

	remotePort := uint16(constants.ServerPort)
	if proxyPodName == "" {
		remotePort, err = resolver.Resolve(pod, cfg.RemotePort)
		if err != nil {
			return err
		}
	}

	streamPool := pool.New(client.RESTConfig, client.Clientset, cfg.Namespace, watcher)
	cleanups = append(cleanups, streamPool.Close)

	fwd, actualPort, logger, err := o.bindForwarder(ruleCtx, cfg, streamPool, remotePort)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, func() { _ = fwd.Close() })
	if logger != nil {
		cleanups = append(cleanups, func() { logger.Shutdown(context.Background()) })
	}

	if cfg.DomainEnabled {
		ip := net.ParseIP(cfg.LocalAddress)
		if ip == nil {
			return ErrInvalidLocalAddress
		}
		if o.hosts != nil {
			hostname := cfg.Alias
			if hostname == "" {
				hostname = cfg.Selector()
			}
			o.hosts.Add(cfg.ID, ip, hostname)
		} else {
			slog.Warn("domain_enabled set but no hosts-file agent configured, running in degraded mode",
				slog.Int64(constants.LogFieldConfigID, cfg.ID))
		}
	}

	if err := o.store.SetState(cfg.ID, true, nil); err != nil {
		return err
	}

	go fwd.Serve(ruleCtx)

	o.mu.Lock()
	o.rules[ruleKey(cfg)] = &rule{
		cfg:          cfg,
		cancel:       cancel,
		client:       client,
		watcher:      watcher,
		pool:         streamPool,
		fwd:          fwd,
		logger:       logger,
		actualPort:   actualPort,
		proxyPodName: proxyPodName,
	}
	o.mu.Unlock()

	started = true
	o.emitState(cfg, true)
	return nil
}

func (o *Orchestrator) deployProxyPod(ctx context.Context, client *clientfactory.Client, cfg model.Config) (string, error) {
	value := fmt.Sprintf("%d_%s", cfg.ID, cfg.Service+cfg.Target)
	builder := newProxyPodBuilder(cfg.Namespace, value)
	if cfg.ProxyPatch != "" {
		builder = builder.WithPatch([]byte(cfg.ProxyPatch))
	}
	pod, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build proxy pod: %w", err)
	}
	return createProxyPod(ctx, client.Clientset, pod)
}

func waitReadyPod(ctx context.Context, w *podwatcher.Watcher) (*corev1.Pod, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, constants.PodLookupTimeout)
	defer cancel()

	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = constants.PodLookupInitialDelay
	bounded := backoff.WithMaxRetries(boff, constants.PodLookupMaxRetries)

	var pod *corev1.Pod
	err := backoff.Retry(func() error {
		p, err := w.CurrentReadyPod()
		if err != nil {
			return err
		}
		pod = p
		return nil
	}, backoff.WithContext(bounded, lookupCtx))
	if err != nil {
		return nil, fmt.Errorf("wait for ready pod: %w", err)
	}
	return pod, nil
}

func (o *Orchestrator) bindForwarder(ctx context.Context, cfg model.Config, p *pool.Pool, remotePort uint16) (forwarder, uint16, *httplogger.Logger, error) {
	switch cfg.Protocol {
	case model.ProtocolUDP:
		f, actualPort, err := udpforward.Bind(cfg.LocalAddress, cfg.LocalPort)
		if err != nil {
			return nil, 0, nil, err
		}
		f.WithPool(p, remotePort)
		return f, actualPort, nil, nil

	default:
		var ln *tcpforward.Listener
		var actualPort uint16
		var err error
		if cfg.AutoLoopbackAddress {
			ln, actualPort, err = tcpforward.BindLoopback(cfg.LocalAddress, cfg.LocalPort)
		} else {
			ln, actualPort, err = tcpforward.Bind(cfg.LocalAddress, cfg.LocalPort)
		}
		if err != nil {
			return nil, 0, nil, err
		}
		ln.WithPool(p, remotePort)
		if cfg.WorkloadType == model.WorkloadProxy {
			ln.WithHandshake(proxytunnel.Dialer{Target: cfg.Target})
		}

		var logger *httplogger.Logger
		if cfg.HTTPLogsEnabled {
			logger, err = httplogger.New(ctx, afero.NewOsFs(), o.logDir, cfg.ID, actualPort, httplogger.Options{
				MaxFileSize:   cfg.HTTPLogsMaxFileSize,
				RetentionDays: cfg.HTTPLogsRetentionDays,
				AutoCleanup:   cfg.HTTPLogsAutoCleanup,
			})
			if err != nil {
				slog.Error("http logger unavailable, forwarding without it", slogutil.Error(err), slog.Int64(constants.LogFieldConfigID, cfg.ID))
				logger = nil
			} else {
				ln.WithTee(logger)
				if o.reg != nil {
					if err := logger.Collect(o.reg); err != nil {
						slog.Warn("http logger metrics registration failed", slogutil.Error(err))
					}
				}
			}
		}
		return ln, actualPort, logger, nil
	}
}

// Stop tears down configID's rule: cancels its context, closes every owned
// resource, removes its hosts-file entry and proxy pod (if any), and
// records is_running = false.
func (o *Orchestrator) Stop(configID int64) error {
	o.mu.Lock()
	var key string
	var r *rule
	for k, candidate := range o.rules {
		if candidate.cfg.ID == configID {
			key, r = k, candidate
			break
		}
	}
	if r != nil {
		delete(o.rules, key)
	}
	o.mu.Unlock()

	if r == nil {
		return ErrRuleNotRunning
	}
	o.teardown(r)
	if err := o.store.SetState(configID, false, nil); err != nil {
		return err
	}
	o.emitState(r.cfg, false)
	return nil
}

func (o *Orchestrator) teardown(r *rule) {
	r.cancel()
	if err := r.fwd.Close(); err != nil {
		slog.Debug("forwarder close failed", slogutil.Error(err))
	}
	r.pool.Close()
	r.watcher.Close()
	if r.logger != nil {
		r.logger.Shutdown(context.Background())
	}
	if r.proxyPodName != "" {
		removeProxyPod(r.client.Clientset, r.cfg.Namespace, r.proxyPodName)
	}
	r.client.Release()
	if r.cfg.DomainEnabled && o.hosts != nil {
		o.hosts.Remove(r.cfg.ID)
	}
}

// StopAll stops every running rule and, on process exit, clears the
// hosts-file agent's entries entirely.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	ids := make([]int64, 0, len(o.rules))
	for _, r := range o.rules {
		ids = append(ids, r.cfg.ID)
	}
	o.mu.Unlock()

	for _, id := range ids {
		if err := o.Stop(id); err != nil && !errors.Is(err, ErrRuleNotRunning) {
			slog.Error("stop failed during shutdown", slogutil.Error(err), slog.Int64(constants.LogFieldConfigID, id))
		}
	}
	if o.hosts != nil {
		o.hosts.Clear()
	}
}

// ActiveRules implements netmonitor.Source.
func (o *Orchestrator) ActiveRules() []netmonitor.RuleSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]netmonitor.RuleSnapshot, 0, len(o.rules))
	for _, r := range o.rules {
		out = append(out, netmonitor.RuleSnapshot{
			ConfigID:     r.cfg.ID,
			Protocol:     r.cfg.Protocol,
			LocalAddress: r.cfg.LocalAddress,
			LocalPort:    r.actualPort,
		})
	}
	return out
}

// RestartBatch implements netmonitor.Restarter: every id is stopped and
// restarted with a fresh pool, watcher and HTTP-logger state, never two at
// once for the same id since Stop removes it from the registry before
// Start can re-add it.
func (o *Orchestrator) RestartBatch(ctx context.Context, protocol string, configIDs []int64) error {
	var combined error
	for _, id := range configIDs {
		cfg, err := o.store.Get(id)
		if err != nil {
			combined = errors.Join(combined, fmt.Errorf("config %d: %w", id, err))
			continue
		}
		if err := o.Stop(id); err != nil && !errors.Is(err, ErrRuleNotRunning) {
			combined = errors.Join(combined, fmt.Errorf("config %d: stop: %w", id, err))
			continue
		}
		if err := o.startRule(ctx, cfg); err != nil {
			combined = errors.Join(combined, fmt.Errorf("config %d: restart: %w", id, err))
			o.emitError(RuleError{ConfigID: id, Err: err})
			continue
		}
	}
	_ = protocol
	return combined
}
