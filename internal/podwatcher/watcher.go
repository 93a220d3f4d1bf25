// Package podwatcher maintains a reflected, trimmed cache of pods matching
// a rule's selector and exposes the current ready target, the idiomatic Go
// generalization of the teacher's pkg/remoteaddr.dynamicAddr (one resolved
// IP, refreshed by a retry-watcher) to "a cache of many pods, query the
// best one on demand".
package podwatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/hcavarsan/kftray-sub001/internal/model"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// ErrNoReadyPod is returned by CurrentReadyPod when no cached pod is both
// Running and Ready (or forward-prefixed and Running).
var ErrNoReadyPod = errors.New("no ready pod")

const forwardPodPrefix = "kftray-forward-"

// Watcher maintains a reflected store of pods matching a label selector and
// broadcasts a notification whenever the chosen "current ready pod"
// changes.
type Watcher struct {
	client    kubernetes.Interface
	namespace string

	store     cache.Store
	reflector *cache.Reflector

	mu          sync.RWMutex
	currentName string
	subscribers map[chan struct{}]struct{}

	cancel context.CancelFunc
}

// New resolves selector (a service name or a raw label-selector string) and
// starts the reflector. If selector names a Service and that Service is
// absent, it falls back to the label `app=<name>`.
func New(ctx context.Context, client kubernetes.Interface, namespace string, cfg model.Config) (*Watcher, error) {
	labelSelector, err := resolveLabelSelector(ctx, client, namespace, cfg)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)

	w := &Watcher{
		client:      client,
		namespace:   namespace,
		subscribers: make(map[chan struct{}]struct{}),
		cancel:      cancel,
	}

	w.store = cache.NewStore(cache.MetaNamespaceKeyFunc)
	listWatch := &cache.ListWatch{
		ListFunc: func(opts metav1.ListOptions) (runtime.Object, error) {
			opts.LabelSelector = labelSelector
			list, err := client.CoreV1().Pods(namespace).List(watchCtx, opts)
			if err != nil {
				return nil, err
			}
			trimList(list)
			return list, nil
		},
		WatchFunc: func(opts metav1.ListOptions) (watch.Interface, error) {
			opts.LabelSelector = labelSelector
			return client.CoreV1().Pods(namespace).Watch(watchCtx, opts)
		},
	}

	w.reflector = cache.NewReflector(listWatch, &corev1.Pod{}, w.store, 0)
	go w.runReflector(watchCtx)
	go w.recomputeLoop(watchCtx)

	return w, nil
}

// Close stops the reflector and all subscriber goroutines, the Go analog
// of the spec's Drop.
func (w *Watcher) Close() {
	w.cancel()
}

// Subscribe returns a channel closed (and replaced) every time the chosen
// pod's name changes. Callers should re-subscribe after each notification.
func (w *Watcher) Subscribe() <-chan struct{} {
	ch := make(chan struct{})
	w.mu.Lock()
	w.subscribers[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

func (w *Watcher) runReflector(ctx context.Context) {
	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = 0
	_ = backoff.Retry(func() error {
		if ctx.Err() != nil {
			return nil
		}
		w.reflector.RunUntil(ctx.Done())
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("reflector stopped unexpectedly, retrying")
	}, backoff.WithContext(boff, ctx))
}

func (w *Watcher) recomputeLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.recompute()
		}
	}
}

func (w *Watcher) recompute() {
	pods := w.store.List()
	var best *corev1.Pod
	var bestTime metav1.Time
	for _, obj := range pods {
		pod := obj.(*corev1.Pod)
		if !podIsReady(pod) {
			continue
		}
		if best == nil || pod.CreationTimestamp.After(bestTime.Time) {
			best = pod
			bestTime = pod.CreationTimestamp
		}
	}

	w.mu.Lock()
	changed := false
	if best == nil {
		if w.currentName != "" {
			w.currentName = ""
			changed = true
		}
	} else if best.Name != w.currentName {
		w.currentName = best.Name
		changed = true
	}
	subs := make([]chan struct{}, 0, len(w.subscribers))
	if changed {
		for ch := range w.subscribers {
			subs = append(subs, ch)
		}
		w.subscribers = make(map[chan struct{}]struct{})
	}
	w.mu.Unlock()

	if changed {
		name := ""
		if best != nil {
			name = best.Name
		}
		slog.Debug("pod watcher selected a new target", slog.String("pod", name))
		for _, ch := range subs {
			close(ch)
		}
	}
}

// CurrentReadyPod returns the most recently observed ready pod.
func (w *Watcher) CurrentReadyPod() (*corev1.Pod, error) {
	w.mu.RLock()
	name := w.currentName
	w.mu.RUnlock()
	if name == "" {
		return nil, ErrNoReadyPod
	}
	obj, exists, err := w.store.GetByKey(w.namespace + "/" + name)
	if err != nil || !exists {
		return nil, ErrNoReadyPod
	}
	return obj.(*corev1.Pod), nil
}

func podIsReady(pod *corev1.Pod) bool {
	if pod.DeletionTimestamp != nil {
		return false
	}
	if strings.HasPrefix(pod.Name, forwardPodPrefix) {
		return pod.Status.Phase == corev1.PodRunning
	}
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func resolveLabelSelector(ctx context.Context, client kubernetes.Interface, namespace string, cfg model.Config) (string, error) {
	switch cfg.WorkloadType {
	case model.WorkloadService:
		svc, err := client.CoreV1().Services(namespace).Get(ctx, cfg.Service, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				slog.Warn("service not found, falling back to label selector", slogutil.Error(err), slog.String("service", cfg.Service))
				return fmt.Sprintf("app=%s", cfg.Service), nil
			}
			return "", fmt.Errorf("get service %q: %w", cfg.Service, err)
		}
		return labels.SelectorFromSet(svc.Spec.Selector).String(), nil
	default:
		return cfg.Target, nil
	}
}

func trimList(list *corev1.PodList) {
	for i := range list.Items {
		trimPod(&list.Items[i])
	}
}

func trimPod(pod *corev1.Pod) {
	pod.ManagedFields = nil
	pod.Annotations = nil
	for i := range pod.Status.ContainerStatuses {
		pod.Status.ContainerStatuses[i].State = corev1.ContainerState{}
	}
}
