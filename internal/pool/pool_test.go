package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"

	"github.com/hcavarsan/kftray-sub001/internal/model"
	"github.com/hcavarsan/kftray-sub001/internal/podwatcher"
)

func newTestPool(t *testing.T) (*Pool, *podwatcher.Watcher) {
	t.Helper()
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "default", Labels: map[string]string{"app": "web"}},
		Status: corev1.PodStatus{
			Phase:      corev1.PodRunning,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
		},
	}
	client := fake.NewSimpleClientset(pod)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	w, err := podwatcher.New(ctx, client, "default", model.Config{WorkloadType: model.WorkloadPod, Target: "app=web"})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	require.Eventually(t, func() bool {
		_, err := w.CurrentReadyPod()
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	p := New(&rest.Config{Host: "https://127.0.0.1:1"}, client, "default", w)
	t.Cleanup(p.Close)
	return p, w
}

func TestInvalidateBumpsGenerationAndDropsSlot(t *testing.T) {
	p, _ := newTestPool(t)

	p.mu.Lock()
	p.slot = &session{pod: "stale"}
	p.mu.Unlock()

	before := p.generation
	p.invalidate()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Greater(t, p.generation, before)
	assert.Nil(t, p.slot)
}

func TestAcquireFailsWithoutReachableCluster(t *testing.T) {
	p, _ := newTestPool(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, _, err := p.Acquire(ctx, 8080)
	assert.Error(t, err)
}

func TestSemaphoreWidthMatchesSpec(t *testing.T) {
	assert.Equal(t, 10, semaphoreWidth)
}
