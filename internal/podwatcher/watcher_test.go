package podwatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/hcavarsan/kftray-sub001/internal/model"
)

func readyPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default", Labels: map[string]string{"app": "web"}},
		Status: corev1.PodStatus{
			Phase:      corev1.PodRunning,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
		},
	}
}

func TestCurrentReadyPodResolvesFromTarget(t *testing.T) {
	pod := readyPod("web-abc")
	client := fake.NewSimpleClientset(pod)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, client, "default", model.Config{WorkloadType: model.WorkloadPod, Target: "app=web"})
	require.NoError(t, err)
	defer w.Close()

	require.Eventually(t, func() bool {
		_, err := w.CurrentReadyPod()
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	got, err := w.CurrentReadyPod()
	require.NoError(t, err)
	assert.Equal(t, "web-abc", got.Name)
}

func TestCurrentReadyPodErrorsWhenNoneReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := fake.NewSimpleClientset()
	w, err := New(ctx, client, "default", model.Config{WorkloadType: model.WorkloadPod, Target: "app=missing"})
	require.NoError(t, err)
	defer w.Close()

	_, err = w.CurrentReadyPod()
	assert.ErrorIs(t, err, ErrNoReadyPod)
}

func TestServiceSelectorFallsBackToAppLabel(t *testing.T) {
	pod := readyPod("web-xyz")
	client := fake.NewSimpleClientset(pod)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, client, "default", model.Config{WorkloadType: model.WorkloadService, Service: "web"})
	require.NoError(t, err)
	defer w.Close()

	require.Eventually(t, func() bool {
		_, err := w.CurrentReadyPod()
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	pod := readyPod("web-1")
	client := fake.NewSimpleClientset(pod)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, client, "default", model.Config{WorkloadType: model.WorkloadPod, Target: "app=web"})
	require.NoError(t, err)
	defer w.Close()

	require.Eventually(t, func() bool {
		_, err := w.CurrentReadyPod()
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	ch := w.Subscribe()

	pod2 := readyPod("web-2")
	pod2.CreationTimestamp = metav1.NewTime(time.Now().Add(time.Minute))
	_, err = client.CoreV1().Pods("default").Create(ctx, pod2, metav1.CreateOptions{})
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("expected notification on pod change")
	}
}
