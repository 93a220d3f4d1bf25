package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/json"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

func toPtr[T any](v T) *T { return &v }

// ruleLabel is the label key that scopes a proxy workload pod to the one
// rule that owns it, since every such pod otherwise shares the same
// "app=kftray-forward-server" label and the pod watcher needs a selector
// that resolves to exactly one pod.
const ruleLabel = "kftray.dev/rule"

// proxyPodBuilder builds the in-cluster workload pod deployed for
// workload_type ∈ {proxy, expose}: the role the teacher's own
// krelay-server pod plays for its tunnel, generalized to accept a merge
// patch sourced from a rule's config instead of the teacher's CLI flag,
// and stamped with a per-rule label instead of the teacher's single fixed
// pod identity.
type proxyPodBuilder struct {
	namespace  string
	image      string
	ruleValue  string
	patchBytes []byte
}

func newProxyPodBuilder(namespace, ruleValue string) *proxyPodBuilder {
	return &proxyPodBuilder{namespace: namespace, image: constants.ServerImage, ruleValue: ruleValue}
}

// WithPatch installs a JSON merge patch, applied to the generated pod
// manifest before creation. A nil/empty patch leaves Build's output
// untouched.
func (b *proxyPodBuilder) WithPatch(patch []byte) *proxyPodBuilder {
	b.patchBytes = patch
	return b
}

func (b *proxyPodBuilder) Build() (*corev1.Pod, error) {
	origPod := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:    b.namespace,
			GenerateName: constants.ServerName + "-",
			Labels: map[string]string{
				"app.kubernetes.io/name": constants.ServerName,
				"app":                    constants.ServerName,
				ruleLabel:                b.ruleValue,
			},
			Annotations: map[string]string{
				"cluster-autoscaler.kubernetes.io/safe-to-evict": "true",
			},
		},
		Spec: corev1.PodSpec{
			AutomountServiceAccountToken: toPtr(false),
			EnableServiceLinks:           toPtr(false),
			SecurityContext: &corev1.PodSecurityContext{
				RunAsNonRoot: toPtr(true),
			},
			Containers: []corev1.Container{
				{
					Name:            constants.ServerName,
					Image:           b.image,
					ImagePullPolicy: corev1.PullIfNotPresent,
					Ports: []corev1.ContainerPort{
						{Name: "proxy", ContainerPort: constants.ServerPort},
					},
					SecurityContext: &corev1.SecurityContext{
						ReadOnlyRootFilesystem:   toPtr(true),
						AllowPrivilegeEscalation: toPtr(false),
					},
				},
			},
			TopologySpreadConstraints: []corev1.TopologySpreadConstraint{
				{
					MaxSkew:           1,
					TopologyKey:       "kubernetes.io/hostname",
					WhenUnsatisfiable: corev1.ScheduleAnyway,
					LabelSelector: &metav1.LabelSelector{
						MatchLabels: map[string]string{"app": constants.ServerName},
					},
				},
			},
		},
	}
	if len(b.patchBytes) == 0 {
		return &origPod, nil
	}
	return patchPod(b.patchBytes, origPod)
}

// patchPod applies a JSON merge patch to a pod manifest, unchanged from
// the teacher's cmd/client/utils.go patchPod other than accepting JSON
// bytes directly instead of converting from YAML first (this module's
// patch field is always stored and transmitted as JSON).
func patchPod(patchBytes []byte, origPod corev1.Pod) (*corev1.Pod, error) {
	origBytes, err := json.Marshal(origPod)
	if err != nil {
		return nil, fmt.Errorf("marshal pod: %w", err)
	}
	after, err := jsonpatch.MergePatch(origBytes, patchBytes)
	if err != nil {
		return nil, fmt.Errorf("apply merge patch: %w", err)
	}
	var patched corev1.Pod
	if err := json.Unmarshal(after, &patched); err != nil {
		return nil, fmt.Errorf("unmarshal pod: %w", err)
	}
	return &patched, nil
}

// createProxyPod creates pod and waits for its container to report
// Running, mirroring the teacher's create-then-ensureServerPodIsRunning
// pairing in cmd/client/main.go.Run.
func createProxyPod(ctx context.Context, cs kubernetes.Interface, pod *corev1.Pod) (string, error) {
	created, err := cs.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("create proxy pod: %w", err)
	}
	if err := waitProxyPodRunning(ctx, cs, created.Namespace, created.Name); err != nil {
		removeProxyPod(cs, created.Namespace, created.Name)
		return "", err
	}
	return created.Name, nil
}

// waitProxyPodRunning is the teacher's ensureServerPodIsRunning, ported
// verbatim other than the field name referenced in log output.
func waitProxyPodRunning(ctx context.Context, cs kubernetes.Interface, namespace, name string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	w, err := cs.CoreV1().Pods(namespace).Watch(timeoutCtx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("metadata.name=%s", name),
	})
	if err != nil {
		return fmt.Errorf("watch proxy pod: %w", err)
	}
	defer w.Stop()

	for ev := range w.ResultChan() {
		switch ev.Type {
		case watch.Deleted, watch.Error:
			return fmt.Errorf("%w: %s", ErrProxyPodNotRunning, name)
		case watch.Modified, watch.Added:
		default:
			continue
		}
		podObj := ev.Object.(*corev1.Pod)
		for _, status := range podObj.Status.ContainerStatuses {
			if status.State.Running != nil {
				return nil
			}
		}
		slog.Debug("proxy pod not yet running, waiting", slog.String(constants.LogFieldPod, name))
	}
	return fmt.Errorf("%w: %s", ErrProxyPodNotRunning, name)
}

// removeProxyPod is the teacher's removeServerPod, ported verbatim.
func removeProxyPod(cs kubernetes.Interface, namespace, name string) {
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := cs.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{GracePeriodSeconds: toPtr[int64](0)})
	if err != nil && !apierrors.IsNotFound(err) {
		slog.Error("remove proxy pod failed", slogutil.Error(err), slog.String(constants.LogFieldPod, name))
	}
}
