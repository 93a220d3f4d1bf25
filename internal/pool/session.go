package pool

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/httpstream"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// session wraps one httpstream.Connection dialed to a target pod's
// portforward subresource. A session is cheap to keep open and cheap to
// create many streams on; it is expensive to dial, which is why the pool
// pre-warms them.
type session struct {
	conn httpstream.Connection
	pod  string
}

func (s *session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// dialSession opens a portforward.k8s.io stream connection ("session") to
// podName, the idiomatic equivalent of the teacher's createDialer +
// dialer.Dial pairing in pkg/kube.RunServerPod, generalized to target any
// pod by name instead of only the krelay-server pod it creates itself.
func dialSession(restCfg *rest.Config, clientset kubernetes.Interface, namespace, podName string) (*session, error) {
	restClient, err := rest.RESTClientFor(restCfg)
	if err != nil {
		return nil, fmt.Errorf("build rest client: %w", err)
	}

	req := restClient.Post().
		Resource("pods").
		Namespace(namespace).
		Name(podName).
		SubResource("portforward")

	dialer, err := createDialer(restCfg, req.URL())
	if err != nil {
		return nil, fmt.Errorf("create dialer: %w", err)
	}

	conn, _, err := dialer.Dial(portForwardProtocolV1Name)
	if err != nil {
		return nil, fmt.Errorf("dial portforward: %w", err)
	}

	return &session{conn: conn, pod: podName}, nil
}

const portForwardProtocolV1Name = "portforward.k8s.io"

// createDialer is the teacher's pkg/kube.createDialer, unchanged: it tries
// a websocket-tunneled dialer first (unless explicitly disabled by the
// well-known kubectl environment toggle) and falls back to plain SPDY.
func createDialer(restCfg *rest.Config, dstURL *url.URL) (httpstream.Dialer, error) {
	transport, upgrader, err := spdy.RoundTripperFor(restCfg)
	if err != nil {
		return nil, err
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, dstURL)

	if strings.ToLower(os.Getenv("KUBECTL_PORT_FORWARD_WEBSOCKETS")) != "false" {
		tunnelDialer, err := portforward.NewSPDYOverWebsocketDialer(dstURL, restCfg)
		if err != nil {
			return nil, fmt.Errorf("create tunneling dialer: %w", err)
		}
		dialer = portforward.NewFallbackDialer(tunnelDialer, dialer, func(err error) bool {
			return httpstream.IsUpgradeFailure(err) || httpstream.IsHTTPSProxyError(err)
		})
	}

	return dialer, nil
}

// takeStream creates a fresh error+data stream pair on an existing session
// for the given remote port, the pool's "take_stream(port)" operation.
// Ported from the teacher's cmd/client.createStream, generalized to take
// the target port as a parameter instead of the fixed krelay-server port.
func takeStream(s *session, remotePort uint16) (httpstream.Stream, <-chan error, error) {
	reqID := uuid.NewString()

	headers := http.Header{}
	headers.Set(corev1.StreamType, corev1.StreamTypeError)
	headers.Set(corev1.PortHeader, strconv.Itoa(int(remotePort)))
	headers.Set(corev1.PortForwardRequestIDHeader, reqID)
	errStream, err := s.conn.CreateStream(headers)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create error stream: %v", ErrStreamUnavailable, err)
	}
	_ = errStream.Close()

	headers.Set(corev1.StreamType, corev1.StreamTypeData)
	dataStream, err := s.conn.CreateStream(headers)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create data stream: %v", ErrStreamUnavailable, err)
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		message, err := io.ReadAll(errStream)
		switch {
		case err != nil:
			errCh <- fmt.Errorf("read error stream: %w", err)
		case len(message) > 0:
			errCh <- fmt.Errorf("forwarding error: %s", message)
		}
	}()

	return dataStream, errCh, nil
}
