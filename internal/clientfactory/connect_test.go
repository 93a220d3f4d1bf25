package clientfactory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/rest"

	"github.com/hcavarsan/kftray-sub001/pkg/testutils/tcp"
)

func fakeAPIServerHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/version" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(version.Info{GitVersion: "v1.30.0", Major: "1", Minor: "30"})
}

func TestConnectSucceedsWhenInsecureAlreadySet(t *testing.T) {
	server, u, port := tcp.NewTLSServer(t, fakeAPIServerHandler)
	defer server.Close()

	f := &Factory{}
	base := rest.Config{
		Host:            fmt.Sprintf("%s://%s:%d", u.Scheme, u.Hostname(), port),
		TLSClientConfig: rest.TLSClientConfig{Insecure: true},
	}

	got, err := f.connect(context.Background(), base, false)
	require.NoError(t, err)
	assert.NotNil(t, got.client)
	assert.Equal(t, base.Host, got.restConfig.Host)
}

func TestConnectFailsAgainstUntrustedCertWithoutInsecure(t *testing.T) {
	server, u, port := tcp.NewTLSServer(t, fakeAPIServerHandler)
	defer server.Close()

	f := &Factory{}
	base := rest.Config{
		Host: fmt.Sprintf("%s://%s:%d", u.Scheme, u.Hostname(), port),
	}

	_, err := f.connect(context.Background(), base, false)
	assert.Error(t, err)
}
