package clientfactory

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd/api"
)

// setKubernetesDefaults sets default values on the provided client config
// for accessing the Kubernetes API, ported verbatim from the teacher's
// pkg/kube.setKubernetesDefaults.
func setKubernetesDefaults(config *rest.Config) {
	config.GroupVersion = &schema.GroupVersion{Group: "", Version: "v1"}
	if config.APIPath == "" {
		config.APIPath = "/api"
	}
	if config.NegotiatedSerializer == nil {
		config.NegotiatedSerializer = scheme.Codecs.WithoutConversion()
	}
}

// contextForcesInsecure reports whether the named context's cluster entry
// carries insecure-skip-tls-verify: true, which inverts the strategy order
// per SPEC_FULL §4.2.
func contextForcesInsecure(cfg api.Config, contextName string) bool {
	ctxEntry, ok := cfg.Contexts[contextName]
	if !ok {
		return false
	}
	cluster, ok := cfg.Clusters[ctxEntry.Cluster]
	if !ok {
		return false
	}
	return cluster.InsecureSkipTLSVerify
}

// digestKubeconfig returns a stable cache-key fragment for a set of
// kubeconfig file paths, based on each path and its mtime rather than full
// content hashing.
func digestKubeconfig(paths []string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, p := range sorted {
		h.Write([]byte(p))
		if fi, err := os.Stat(p); err == nil {
			h.Write([]byte(fi.ModTime().String()))
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
