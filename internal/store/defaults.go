package store

import (
	"dario.cat/mergo"

	"github.com/hcavarsan/kftray-sub001/internal/model"
)

// Placeholder sentinels treated as "unset" during export, per the default
// template below.
const (
	sentinelService   = "default-service"
	sentinelNamespace = "default-namespace"
	sentinelContext   = "current-context"
	sentinelProtocol  = "protocol"
	sentinelAddress   = "127.0.0.1"
	sentinelGeneric   = "default"
)

// defaultTemplate returns a fresh Config carrying the placeholder sentinels
// and zero-valued fields used to backfill rows read from storage that
// predate a newly added field.
func defaultTemplate() model.Config {
	return model.Config{
		Context:      sentinelContext,
		Kubeconfig:   []string{sentinelGeneric},
		Namespace:    sentinelNamespace,
		WorkloadType: model.WorkloadService,
		Service:      sentinelService,
		LocalAddress: sentinelAddress,
		Protocol:     sentinelProtocol,
		ExposureType: model.ExposureCluster,
	}
}

// applyDefaults fills zero-valued fields of cfg from the default template,
// the read-path half of the default-filling migration policy.
func applyDefaults(cfg *model.Config) error {
	tpl := defaultTemplate()
	return mergo.Merge(cfg, tpl)
}

// stripSentinels clears fields on cfg that still equal their placeholder
// sentinel or numeric zero, the export-path half of the same policy.
func stripSentinels(cfg *model.Config) {
	if cfg.Context == sentinelContext {
		cfg.Context = ""
	}
	if len(cfg.Kubeconfig) == 1 && cfg.Kubeconfig[0] == sentinelGeneric {
		cfg.Kubeconfig = nil
	}
	if cfg.Namespace == sentinelNamespace {
		cfg.Namespace = ""
	}
	if cfg.Service == sentinelService {
		cfg.Service = ""
	}
	if cfg.LocalAddress == sentinelAddress {
		cfg.LocalAddress = ""
	}
	if cfg.Protocol == sentinelProtocol {
		cfg.Protocol = ""
	}
}

// projectForExport drops fields not meaningful for cfg's workload type, per
// the per-workload-type export projection policy.
func projectForExport(cfg *model.Config) {
	switch cfg.WorkloadType {
	case model.WorkloadService:
		cfg.Target = ""
	case model.WorkloadPod:
		cfg.Service = ""
	case model.WorkloadProxy:
		cfg.Service = ""
		cfg.Target = ""
	case model.WorkloadExpose:
		cfg.Service = ""
		cfg.Target = ""
		cfg.RemotePort = ""
		if cfg.ExposureType == model.ExposureCluster {
			cfg.CertManagerEnabled = false
			cfg.CertIssuer = ""
			cfg.CertIssuerKind = ""
			cfg.IngressClass = ""
			cfg.IngressAnnotations = nil
		}
	}
}
