// Package model holds the data types shared across the store, orchestrator
// and forwarders: the persisted Config, its running state, and the
// ephemeral types the pod watcher and HTTP logger produce.
package model

// Workload type values for Config.WorkloadType.
const (
	WorkloadService = "service"
	WorkloadPod     = "pod"
	WorkloadProxy   = "proxy"
	WorkloadExpose  = "expose"
)

// Exposure type values for Config.ExposureType, meaningful only when
// WorkloadType == WorkloadExpose.
const (
	ExposureCluster = "cluster"
	ExposurePublic  = "public"
)

// Protocol values for Config.Protocol.
const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// CurrentContextSentinel is the `@current` placeholder for Config.Context.
const CurrentContextSentinel = "@current"

// Config is a single port-forward rule. ID is zero until the row is
// persisted by the store.
type Config struct {
	ID int64 `json:"id,omitempty"`

	Context    string   `json:"context"`
	Kubeconfig []string `json:"kubeconfig"`
	Namespace  string   `json:"namespace"`

	WorkloadType string `json:"workload_type"`
	Service      string `json:"service,omitempty"`
	Target       string `json:"target,omitempty"`

	LocalAddress string `json:"local_address"`
	LocalPort    uint16 `json:"local_port"`
	RemotePort   string `json:"remote_port"`
	Protocol     string `json:"protocol"`

	Alias                string `json:"alias"`
	DomainEnabled        bool   `json:"domain_enabled"`
	AutoLoopbackAddress  bool   `json:"auto_loopback_address"`

	HTTPLogsEnabled       bool  `json:"http_logs_enabled"`
	HTTPLogsMaxFileSize   int64 `json:"http_logs_max_file_size"`
	HTTPLogsRetentionDays int   `json:"http_logs_retention_days"`
	HTTPLogsAutoCleanup   bool  `json:"http_logs_auto_cleanup"`

	ExposureType        string            `json:"exposure_type,omitempty"`
	CertManagerEnabled  bool              `json:"cert_manager_enabled,omitempty"`
	CertIssuer          string            `json:"cert_issuer,omitempty"`
	CertIssuerKind      string            `json:"cert_issuer_kind,omitempty"`
	IngressClass        string            `json:"ingress_class,omitempty"`
	IngressAnnotations  map[string]string `json:"ingress_annotations,omitempty"`

	// ProxyPatch is a raw JSON merge patch applied to the generated pod
	// manifest for WorkloadType ∈ {proxy, expose}, letting a rule pin an
	// image, add a toleration, or otherwise override the generated pod
	// without this module needing a dedicated field for every such knob.
	ProxyPatch string `json:"proxy_patch,omitempty"`
}

// Selector returns the pod-label-selector-bearing field relevant to the
// config's workload type: Service for service workloads, Target otherwise.
func (c *Config) Selector() string {
	if c.WorkloadType == WorkloadService {
		return c.Service
	}
	return c.Target
}

// ConfigState is the per-config running state the orchestrator maintains.
type ConfigState struct {
	ConfigID  int64 `json:"config_id"`
	IsRunning bool  `json:"is_running"`
	ProcessID *int  `json:"process_id,omitempty"`
}

// HTTPLogsConfig is the optional per-config override of the default HTTP
// logging settings carried on Config itself.
type HTTPLogsConfig struct {
	ConfigID      int64 `json:"config_id"`
	Enabled       bool  `json:"enabled"`
	MaxFileSize   int64 `json:"max_file_size"`
	RetentionDays int   `json:"retention_days"`
	AutoCleanup   bool  `json:"auto_cleanup"`
}

// TargetPod is the ephemeral resolution result the pod watcher produces.
type TargetPod struct {
	PodName    string
	PortNumber uint16
}
