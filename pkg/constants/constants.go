package constants

import "time"

const (
	LogFieldRequestID  = "reqID"
	LogFieldDestAddr   = "dstAddr"
	LogFieldLocalAddr  = "localAddr"
	LogFieldRemotePort = "remotePort"
	LogFieldProtocol   = "protocol"
	LogFieldConfigID   = "configID"
	LogFieldTraceID    = "traceID"
	LogFieldPod        = "pod"
)

// ServerName and ServerImage describe the in-cluster proxy workload deployed
// for workload_type = proxy|expose, the role the teacher's krelay-server pod
// plays for its own tunnel.
const (
	ServerName  = "kftray-forward-server"
	ServerPort  = 9527
	ServerImage = "ghcr.io/hcavarsan/kftray-server:latest"
)

const (
	UDPBufferSize = 65536 + 4
	TCPBufferSize = 32768
)

const PortForwardProtocolV1Name = "portforward.k8s.io"

const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// WorkloadType enumerates Config.workload_type.
const (
	WorkloadService = "service"
	WorkloadPod     = "pod"
	WorkloadProxy   = "proxy"
	WorkloadExpose  = "expose"
)

// ExposureType enumerates Config.exposure_type, meaningful only when
// workload_type = expose.
const (
	ExposureCluster = "cluster"
	ExposurePublic  = "public"
)

// PodForwardPrefix marks proxy/expose workload pods, which are accepted as a
// ready target on Running alone (they carry no custom readiness gate).
const PodForwardPrefix = "kftray-forward-"

// Hosts-file section tag, see the hosts-file agent.
const HostsSectionTag = "kftray-hosts"

// AppConfigEnvVar overrides the app config directory outright, checked
// before XDG_CONFIG_HOME and $HOME, grounded in the original project's
// detect_multiple_configs precedence.
const AppConfigEnvVar = "KFTRAY_CONFIG"

// AppDirName is this module's subdirectory under XDG_CONFIG_HOME, and its
// dotfile name directly under $HOME.
const AppDirName = "kftray"

// DefaultDBFileName is the sqlite file holding persisted configs and
// settings, inside the resolved app config directory.
const DefaultDBFileName = "configs.db"

// DefaultLogDirName is the HTTP-logs subdirectory inside the resolved app
// config directory.
const DefaultLogDirName = "http_logs"

// HelperAppID is this module's identity on the external hosts-editing
// helper's app_id allow-list, grounded in the original project's
// VALID_APP_IDS.
const HelperAppID = "com.hcavarsan.kftray"

// HelperTimestampSkew is the maximum age a helper request's timestamp may
// have before the helper rejects it, grounded in the original project's
// MAX_TIMESTAMP_SKEW_SECONDS.
const HelperTimestampSkew = 300 * time.Second

// HelperSocketName is the well-known local stream socket (UNIX domain
// socket path component, or Windows named pipe name) the helper listens on.
const HelperSocketName = "kftray-helper"

// Settings keys backing the ambient settings layer (internal/settings),
// persisted in the store's settings table.
const (
	SettingNetworkMonitor          = "network_monitor"
	SettingDisconnectTimeoutMinute = "disconnect_timeout_minutes"
	SettingLogVerbosity            = "log_verbosity"
	SettingPoolSize                = "pool_size"
)

// Canonical timeouts, SPEC_FULL §5.
const (
	NetworkProbeTimeout    = 200 * time.Millisecond
	StreamTakeTimeout      = 500 * time.Millisecond
	PoolAcquireTimeout     = 2 * time.Second
	SPDYCreateTimeout      = 3 * time.Second
	PodLookupTimeout       = 10 * time.Second
	PodLookupMaxRetries    = 6
	PodLookupInitialDelay  = 500 * time.Millisecond
	TraceExpiry            = 30 * time.Minute
	TraceSweepInterval     = 5 * time.Minute
	HostsDebounceWindow    = 100 * time.Millisecond
	HealthProbeConfirmWait = 100 * time.Millisecond
	ReconnectSettleDelay   = 500 * time.Millisecond
	FingerprintInterval    = 2 * time.Second
	MinReconnectInterval   = time.Second
	UDPResponseTimeout     = 5 * time.Second
	PoolSemaphoreWidth     = 10
	PoolPrewarmSlots       = 1
	PoolBackgroundRefills  = 2

	HTTPLogMaxBody         = 10 * 1024 * 1024
	HTTPLogMaxChunkedBody  = 100 * 1024 * 1024
	HTTPLogBatchSize       = 10
	HTTPLogBatchInterval   = 100 * time.Millisecond
	HTTPLogChannelCap      = 256
	HTTPLogWriterFlushWait = time.Second

	MaxUDPDatagram = 65507

	NetworkHealthInterval = 3 * time.Second
	NetworkLivenessUpWait = 500 * time.Millisecond
)

// NetworkEndpoints are the well-known external endpoints the liveness probe
// dials; any 1-of-3 success counts as "up".
var NetworkEndpoints = [3]string{"8.8.8.8:53", "1.1.1.1:53", "8.8.4.4:53"}
