// Package settings is the ambient runtime configuration layer: defaulted,
// environment/flag-overridable tunables that cooperate with (rather than
// replace) internal/store's settings table as the durable backing store.
// Grounded on Scoutflo-kubernetes-mcp-server's cmd/root.go use of a global
// github.com/spf13/viper instance bound to pflag, generalized here with an
// explicit struct so a non-CLI embedder (e.g. a future GUI shell) can load
// and save settings without going through cobra flags at all.
package settings

import (
	"strconv"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hcavarsan/kftray-sub001/internal/store"
	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

// Settings holds the resolved values of every ambient tunable. defaults()
// returns the values used when neither a flag nor the store sets one.
type Settings struct {
	NetworkMonitor          bool
	DisconnectTimeoutMinute int
	LogVerbosity            int
	PoolSize                int
}

func defaults() Settings {
	return Settings{
		NetworkMonitor:          true,
		DisconnectTimeoutMinute: 5,
		LogVerbosity:            3,
		PoolSize:                10,
	}
}

// BindFlags registers every tunable as a pflag on fs and binds it into v,
// the same flags-then-viper-then-defaults layering the teacher's cmd/client
// uses for its own options, just routed through viper instead of plain
// cobra.Flags() locals so an env var or config file can also set them.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	d := defaults()
	fs.Bool("network-monitor", d.NetworkMonitor, "Restart rules automatically when network connectivity drops and recovers.")
	fs.Int("disconnect-timeout", d.DisconnectTimeoutMinute, "Stored disconnect timeout in minutes; the agent loads it but does not act on it.")
	fs.Int("log-verbosity", d.LogVerbosity, "Stored log verbosity setting; the agent's log level is set by -v, not by this value.")
	fs.Int("pool-size", d.PoolSize, "Stored pool size setting; each rule's stream pool keeps one pre-warmed session regardless of this value.")
	_ = v.BindPFlags(fs)
}

// Load resolves Settings from v (flags/env/config-file, already defaulted
// by BindFlags) and reconciles the result against s's durable settings
// table: a value persisted in the store takes precedence over v's default,
// but not over an explicitly-set flag or env var, since viper.IsSet only
// reports the latter.
func Load(v *viper.Viper, s *store.Store) (Settings, error) {
	out := defaults()

	if err := applyStored(s, constants.SettingNetworkMonitor, v, "network-monitor", func(raw string) error {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		out.NetworkMonitor = b
		return nil
	}); err != nil {
		return Settings{}, err
	}
	if err := applyStored(s, constants.SettingDisconnectTimeoutMinute, v, "disconnect-timeout", func(raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		out.DisconnectTimeoutMinute = n
		return nil
	}); err != nil {
		return Settings{}, err
	}
	if err := applyStored(s, constants.SettingLogVerbosity, v, "log-verbosity", func(raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		out.LogVerbosity = n
		return nil
	}); err != nil {
		return Settings{}, err
	}
	if err := applyStored(s, constants.SettingPoolSize, v, "pool-size", func(raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		out.PoolSize = n
		return nil
	}); err != nil {
		return Settings{}, err
	}

	if v.IsSet("network-monitor") {
		out.NetworkMonitor = v.GetBool("network-monitor")
	}
	if v.IsSet("disconnect-timeout") {
		out.DisconnectTimeoutMinute = v.GetInt("disconnect-timeout")
	}
	if v.IsSet("log-verbosity") {
		out.LogVerbosity = v.GetInt("log-verbosity")
	}
	if v.IsSet("pool-size") {
		out.PoolSize = v.GetInt("pool-size")
	}

	return out, nil
}

// applyStored overlays a stored setting value onto out via apply, unless
// the corresponding flag/env key was explicitly set (flags always win).
func applyStored(s *store.Store, key string, v *viper.Viper, flagKey string, apply func(string) error) error {
	if v.IsSet(flagKey) {
		return nil
	}
	raw, ok, err := s.GetSetting(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return apply(raw)
}

// Save persists every field of cur into s's settings table, the write-back
// half of the ambient-layer/durable-store cooperation.
func Save(s *store.Store, cur Settings) error {
	if err := s.SetSetting(constants.SettingNetworkMonitor, strconv.FormatBool(cur.NetworkMonitor)); err != nil {
		return err
	}
	if err := s.SetSetting(constants.SettingDisconnectTimeoutMinute, strconv.Itoa(cur.DisconnectTimeoutMinute)); err != nil {
		return err
	}
	if err := s.SetSetting(constants.SettingLogVerbosity, strconv.Itoa(cur.LogVerbosity)); err != nil {
		return err
	}
	if err := s.SetSetting(constants.SettingPoolSize, strconv.Itoa(cur.PoolSize)); err != nil {
		return err
	}
	return nil
}
