package store

import (
	"encoding/json"
	"fmt"

	"github.com/hcavarsan/kftray-sub001/internal/model"
)

// ExportJSON returns every stored Config as a JSON array, with placeholder
// sentinels stripped and workload-type-irrelevant fields projected away.
func (s *Store) ExportJSON() ([]byte, error) {
	configs, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range configs {
		stripSentinels(&configs[i])
		projectForExport(&configs[i])
	}
	return json.Marshal(configs)
}

// ImportJSON accepts either a single Config object or a JSON array of them.
// Incoming ids are ignored; rows are matched against existing ones by the
// uniqueness tuple and updated in place, or inserted when unmatched.
func (s *Store) ImportJSON(payload []byte) error {
	configs, err := decodeImportPayload(payload)
	if err != nil {
		return err
	}

	existing, err := s.List()
	if err != nil {
		return err
	}
	index := make(map[string]model.Config, len(existing))
	for _, cfg := range existing {
		index[importKey(cfg)] = cfg
	}

	for _, incoming := range configs {
		incoming.ID = 0
		key := importKey(incoming)
		if match, ok := index[key]; ok {
			incoming.ID = match.ID
			if err := s.checkUniqueness(existing, incoming); err != nil {
				return err
			}
			if err := s.Update(incoming); err != nil {
				return err
			}
			continue
		}
		if err := s.checkUniqueness(existing, incoming); err != nil {
			return err
		}
		if _, err := s.Create(incoming); err != nil {
			return err
		}
	}
	return nil
}

// importKey is the tuple import matches existing rows on:
// (context, namespace, service|target, local_port, remote_port, protocol).
func importKey(cfg model.Config) string {
	return fmt.Sprintf("%s/%s/%s/%d/%s/%s", cfg.Context, cfg.Namespace, cfg.Selector(), cfg.LocalPort, cfg.RemotePort, cfg.Protocol)
}

// checkUniqueness enforces (context, namespace, local_address, local_port,
// protocol) uniqueness among non-zero local ports, skipping the row being
// updated.
func (s *Store) checkUniqueness(existing []model.Config, incoming model.Config) error {
	if incoming.LocalPort == 0 {
		return nil
	}
	for _, other := range existing {
		if other.ID == incoming.ID {
			continue
		}
		if other.Context == incoming.Context &&
			other.Namespace == incoming.Namespace &&
			other.LocalAddress == incoming.LocalAddress &&
			other.LocalPort == incoming.LocalPort &&
			other.Protocol == incoming.Protocol {
			return fmt.Errorf("%w: local port %d already in use by config %d", ErrConflict, incoming.LocalPort, other.ID)
		}
	}
	return nil
}

func decodeImportPayload(payload []byte) ([]model.Config, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err == nil {
		configs := make([]model.Config, 0, len(raw))
		for _, item := range raw {
			cfg, err := decodeImportConfig(item)
			if err != nil {
				return nil, err
			}
			configs = append(configs, cfg)
		}
		return configs, nil
	}

	cfg, err := decodeImportConfig(payload)
	if err != nil {
		return nil, err
	}
	return []model.Config{cfg}, nil
}

// decodeImportConfig unmarshals one Config, accepting boolean-valued
// options encoded as JSON booleans or the strings "true"/"false".
func decodeImportConfig(raw json.RawMessage) (model.Config, error) {
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return model.Config{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, field := range []string{
		"domain_enabled", "auto_loopback_address",
		"http_logs_enabled", "http_logs_auto_cleanup", "cert_manager_enabled",
	} {
		if v, ok := loose[field]; ok {
			b, err := parseBoolOption(v)
			if err != nil {
				return model.Config{}, err
			}
			loose[field] = json.RawMessage(fmt.Sprintf("%t", b))
		}
	}
	normalized, err := json.Marshal(loose)
	if err != nil {
		return model.Config{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var cfg model.Config
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cfg, nil
}

// parseBoolOption accepts a JSON bool or a "true"/"false" string, the
// encoding import payloads are allowed to use for boolean options.
func parseBoolOption(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: invalid boolean option %s", ErrMalformed, raw)
}
