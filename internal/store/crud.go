package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hcavarsan/kftray-sub001/internal/model"
)

// Create inserts cfg and returns its assigned id. Any incoming cfg.ID is
// ignored.
func (s *Store) Create(cfg model.Config) (int64, error) {
	cfg.ID = 0
	data, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`INSERT INTO configs(data) VALUES (?)`, string(data))
	if err != nil {
		return 0, mapSQLErr(err)
	}
	return res.LastInsertId()
}

// Get returns the Config stored under id, merged with the default template.
func (s *Store) Get(id int64) (model.Config, error) {
	row := s.db.QueryRow(`SELECT data FROM configs WHERE id = ?`, id)
	var data string
	if err := row.Scan(&data); err != nil {
		return model.Config{}, mapSQLErr(err)
	}
	return decodeConfig(id, data)
}

// List returns every stored Config, each merged with the default template.
func (s *Store) List() ([]model.Config, error) {
	rows, err := s.db.Query(`SELECT id, data FROM configs ORDER BY id`)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	defer rows.Close()

	var out []model.Config
	for rows.Next() {
		var (
			id   int64
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, mapSQLErr(err)
		}
		cfg, err := decodeConfig(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// Update overwrites the row at cfg.ID in place.
func (s *Store) Update(cfg model.Config) error {
	if cfg.ID == 0 {
		return fmt.Errorf("%w: update requires a non-zero id", ErrMalformed)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE configs SET data = ? WHERE id = ?`, string(data), cfg.ID)
	if err != nil {
		return mapSQLErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapSQLErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the Config at id, cascading to its HttpLogsConfig and
// ConfigState rows.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return mapSQLErr(err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM configs WHERE id = ?`, id)
	if err != nil {
		return mapSQLErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapSQLErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM config_state WHERE config_id = ?`, id); err != nil {
		return mapSQLErr(err)
	}
	if _, err := tx.Exec(`DELETE FROM http_logs_config WHERE config_id = ?`, id); err != nil {
		return mapSQLErr(err)
	}
	return tx.Commit()
}

// SetState upserts the running state for configID.
func (s *Store) SetState(configID int64, isRunning bool, processID *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO config_state(config_id, is_running, process_id) VALUES (?, ?, ?)
		ON CONFLICT(config_id) DO UPDATE SET is_running = excluded.is_running, process_id = excluded.process_id
	`, configID, boolToInt(isRunning), processID)
	return mapSQLErr(err)
}

// ListStates returns the running state of every config that has one.
func (s *Store) ListStates() ([]model.ConfigState, error) {
	rows, err := s.db.Query(`SELECT config_id, is_running, process_id FROM config_state ORDER BY config_id`)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	defer rows.Close()

	var out []model.ConfigState
	for rows.Next() {
		var (
			st  model.ConfigState
			pid sql.NullInt64
			run int
		)
		if err := rows.Scan(&st.ConfigID, &run, &pid); err != nil {
			return nil, mapSQLErr(err)
		}
		st.IsRunning = run != 0
		if pid.Valid {
			v := int(pid.Int64)
			st.ProcessID = &v
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetHTTPLogsConfig returns the per-config HTTP logging override, if any.
func (s *Store) GetHTTPLogsConfig(configID int64) (model.HTTPLogsConfig, bool, error) {
	row := s.db.QueryRow(`SELECT enabled, max_file_size, retention_days, auto_cleanup FROM http_logs_config WHERE config_id = ?`, configID)
	var (
		cfg     model.HTTPLogsConfig
		enabled int
		cleanup int
	)
	cfg.ConfigID = configID
	if err := row.Scan(&enabled, &cfg.MaxFileSize, &cfg.RetentionDays, &cleanup); err != nil {
		if err == sql.ErrNoRows {
			return model.HTTPLogsConfig{}, false, nil
		}
		return model.HTTPLogsConfig{}, false, mapSQLErr(err)
	}
	cfg.Enabled = enabled != 0
	cfg.AutoCleanup = cleanup != 0
	return cfg, true, nil
}

// SetHTTPLogsConfig upserts the per-config HTTP logging override.
func (s *Store) SetHTTPLogsConfig(cfg model.HTTPLogsConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO http_logs_config(config_id, enabled, max_file_size, retention_days, auto_cleanup, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(config_id) DO UPDATE SET
			enabled = excluded.enabled,
			max_file_size = excluded.max_file_size,
			retention_days = excluded.retention_days,
			auto_cleanup = excluded.auto_cleanup,
			updated_at = excluded.updated_at
	`, cfg.ConfigID, boolToInt(cfg.Enabled), cfg.MaxFileSize, cfg.RetentionDays, boolToInt(cfg.AutoCleanup))
	return mapSQLErr(err)
}

// GetSetting returns the value stored under key, and whether it existed.
func (s *Store) GetSetting(key string) (string, bool, error) {
	row := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, mapSQLErr(err)
	}
	return value, true, nil
}

// SetSetting upserts the value stored under key.
func (s *Store) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO settings(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return mapSQLErr(err)
}

func decodeConfig(id int64, data string) (model.Config, error) {
	var cfg model.Config
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return model.Config{}, fmt.Errorf("%w: row %d: %v", ErrMalformed, id, err)
	}
	cfg.ID = id
	if err := applyDefaults(&cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
