package database

import (
	"fmt"
	"strings"

	"upswatch/models"
)

// notifyColumns returns the per-event notify flag columns used by the ntfy
// and webhook config tables. Column names derive from the fixed event type
// list, never from user input.
func notifyColumns() []string {
	cols := make([]string, len(models.EventTypes))
	for i, t := range models.EventTypes {
		cols[i] = "notify_" + strings.ToLower(string(t))
	}
	return cols
}

// Migrate creates the schema when it does not exist yet.
func (db *DB) Migrate() error {
	notifyDefs := make([]string, len(models.EventTypes))
	for i, col := range notifyColumns() {
		notifyDefs[i] = col + " BOOLEAN NOT NULL DEFAULT false"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ups_dynamic_data (
			id BIGSERIAL PRIMARY KEY,
			timestamp_tz TIMESTAMPTZ NOT NULL,
			ups_status TEXT,
			ups_load DOUBLE PRECISION,
			battery_charge DOUBLE PRECISION,
			battery_runtime DOUBLE PRECISION,
			battery_voltage DOUBLE PRECISION,
			input_voltage DOUBLE PRECISION,
			output_voltage DOUBLE PRECISION,
			ups_realpower DOUBLE PRECISION,
			ups_realpower_nominal DOUBLE PRECISION,
			ups_temperature DOUBLE PRECISION,
			ups_realpower_hrs DOUBLE PRECISION,
			ups_realpower_days DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ups_dynamic_data_timestamp
			ON ups_dynamic_data (timestamp_tz DESC)`,
		`CREATE TABLE IF NOT EXISTS ups_events (
			id BIGSERIAL PRIMARY KEY,
			ups_name TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_message TEXT NOT NULL DEFAULT '',
			timestamp_tz TIMESTAMPTZ NOT NULL,
			timestamp_tz_begin TIMESTAMPTZ NOT NULL,
			timestamp_tz_end TIMESTAMPTZ,
			source_ip TEXT NOT NULL DEFAULT '',
			acknowledged BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ups_events_open
			ON ups_events (ups_name) WHERE timestamp_tz_end IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_ups_events_timestamp
			ON ups_events (timestamp_tz DESC)`,
		`CREATE TABLE IF NOT EXISTS mail_config (
			id BIGSERIAL PRIMARY KEY,
			provider TEXT NOT NULL DEFAULT '',
			smtp_server TEXT NOT NULL,
			smtp_port INTEGER NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			password BYTEA,
			use_tls BOOLEAN NOT NULL DEFAULT true,
			use_starttls BOOLEAN NOT NULL DEFAULT false,
			from_email TEXT NOT NULL,
			from_name TEXT NOT NULL DEFAULT '',
			to_email TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			is_default BOOLEAN NOT NULL DEFAULT false
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ntfy_config (
			id BIGSERIAL PRIMARY KEY,
			server TEXT NOT NULL,
			topic TEXT NOT NULL,
			use_auth BOOLEAN NOT NULL DEFAULT false,
			username TEXT NOT NULL DEFAULT '',
			password BYTEA,
			priority INTEGER NOT NULL DEFAULT 3,
			use_tags BOOLEAN NOT NULL DEFAULT true,
			is_default BOOLEAN NOT NULL DEFAULT false,
			%s
		)`, strings.Join(notifyDefs, ",\n\t\t\t")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS webhook_config (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			auth_type TEXT NOT NULL DEFAULT 'none',
			auth_username TEXT NOT NULL DEFAULT '',
			auth_password BYTEA,
			auth_token BYTEA,
			content_type TEXT NOT NULL DEFAULT 'application/json',
			custom_headers TEXT NOT NULL DEFAULT '{}',
			include_ups_data BOOLEAN NOT NULL DEFAULT true,
			verify_ssl BOOLEAN NOT NULL DEFAULT true,
			skip_hostname_validation BOOLEAN NOT NULL DEFAULT false,
			signing_enabled BOOLEAN NOT NULL DEFAULT false,
			signing_secret BYTEA,
			signing_header TEXT NOT NULL DEFAULT 'X-Webhook-Signature',
			signing_algorithm TEXT NOT NULL DEFAULT 'sha256',
			max_retries INTEGER NOT NULL DEFAULT 3,
			retry_timeout_secs INTEGER NOT NULL DEFAULT 10,
			is_default BOOLEAN NOT NULL DEFAULT false,
			%s
		)`, strings.Join(notifyDefs, ",\n\t\t\t")),
		`CREATE TABLE IF NOT EXISTS notification_settings (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL UNIQUE,
			enabled BOOLEAN NOT NULL DEFAULT false,
			id_email BIGINT REFERENCES mail_config(id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %v", err)
		}
	}

	return nil
}

// SeedNotificationSettings inserts one settings row per event type so the
// dispatcher always finds an answer. Everything starts disabled; the
// operator opts in per event type.
func (db *DB) SeedNotificationSettings() error {
	for _, t := range models.EventTypes {
		_, err := db.Exec(`
			INSERT INTO notification_settings (event_type, enabled)
			VALUES ($1, false)
			ON CONFLICT (event_type) DO NOTHING
		`, string(t))
		if err != nil {
			return fmt.Errorf("failed to seed notification settings: %v", err)
		}
	}

	return nil
}
