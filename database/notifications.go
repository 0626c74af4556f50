package database

import (
	"database/sql"
	"fmt"
	"strings"

	"upswatch/models"
)

// GetMailConfig returns the default mail configuration, or the one with the
// given id when id > 0. Returns nil when no matching row exists.
func (db *DB) GetMailConfig(id int64) (*models.MailConfig, error) {
	query := `
		SELECT id, provider, smtp_server, smtp_port, username, password,
			use_tls, use_starttls, from_email, from_name, to_email, enabled, is_default
		FROM mail_config
	`
	var row *sql.Row
	if id > 0 {
		row = db.QueryRow(query+" WHERE id = $1", id)
	} else {
		row = db.QueryRow(query + " WHERE is_default = true LIMIT 1")
	}

	var cfg models.MailConfig
	err := row.Scan(&cfg.ID, &cfg.Provider, &cfg.SMTPServer, &cfg.SMTPPort,
		&cfg.Username, &cfg.Password, &cfg.TLS, &cfg.TLSStartTLS,
		&cfg.FromEmail, &cfg.FromName, &cfg.ToEmail, &cfg.Enabled, &cfg.IsDefault)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mail config: %v", err)
	}

	return &cfg, nil
}

// SaveMailConfig inserts or updates a mail configuration. Marking one
// default clears the flag on every other row.
func (db *DB) SaveMailConfig(cfg *models.MailConfig) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if cfg.IsDefault {
		if _, err := tx.Exec(`UPDATE mail_config SET is_default = false`); err != nil {
			return fmt.Errorf("failed to clear default mail config: %v", err)
		}
	}

	if cfg.ID > 0 {
		_, err = tx.Exec(`
			UPDATE mail_config
			SET provider = $1, smtp_server = $2, smtp_port = $3, username = $4,
				password = $5, use_tls = $6, use_starttls = $7, from_email = $8,
				from_name = $9, to_email = $10, enabled = $11, is_default = $12
			WHERE id = $13
		`, cfg.Provider, cfg.SMTPServer, cfg.SMTPPort, cfg.Username, cfg.Password,
			cfg.TLS, cfg.TLSStartTLS, cfg.FromEmail, cfg.FromName, cfg.ToEmail,
			cfg.Enabled, cfg.IsDefault, cfg.ID)
	} else {
		err = tx.QueryRow(`
			INSERT INTO mail_config (provider, smtp_server, smtp_port, username,
				password, use_tls, use_starttls, from_email, from_name, to_email,
				enabled, is_default)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`, cfg.Provider, cfg.SMTPServer, cfg.SMTPPort, cfg.Username, cfg.Password,
			cfg.TLS, cfg.TLSStartTLS, cfg.FromEmail, cfg.FromName, cfg.ToEmail,
			cfg.Enabled, cfg.IsDefault).Scan(&cfg.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to save mail config: %v", err)
	}

	return tx.Commit()
}

// GetNtfyConfigs returns every push notification target with its per-event
// notify flags.
func (db *DB) GetNtfyConfigs() ([]models.NtfyConfig, error) {
	cols := notifyColumns()
	query := fmt.Sprintf(`
		SELECT id, server, topic, use_auth, username, password, priority,
			use_tags, is_default, %s
		FROM ntfy_config
		ORDER BY id
	`, strings.Join(cols, ", "))

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ntfy configs: %v", err)
	}
	defer rows.Close()

	var configs []models.NtfyConfig
	for rows.Next() {
		var cfg models.NtfyConfig
		flags := make([]bool, len(cols))

		dest := []interface{}{
			&cfg.ID, &cfg.Server, &cfg.Topic, &cfg.UseAuth, &cfg.Username,
			&cfg.Password, &cfg.Priority, &cfg.UseTags, &cfg.IsDefault,
		}
		for i := range flags {
			dest = append(dest, &flags[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan ntfy config: %v", err)
		}

		cfg.Notify = make(map[models.EventType]bool, len(models.EventTypes))
		for i, t := range models.EventTypes {
			cfg.Notify[t] = flags[i]
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// GetWebhookConfigs returns every webhook target with its per-event notify
// flags.
func (db *DB) GetWebhookConfigs() ([]models.WebhookConfig, error) {
	cols := notifyColumns()
	query := fmt.Sprintf(`
		SELECT id, name, url, auth_type, auth_username, auth_password,
			auth_token, content_type, custom_headers, include_ups_data,
			verify_ssl, skip_hostname_validation, signing_enabled,
			signing_secret, signing_header, signing_algorithm, max_retries,
			retry_timeout_secs, is_default, %s
		FROM webhook_config
		ORDER BY id
	`, strings.Join(cols, ", "))

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook configs: %v", err)
	}
	defer rows.Close()

	var configs []models.WebhookConfig
	for rows.Next() {
		var cfg models.WebhookConfig
		flags := make([]bool, len(cols))

		dest := []interface{}{
			&cfg.ID, &cfg.Name, &cfg.URL, &cfg.AuthType, &cfg.AuthUsername,
			&cfg.AuthPassword, &cfg.AuthToken, &cfg.ContentType,
			&cfg.CustomHeaders, &cfg.IncludeUPSData, &cfg.VerifySSL,
			&cfg.SkipHostnameValidation, &cfg.SigningEnabled,
			&cfg.SigningSecret, &cfg.SigningHeader, &cfg.SigningAlgorithm,
			&cfg.MaxRetries, &cfg.RetryTimeoutSecs, &cfg.IsDefault,
		}
		for i := range flags {
			dest = append(dest, &flags[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan webhook config: %v", err)
		}

		cfg.Notify = make(map[models.EventType]bool, len(models.EventTypes))
		for i, t := range models.EventTypes {
			cfg.Notify[t] = flags[i]
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// GetNotificationSetting returns the email switch for one event type.
// Returns nil when the event type was never seeded.
func (db *DB) GetNotificationSetting(eventType models.EventType) (*models.NotificationSetting, error) {
	var s models.NotificationSetting
	var et string
	err := db.QueryRow(`
		SELECT id, event_type, enabled, id_email
		FROM notification_settings
		WHERE event_type = $1
	`, string(eventType)).Scan(&s.ID, &et, &s.Enabled, &s.IDEmail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query notification setting: %v", err)
	}
	s.EventType = models.EventType(et)

	return &s, nil
}

// SetNotificationSetting updates the email switch for one event type.
func (db *DB) SetNotificationSetting(eventType models.EventType, enabled bool, idEmail *int64) error {
	_, err := db.Exec(`
		UPDATE notification_settings
		SET enabled = $1, id_email = $2
		WHERE event_type = $3
	`, enabled, idEmail, string(eventType))
	if err != nil {
		return fmt.Errorf("failed to update notification setting: %v", err)
	}
	return nil
}
