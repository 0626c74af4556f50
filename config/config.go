package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	UPS      UPSConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
	Notify   NotifyConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string
	AllowOrigins []string
	Timezone     string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// UPSConfig holds the monitored UPS target and polling parameters.
type UPSConfig struct {
	Name            string
	Host            string
	Command         string
	CommandTimeout  time.Duration
	PollingInterval time.Duration
	// RealpowerNominal is the fallback nominal power (watts) used to derive
	// ups_realpower when the device reports neither realpower nor a nominal.
	RealpowerNominal float64
}

// CacheConfig controls the sample buffer window.
type CacheConfig struct {
	WindowSeconds int
}

// KafkaConfig holds the optional telemetry export configuration. Export is
// disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers     []string
	SampleTopic string
	EventTopic  string
}

// NotifyConfig holds dispatcher-wide notification settings.
type NotifyConfig struct {
	// EncryptionKey protects channel credentials at rest. When empty a
	// random key is generated and persisted in KeyFile on first run.
	EncryptionKey string
	// KeyFile stores the generated key between restarts.
	KeyFile string
	// TestCooldown is the minimum interval between manual test sends.
	TestCooldown time.Duration
	// MsmtpCommand is the mail transport binary invoked per send.
	MsmtpCommand string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %v", err)
	}

	pollSecs, err := strconv.Atoi(getEnvOrDefault("UPS_POLLING_INTERVAL", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPS_POLLING_INTERVAL: %v", err)
	}
	// Polling faster than 1s hammers upsc for no benefit; slower than 60s
	// starves the minute aggregation.
	if pollSecs < 1 {
		pollSecs = 1
	}
	if pollSecs > 60 {
		pollSecs = 60
	}

	cmdTimeout, err := strconv.Atoi(getEnvOrDefault("UPS_COMMAND_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPS_COMMAND_TIMEOUT: %v", err)
	}

	cacheWindow, err := strconv.Atoi(getEnvOrDefault("CACHE_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_SECONDS: %v", err)
	}

	nominal, err := strconv.ParseFloat(getEnvOrDefault("UPS_REALPOWER_NOMINAL", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UPS_REALPOWER_NOMINAL: %v", err)
	}

	cooldown, err := strconv.Atoi(getEnvOrDefault("NOTIFY_TEST_COOLDOWN", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_TEST_COOLDOWN: %v", err)
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnvOrDefault("SERVER_PORT", "8080"),
			AllowOrigins: []string{
				getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
				"http://localhost:3000",
			},
			Timezone: getEnvOrDefault("TIMEZONE", "UTC"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     dbPort,
			Name:     getEnvOrDefault("DB_NAME", "upswatch"),
			User:     getEnvOrDefault("DB_USER", "upswatch"),
			Password: getEnvOrDefault("DB_PASSWORD", "upswatch"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		UPS: UPSConfig{
			Name:             getEnvOrDefault("UPS_NAME", "ups"),
			Host:             getEnvOrDefault("UPS_HOST", "localhost"),
			Command:          getEnvOrDefault("UPS_COMMAND", "/usr/bin/upsc"),
			CommandTimeout:   time.Duration(cmdTimeout) * time.Second,
			PollingInterval:  time.Duration(pollSecs) * time.Second,
			RealpowerNominal: nominal,
		},
		Cache: CacheConfig{
			WindowSeconds: cacheWindow,
		},
		Kafka: KafkaConfig{
			Brokers:     brokers,
			SampleTopic: getEnvOrDefault("KAFKA_SAMPLE_TOPIC", "upswatch.samples"),
			EventTopic:  getEnvOrDefault("KAFKA_EVENT_TOPIC", "upswatch.events"),
		},
		Notify: NotifyConfig{
			EncryptionKey: getEnvOrDefault("ENCRYPTION_KEY", ""),
			KeyFile:       getEnvOrDefault("ENCRYPTION_KEY_FILE", "upswatch.key"),
			TestCooldown:  time.Duration(cooldown) * time.Second,
			MsmtpCommand:  getEnvOrDefault("MSMTP_COMMAND", "/usr/bin/msmtp"),
		},
	}, nil
}

// GetDatabaseURL returns formatted database connection URL
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// UPSTarget returns the name@host argument passed to the status command.
func (c *Config) UPSTarget() string {
	return c.UPS.Name + "@" + c.UPS.Host
}

// Location resolves the configured timezone, falling back to UTC when the
// name is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
