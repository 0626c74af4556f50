package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.UPS.PollingInterval != time.Second {
		t.Errorf("PollingInterval = %v, want 1s", cfg.UPS.PollingInterval)
	}
	if cfg.Cache.WindowSeconds != 60 {
		t.Errorf("WindowSeconds = %d, want 60", cfg.Cache.WindowSeconds)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("Kafka.Brokers = %v, want empty", cfg.Kafka.Brokers)
	}
}

func TestLoadPollingClamp(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want time.Duration
	}{
		{"below minimum", "0", time.Second},
		{"above maximum", "300", 60 * time.Second},
		{"in range", "5", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("UPS_POLLING_INTERVAL", tt.env)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.UPS.PollingInterval != tt.want {
				t.Errorf("PollingInterval = %v, want %v", cfg.UPS.PollingInterval, tt.want)
			}
		})
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded with invalid DB_PORT, want error")
	}
}

func TestLoadKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka1:9092, kafka2:9092 ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Fatalf("Brokers = %v, want 2 entries", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Brokers[1] != "kafka2:9092" {
		t.Errorf("Brokers[1] = %q, want kafka2:9092", cfg.Kafka.Brokers[1])
	}
}

func TestUPSTarget(t *testing.T) {
	t.Setenv("UPS_NAME", "apc1500")
	t.Setenv("UPS_HOST", "10.0.0.5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.UPSTarget(); got != "apc1500@10.0.0.5" {
		t.Errorf("UPSTarget() = %q, want apc1500@10.0.0.5", got)
	}
}

func TestLocationFallback(t *testing.T) {
	t.Setenv("TIMEZONE", "Not/AZone")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loc := cfg.Location(); loc != time.UTC {
		t.Errorf("Location() = %v, want UTC", loc)
	}
}
