package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"upswatch/models"
	"upswatch/secrets"
)

type ntfyStoreStub struct {
	configs []models.NtfyConfig
}

func (s *ntfyStoreStub) GetNtfyConfigs() ([]models.NtfyConfig, error) {
	return s.configs, nil
}

func ntfyConfig(server string) models.NtfyConfig {
	return models.NtfyConfig{
		Server:   server,
		Topic:    "ups-alerts",
		Priority: 3,
		UseTags:  true,
		Notify:   map[models.EventType]bool{models.EventOnBatt: true},
	}
}

func TestNtfyPublish(t *testing.T) {
	var gotPath, gotTitle, gotPriority, gotTags string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		gotTags = r.Header.Get("Tags")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	box, _ := secrets.New("test-key")
	store := &ntfyStoreStub{configs: []models.NtfyConfig{ntfyConfig(server.URL)}}
	ch := NewNtfyChannel(store, box)

	ec := &EventContext{Event: &models.Event{
		UPSName:     "apc1500",
		EventType:   models.EventOnBatt,
		TimestampTZ: time.Now(),
	}}
	results := ch.Send(context.Background(), ec)
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("Send() = %+v, want one success", results)
	}
	if gotPath != "/ups-alerts" {
		t.Errorf("path = %q, want /ups-alerts", gotPath)
	}
	if gotTitle == "" {
		t.Error("Title header not set")
	}
	// ONBATT is a high-urgency event.
	if gotPriority != "4" {
		t.Errorf("Priority = %q, want 4", gotPriority)
	}
	if gotTags != "battery" {
		t.Errorf("Tags = %q, want battery", gotTags)
	}
}

func TestNtfyBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	box, _ := secrets.New("test-key")
	encrypted, err := box.Encrypt([]byte("hunter2"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	cfg := ntfyConfig(server.URL)
	cfg.UseAuth = true
	cfg.Username = "alice"
	cfg.Password = encrypted
	store := &ntfyStoreStub{configs: []models.NtfyConfig{cfg}}
	ch := NewNtfyChannel(store, box)

	ec := &EventContext{Event: &models.Event{UPSName: "ups", EventType: models.EventOnBatt}}
	ch.Send(context.Background(), ec)
	if gotUser != "alice" || gotPass != "hunter2" {
		t.Errorf("auth = %q/%q, want alice/hunter2", gotUser, gotPass)
	}
}

func TestNtfySkipsDisabledEventTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("topic published for a disabled event type")
	}))
	defer server.Close()

	box, _ := secrets.New("test-key")
	cfg := ntfyConfig(server.URL)
	cfg.Notify = map[models.EventType]bool{}
	store := &ntfyStoreStub{configs: []models.NtfyConfig{cfg}}
	ch := NewNtfyChannel(store, box)

	ec := &EventContext{Event: &models.Event{UPSName: "ups", EventType: models.EventOnBatt}}
	if results := ch.Send(context.Background(), ec); len(results) != 0 {
		t.Errorf("Send() = %+v, want none", results)
	}
}

func TestNtfyServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	box, _ := secrets.New("test-key")
	store := &ntfyStoreStub{configs: []models.NtfyConfig{ntfyConfig(server.URL)}}
	ch := NewNtfyChannel(store, box)

	ec := &EventContext{Event: &models.Event{UPSName: "ups", EventType: models.EventOnBatt}}
	results := ch.Send(context.Background(), ec)
	if len(results) != 1 || results[0].Success {
		t.Fatalf("Send() = %+v, want one failure", results)
	}
}
