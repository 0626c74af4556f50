package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"upswatch/models"
	"upswatch/secrets"
)

// NtfyStore is the subset of the database the push channel reads.
type NtfyStore interface {
	GetNtfyConfigs() ([]models.NtfyConfig, error)
}

// NtfyChannel publishes events to ntfy topics.
type NtfyChannel struct {
	store  NtfyStore
	box    *secrets.Box
	client *http.Client
}

var _ Channel = (*NtfyChannel)(nil)

// NewNtfyChannel creates the push channel.
func NewNtfyChannel(store NtfyStore, box *secrets.Box) *NtfyChannel {
	return &NtfyChannel{
		store: store,
		box:   box,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *NtfyChannel) Name() string { return "ntfy" }

// Send publishes the event to every configured topic that enabled its type.
func (n *NtfyChannel) Send(ctx context.Context, ec *EventContext) []Result {
	configs, err := n.store.GetNtfyConfigs()
	if err != nil {
		return []Result{{Channel: n.Name(), Success: false, Message: err.Error()}}
	}

	var results []Result
	for i := range configs {
		cfg := &configs[i]
		if !cfg.Notify[ec.Event.EventType] {
			continue
		}
		results = append(results, n.publish(ctx, cfg, ec))
	}
	return results
}

// SendTest publishes a test message to one topic regardless of its per-event
// flags.
func (n *NtfyChannel) SendTest(ctx context.Context, cfg *models.NtfyConfig) Result {
	ec := &EventContext{
		Event: &models.Event{
			UPSName:      "test",
			EventType:    models.EventOnline,
			EventMessage: "This is a test notification.",
		},
	}
	return n.publish(ctx, cfg, ec)
}

func (n *NtfyChannel) publish(ctx context.Context, cfg *models.NtfyConfig, ec *EventContext) Result {
	target := strings.TrimRight(cfg.Server, "/") + "/" + cfg.Topic
	result := Result{Channel: n.Name(), Target: target}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(Body(ec)))
	if err != nil {
		result.Message = fmt.Sprintf("failed to build request: %v", err)
		return result
	}

	req.Header.Set("Title", Subject(ec))
	req.Header.Set("Priority", strconv.Itoa(ec.Event.EventType.Priority()))
	if cfg.UseTags {
		if tags := ec.Event.EventType.Tags(); tags != "" {
			req.Header.Set("Tags", tags)
		}
	}

	if cfg.UseAuth {
		password := ""
		if len(cfg.Password) > 0 {
			plain, err := n.box.Decrypt(cfg.Password)
			if err != nil {
				result.Message = fmt.Sprintf("failed to decrypt ntfy password: %v", err)
				return result
			}
			password = string(plain)
		}
		req.SetBasicAuth(cfg.Username, password)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		result.Message = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		result.Message = fmt.Sprintf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		log.Printf("Ntfy publish to %s failed: %s", target, result.Message)
		return result
	}

	result.Success = true
	result.Message = "published"
	return result
}
