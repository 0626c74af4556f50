package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"upswatch/models"
	"upswatch/secrets"
)

// WebhookStore is the subset of the database the webhook channel reads.
type WebhookStore interface {
	GetWebhookConfigs() ([]models.WebhookConfig, error)
}

// WebhookChannel posts events to configured HTTP endpoints with optional
// payload signing and per-target transport hardening.
type WebhookChannel struct {
	store WebhookStore
	box   *secrets.Box
}

var _ Channel = (*WebhookChannel)(nil)

// NewWebhookChannel creates the webhook channel.
func NewWebhookChannel(store WebhookStore, box *secrets.Box) *WebhookChannel {
	return &WebhookChannel{store: store, box: box}
}

func (w *WebhookChannel) Name() string { return "webhook" }

// Send posts the event to every endpoint that enabled its type.
func (w *WebhookChannel) Send(ctx context.Context, ec *EventContext) []Result {
	configs, err := w.store.GetWebhookConfigs()
	if err != nil {
		return []Result{{Channel: w.Name(), Success: false, Message: err.Error()}}
	}

	var results []Result
	for i := range configs {
		cfg := &configs[i]
		if !cfg.Notify[ec.Event.EventType] {
			continue
		}
		results = append(results, w.post(ctx, cfg, ec))
	}
	return results
}

// SendTest posts a test payload to one endpoint regardless of its per-event
// flags.
func (w *WebhookChannel) SendTest(ctx context.Context, cfg *models.WebhookConfig) Result {
	ec := &EventContext{
		Event: &models.Event{
			UPSName:      "test",
			EventType:    models.EventOnline,
			EventMessage: "This is a test notification.",
			TimestampTZ:  time.Now(),
		},
	}
	return w.post(ctx, cfg, ec)
}

// buildPayload assembles the JSON body posted to the endpoint.
func (w *WebhookChannel) buildPayload(cfg *models.WebhookConfig, ec *EventContext) ([]byte, error) {
	payload := map[string]interface{}{
		"source":            "upswatch",
		"event_type":        ec.Event.EventType,
		"event_timestamp":   ec.Event.TimestampTZ.UTC().Format(time.RFC3339),
		"event_description": ec.Event.EventType.Description(),
		"title":             ec.Event.EventType.Title(),
		"message":           ec.Event.EventMessage,
		"ups_name":          ec.Event.UPSName,
	}
	if ec.Duration != nil {
		payload["duration_seconds"] = int(ec.Duration.Seconds())
	}
	if cfg.IncludeUPSData && ec.Data != nil {
		payload["ups_data"] = ec.Data.Fields()
	}
	return json.Marshal(payload)
}

// sign computes the hex HMAC of the body with the endpoint's secret, in the
// "<algorithm>=<hex>" form most webhook consumers expect.
func (w *WebhookChannel) sign(cfg *models.WebhookConfig, body []byte) (string, error) {
	secret, err := w.box.Decrypt(cfg.SigningSecret)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt signing secret: %v", err)
	}

	var mac hash.Hash
	switch cfg.SigningAlgorithm {
	case "sha512":
		mac = hmac.New(sha512.New, secret)
	default:
		mac = hmac.New(sha256.New, secret)
	}
	mac.Write(body)

	algo := cfg.SigningAlgorithm
	if algo == "" {
		algo = "sha256"
	}
	return algo + "=" + hex.EncodeToString(mac.Sum(nil)), nil
}

// clientFor builds an HTTP client honoring the endpoint's TLS settings.
func clientFor(cfg *models.WebhookConfig) *http.Client {
	timeout := time.Duration(cfg.RetryTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{}
	switch {
	case !cfg.VerifySSL:
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	case cfg.SkipHostnameValidation:
		// Chain verification stays on; only the hostname match is waived
		// for endpoints reached by IP or through split-horizon DNS.
		tc := &tls.Config{InsecureSkipVerify: true}
		tc.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			certs := make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					return fmt.Errorf("failed to parse peer certificate: %v", err)
				}
				certs = append(certs, cert)
			}
			if len(certs) == 0 {
				return errors.New("no peer certificate")
			}
			opts := x509.VerifyOptions{Intermediates: x509.NewCertPool()}
			for _, cert := range certs[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := certs[0].Verify(opts)
			return err
		}
		transport.TLSClientConfig = tc
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}

func basicCredentials(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// retryable reports whether a response status justifies another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// categorize turns a transport error into a short operator-readable cause.
func categorize(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("dns lookup failed for %s", dnsErr.Name)
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) || strings.Contains(err.Error(), "tls:") {
		return fmt.Sprintf("tls verification failed: %v", err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "connection refused"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out"
	}
	return err.Error()
}

func (w *WebhookChannel) post(ctx context.Context, cfg *models.WebhookConfig, ec *EventContext) Result {
	result := Result{Channel: w.Name(), Target: cfg.URL}

	body, err := w.buildPayload(cfg, ec)
	if err != nil {
		result.Message = fmt.Sprintf("failed to build payload: %v", err)
		return result
	}

	headers := http.Header{}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	headers.Set("Content-Type", contentType)
	headers.Set("User-Agent", "upswatch")

	if cfg.CustomHeaders != "" && cfg.CustomHeaders != "{}" {
		var custom map[string]string
		if err := json.Unmarshal([]byte(cfg.CustomHeaders), &custom); err != nil {
			log.Printf("Ignoring malformed custom headers for %s: %v", cfg.URL, err)
		} else {
			for k, v := range custom {
				headers.Set(k, v)
			}
		}
	}

	switch cfg.AuthType {
	case "basic":
		password := ""
		if len(cfg.AuthPassword) > 0 {
			plain, err := w.box.Decrypt(cfg.AuthPassword)
			if err != nil {
				result.Message = fmt.Sprintf("failed to decrypt webhook password: %v", err)
				return result
			}
			password = string(plain)
		}
		headers.Set("Authorization", "Basic "+basicCredentials(cfg.AuthUsername, password))
	case "bearer":
		token, err := w.box.Decrypt(cfg.AuthToken)
		if err != nil {
			result.Message = fmt.Sprintf("failed to decrypt webhook token: %v", err)
			return result
		}
		headers.Set("Authorization", "Bearer "+string(token))
	}

	if cfg.SigningEnabled && len(cfg.SigningSecret) > 0 {
		header := cfg.SigningHeader
		if header == "" {
			header = "X-Webhook-Signature"
		}
		signature, err := w.sign(cfg, body)
		if err != nil {
			result.Message = err.Error()
			return result
		}
		headers.Set(header, signature)
	}

	client := clientFor(cfg)
	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Second

	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			result.Message = fmt.Sprintf("failed to build request: %v", err)
			return result
		}
		req.Header = headers.Clone()

		resp, err := client.Do(req)
		if err != nil {
			result.Message = categorize(err)
		} else {
			status := resp.StatusCode
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()

			if status >= 200 && status < 300 {
				result.Success = true
				result.Message = fmt.Sprintf("delivered with status %d", status)
				return result
			}
			result.Message = fmt.Sprintf("endpoint returned %d: %s", status, strings.TrimSpace(string(respBody)))
			if !retryable(status) {
				return result
			}
		}

		if attempt < attempts {
			log.Printf("Webhook %s attempt %d/%d failed: %s", cfg.URL, attempt, attempts, result.Message)
			select {
			case <-ctx.Done():
				result.Message = "cancelled: " + result.Message
				return result
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return result
}
