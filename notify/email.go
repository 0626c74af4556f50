package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"upswatch/models"
	"upswatch/secrets"
)

// EmailStore is the subset of the database the email channel reads.
type EmailStore interface {
	GetNotificationSetting(eventType models.EventType) (*models.NotificationSetting, error)
	GetMailConfig(id int64) (*models.MailConfig, error)
}

// EmailChannel sends mail through the msmtp command. Each send writes a
// private config file for the selected SMTP account and removes it after
// the transport exits.
type EmailChannel struct {
	store   EmailStore
	box     *secrets.Box
	command string
	// testLimiter throttles manual test sends so a misclicking user cannot
	// hammer the SMTP relay.
	testLimiter *rate.Limiter
}

var _ Channel = (*EmailChannel)(nil)

// NewEmailChannel creates the email channel.
func NewEmailChannel(store EmailStore, box *secrets.Box, command string, testCooldown time.Duration) *EmailChannel {
	return &EmailChannel{
		store:       store,
		box:         box,
		command:     command,
		testLimiter: rate.NewLimiter(rate.Every(testCooldown), 1),
	}
}

func (e *EmailChannel) Name() string { return "email" }

// Send delivers the event by mail when its type is enabled in the
// notification settings.
func (e *EmailChannel) Send(ctx context.Context, ec *EventContext) []Result {
	setting, err := e.store.GetNotificationSetting(ec.Event.EventType)
	if err != nil {
		return []Result{{Channel: e.Name(), Success: false, Message: err.Error()}}
	}
	if setting == nil || !setting.Enabled {
		return nil
	}

	var id int64
	if setting.IDEmail != nil {
		id = *setting.IDEmail
	}
	cfg, err := e.store.GetMailConfig(id)
	if err != nil {
		return []Result{{Channel: e.Name(), Success: false, Message: err.Error()}}
	}
	if cfg == nil || !cfg.Enabled {
		log.Printf("Email enabled for %s but no usable mail config", ec.Event.EventType)
		return nil
	}

	result := e.deliver(ctx, cfg, Subject(ec), "text/html", HTMLBody(ec))
	return []Result{result}
}

// SendTest sends a test message through the given config, subject to the
// cooldown.
func (e *EmailChannel) SendTest(ctx context.Context, cfg *models.MailConfig) Result {
	if !e.testLimiter.Allow() {
		return Result{
			Channel: e.Name(),
			Target:  cfg.ToEmail,
			Success: false,
			Message: "test email throttled, try again shortly",
		}
	}
	subject := "Test notification"
	body := "This is a test notification. If you can read this, mail delivery works."
	return e.deliver(ctx, cfg, subject, "text/plain", body)
}

func (e *EmailChannel) deliver(ctx context.Context, cfg *models.MailConfig, subject, contentType, body string) Result {
	result := Result{Channel: e.Name(), Target: cfg.ToEmail}

	password := ""
	if len(cfg.Password) > 0 {
		plain, err := e.box.Decrypt(cfg.Password)
		if err != nil {
			result.Message = fmt.Sprintf("failed to decrypt mail password: %v", err)
			return result
		}
		password = string(plain)
	}

	confPath, err := e.writeConfig(cfg, password)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	defer os.Remove(confPath)

	from := cfg.FromEmail
	if from == "" {
		from = cfg.Username
	}

	msg := buildMessage(from, cfg.FromName, cfg.ToEmail, subject, contentType, body)

	cmd := exec.CommandContext(ctx, e.command, "-C", confPath, "-a", "upswatch", cfg.ToEmail)
	cmd.Stdin = strings.NewReader(msg)
	if out, err := cmd.CombinedOutput(); err != nil {
		result.Message = fmt.Sprintf("msmtp failed: %v: %s", err, strings.TrimSpace(string(out)))
		return result
	}

	result.Success = true
	result.Message = "sent"
	return result
}

// writeConfig writes a mode 0600 msmtp account file for one send.
func (e *EmailChannel) writeConfig(cfg *models.MailConfig, password string) (string, error) {
	f, err := os.CreateTemp("", "msmtp-*.conf")
	if err != nil {
		return "", fmt.Errorf("failed to create msmtp config: %v", err)
	}
	defer f.Close()

	if err := f.Chmod(0o600); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to restrict msmtp config: %v", err)
	}

	var b strings.Builder
	b.WriteString("defaults\n")
	b.WriteString("logfile -\n\n")
	b.WriteString("account upswatch\n")
	fmt.Fprintf(&b, "host %s\n", cfg.SMTPServer)
	fmt.Fprintf(&b, "port %d\n", cfg.SMTPPort)
	if cfg.TLSStartTLS {
		b.WriteString("tls on\ntls_starttls on\n")
	} else if cfg.TLS {
		b.WriteString("tls on\ntls_starttls off\n")
	} else {
		b.WriteString("tls off\n")
	}
	if cfg.Username != "" {
		b.WriteString("auth on\n")
		fmt.Fprintf(&b, "user %s\n", cfg.Username)
		fmt.Fprintf(&b, "password %s\n", password)
	} else {
		b.WriteString("auth off\n")
	}
	from := cfg.FromEmail
	if from == "" {
		from = cfg.Username
	}
	fmt.Fprintf(&b, "from %s\n", from)

	if _, err := f.WriteString(b.String()); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write msmtp config: %v", err)
	}

	return f.Name(), nil
}

// buildMessage assembles the RFC 5322 message handed to the transport.
func buildMessage(from, fromName, to, subject, contentType, body string) string {
	var b strings.Builder
	if fromName != "" {
		fmt.Fprintf(&b, "From: %s <%s>\r\n", fromName, from)
	} else {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s; charset=utf-8\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
