package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/models"
)

// EmailChannel delivers notifications over SMTP. Credentials are read
// from the environment at send time, so rotations apply without a
// restart.
type EmailChannel struct {
	cfg *config.EmailChannelConfig
}

func NewEmailChannel(cfg *config.EmailChannelConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (c *EmailChannel) Type() models.ChannelType { return models.ChannelEmail }

func (c *EmailChannel) ValidateConfig() error {
	if c.cfg == nil || c.cfg.SMTPHost == "" {
		return fmt.Errorf("smtp host not configured")
	}
	if c.cfg.SMTPPort <= 0 || c.cfg.SMTPPort > 65535 {
		return fmt.Errorf("smtp port %d out of range", c.cfg.SMTPPort)
	}
	if c.cfg.From == "" {
		return fmt.Errorf("from address not configured")
	}
	return nil
}

func (c *EmailChannel) Send(ctx context.Context, n *models.Notification) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if n.Recipient == "" {
		return false, fmt.Errorf("email notification has no recipient")
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPHost, c.cfg.SMTPPort)
	if err := smtp.SendMail(addr, c.auth(), c.cfg.From, []string{n.Recipient}, c.message(n)); err != nil {
		return false, fmt.Errorf("smtp send: %w", err)
	}
	return true, nil
}

func (c *EmailChannel) auth() smtp.Auth {
	if c.cfg.UsernameEnv == "" {
		return nil
	}
	user := os.Getenv(c.cfg.UsernameEnv)
	if user == "" {
		return nil
	}
	return smtp.PlainAuth("", user, os.Getenv(c.cfg.PasswordEnv), c.cfg.SMTPHost)
}

// message builds a minimal RFC 5322 plain-text message.
func (c *EmailChannel) message(n *models.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", n.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", flattenLines(n.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(n.Content)
	b.WriteString("\r\n")
	return []byte(b.String())
}
