package provider

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/google/uuid"

	"vigil-go/internal/config"
	"vigil-go/internal/domain"
)

// EmailProvider sends alert notifications over SMTP. The message is a
// multipart/alternative with a plain-text part and an HTML part so any mail
// client renders something readable.
type EmailProvider struct {
	cfg config.SMTPConfig
}

// NewEmailProvider creates an email provider.
func NewEmailProvider(cfg config.SMTPConfig) *EmailProvider {
	return &EmailProvider{cfg: cfg}
}

// ChannelType returns the email channel.
func (p *EmailProvider) ChannelType() domain.NotificationChannel {
	return domain.ChannelEmail
}

// ValidateConfig checks the SMTP settings.
func (p *EmailProvider) ValidateConfig() error {
	if p.cfg.Host == "" {
		return errors.New("smtp host is required")
	}
	if p.cfg.Port == 0 {
		return errors.New("smtp port is required")
	}
	if p.cfg.From == "" {
		return errors.New("smtp from address is required")
	}
	return nil
}

// Send renders the template and delivers it to the recipient address.
func (p *EmailProvider) Send(ctx context.Context, alert *domain.Alert, recipient string, tmpl *domain.NotificationTemplate) domain.NotificationResult {
	if err := ctx.Err(); err != nil {
		return failureResult(err)
	}

	subject := Render(tmpl.Subject, alert)
	body := Render(tmpl.Body, alert)
	msg := p.buildMessage(recipient, subject, body)

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}

	if err := smtp.SendMail(p.cfg.Addr(), auth, p.cfg.From, []string{recipient}, msg); err != nil {
		return failureResult(fmt.Errorf("smtp send failed: %w", err))
	}
	return successResult(uuid.New().String())
}

// buildMessage assembles the MIME multipart/alternative message bytes.
func (p *EmailProvider) buildMessage(recipient, subject, body string) []byte {
	boundary := "vigil-" + uuid.New().String()

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", p.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody(subject, body))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

// htmlBody wraps the rendered body in a minimal HTML shell, converting line
// breaks to <br> so bullet lists survive.
func htmlBody(subject, body string) string {
	escaped := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(body)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>\r\n")
	return fmt.Sprintf(
		"<html><body><h2>%s</h2><p>%s</p></body></html>",
		subject, escaped,
	)
}
