package providers

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"reminder-service/internal/delivery"
	"reminder-service/internal/models"
)

// EmailConfig is the SMTP relay the channel sends through.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	Username   string
	Password   string
	FromName   string
}

// MailFunc matches smtp.SendMail.
type MailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email is the digest-style channel. It can merge several notifications
// into one message.
type Email struct {
	cfg  EmailConfig
	send MailFunc
}

// NewEmail creates the channel. A nil send uses smtp.SendMail.
func NewEmail(cfg EmailConfig, send MailFunc) *Email {
	if send == nil {
		send = smtp.SendMail
	}
	return &Email{cfg: cfg, send: send}
}

func (e *Email) Name() models.Channel  { return models.ChannelEmail }
func (e *Email) Style() delivery.Style { return delivery.StyleDigest }

func (e *Email) IsAvailable() bool {
	return e.cfg.SMTPServer != "" && e.cfg.SMTPPort != 0 && e.cfg.Username != "" && e.cfg.Password != ""
}

func (e *Email) Validate(_ models.Notification, prefs models.UserPreferences) bool {
	return strings.Contains(prefs.ChannelAddresses[models.ChannelEmail], "@")
}

func (e *Email) Deliver(ctx context.Context, n models.Notification, prefs models.UserPreferences) models.DeliveryResult {
	return e.DeliverBatch(ctx, []models.Notification{n}, prefs)
}

func (e *Email) DeliverBatch(ctx context.Context, ns []models.Notification, prefs models.UserPreferences) models.DeliveryResult {
	res := models.DeliveryResult{Channel: models.ChannelEmail, Timestamp: time.Now()}
	if len(ns) == 0 {
		res.Error = "nothing to send"
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}
	to := prefs.ChannelAddresses[models.ChannelEmail]
	if !strings.Contains(to, "@") {
		res.Error = fmt.Sprintf("invalid email address: %s", to)
		return res
	}

	subject, body := Digest(ns)
	from := e.cfg.Username
	if e.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", e.cfg.FromName, e.cfg.Username)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", from, to, subject, body)

	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPServer)
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPServer, e.cfg.SMTPPort)
	if err := e.send(addr, auth, e.cfg.Username, []string{to}, []byte(msg)); err != nil {
		res.Error = fmt.Sprintf("failed to send email to %s: %v", to, err)
		return res
	}
	res.Success = true
	res.DeliveryID = uuid.NewString()
	return res
}
