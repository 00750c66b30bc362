package notify

import (
	"context"
	"encoding/base64"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dayrun-org/dayrun/internal/backoff"
	"github.com/dayrun-org/dayrun/internal/config"
)

const (
	smtpRetryInterval = 10 * time.Second
	smtpMaxRetries    = 2

	mimeBoundary = "dayrun-mime-boundary"
)

// crlfReplacer strips header-injection characters from addresses.
var crlfReplacer = strings.NewReplacer("\r\n", "", "\r", "", "\n", "", "%0a", "", "%0d", "")

// smtpSender delivers alerts over SMTP with plain auth (or none when
// no credentials are configured).
type smtpSender struct {
	host     string
	port     string
	username string
	password string
	from     string
	to       []string

	policy  backoff.RetryPolicy
	deliver func(alert Alert) error // seam for tests
}

func newSMTPSender(cfg config.MailerConfig) *smtpSender {
	s := &smtpSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		to:       cfg.To,
		policy: &backoff.ConstantBackoffPolicy{
			Interval:   smtpRetryInterval,
			MaxRetries: smtpMaxRetries,
		},
	}
	s.deliver = s.transmit
	return s
}

// Send delivers the alert, retrying transient SMTP failures a couple
// of times. The last delivery error is returned once retries are
// exhausted; the notifier logs it.
func (s *smtpSender) Send(ctx context.Context, alert Alert) error {
	retrier := backoff.NewRetrier(s.policy)
	for {
		err := s.deliver(alert)
		if err == nil {
			return nil
		}
		interval, retryErr := retrier.Next(err)
		if retryErr != nil {
			return err
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

func (s *smtpSender) transmit(alert Alert) error {
	msg := s.composeMail(alert)
	addr := s.host + ":" + s.port
	if s.username == "" && s.password == "" {
		return s.sendWithNoAuth(addr, msg)
	}
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	return smtp.SendMail(addr, auth, s.from, s.to, msg)
}

func (s *smtpSender) sendWithNoAuth(addr string, msg []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()
	if err := c.Mail(crlfReplacer.Replace(s.from)); err != nil {
		return err
	}
	for _, rcpt := range s.to {
		if err := c.Rcpt(crlfReplacer.Replace(rcpt)); err != nil {
			return err
		}
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *smtpSender) composeMail(alert Alert) []byte {
	var b strings.Builder
	b.WriteString("To: " + strings.Join(s.to, ",") + "\r\n")
	b.WriteString("From: " + s.from + "\r\n")
	b.WriteString("Subject: " + alert.Subject + "\r\n")

	attachment := attachmentPart(alert.AttachmentPath)
	if attachment == nil {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(alert.Body)))
		b.WriteString("\r\n")
		return []byte(b.String())
	}

	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"" + mimeBoundary + "\"\r\n")
	b.WriteString("\r\n--" + mimeBoundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(alert.Body)))
	b.Write(attachment)
	b.WriteString("\r\n--" + mimeBoundary + "--\r\n")
	return []byte(b.String())
}

// attachmentPart encodes the file as a base64 attachment. An empty
// path or an unreadable file yields nil; the mail degrades to body
// only rather than failing the alert.
func attachmentPart(path string) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var b strings.Builder
	b.WriteString("\r\n--" + mimeBoundary + "\r\n")
	b.WriteString("Content-Type: text/plain\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("Content-Disposition: attachment; filename=" + filepath.Base(path) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return []byte(b.String())
}
