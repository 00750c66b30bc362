// Package notify delivers operator alerts. Every alert is keyed and
// deduplicated against the journal, so a restart mid-day does not
// re-send notifications for events already reported. Notification
// failure is logged and swallowed; the pipeline never stops because
// the mail path is down.
package notify

import (
	"context"
	"fmt"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/logger"
	"github.com/dayrun-org/dayrun/internal/logger/tag"
	"github.com/dayrun-org/dayrun/internal/runner"
)

// Kind classifies an alert.
type Kind string

const (
	KindStartupNotice Kind = "startup-notice"
	KindStepCompleted Kind = "step-completed"
	KindStepFailed    Kind = "step-failed"
	KindDailyReport   Kind = "daily-report"
	KindHeartbeat     Kind = "heartbeat"
)

// Alert is one notification to deliver. Key identifies the alert for
// the day; two alerts with the same key are delivered at most once.
type Alert struct {
	Kind    Kind
	Key     string
	Subject string
	Body    string

	// AttachmentPath optionally names a file to attach. Only the SMTP
	// sender honors it; the command mailer contract carries the body
	// file alone.
	AttachmentPath string
}

// StepAlertKey builds the journal dedup key for a per-step alert. The
// key carries no attempt number, so each step alerts at most once per
// day regardless of retries.
func StepAlertKey(kind Kind, step string) string {
	return string(kind) + ":" + step
}

// Subject builds the standard subject line for an alert.
func Subject(kind Kind, day, detail string) string {
	base := fmt.Sprintf("[dayrun] %s %s", kind, day)
	if detail == "" {
		return base
	}
	return base + ": " + detail
}

// Deduper records alert keys durably. Implemented by the journal store.
type Deduper interface {
	MarkAlertSent(ctx context.Context, key string) (bool, error)
}

// Sender delivers a composed alert over one transport.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
}

// Notifier deduplicates and dispatches alerts.
type Notifier struct {
	sender Sender
	dedup  Deduper
}

// New builds a Notifier for the configured mailer mode. An empty mode
// disables delivery; alerts are still recorded for dedup so that
// enabling the mailer later does not replay the day's history.
func New(cfg config.MailerConfig, r *runner.Runner, dedup Deduper) *Notifier {
	var sender Sender
	switch cfg.Mode {
	case config.MailerModeCommand:
		sender = newCommandSender(cfg, r)
	case config.MailerModeSMTP:
		sender = newSMTPSender(cfg)
	}
	return &Notifier{sender: sender, dedup: dedup}
}

// Notify delivers the alert unless its key was already recorded today.
// The key is recorded before sending, so delivery is at most once per
// day even across crashes between send and record.
func (n *Notifier) Notify(ctx context.Context, alert Alert) {
	fresh, err := n.dedup.MarkAlertSent(ctx, alert.Key)
	if err != nil {
		logger.Error(ctx, "Failed to record alert, not sending",
			tag.AlertKind(string(alert.Kind)), tag.AlertKey(alert.Key), tag.Error(err))
		return
	}
	if !fresh {
		logger.Debug(ctx, "Alert already sent today, skipping",
			tag.AlertKind(string(alert.Kind)), tag.AlertKey(alert.Key))
		return
	}
	if n.sender == nil {
		logger.Debug(ctx, "Mailer disabled, alert recorded only",
			tag.AlertKind(string(alert.Kind)), tag.AlertKey(alert.Key))
		return
	}

	logger.Info(ctx, "Sending alert",
		tag.AlertKind(string(alert.Kind)),
		tag.AlertKey(alert.Key),
		tag.Subject(alert.Subject),
	)
	if err := n.sender.Send(ctx, alert); err != nil {
		logger.Error(ctx, "Failed to send alert",
			tag.AlertKind(string(alert.Kind)), tag.AlertKey(alert.Key), tag.Error(err))
	}
}
