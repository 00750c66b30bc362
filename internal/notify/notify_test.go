package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayrun-org/dayrun/internal/config"
)

type fakeDeduper struct {
	seen    map[string]bool
	markErr error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[string]bool{}}
}

func (d *fakeDeduper) MarkAlertSent(_ context.Context, key string) (bool, error) {
	if d.markErr != nil {
		return false, d.markErr
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

type fakeSender struct {
	sent    []Alert
	sendErr error
}

func (s *fakeSender) Send(_ context.Context, alert Alert) error {
	s.sent = append(s.sent, alert)
	return s.sendErr
}

func TestNotifyDeduplicates(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n := &Notifier{sender: sender, dedup: newFakeDeduper()}

	alert := Alert{Kind: KindStepFailed, Key: "step-failed:merge", Subject: "s", Body: "b"}
	n.Notify(context.Background(), alert)
	n.Notify(context.Background(), alert)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "step-failed:merge", sender.sent[0].Key)
}

func TestNotifySendFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{sendErr: errors.New("smtp down")}
	n := &Notifier{sender: sender, dedup: newFakeDeduper()}

	// Must not panic or propagate.
	n.Notify(context.Background(), Alert{Kind: KindHeartbeat, Key: "heartbeat"})
	assert.Len(t, sender.sent, 1)
}

func TestNotifyDedupFailureSkipsSend(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	dedup := newFakeDeduper()
	dedup.markErr = errors.New("disk full")
	n := &Notifier{sender: sender, dedup: dedup}

	n.Notify(context.Background(), Alert{Kind: KindHeartbeat, Key: "heartbeat"})
	assert.Empty(t, sender.sent)
}

func TestNotifyDisabledMailerStillRecords(t *testing.T) {
	t.Parallel()

	dedup := newFakeDeduper()
	n := New(config.MailerConfig{}, nil, dedup)

	n.Notify(context.Background(), Alert{Kind: KindStartupNotice, Key: "startup-notice"})
	assert.True(t, dedup.seen["startup-notice"])
}

func TestStepAlertKey(t *testing.T) {
	t.Parallel()

	// One key per step and day; retries must not mint fresh keys.
	assert.Equal(t, "step-failed:merge", StepAlertKey(KindStepFailed, "merge"))
	assert.Equal(t, "step-completed:merge", StepAlertKey(KindStepCompleted, "merge"))
}

func TestSubject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[dayrun] daily-report 2026-07-31", Subject(KindDailyReport, "2026-07-31", ""))
	assert.Equal(t, "[dayrun] step-failed 2026-07-31: merge", Subject(KindStepFailed, "2026-07-31", "merge"))
}
