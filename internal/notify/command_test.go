//go:build !windows

package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/paths"
	"github.com/dayrun-org/dayrun/internal/runner"
)

func TestExpandArgs(t *testing.T) {
	t.Parallel()

	alert := Alert{Kind: KindStepFailed, Subject: "merge failed"}
	args := expandArgs("--kind %KIND% --subject %SUBJECT% --body %BODY_FILE%", alert, "/tmp/body.txt")

	assert.Equal(t, []string{
		"--kind", "step-failed",
		"--subject", "merge", "failed",
		"--body", "/tmp/body.txt",
	}, args)
}

func TestExpandArgsEmptyTemplate(t *testing.T) {
	t.Parallel()

	assert.Empty(t, expandArgs("", Alert{}, "f"))
}

func TestCommandSenderRunsMailer(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := paths.New(root, filepath.Join(root, "state"), filepath.Join(root, "logs"))
	r := runner.New(p, func() time.Time { return time.Date(2026, 7, 31, 9, 0, 0, 0, time.Local) })

	// The fake mailer copies the body file so the test can observe the
	// arguments it received.
	capture := filepath.Join(root, "sent.txt")
	script := filepath.Join(root, "mailer.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncp \"$2\" \""+capture+"\"\n"), 0700))

	sender := newCommandSender(config.MailerConfig{
		Mode:         config.MailerModeCommand,
		Executable:   script,
		ArgsTemplate: "%KIND% %BODY_FILE%",
	}, r)

	err := sender.Send(context.Background(), Alert{
		Kind: KindDailyReport,
		Key:  "daily-report",
		Body: "all green",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(capture)
	require.NoError(t, err)
	assert.Equal(t, "all green", string(data))
}

func TestCommandSenderNonZeroExit(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := paths.New(root, filepath.Join(root, "state"), filepath.Join(root, "logs"))
	r := runner.New(p, nil)

	sender := newCommandSender(config.MailerConfig{
		Executable:   "sh",
		ArgsTemplate: "-c false",
	}, r)

	err := sender.Send(context.Background(), Alert{Kind: KindHeartbeat})
	assert.ErrorContains(t, err, "exited with code")
}
