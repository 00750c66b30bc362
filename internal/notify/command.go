package notify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dayrun-org/dayrun/internal/config"
	"github.com/dayrun-org/dayrun/internal/runner"
)

// mailerTimeout bounds the external mailer job. The mailer drives the
// same desktop application as the pipeline steps, so it gets the same
// hang protection.
const mailerTimeout = 2 * time.Minute

// commandSender delivers alerts by running the external mailer job.
type commandSender struct {
	executable string
	template   string
	runner     *runner.Runner
}

func newCommandSender(cfg config.MailerConfig, r *runner.Runner) *commandSender {
	return &commandSender{
		executable: cfg.Executable,
		template:   cfg.ArgsTemplate,
		runner:     r,
	}
}

// Send writes the alert body to a temp file, expands the argument
// template, and runs the mailer executable under a hard timeout.
func (s *commandSender) Send(ctx context.Context, alert Alert) error {
	bodyFile, err := writeBodyFile(alert.Body)
	if err != nil {
		return fmt.Errorf("failed to write alert body: %w", err)
	}
	defer func() {
		_ = os.Remove(bodyFile)
	}()

	args := expandArgs(s.template, alert, bodyFile)
	result, err := s.runner.RunAdhoc(ctx, "mailer", s.executable, args, mailerTimeout)
	if err != nil {
		return err
	}
	if result.KilledOnTimeout {
		return fmt.Errorf("mailer timed out after %s", mailerTimeout)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("mailer exited with code %d: %s",
			result.ExitCode, strings.TrimSpace(result.StderrTail))
	}
	return nil
}

// expandArgs splits the whitespace-separated template and substitutes
// the alert placeholders in each token.
func expandArgs(template string, alert Alert, bodyFile string) []string {
	rep := strings.NewReplacer(
		"%KIND%", string(alert.Kind),
		"%SUBJECT%", alert.Subject,
		"%BODY_FILE%", bodyFile,
	)
	var args []string
	for _, tok := range strings.Fields(template) {
		args = append(args, rep.Replace(tok))
	}
	return args
}

func writeBodyFile(body string) (string, error) {
	f, err := os.CreateTemp("", "dayrun-alert-*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
