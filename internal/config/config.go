// Package config loads and validates the orchestrator configuration:
// the application config (viper) and the pipeline definition with the
// ordered step list (YAML).
package config

import (
	"time"
)

// Config is the application configuration loaded at startup.
type Config struct {
	// RootDir is the base of the dated artifact folders.
	RootDir string `mapstructure:"root_dir"`
	// StateDir holds the journal and the instance lock.
	StateDir string `mapstructure:"state_dir"`
	// LogDir holds orchestrator and per-step logs.
	LogDir string `mapstructure:"log_dir"`
	// PipelineFile is the path of the pipeline definition.
	PipelineFile string `mapstructure:"pipeline_file"`

	TickInterval      time.Duration `mapstructure:"tick_interval"`
	GlobalParallelism int           `mapstructure:"global_parallelism"`

	// HeartbeatTime is the local wall-clock moment (HH:MM) at which a
	// heartbeat alert is sent if no other alert went out today.
	HeartbeatTime string `mapstructure:"heartbeat_time"`

	LogFormat string `mapstructure:"log_format"`
	Debug     bool   `mapstructure:"debug"`

	Mailer   MailerConfig  `mapstructure:"mailer"`
	Hygiene  HygieneConfig `mapstructure:"process_hygiene"`
	Defaults StepDefaults  `mapstructure:"step_defaults"`

	// Steps is the ordered pipeline, loaded from PipelineFile.
	Steps []Step `mapstructure:"-"`

	// Warnings collected during load; reported, not fatal.
	Warnings []string `mapstructure:"-"`
}

// Mailer delivery modes.
const (
	MailerModeCommand = "command"
	MailerModeSMTP    = "smtp"
)

// MailerConfig configures alert delivery.
type MailerConfig struct {
	// Mode selects the delivery backend: "command" runs the external
	// mailer job, "smtp" talks to an SMTP host directly, "" disables
	// alert delivery (alerts are still journaled).
	Mode string `mapstructure:"mode"`

	// Executable and ArgsTemplate configure the "command" mode. The
	// template may contain the placeholders %KIND%, %SUBJECT% and
	// %BODY_FILE%.
	Executable   string `mapstructure:"executable"`
	ArgsTemplate string `mapstructure:"args_template"`

	// SMTP settings for the "smtp" mode.
	Host     string   `mapstructure:"host"`
	Port     string   `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// HygieneConfig configures forced termination of the legacy
// application's process family.
type HygieneConfig struct {
	// Patterns are process-name globs belonging to the target application.
	Patterns []string `mapstructure:"patterns"`
	// Grace is how long to wait after a graceful close request before
	// force-killing remaining matches.
	Grace time.Duration `mapstructure:"grace"`
	// CleanupOnExit terminates the family at supervisor shutdown.
	CleanupOnExit bool `mapstructure:"cleanup_on_exit"`
}

// StepDefaults are merged into each step where the step leaves the
// field unset.
type StepDefaults struct {
	Timeout              time.Duration `yaml:"timeout"`
	MaxAttemptsPerWindow int           `yaml:"max_attempts_per_window"`
	GracePeriod          time.Duration `yaml:"grace_period"`
}

const (
	defaultTickInterval      = 30 * time.Second
	defaultGlobalParallelism = 2
	defaultStepTimeout       = 15 * time.Minute
	defaultMaxAttempts       = 1
	defaultGracePeriod       = 5 * time.Second
	defaultHygieneGrace      = 5 * time.Second
)
