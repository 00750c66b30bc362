package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader reads and merges configuration from file, environment and
// defaults.
type Loader struct {
	v            *viper.Viper
	configFile   string
	pipelineFile string
	warnings     []string
}

// LoaderOption is a functional option for the Loader.
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(file string) LoaderOption {
	return func(l *Loader) {
		l.configFile = file
	}
}

// WithPipelineFile overrides the pipeline definition path.
func WithPipelineFile(file string) LoaderOption {
	return func(l *Loader) {
		l.pipelineFile = file
	}
}

// NewLoader constructs a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{v: viper.New()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the app config and the pipeline definition.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix("PIPELINE")
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(defaultConfigDir())
		l.v.AddConfigPath(".")
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config: %w", ErrConfigInvalid, err)
		}
		l.warnings = append(l.warnings, "no config file found, using defaults")
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", ErrConfigInvalid, err)
	}

	l.loadDotEnv(&cfg)
	l.resolvePaths(&cfg)
	if l.pipelineFile != "" {
		cfg.PipelineFile = l.pipelineFile
	}

	steps, err := LoadPipeline(cfg.PipelineFile, cfg.Defaults)
	if err != nil {
		return nil, err
	}
	cfg.Steps = steps
	cfg.Warnings = l.warnings

	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("tick_interval", defaultTickInterval)
	l.v.SetDefault("global_parallelism", defaultGlobalParallelism)
	l.v.SetDefault("heartbeat_time", "12:00")
	l.v.SetDefault("log_format", "text")
	l.v.SetDefault("process_hygiene.grace", defaultHygieneGrace)
}

// loadDotEnv reads a .env file next to the config (mailer credentials
// and similar secrets live there, not in the config file).
func (l *Loader) loadDotEnv(cfg *Config) {
	dir := cfg.RootDir
	if l.configFile != "" {
		dir = filepath.Dir(l.configFile)
	}
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("failed to load %s: %v", envFile, err))
		return
	}
	if v := os.Getenv("PIPELINE_SMTP_USERNAME"); v != "" && cfg.Mailer.Username == "" {
		cfg.Mailer.Username = v
	}
	if v := os.Getenv("PIPELINE_SMTP_PASSWORD"); v != "" && cfg.Mailer.Password == "" {
		cfg.Mailer.Password = v
	}
}

// resolvePaths fills derived paths relative to the root dir.
func (l *Loader) resolvePaths(cfg *Config) {
	if cfg.RootDir == "" {
		cfg.RootDir = filepath.Join(xdg.DataHome, "dayrun")
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.RootDir, "state")
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.RootDir, "logs")
	}
	if cfg.PipelineFile == "" {
		cfg.PipelineFile = filepath.Join(defaultConfigDir(), "pipeline.yaml")
	}
}

func defaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "dayrun")
}
