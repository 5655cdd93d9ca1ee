package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Mode      string
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects and configures the task store.
type StoreConfig struct {
	Backend    string
	RunLogKeep int
}

// KernelConfig holds the permission and sandbox settings.
type KernelConfig struct {
	ProfilePath string
	PolicyPath  string
	SandboxDir  string
	FSMode      string
	FSRoot      string
}

// SchedulerConfig holds task execution settings.
type SchedulerConfig struct {
	TaskTimeout   time.Duration
	SwarmTemplate string
	FlowTemplate  string
}

// JulesConfig holds the remote agent client settings.
type JulesConfig struct {
	APIKey  string
	BaseURL string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Store        StoreConfig
	Kernel       KernelConfig
	Scheduler    SchedulerConfig
	Jules        JulesConfig
	Notification NotificationConfig

	StateDir      string
	ShutdownGrace time.Duration
}

const (
	defaultMode          = "http"
	defaultAddr          = "127.0.0.1:7171"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultStoreBackend  = "sqlite"
	defaultRunLogKeep    = 20
	defaultShutdownGrace = 5 * time.Second
	defaultTaskTimeout   = 5 * time.Minute
	defaultFSMode        = "memory"
	defaultSandboxDir    = "/home/agent/sandbox"
	appName              = "agentdesk"
)

// Valid modes and backends.
var (
	Modes    = []string{"http", "mcp", "both"}
	Backends = []string{"sqlite", "file"}
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse reads configuration for the daemon from os.Args.
func Parse() (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, appName, ".env"))
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f) // optional
	}
	return Load(os.Args[1:])
}

// Load builds the configuration from the environment and args.
// Priority: flags > environment > .env file > defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Mode:      getEnvString("AGENTDESK_MODE", defaultMode),
			Addr:      getEnvString("AGENTDESK_ADDR", defaultAddr),
			AuthToken: getEnvString("AGENTDESK_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level:  getEnvString("AGENTDESK_LOG_LEVEL", defaultLogLevel),
			Format: getEnvString("AGENTDESK_LOG_FORMAT", defaultLogFormat),
		},
		Store: StoreConfig{
			Backend:    getEnvString("AGENTDESK_STORE", defaultStoreBackend),
			RunLogKeep: getEnvInt("AGENTDESK_RUN_LOG_KEEP", defaultRunLogKeep),
		},
		Kernel: KernelConfig{
			ProfilePath: getEnvString("AGENTDESK_PERMISSIONS", ""),
			PolicyPath:  getEnvString("AGENTDESK_SANDBOX_POLICY", ""),
			SandboxDir:  getEnvString("AGENTDESK_SANDBOX_DIR", defaultSandboxDir),
			FSMode:      getEnvString("AGENTDESK_FS_MODE", defaultFSMode),
			FSRoot:      getEnvString("AGENTDESK_FS_ROOT", ""),
		},
		Scheduler: SchedulerConfig{
			TaskTimeout:   getEnvDuration("AGENTDESK_TASK_TIMEOUT", defaultTaskTimeout),
			SwarmTemplate: getEnvString("AGENTDESK_SWARM_TEMPLATE", ""),
			FlowTemplate:  getEnvString("AGENTDESK_FLOW_TEMPLATE", ""),
		},
		Jules: JulesConfig{
			APIKey:  getEnvString("AGENTDESK_JULES_API_KEY", ""),
			BaseURL: getEnvString("AGENTDESK_JULES_BASE_URL", ""),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("AGENTDESK_BARK_URL", ""),
				Enabled: getEnvBool("AGENTDESK_BARK_ENABLED", false),
			},
		},
		StateDir:      getEnvString("AGENTDESK_STATE_DIR", ""),
		ShutdownGrace: getEnvDuration("AGENTDESK_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.StringVar(&cfg.Server.Mode, "mode", cfg.Server.Mode, "Run mode: http, mcp or both")
	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address")
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "Directory for the task store and run history")
	fs.StringVar(&cfg.Store.Backend, "store", cfg.Store.Backend, "Task store backend: sqlite or file")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format (text, json)")
	fs.IntVar(&cfg.Store.RunLogKeep, "run-log-keep", cfg.Store.RunLogKeep, "Number of recent runs to retain per task")
	fs.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "Grace period when shutting down")
	fs.DurationVar(&cfg.Scheduler.TaskTimeout, "task-timeout", cfg.Scheduler.TaskTimeout, "Maximum duration of a single task execution")
	fs.StringVar(&cfg.Kernel.ProfilePath, "permissions", cfg.Kernel.ProfilePath, "YAML permission profile, reloaded on change")
	fs.StringVar(&cfg.Kernel.PolicyPath, "sandbox-policy", cfg.Kernel.PolicyPath, "Rego module overriding the built-in sandbox policy")
	fs.StringVar(&cfg.Kernel.SandboxDir, "sandbox-dir", cfg.Kernel.SandboxDir, "Desktop directory sandboxed filesystem access is confined to")
	fs.StringVar(&cfg.Kernel.FSMode, "fs-mode", cfg.Kernel.FSMode, "Desktop filesystem: memory or os")
	fs.StringVar(&cfg.Kernel.FSRoot, "fs-root", cfg.Kernel.FSRoot, "Host directory backing the os filesystem")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if !contains(Modes, cfg.Server.Mode) {
		return nil, fmt.Errorf("invalid mode %q (valid: %s)", cfg.Server.Mode, strings.Join(Modes, ", "))
	}
	if !contains(Backends, cfg.Store.Backend) {
		return nil, fmt.Errorf("invalid store backend %q (valid: %s)", cfg.Store.Backend, strings.Join(Backends, ", "))
	}
	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.Kernel.FSMode == "os" && cfg.Kernel.FSRoot == "" {
		cfg.Kernel.FSRoot = filepath.Join(cfg.StateDir, "desktop")
	}
	if cfg.Store.RunLogKeep < 1 {
		cfg.Store.RunLogKeep = defaultRunLogKeep
	}
	if cfg.Scheduler.TaskTimeout <= 0 {
		cfg.Scheduler.TaskTimeout = defaultTaskTimeout
	}
	return cfg, nil
}

// SandboxWorkDir is the host directory sandboxed shell commands run in.
func (c *Config) SandboxWorkDir() string {
	return filepath.Join(c.StateDir, "sandbox")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, appName), nil
}
