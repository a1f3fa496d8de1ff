package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Bridge kinds selectable via bridge.kind.
const (
	BridgeKindMCP   = "mcp"
	BridgeKindLocal = "local"
)

// Config captures all tunable settings for the agentassert harness.
type Config struct {
	Runner    RunnerConfig    `yaml:"runner"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RunnerConfig controls the batch test harness.
type RunnerConfig struct {
	// Optional log file; stdout stays clean for the test report.
	LogFile string `yaml:"log_file"`
	// Maximum number of concurrently running sessions (default: 4).
	Concurrency int `yaml:"concurrency"`
}

// BridgeConfig configures how the browser-automation bridge is acquired.
type BridgeConfig struct {
	// Kind selects the bridge backend: "mcp" (stdio subprocess, default)
	// or "local" (in-process Chrome via Rod).
	Kind string `yaml:"kind"`
	// Command and Args launch the MCP server subprocess.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Extra environment for the subprocess, appended to the parent env.
	Env map[string]string `yaml:"env"`
	// How long to wait for the initialize handshake (e.g. "30s").
	HandshakeTimeout string `yaml:"handshake_timeout"`
	// Headless controls Chrome headless mode for the local bridge (default: true).
	Headless *bool `yaml:"headless"`
	// Optional Chrome binary path for the local bridge.
	ChromeBin string `yaml:"chrome_bin"`
	// Navigation timeout for the local bridge (e.g. "15s").
	NavigationTimeout string `yaml:"navigation_timeout"`
	// Directory where the local bridge writes screenshots.
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// ReasoningConfig configures the reasoning-service client and invoker.
// Credentials are never read from YAML; they come from the environment
// (AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT_NAME),
// optionally via a .env file.
type ReasoningConfig struct {
	Endpoint   string `yaml:"-"`
	APIKey     string `yaml:"-"`
	Deployment string `yaml:"-"`

	APIVersion string `yaml:"api_version"`
	// Upper bound on automation round trips within one invocation.
	MaxToolRounds int `yaml:"max_tool_rounds"`
	// Overall bound on one invocation, tool rounds included (e.g. "120s").
	InvokeTimeout string `yaml:"invoke_timeout"`
	// Bound on a single HTTP round trip (e.g. "60s").
	RequestTimeout string `yaml:"request_timeout"`
	MaxTokens      int    `yaml:"max_tokens"`
	// Fixed seed for deterministic evaluation.
	Seed int64 `yaml:"seed"`
}

// TelemetryConfig controls the optional trace exporter and flight recorder.
// Telemetry is fire-and-forget; it never gates a verdict.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TraceDir string `yaml:"trace_dir"`
}

// Environment variable names for reasoning-service credentials.
const (
	EnvAPIKey     = "AZURE_OPENAI_API_KEY"
	EnvEndpoint   = "AZURE_OPENAI_ENDPOINT"
	EnvDeployment = "AZURE_OPENAI_DEPLOYMENT_NAME"
)

// DefaultConfig provides reasonable defaults for local runs.
func DefaultConfig() Config {
	return Config{
		Runner: RunnerConfig{
			Concurrency: 4,
		},
		Bridge: BridgeConfig{
			Kind:              BridgeKindMCP,
			Command:           "npx",
			Args:              []string{"chrome-devtools-mcp@latest", "--isolated=true", "--headless=true"},
			HandshakeTimeout:  "30s",
			NavigationTimeout: "15s",
			ScreenshotDir:     "data/screenshots",
		},
		Reasoning: ReasoningConfig{
			APIVersion:     "2024-02-01",
			MaxToolRounds:  16,
			InvokeTimeout:  "120s",
			RequestTimeout: "60s",
			MaxTokens:      1000,
			Seed:           12345,
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			TraceDir: "data/traces",
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// LoadEnvCredentials loads a .env file when present and reads the
// reasoning-service credentials from the environment.
func (c *Config) LoadEnvCredentials() error {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	c.Reasoning.APIKey = os.Getenv(EnvAPIKey)
	c.Reasoning.Endpoint = os.Getenv(EnvEndpoint)
	c.Reasoning.Deployment = os.Getenv(EnvDeployment)

	var missing []string
	if c.Reasoning.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.Reasoning.Endpoint == "" {
		missing = append(missing, EnvEndpoint)
	}
	if c.Reasoning.Deployment == "" {
		missing = append(missing, EnvDeployment)
	}
	if len(missing) > 0 {
		return fmt.Errorf("environment variables required: %v", missing)
	}
	return nil
}

// Validate ensures required non-credential fields exist so a run fails
// deterministically at startup instead of mid-session.
func (c *Config) Validate() error {
	switch c.Bridge.Kind {
	case BridgeKindMCP:
		if c.Bridge.Command == "" {
			return errors.New("bridge.command is required for the mcp bridge")
		}
	case BridgeKindLocal:
		// Chrome binary is optional; Rod discovers one when unset.
	default:
		return fmt.Errorf("unknown bridge.kind: %q", c.Bridge.Kind)
	}
	if c.Reasoning.APIVersion == "" {
		return errors.New("reasoning.api_version is required")
	}
	if c.Reasoning.MaxToolRounds <= 0 {
		return errors.New("reasoning.max_tool_rounds must be positive")
	}
	if c.Runner.Concurrency <= 0 {
		return errors.New("runner.concurrency must be positive")
	}
	return nil
}

// EnvList renders the subprocess environment additions as KEY=VALUE pairs.
func (b BridgeConfig) EnvList() []string {
	if len(b.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(b.Env))
	for k, v := range b.Env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// GetHandshakeTimeout returns the parsed handshake timeout with a sane default.
func (b BridgeConfig) GetHandshakeTimeout() time.Duration {
	return parseDurationOr(b.HandshakeTimeout, 30*time.Second)
}

// GetNavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BridgeConfig) GetNavigationTimeout() time.Duration {
	return parseDurationOr(b.NavigationTimeout, 15*time.Second)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BridgeConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetInvokeTimeout returns the parsed whole-invocation timeout with a sane default.
func (r ReasoningConfig) GetInvokeTimeout() time.Duration {
	return parseDurationOr(r.InvokeTimeout, 120*time.Second)
}

// GetRequestTimeout returns the parsed per-request timeout with a sane default.
func (r ReasoningConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(r.RequestTimeout, 60*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
