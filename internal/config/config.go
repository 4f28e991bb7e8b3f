// Package config provides configuration for the agent proxy.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// SDK backends.
const (
	BackendClaudeCLI = "claude-cli"
	BackendAnthropic = "anthropic"
	BackendMock      = "mock"
)

// Audit backends.
const (
	AuditNone   = "none"
	AuditSQLite = "sqlite"
	AuditNeo4j  = "neo4j"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "AGENTPROXY_MODE"
	// ModeMock forces the mock SDK backend.
	ModeMock = "MOCK"
)

// Config holds the agent proxy configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Logging
	LogLevel  string
	LogFormat string

	// SDK settings
	SDKBackend      string
	ClaudeCLIPath   string
	AnthropicAPIKey string
	AnthropicURL    string
	Defaults        domain.SessionConfig

	// Session lifecycle
	MaxConcurrentStreams int
	IdleTimeout          time.Duration
	SweepSchedule        string

	// Audit log
	AuditBackend   string
	AuditQueueSize int
	DatabaseURL    string
	Neo4jURI       string
	Neo4jUser      string
	Neo4jPassword  string
	Neo4jDatabase  string

	// Flow bridge
	FlowAccessURL      string
	FlowNetwork        string
	FlowDefaultAddress string
	FlowTimeout        time.Duration

	// Admission policy
	PolicyFile string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8080),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
		SDKBackend:           getEnv("SDK_BACKEND", BackendClaudeCLI),
		ClaudeCLIPath:        getEnv("CLAUDE_CLI_PATH", "claude"),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicURL:         getEnv("ANTHROPIC_BASE_URL", ""),
		MaxConcurrentStreams: getEnvInt("MAX_CONCURRENT_STREAMS", 0),
		IdleTimeout:          time.Duration(getEnvInt("SESSION_IDLE_TIMEOUT_MS", 0)) * time.Millisecond,
		SweepSchedule:        getEnv("SWEEP_SCHEDULE", ""),
		AuditBackend:         getEnv("AUDIT_BACKEND", AuditNone),
		AuditQueueSize:       getEnvInt("AUDIT_QUEUE_SIZE", 256),
		DatabaseURL:          getEnv("DATABASE_URL", "file:agentproxy.db?cache=shared&mode=rwc"),
		Neo4jURI:             getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:            getEnv("NEO4J_USER", ""),
		Neo4jPassword:        getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:        getEnv("NEO4J_DATABASE", "neo4j"),
		FlowAccessURL:        getEnv("FLOW_ACCESS_URL", "https://rest-testnet.onflow.org"),
		FlowNetwork:          getEnv("FLOW_NETWORK", "testnet"),
		FlowDefaultAddress:   getEnv("FLOW_DEFAULT_ADDRESS", "0x36395f9dde50ea27"),
		FlowTimeout:          time.Duration(getEnvInt("FLOW_TIMEOUT_MS", 5000)) * time.Millisecond,
		PolicyFile:           getEnv("POLICY_FILE", ""),
		Defaults: domain.SessionConfig{
			Model:        getEnv("DEFAULT_MODEL", "claude-sonnet-4-5"),
			Temperature:  getEnvFloatPtr("DEFAULT_TEMPERATURE"),
			SystemPrompt: getEnv("DEFAULT_SYSTEM_PROMPT", ""),
			MaxTokens:    getEnvIntPtr("DEFAULT_MAX_TOKENS"),
			AllowedTools: getEnvList("DEFAULT_ALLOWED_TOOLS"),
			MaxTurns:     getEnvInt("DEFAULT_MAX_TURNS", 0),
		},
	}
	if os.Getenv(EnvMode) == ModeMock {
		cfg.SDKBackend = BackendMock
	}
	return cfg
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d out of range", c.HTTPPort))
	}
	switch c.SDKBackend {
	case BackendClaudeCLI, BackendAnthropic, BackendMock:
	default:
		errs = append(errs, fmt.Errorf("unknown SDK_BACKEND %q", c.SDKBackend))
	}
	switch c.AuditBackend {
	case AuditNone, AuditSQLite, AuditNeo4j:
	default:
		errs = append(errs, fmt.Errorf("unknown AUDIT_BACKEND %q", c.AuditBackend))
	}
	if c.MaxConcurrentStreams < 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_STREAMS must not be negative"))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT_MS must not be negative"))
	}
	if c.SweepSchedule != "" && c.IdleTimeout == 0 {
		errs = append(errs, errors.New("SWEEP_SCHEDULE requires SESSION_IDLE_TIMEOUT_MS"))
	}
	if c.FlowTimeout <= 0 {
		errs = append(errs, errors.New("FLOW_TIMEOUT_MS must be positive"))
	}
	if err := c.Defaults.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("default session config: %w", err))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvIntPtr(key string) *int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return &intVal
		}
	}
	return nil
}

func getEnvFloatPtr(key string) *float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return &f
		}
	}
	return nil
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
