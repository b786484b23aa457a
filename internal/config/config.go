package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for portalpilot.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Portal   PortalConfig
	AI       AIConfig
	Agent    AgentConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// PortalConfig describes the remote job-submission portal.
type PortalConfig struct {
	BaseURL string
	UserID  string
	// InsecureSkipVerify turns off TLS certificate checks. Only meant for the
	// portal's self-signed enterprise certificate; never on by default.
	InsecureSkipVerify bool
	RequestTimeout     time.Duration
	PollInterval       time.Duration
	MaxWait            time.Duration
	// ResultsDumpPath, when set, receives a copy of every fetched result page.
	ResultsDumpPath string
}

type AIConfig struct {
	Provider         string
	BaseURL          string
	APIKey           string
	Model            string
	StructuredOutput bool
	InferenceTimeout time.Duration
}

type AgentConfig struct {
	MaxIterations int
	ParseRetries  int
	Temperature   float64
}

// providers are the accepted AI_PROVIDER values.
var providers = []string{"ollama", "vllm", "openai", "anthropic"}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from the environment. Unset or unparsable values fall
// back to their defaults. Database and Redis are optional here; see
// RequireStorage.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PORTALPILOT_PORT", 8080),
			Env:  envString("PORTALPILOT_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Portal: PortalConfig{
			BaseURL:            strings.TrimRight(envString("PORTAL_BASE_URL", "https://launchthenukes.engineering.nyu.edu"), "/"),
			UserID:             os.Getenv("USER_ID"),
			InsecureSkipVerify: envBool("PORTAL_INSECURE_SKIP_VERIFY", false),
			RequestTimeout:     envDuration("PORTAL_REQUEST_TIMEOUT", 30*time.Second),
			PollInterval:       envDuration("PORTAL_POLL_INTERVAL", 2*time.Second),
			MaxWait:            envDuration("PORTAL_MAX_WAIT", 10*time.Minute),
			ResultsDumpPath:    os.Getenv("PORTAL_RESULTS_DUMP_PATH"),
		},
		AI: AIConfig{
			Provider:         envString("AI_PROVIDER", "ollama"),
			BaseURL:          os.Getenv("API_BASE_URL"),
			APIKey:           os.Getenv("API_KEY"),
			Model:            os.Getenv("MODEL_NAME"),
			StructuredOutput: envBool("LLM_STRUCTURED_OUTPUT", true),
			InferenceTimeout: envSeconds("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
		},
		Agent: AgentConfig{
			MaxIterations: envInt("AGENT_MAX_ITERATIONS", 50),
			ParseRetries:  envInt("AGENT_PARSE_RETRIES", 3),
			Temperature:   envFloat("AGENT_TEMPERATURE", 0.2),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validate reports every problem at once so a misconfigured deployment
// can be fixed in one pass.
func (c *Config) validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	p := c.Portal
	check(p.UserID != "", "USER_ID is required")
	check(strings.HasPrefix(p.BaseURL, "http://") || strings.HasPrefix(p.BaseURL, "https://"),
		"PORTAL_BASE_URL must start with http:// or https://, got %q", p.BaseURL)
	check(p.PollInterval > 0, "PORTAL_POLL_INTERVAL must be positive")
	check(p.MaxWait > 0, "PORTAL_MAX_WAIT must be positive")

	ai := c.AI
	check(slices.Contains(providers, ai.Provider),
		"AI_PROVIDER must be one of %s; got %q", strings.Join(providers, ", "), ai.Provider)
	check(!hostedProvider(ai.Provider) || ai.APIKey != "",
		"API_KEY is required when AI_PROVIDER is %s", ai.Provider)
	check(ai.Provider != "vllm" || ai.BaseURL != "", "API_BASE_URL is required when AI_PROVIDER is vllm")

	check(c.Agent.MaxIterations >= 1, "AGENT_MAX_ITERATIONS must be at least 1")
	check(c.Agent.ParseRetries >= 1, "AGENT_PARSE_RETRIES must be at least 1")

	return errors.Join(errs...)
}

func hostedProvider(name string) bool {
	return name == "openai" || name == "anthropic"
}

// RequireStorage checks the settings the history API server cannot run without.
func (c *Config) RequireStorage() error {
	switch {
	case c.Database.URL == "":
		return errors.New("DATABASE_URL is required")
	case c.Redis.URL == "":
		return errors.New("REDIS_URL is required")
	}
	return nil
}

// lookup returns the parsed value of key, or def when the variable is unset
// or does not parse.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func envString(key, def string) string {
	return lookup(key, def, func(s string) (string, error) { return s, nil })
}

func envInt(key string, def int) int { return lookup(key, def, strconv.Atoi) }

func envBool(key string, def bool) bool { return lookup(key, def, strconv.ParseBool) }

func envDuration(key string, def time.Duration) time.Duration {
	return lookup(key, def, time.ParseDuration)
}

func envFloat(key string, def float64) float64 {
	return lookup(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// envSeconds reads a whole number of seconds.
func envSeconds(key string, def time.Duration) time.Duration {
	return lookup(key, def, func(s string) (time.Duration, error) {
		n, err := strconv.Atoi(s)
		return time.Duration(n) * time.Second, err
	})
}
