// Package config provides configuration loading and validation for the SCADA range.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Firewall   FirewallConfig   `yaml:"firewall"`
	Scada      ScadaConfig      `yaml:"scada"`
	Exploit    ExploitConfig    `yaml:"exploit"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Events     EventsConfig     `yaml:"events"`
}

// ServerConfig represents the HTTP listener configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// FirewallConfig represents the simulated firewall and its admin session.
type FirewallConfig struct {
	AdminUsername    string        `yaml:"admin_username"`
	AdminPassword    string        `yaml:"admin_password"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LockoutDuration  time.Duration `yaml:"lockout_duration"`
	DefaultPolicy    string        `yaml:"default_policy"`
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenExpiration  time.Duration `yaml:"token_expiration"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
	RulesFile        string        `yaml:"rules_file,omitempty"`
}

// ScadaConfig configures the device estate. An empty CatalogFile means the built-in catalog.
type ScadaConfig struct {
	CatalogFile string `yaml:"catalog_file,omitempty"`
}

// ExploitConfig holds the per-trial success probabilities.
type ExploitConfig struct {
	DefaultCredentials float64 `yaml:"default_credentials"`
	WeakPassword       float64 `yaml:"weak_password"`
	ExposedInterface   float64 `yaml:"exposed_interface"`
	Scada              float64 `yaml:"scada"`
}

// MonitoringConfig represents monitoring configuration.
type MonitoringConfig struct {
	RateLimitEnabled bool          `yaml:"rate_limit_enabled"`
	RateLimitWindow  time.Duration `yaml:"rate_limit_window"`
	RateLimitMax     int           `yaml:"rate_limit_max"`
	LogCapacity      int           `yaml:"log_capacity"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path,omitempty"`
}

// EventsConfig configures the optional NATS sink for state-change notifications.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// Load loads configuration from a YAML file and environment variables.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML config bytes, applies environment overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	expandedData := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated configuration built only from defaults and the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		// env overrides produced something invalid; fall back to pure defaults
		cfg = &Config{}
		_ = cfg.Validate()
	}
	return cfg
}

// loadFromEnv applies SCADARANGE_* overrides.
func (c *Config) loadFromEnv() {
	c.Server.Addr = GetEnv("SCADARANGE_ADDR", c.Server.Addr)
	if v := os.Getenv("SCADARANGE_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	c.Firewall.AdminUsername = GetEnv("SCADARANGE_ADMIN_USERNAME", c.Firewall.AdminUsername)
	c.Firewall.AdminPassword = GetEnv("SCADARANGE_ADMIN_PASSWORD", c.Firewall.AdminPassword)
	c.Firewall.JWTSecret = GetEnv("SCADARANGE_JWT_SECRET", c.Firewall.JWTSecret)
	c.Firewall.DefaultPolicy = GetEnv("SCADARANGE_DEFAULT_POLICY", c.Firewall.DefaultPolicy)
	c.Firewall.RulesFile = GetEnv("SCADARANGE_RULES_FILE", c.Firewall.RulesFile)
	c.Scada.CatalogFile = GetEnv("SCADARANGE_CATALOG_FILE", c.Scada.CatalogFile)
	if v := os.Getenv("SCADARANGE_MAX_LOGIN_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Firewall.MaxLoginAttempts = n
		}
	}
	c.Firewall.LockoutDuration = GetEnvDuration("SCADARANGE_LOCKOUT_DURATION", c.Firewall.LockoutDuration)

	c.Logging.Level = GetEnv("SCADARANGE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetEnv("SCADARANGE_LOG_FORMAT", c.Logging.Format)

	c.Events.NATSURL = GetEnv("SCADARANGE_NATS_URL", c.Events.NATSURL)
}

// Validate fills defaults and rejects values the range cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Firewall.AdminUsername == "" {
		c.Firewall.AdminUsername = "admin"
	}
	if c.Firewall.AdminPassword == "" {
		// weak on purpose: guessing it is part of the exercise
		c.Firewall.AdminPassword = "admin123"
	}
	if c.Firewall.MaxLoginAttempts == 0 {
		c.Firewall.MaxLoginAttempts = 5
	}
	if c.Firewall.MaxLoginAttempts < 0 {
		return fmt.Errorf("firewall.max_login_attempts must be positive, got %d", c.Firewall.MaxLoginAttempts)
	}
	if c.Firewall.LockoutDuration == 0 {
		c.Firewall.LockoutDuration = 300 * time.Second
	}
	if c.Firewall.DefaultPolicy == "" {
		c.Firewall.DefaultPolicy = "deny"
	}
	c.Firewall.DefaultPolicy = strings.ToLower(c.Firewall.DefaultPolicy)
	if c.Firewall.DefaultPolicy != "allow" && c.Firewall.DefaultPolicy != "deny" {
		return fmt.Errorf("firewall.default_policy must be allow or deny, got %q", c.Firewall.DefaultPolicy)
	}
	if c.Firewall.JWTSecret == "" {
		c.Firewall.JWTSecret = "default-dev-secret-change-in-production"
	}
	if c.Firewall.TokenExpiration == 0 {
		c.Firewall.TokenExpiration = 1 * time.Hour
	}
	if c.Firewall.BcryptCost == 0 {
		c.Firewall.BcryptCost = 10
	}

	if c.Exploit == (ExploitConfig{}) {
		c.Exploit = ExploitConfig{
			DefaultCredentials: 0.3,
			WeakPassword:       0.4,
			ExposedInterface:   0.5,
			Scada:              0.6,
		}
	}
	for name, p := range map[string]float64{
		"default_credentials": c.Exploit.DefaultCredentials,
		"weak_password":       c.Exploit.WeakPassword,
		"exposed_interface":   c.Exploit.ExposedInterface,
		"scada":               c.Exploit.Scada,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("exploit.%s must be within [0,1], got %v", name, p)
		}
	}

	if c.Monitoring.RateLimitWindow == 0 {
		c.Monitoring.RateLimitWindow = 1 * time.Minute
	}
	if c.Monitoring.RateLimitMax == 0 {
		c.Monitoring.RateLimitMax = 600
	}
	if c.Monitoring.LogCapacity == 0 {
		c.Monitoring.LogCapacity = 1000
	}
	if c.Monitoring.LogCapacity < 0 {
		return errors.New("monitoring.log_capacity must be positive")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Events.Subject == "" {
		c.Events.Subject = "scadarange.events"
	}

	return nil
}

// GetEnv returns environment variable value or default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// GetEnvDuration returns the duration for key, or defaultValue if unset/invalid.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
