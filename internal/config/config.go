package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// TEF II Bridge - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Serial     SerialConfig     `yaml:"serial"`
	TEF        TEFConfig        `yaml:"tef"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// SerialConfig describes how to open the datáfono's serial line (§4.2).
type SerialConfig struct {
	PortPath string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

// TEFConfig holds default terminal/cashier identifiers and the §6 `tef.*`
// knobs. The identifiers are loaded and defaulted only; requests carry the
// terminal_id/cashier_id values their caller supplies.
type TEFConfig struct {
	TerminalID       string `yaml:"terminal_id"`
	DefaultCashierID string `yaml:"default_cashier_id"`
	TimeoutMs        int    `yaml:"timeout_ms"`
	MockMode         bool   `yaml:"mock_mode"`
}

type MonitoringConfig struct {
	EnableMetrics  bool `yaml:"enable_metrics"`
	LatencyAlertMs int  `yaml:"latency_alert_ms"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Server
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("BRIDGE_ENV", c.Server.Env)
	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	// Serial
	c.Serial.PortPath = getEnv("SERIAL_PORT", c.Serial.PortPath)
	if v := getEnvInt("SERIAL_BAUD", 0); v > 0 {
		c.Serial.Baud = v
	}
	if v := getEnvInt("SERIAL_DATA_BITS", 0); v > 0 {
		c.Serial.DataBits = v
	}
	if v := getEnvInt("SERIAL_STOP_BITS", 0); v > 0 {
		c.Serial.StopBits = v
	}
	c.Serial.Parity = getEnv("SERIAL_PARITY", c.Serial.Parity)

	// TEF
	c.TEF.TerminalID = getEnv("TEF_TERMINAL_ID", c.TEF.TerminalID)
	c.TEF.DefaultCashierID = getEnv("TEF_DEFAULT_CASHIER_ID", c.TEF.DefaultCashierID)
	if v := getEnvInt("TEF_TIMEOUT_MS", 0); v > 0 {
		c.TEF.TimeoutMs = v
	}
	c.TEF.MockMode = getEnvBool("TEF_MOCK_MODE", c.TEF.MockMode)

	// Monitoring
	c.Monitoring.EnableMetrics = getEnvBool("ENABLE_METRICS", c.Monitoring.EnableMetrics)
	if v := getEnvInt("LATENCY_ALERT_MS", 0); v > 0 {
		c.Monitoring.LatencyAlertMs = v
	}

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}
	if c.Serial.PortPath == "" {
		c.Serial.PortPath = "COM3"
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 9600
	}
	if c.Serial.DataBits == 0 {
		c.Serial.DataBits = 8
	}
	if c.Serial.StopBits == 0 {
		c.Serial.StopBits = 1
	}
	if c.Serial.Parity == "" {
		c.Serial.Parity = "none"
	}
	if c.TEF.TerminalID == "" {
		c.TEF.TerminalID = "00000001"
	}
	if c.TEF.DefaultCashierID == "" {
		c.TEF.DefaultCashierID = "000000000001"
	}
	if c.TEF.TimeoutMs == 0 {
		c.TEF.TimeoutMs = 60000
	}
	if c.Monitoring.LatencyAlertMs == 0 {
		c.Monitoring.LatencyAlertMs = 5000
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}
