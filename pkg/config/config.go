package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MinComplexity = 1
	MaxComplexity = 10
)

var (
	ErrInvalidComplexity = errors.New("complexity must be an integer in [1, 10]")
	ErrInvalidAddr       = errors.New("invalid address")
	ErrInvalidValue      = errors.New("invalid value")
)

type Config struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	Complexity      int           `yaml:"complexity"`
	ResponsesFile   string        `yaml:"responses_file"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownWait    time.Duration `yaml:"shutdown_wait"`
	SolutionTimeout time.Duration `yaml:"solution_timeout"`
	MaxConns        int           `yaml:"max_conns"`
	AcceptRate      float64       `yaml:"accept_rate"`
	AcceptBurst     int           `yaml:"accept_burst"`
	AdminAddr       string        `yaml:"admin_addr"`
}

type ClientConfig struct {
	ServerAddr      string        `yaml:"server_addr"`
	LogLevel        string        `yaml:"log_level"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	MaxResponseSize uint64        `yaml:"max_response_size"`
}

func Default() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            "4444",
		Complexity:      4,
		LogLevel:        "info",
		ShutdownWait:    5 * time.Second,
		SolutionTimeout: 30 * time.Second,
	}
}

func DefaultClient() ClientConfig {
	return ClientConfig{
		ServerAddr:      "127.0.0.1:4444",
		LogLevel:        "info",
		DialTimeout:     10 * time.Second,
		MaxResponseSize: 1 << 20,
	}
}

func (c Config) ListenAddr() string { return net.JoinHostPort(c.Host, c.Port) }

// Load layers defaults, the optional YAML file at path and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := readYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClient()
	if err := readYAML(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Host, "HOST")
	setString(&c.Port, "PORT")
	setString(&c.ResponsesFile, "RESPONSES_FILE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.AdminAddr, "ADMIN_ADDR")
	if v := os.Getenv("POW_COMPLEXITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POW_COMPLEXITY=%q: %w", v, ErrInvalidComplexity)
		}
		c.Complexity = n
	}
	return errors.Join(
		setDuration(&c.ShutdownWait, "SHUTDOWN_WAIT"),
		setDuration(&c.SolutionTimeout, "SOLUTION_TIMEOUT"),
		setInt(&c.MaxConns, "MAX_CONNS"),
		setFloat(&c.AcceptRate, "ACCEPT_RATE"),
		setInt(&c.AcceptBurst, "ACCEPT_BURST"),
	)
}

func (c *ClientConfig) applyEnv() error {
	setString(&c.ServerAddr, "SERVER_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	err := setDuration(&c.DialTimeout, "DIAL_TIMEOUT")
	if v := os.Getenv("MAX_RESPONSE_SIZE"); v != "" {
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			return errors.Join(err, fmt.Errorf("MAX_RESPONSE_SIZE=%q: %w", v, ErrInvalidValue))
		}
		c.MaxResponseSize = n
	}
	return err
}

func (c Config) Validate() error {
	if c.Complexity < MinComplexity || c.Complexity > MaxComplexity {
		return fmt.Errorf("%w: got %d", ErrInvalidComplexity, c.Complexity)
	}
	if err := validateAddr(c.ListenAddr()); err != nil {
		return err
	}
	if c.AdminAddr != "" {
		if err := validateAddr(c.AdminAddr); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}
	if c.MaxConns < 0 || c.AcceptRate < 0 || c.AcceptBurst < 0 {
		return fmt.Errorf("%w: admission limits must not be negative", ErrInvalidValue)
	}
	if c.ShutdownWait < 0 || c.SolutionTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidValue)
	}
	return nil
}

func (c ClientConfig) Validate() error {
	if err := validateAddr(c.ServerAddr); err != nil {
		return err
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("%w: dial timeout must not be negative", ErrInvalidValue)
	}
	return nil
}

func validateAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddr, addr, err)
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || (n == 0 && port != "0") {
		return fmt.Errorf("%w %q: bad port", ErrInvalidAddr, addr)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s=%q: %w", key, v, ErrInvalidValue)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s=%q: %w", key, v, ErrInvalidValue)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s=%q: %w", key, v, ErrInvalidValue)
	}
	*dst = f
	return nil
}
