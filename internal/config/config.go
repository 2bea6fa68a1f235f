// Package config loads the process configuration of the clstr-worker
// binary from YAML with CLSTR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

// Network kinds.
const (
	NetworkMemory = "mem"
	NetworkTCP    = "tcp"
	NetworkNATS   = "nats"
)

// Directory kinds.
const (
	DirectoryMemory = "mem"
	DirectoryRedis  = "redis"
	DirectoryNATS   = "nats"
)

type Config struct {
	Log struct {
		// debug | info | warn | error
		Level string `yaml:"level"`
		// text | json
		Format string `yaml:"format"`
	} `yaml:"log"`

	Network struct {
		Kind string `yaml:"kind"`
		TCP  struct {
			// Host is the interface node routers bind on.
			Host        string        `yaml:"host"`
			DialTimeout time.Duration `yaml:"dial_timeout"`
		} `yaml:"tcp"`
		NATS struct {
			URL           string `yaml:"url"`
			SubjectPrefix string `yaml:"subject_prefix"`
		} `yaml:"nats"`
	} `yaml:"network"`

	Directory struct {
		Kind   string        `yaml:"kind"`
		Prefix string        `yaml:"prefix"`
		TTL    time.Duration `yaml:"ttl"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			DB       int    `yaml:"db"`
			Password string `yaml:"password"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		NATS struct {
			URL    string `yaml:"url"`
			Bucket string `yaml:"bucket"`
		} `yaml:"nats"`
	} `yaml:"directory"`

	Worker struct {
		// Instance is the instance id; empty picks a random one.
		Instance         string        `yaml:"instance"`
		Applications     []string      `yaml:"applications"`
		WatchdogInterval time.Duration `yaml:"watchdog_interval"`
		DrainTimeout     time.Duration `yaml:"drain_timeout"`
		CacheSize        int           `yaml:"cache_size"`
		CacheTTL         time.Duration `yaml:"cache_ttl"`
	} `yaml:"worker"`

	Demux struct {
		Address      string        `yaml:"address"`
		Identity     string        `yaml:"identity"`
		PollInterval time.Duration `yaml:"poll_interval"`
		// Embedded runs a demultiplexer inside the worker process.
		Embedded bool `yaml:"embedded"`
	} `yaml:"demux"`

	Ops struct {
		// Addr of the ops HTTP server; empty disables it.
		Addr string `yaml:"addr"`
	} `yaml:"ops"`
}

// Default returns a config for a single process on the in-memory network.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path, applies CLSTR_* overrides and defaults
// and validates the result. An empty path starts from the defaults.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Network.Kind == "" {
		c.Network.Kind = NetworkMemory
	}
	if c.Network.TCP.Host == "" {
		c.Network.TCP.Host = "127.0.0.1"
	}
	if c.Network.TCP.DialTimeout == 0 {
		c.Network.TCP.DialTimeout = 5 * time.Second
	}
	if c.Network.NATS.SubjectPrefix == "" {
		c.Network.NATS.SubjectPrefix = "clstr"
	}
	if c.Directory.Kind == "" {
		c.Directory.Kind = DirectoryMemory
	}
	if c.Directory.Prefix == "" {
		c.Directory.Prefix = "nodes."
	}
	if c.Directory.Redis.Addr == "" {
		c.Directory.Redis.Addr = "localhost:6379"
	}
	if c.Directory.NATS.Bucket == "" {
		c.Directory.NATS.Bucket = "clstr-directory"
	}
	if c.Worker.WatchdogInterval == 0 {
		c.Worker.WatchdogInterval = 5 * time.Second
	}
	if c.Demux.Address == "" && c.Network.Kind == NetworkTCP {
		c.Demux.Address = "127.0.0.1:7400"
	}
}

// Validate reports unknown kinds and unparsable values.
func (c *Config) Validate() error {
	switch c.Network.Kind {
	case NetworkMemory, NetworkTCP, NetworkNATS:
	default:
		return fmt.Errorf("%w: network.kind %q", ErrInvalid, c.Network.Kind)
	}
	switch c.Directory.Kind {
	case DirectoryMemory, DirectoryRedis, DirectoryNATS:
	default:
		return fmt.Errorf("%w: directory.kind %q", ErrInvalid, c.Directory.Kind)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	if c.Worker.WatchdogInterval < 0 {
		return fmt.Errorf("%w: worker.watchdog_interval must not be negative", ErrInvalid)
	}
	if c.Worker.CacheTTL < 0 {
		return fmt.Errorf("%w: worker.cache_ttl must not be negative", ErrInvalid)
	}
	if c.Directory.TTL > 0 && c.Worker.WatchdogInterval >= c.Directory.TTL {
		return fmt.Errorf("%w: worker.watchdog_interval must be shorter than directory.ttl", ErrInvalid)
	}
	return nil
}

func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return l, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	return l, nil
}

// Logger builds the process logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

func (c *Config) applyEnvOverrides() {
	// LOG
	if v, ok := getEnvStr("CLSTR_LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvStr("CLSTR_LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(v)
	}

	// NETWORK
	if v, ok := getEnvStr("CLSTR_NETWORK_KIND"); ok {
		c.Network.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("CLSTR_TCP_HOST"); ok {
		c.Network.TCP.Host = v
	}
	if v, ok := getEnvDur("CLSTR_TCP_DIAL_TIMEOUT"); ok {
		c.Network.TCP.DialTimeout = v
	}
	if v, ok := getEnvStr("CLSTR_NATS_URL"); ok {
		c.Network.NATS.URL = v
		if c.Directory.NATS.URL == "" {
			c.Directory.NATS.URL = v
		}
	}

	// DIRECTORY
	if v, ok := getEnvStr("CLSTR_DIRECTORY_KIND"); ok {
		c.Directory.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvDur("CLSTR_DIRECTORY_TTL"); ok {
		c.Directory.TTL = v
	}
	if v, ok := getEnvStr("CLSTR_REDIS_ADDR"); ok {
		c.Directory.Redis.Addr = v
	}
	if v, ok := getEnvInt("CLSTR_REDIS_DB"); ok {
		c.Directory.Redis.DB = v
	}
	if v, ok := getEnvStr("CLSTR_REDIS_PASSWORD"); ok {
		c.Directory.Redis.Password = v
	}
	if v, ok := getEnvStr("CLSTR_NATS_KV_BUCKET"); ok {
		c.Directory.NATS.Bucket = v
	}

	// WORKER
	if v, ok := getEnvStr("CLSTR_WORKER_INSTANCE"); ok {
		c.Worker.Instance = v
	}
	if v, ok := getEnvCSV("CLSTR_WORKER_APPLICATIONS"); ok {
		c.Worker.Applications = v
	}
	if v, ok := getEnvDur("CLSTR_WATCHDOG_INTERVAL"); ok {
		c.Worker.WatchdogInterval = v
	}
	if v, ok := getEnvDur("CLSTR_DRAIN_TIMEOUT"); ok {
		c.Worker.DrainTimeout = v
	}

	// DEMUX
	if v, ok := getEnvStr("CLSTR_DEMUX_ADDRESS"); ok {
		c.Demux.Address = v
	}
	if v, ok := getEnvStr("CLSTR_DEMUX_IDENTITY"); ok {
		c.Demux.Identity = v
	}
	if v, ok := getEnvBool("CLSTR_DEMUX_EMBEDDED"); ok {
		c.Demux.Embedded = v
	}

	// OPS
	if v, ok := getEnvStr("CLSTR_OPS_ADDR"); ok {
		c.Ops.Addr = v
	}
}
