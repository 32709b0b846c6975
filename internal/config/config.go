// Package config manages goswitch daemon configuration using koanf/v2.
//
// Supports YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// maxPorts is the number of physical switch ports.
const maxPorts = 4

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete goswitch configuration.
type Config struct {
	Admin      AdminConfig      `koanf:"admin"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
	Controller ControllerConfig `koanf:"controller"`
	Switch     SwitchConfig     `koanf:"switch"`
}

// AdminConfig holds the admin HTTP API configuration.
type AdminConfig struct {
	// Addr is the admin API listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ControllerConfig holds the OpenFlow controller channel configuration.
type ControllerConfig struct {
	// Addr is the controller address (host:port). The standard OpenFlow
	// listener port is 6633.
	Addr string `koanf:"addr"`

	// SendBuf is the transport send-window size in bytes. PACKET_IN
	// messages are dropped while the window cannot take them.
	SendBuf int `koanf:"send_buf"`

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// PortConfig describes one physical switch port.
type PortConfig struct {
	// Interface is the host network interface backing the port.
	Interface string `koanf:"interface"`

	// Enabled marks the port as part of the OpenFlow datapath.
	Enabled bool `koanf:"enabled"`
}

// DescConfig is the switch identity reported in DESC stats replies.
type DescConfig struct {
	Manufacturer string `koanf:"manufacturer"`
	Hardware     string `koanf:"hardware"`
	Serial       string `koanf:"serial"`
	Datapath     string `koanf:"datapath"`
}

// SwitchConfig holds the datapath identity and port provisioning.
type SwitchConfig struct {
	// MAC is the switch MAC address; the datapath id is derived from it.
	MAC string `koanf:"mac"`

	// FailMode selects the disconnected behavior: "secure" drops all
	// data-plane traffic, "standalone" keeps forwarding on the
	// installed table.
	FailMode string `koanf:"fail_mode"`

	// Ports provisions up to four physical ports.
	Ports []PortConfig `koanf:"ports"`

	// Description identifies the switch to controllers.
	Description DescConfig `koanf:"description"`
}

// ParseMAC returns the configured MAC address as six bytes.
func (sc SwitchConfig) ParseMAC() ([6]byte, error) {
	var mac [6]byte
	hw, err := net.ParseMAC(sc.MAC)
	if err != nil {
		return mac, fmt.Errorf("parse switch mac %q: %w", sc.MAC, err)
	}
	if len(hw) != 6 {
		return mac, fmt.Errorf("switch mac %q: %w", sc.MAC, ErrInvalidMAC)
	}
	copy(mac[:], hw)
	return mac, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// The controller address defaults to the standard OpenFlow listener port
// on localhost; fail mode defaults to secure, the conservative choice
// for a switch that should not forward unsupervised.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Controller: ControllerConfig{
			Addr:        "127.0.0.1:6633",
			SendBuf:     16 * 1024,
			DialTimeout: 5 * time.Second,
		},
		Switch: SwitchConfig{
			MAC:      "02:00:00:00:00:01",
			FailMode: "secure",
			Description: DescConfig{
				Manufacturer: "goswitch",
				Hardware:     "soft-datapath",
				Serial:       "none",
				Datapath:     "goswitch OpenFlow 1.0 datapath",
			},
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for goswitch configuration.
// Variables are named GOSWITCH_<section>_<key>, e.g., GOSWITCH_ADMIN_ADDR.
const envPrefix = "GOSWITCH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOSWITCH_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOSWITCH_ADMIN_ADDR       -> admin.addr
//	GOSWITCH_METRICS_ADDR     -> metrics.addr
//	GOSWITCH_LOG_LEVEL        -> log.level
//	GOSWITCH_CONTROLLER_ADDR  -> controller.addr
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// GOSWITCH_ADMIN_ADDR -> admin.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOSWITCH_ADMIN_ADDR -> admin.addr.
// Strips the GOSWITCH_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":                      defaults.Admin.Addr,
		"metrics.addr":                    defaults.Metrics.Addr,
		"metrics.path":                    defaults.Metrics.Path,
		"log.level":                       defaults.Log.Level,
		"log.format":                      defaults.Log.Format,
		"controller.addr":                 defaults.Controller.Addr,
		"controller.send_buf":             defaults.Controller.SendBuf,
		"controller.dial_timeout":         defaults.Controller.DialTimeout.String(),
		"switch.mac":                      defaults.Switch.MAC,
		"switch.fail_mode":                defaults.Switch.FailMode,
		"switch.description.manufacturer": defaults.Switch.Description.Manufacturer,
		"switch.description.hardware":     defaults.Switch.Description.Hardware,
		"switch.description.serial":       defaults.Switch.Description.Serial,
		"switch.description.datapath":     defaults.Switch.Description.Datapath,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin API listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrEmptyControllerAddr indicates the controller address is empty.
	ErrEmptyControllerAddr = errors.New("controller.addr must not be empty")

	// ErrInvalidSendBuf indicates a non-positive controller send buffer.
	ErrInvalidSendBuf = errors.New("controller.send_buf must be > 0")

	// ErrInvalidMAC indicates the switch MAC is not a 48-bit address.
	ErrInvalidMAC = errors.New("switch.mac must be a 48-bit MAC address")

	// ErrInvalidFailMode indicates an unrecognized fail mode.
	ErrInvalidFailMode = errors.New("switch.fail_mode must be secure or standalone")

	// ErrTooManyPorts indicates more ports than the datapath supports.
	ErrTooManyPorts = errors.New("switch.ports supports at most 4 entries")

	// ErrNoEnabledPorts indicates no port is part of the datapath.
	ErrNoEnabledPorts = errors.New("switch.ports must enable at least one port")

	// ErrDuplicateInterface indicates two ports share an interface.
	ErrDuplicateInterface = errors.New("duplicate port interface")

	// ErrMissingInterface indicates an enabled port with no interface.
	ErrMissingInterface = errors.New("enabled port needs an interface")
)

// ValidFailModes lists the recognized fail mode strings.
var ValidFailModes = map[string]bool{
	"secure":     true,
	"standalone": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Controller.Addr == "" {
		return ErrEmptyControllerAddr
	}

	if cfg.Controller.SendBuf <= 0 {
		return ErrInvalidSendBuf
	}

	if _, err := cfg.Switch.ParseMAC(); err != nil {
		return err
	}

	if !ValidFailModes[cfg.Switch.FailMode] {
		return fmt.Errorf("switch.fail_mode %q: %w", cfg.Switch.FailMode, ErrInvalidFailMode)
	}

	return validatePorts(cfg.Switch.Ports)
}

// validatePorts checks each port entry for correctness.
func validatePorts(ports []PortConfig) error {
	if len(ports) > maxPorts {
		return fmt.Errorf("%d ports: %w", len(ports), ErrTooManyPorts)
	}

	enabled := 0
	seen := make(map[string]struct{}, len(ports))
	for i, p := range ports {
		if !p.Enabled {
			continue
		}
		enabled++
		if p.Interface == "" {
			return fmt.Errorf("ports[%d]: %w", i, ErrMissingInterface)
		}
		if _, dup := seen[p.Interface]; dup {
			return fmt.Errorf("ports[%d] interface %q: %w", i, p.Interface, ErrDuplicateInterface)
		}
		seen[p.Interface] = struct{}{}
	}

	if enabled == 0 {
		return ErrNoEnabledPorts
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
