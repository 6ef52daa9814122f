// Package config loads the YAML runtime configuration for the car and fob
// binaries and the host-side tools, in the style of the teacher's
// minter/internal/config package: a strict (KnownFields) yaml.v3 decoder,
// config-relative path resolution, and small validate methods per mode.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeviceConfig is the runtime configuration shared by cmd/car and cmd/fob:
// where their persistent-secret image lives and how their two serial
// links (board-to-board, and host) are reached.
type DeviceConfig struct {
	Store  StoreConfig `yaml:"store"`
	Board  LinkConfig  `yaml:"board_link"`
	Host   LinkConfig  `yaml:"host_link"`
	// Peer is a fob-only link to the other fob in a pairing exchange
	// (spec.md §4.6 runs over a dedicated wire distinct from both the
	// board and host links). Car configs leave this unset.
	Peer LinkConfig `yaml:"peer_link"`
	// ButtonAddr, if set, is a TCP address the fob listens on for simulated
	// button-press edges (any number of connections, each byte received
	// sets the debounced edge latch) — there is no GPIO in this host-process
	// simulation of the fob's hardware button.
	ButtonAddr string    `yaml:"button_addr"`
	Log        LogConfig `yaml:"log"`
}

// StoreConfig names the provisioned persistent-secret image file this
// device loads at boot (produced by cmd/provision).
type StoreConfig struct {
	ImageFile string `yaml:"image_file"`
}

// LinkConfig describes one of a device's two serial links. Mode is either
// "listen" (accept one incoming TCP connection, standing in for the
// board-to-board UART a car waits on) or "dial" (connect out).
type LinkConfig struct {
	Mode        string `yaml:"mode"`
	Address     string `yaml:"address"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

// LogConfig is decoded from the config file but not read by any cmd/*
// binary; they set up slog from their -v and -log-format flags instead.
type LogConfig struct {
	Verbose bool   `yaml:"verbose"`
	Format  string `yaml:"format"`
}

// Load reads and validates a DeviceConfig from path.
func Load(path string) (*DeviceConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg DeviceConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *DeviceConfig) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	c.Store.ImageFile = resolvePath(dir, c.Store.ImageFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func (c *DeviceConfig) Validate() error {
	if strings.TrimSpace(c.Store.ImageFile) == "" {
		return fmt.Errorf("config.store.image_file is required")
	}
	if err := c.Board.validate("board_link"); err != nil {
		return err
	}
	if err := c.Host.validate("host_link"); err != nil {
		return err
	}
	if strings.TrimSpace(c.Peer.Mode) != "" {
		if err := c.Peer.validate("peer_link"); err != nil {
			return err
		}
	}
	return nil
}

func (l *LinkConfig) validate(field string) error {
	switch l.Mode {
	case "listen", "dial":
	default:
		return fmt.Errorf("config.%s.mode must be \"listen\" or \"dial\", got %q", field, l.Mode)
	}
	if strings.TrimSpace(l.Address) == "" {
		return fmt.Errorf("config.%s.address is required", field)
	}
	if l.TimeoutMS <= 0 {
		return fmt.Errorf("config.%s.timeout_ms must be > 0", field)
	}
	return nil
}

// HostToolConfig is the smaller configuration shared by the host-side
// peers that talk to a device (pairtool, enabletool, unlocktool): the link
// they speak on, plus an optional key file path that none of them
// currently reads. packagetool takes its inputs from flags only.
type HostToolConfig struct {
	Link    LinkConfig `yaml:"link"`
	KeyFile string     `yaml:"key_file"`
	Log     LogConfig  `yaml:"log"`
}

func LoadHostTool(path string) (*HostToolConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	var cfg HostToolConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	dir := filepath.Dir(path)
	cfg.KeyFile = resolvePath(dir, cfg.KeyFile)
	if err := cfg.Link.validate("link"); err != nil {
		return nil, err
	}
	return &cfg, nil
}
