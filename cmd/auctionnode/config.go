package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	auctionnet "github.com/cjmont/p2p-auction-th"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for one auction node.
type Config struct {
	// ClientID is this node's participant identifier.
	// It also offsets the control-surface port,
	// so several nodes can run on one host.
	ClientID int `yaml:"client_id" validate:"required,min=1"`

	// Topic is the rendezvous string shared by cooperating nodes.
	Topic string `yaml:"topic"`

	// ListenAddr is the UDP address the overlay binds to.
	// Validated by resolving it, not by tag:
	// the default "0.0.0.0:0" uses port 0 to pick an ephemeral port,
	// which the hostname_port validator rejects.
	ListenAddr string `yaml:"listen_addr"`

	// Seeds are overlay addresses of known peers,
	// dialed once at startup.
	Seeds []string `yaml:"seeds" validate:"dive,hostname_port"`

	// ControlBasePort plus ClientID is the control-surface port.
	ControlBasePort int `yaml:"control_base_port" validate:"min=0,max=65000"`

	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

func defaultConfig() Config {
	return Config{
		Topic:           auctionnet.DefaultTopic,
		ListenAddr:      "0.0.0.0:0",
		ControlBasePort: 3000,
		LogLevel:        "info",
	}
}

// LoadConfig reads and validates the configuration file at path.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Topic == "" {
		cfg.Topic = auctionnet.DefaultTopic
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := net.ResolveUDPAddr("udp", cfg.ListenAddr); err != nil {
		return cfg, fmt.Errorf("invalid listen_addr %q: %w", cfg.ListenAddr, err)
	}

	return cfg, nil
}

// ControlAddr derives this node's control-surface bind address.
func (c Config) ControlAddr() string {
	return ":" + strconv.Itoa(c.ControlBasePort+c.ClientID)
}
