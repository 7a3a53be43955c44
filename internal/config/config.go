// Package config loads lanchat settings from a YAML file.
//
//	logLevel: info
//	network:
//	  discoveryPort: 9999
//	  sessionPort: 3333
//	server:
//	  name: ServerA
//	  pollInterval: 1s
//	  gracePeriod: 2s
//	  gateway: ":8080"
//	  advertise: true
//	client:
//	  name: alice
//	  server: ServerA
//	  broadcastAddr: 255.255.255.255
//	  discoveryTimeout: 1.5s
//
// Durations use time.ParseDuration syntax. Missing fields take the defaults
// returned by Default.
package config

import (
	"os"
	"time"

	"lanchat/internal/client"
	"lanchat/internal/server"
	"lanchat/internal/wire"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// EnvConfigFile names the environment variable holding a default config path.
const EnvConfigFile = "LANCHAT_CONFIG"

// Config is the complete lanchat configuration.
type Config struct {
	LogLevel string        `yaml:"logLevel"`
	Network  NetworkConfig `yaml:"network"`
	Server   ServerConfig  `yaml:"server"`
	Client   ClientConfig  `yaml:"client"`
}

// NetworkConfig holds the well-known ports shared by both sides.
type NetworkConfig struct {
	DiscoveryPort int `yaml:"discoveryPort"`
	SessionPort   int `yaml:"sessionPort"`
}

// ServerConfig configures `lanchat serve`.
type ServerConfig struct {
	Name         string `yaml:"name"`
	Host         string `yaml:"host"`
	PollInterval string `yaml:"pollInterval"`
	GracePeriod  string `yaml:"gracePeriod"`
	Gateway      string `yaml:"gateway"`
	Advertise    bool   `yaml:"advertise"`
}

// ClientConfig configures `lanchat join` and `lanchat discover`.
type ClientConfig struct {
	Name             string `yaml:"name"`
	Server           string `yaml:"server"`
	BroadcastAddr    string `yaml:"broadcastAddr"`
	DiscoveryTimeout string `yaml:"discoveryTimeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Network: NetworkConfig{
			DiscoveryPort: wire.DefaultDiscoveryPort,
			SessionPort:   wire.DefaultSessionPort,
		},
		Server: ServerConfig{
			PollInterval: server.DefaultPollInterval.String(),
			GracePeriod:  server.DefaultGracePeriod.String(),
		},
		Client: ClientConfig{
			BroadcastAddr:    client.DefaultBroadcastAddr,
			DiscoveryTimeout: client.DefaultDiscoveryTimeout.String(),
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s failed", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s failed", path)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validate config %s failed", path)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or the file named by LANCHAT_CONFIG when path is
// empty, or returns the defaults when neither is set.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.Network.DiscoveryPort == 0 {
		c.Network.DiscoveryPort = defaults.Network.DiscoveryPort
	}
	if c.Network.SessionPort == 0 {
		c.Network.SessionPort = defaults.Network.SessionPort
	}
	if c.Server.PollInterval == "" {
		c.Server.PollInterval = defaults.Server.PollInterval
	}
	if c.Server.GracePeriod == "" {
		c.Server.GracePeriod = defaults.Server.GracePeriod
	}
	if c.Client.BroadcastAddr == "" {
		c.Client.BroadcastAddr = defaults.Client.BroadcastAddr
	}
	if c.Client.DiscoveryTimeout == "" {
		c.Client.DiscoveryTimeout = defaults.Client.DiscoveryTimeout
	}
}

// Validate checks ports and durations.
func (c *Config) Validate() error {
	if err := validPort(c.Network.DiscoveryPort); err != nil {
		return errors.Wrap(err, "network.discoveryPort")
	}
	if err := validPort(c.Network.SessionPort); err != nil {
		return errors.Wrap(err, "network.sessionPort")
	}
	for field, value := range map[string]string{
		"server.pollInterval":     c.Server.PollInterval,
		"server.gracePeriod":      c.Server.GracePeriod,
		"client.discoveryTimeout": c.Client.DiscoveryTimeout,
	} {
		if _, err := positiveDuration(value); err != nil {
			return errors.Wrap(err, field)
		}
	}
	return nil
}

// ServerOptions translates the configuration into server options. The
// server name is passed to server.New separately.
func (c *Config) ServerOptions() ([]server.Option, error) {
	poll, err := positiveDuration(c.Server.PollInterval)
	if err != nil {
		return nil, errors.Wrap(err, "server.pollInterval")
	}
	grace, err := positiveDuration(c.Server.GracePeriod)
	if err != nil {
		return nil, errors.Wrap(err, "server.gracePeriod")
	}
	return []server.Option{
		server.WithListenHost(c.Server.Host),
		server.WithDiscoveryPort(c.Network.DiscoveryPort),
		server.WithSessionPort(c.Network.SessionPort),
		server.WithPollInterval(poll),
		server.WithGracePeriod(grace),
		server.WithGatewayAddr(c.Server.Gateway),
		server.WithAdvertise(c.Server.Advertise),
	}, nil
}

// ClientOptions translates the configuration into client options.
func (c *Config) ClientOptions() ([]client.Option, error) {
	timeout, err := positiveDuration(c.Client.DiscoveryTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "client.discoveryTimeout")
	}
	return []client.Option{
		client.WithDiscoveryPort(c.Network.DiscoveryPort),
		client.WithSessionPort(c.Network.SessionPort),
		client.WithBroadcastAddr(c.Client.BroadcastAddr),
		client.WithDiscoveryTimeout(timeout),
	}, nil
}

// Discoverer builds a standalone discovery client from the configuration.
func (c *Config) Discoverer() (*client.Discoverer, error) {
	timeout, err := positiveDuration(c.Client.DiscoveryTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "client.discoveryTimeout")
	}
	d := client.NewDiscoverer()
	d.BroadcastAddr = c.Client.BroadcastAddr
	d.Port = c.Network.DiscoveryPort
	d.Timeout = timeout
	return d, nil
}

func validPort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.Errorf("port %d out of range", port)
	}
	return nil
}

func positiveDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "parse duration %q failed", value)
	}
	if d <= 0 {
		return 0, errors.Errorf("duration %s must be positive", d)
	}
	return d, nil
}
