// Package config holds the connection settings and the protocol constants shared by the
// client, the server and the command line tools.
package config

import (
	"bytes"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPort = "1935"
const DefaultTLSPort = "2099"

const BuffioSize = 1024 * 64

const App = "app"
const DefaultClientWindowSize uint32 = 2500000
const DefaultChunkSize uint32 = 128
const MaxChunkSize uint32 = 0x7FFFFFFF

const FlashVersion string = "WIN 11,1,0,0"
const FlashMediaServerVersion string = "FMS/3,5,7,7009"

const Capabilities int = 239

const Mode int = 1

// Config holds everything needed to open a connection. Zero fields take the defaults
// applied by Load and Parse.
type Config struct {
	Address            string        `yaml:"address"`
	TLS                bool          `yaml:"tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	App                string        `yaml:"app"`
	FlashVersion       string        `yaml:"flash_version"`
	SwfURL             string        `yaml:"swf_url"`
	PageURL            string        `yaml:"page_url"`
	ChunkSize          uint32        `yaml:"chunk_size"`
	WindowAckSize      uint32        `yaml:"window_ack_size"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	InvokeTimeout      time.Duration `yaml:"invoke_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
	Debug              bool          `yaml:"debug"`
}

// Default returns a configuration with every default applied and no address.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults applies explicit default values to unset fields.
func (c *Config) setDefaults() {
	if c.App == "" {
		c.App = App
	}
	if c.FlashVersion == "" {
		c.FlashVersion = FlashVersion
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.WindowAckSize == 0 {
		c.WindowAckSize = DefaultClientWindowSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.InvokeTimeout == 0 {
		c.InvokeTimeout = 30 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = BuffioSize
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.ChunkSize > MaxChunkSize {
		return errors.Errorf("config: chunk_size %d is above %d", c.ChunkSize, MaxChunkSize)
	}
	if c.DialTimeout < 0 || c.InvokeTimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	if c.BufferSize < 0 {
		return errors.Errorf("config: buffer_size %d is negative", c.BufferSize)
	}
	if c.Address != "" {
		if _, _, err := net.SplitHostPort(c.HostPort()); err != nil {
			return errors.Wrapf(err, "config: address %q", c.Address)
		}
	}
	return nil
}

// HostPort returns Address with the default port for the transport added when it has
// none.
func (c *Config) HostPort() string {
	if _, _, err := net.SplitHostPort(c.Address); err == nil {
		return c.Address
	}
	port := DefaultPort
	if c.TLS {
		port = DefaultTLSPort
	}
	return net.JoinHostPort(c.Address, port)
}

// TCURL returns the tcUrl sent in the connect command.
func (c *Config) TCURL() string {
	scheme := "rtmp"
	if c.TLS {
		scheme = "rtmps"
	}
	return scheme + "://" + c.HostPort() + "/" + c.App
}
