// Package config holds povnoded's runtime configuration, parsed with
// go-flags. The
// BLOCKCHAIN_SERVER_LISTEN_ADDRESS environment variable takes precedence
// over the listenaddress flag.
package config

import (
	"os"

	"github.com/jessevdk/go-flags"
)

// ListenAddressEnvKey overrides the listenaddress flag when set and
// non-empty.
const ListenAddressEnvKey = "BLOCKCHAIN_SERVER_LISTEN_ADDRESS"

// Config is povnoded's runtime configuration.
type Config struct {
	MaxDataBytes  int      `long:"maxdatabytes" description:"Maximum total transaction bytes per block" default:"10240"`
	ListenAddress string   `long:"listenaddress" description:"Advertised host:port to accept peer connections on"`
	ConnectPeers  []string `long:"connect" description:"Peer address (host:port) to connect to on startup"`
	LogFile       string   `long:"logfile" description:"Rotated log file path" default:"povnoded.log"`
}

// Default returns a Config carrying only the flag defaults, for callers
// that construct a node programmatically rather than from a command line.
func Default() *Config {
	return &Config{MaxDataBytes: 10_240, LogFile: "povnoded.log"}
}

// Load parses args (typically os.Args[1:]) into a Config and applies the
// environment override.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if addr, ok := os.LookupEnv(ListenAddressEnvKey); ok && addr != "" {
		cfg.ListenAddress = addr
	}
}
