// Package config parses the engine's startup configuration: the store
// location, the two operator-set consensus parameters (the difficulty
// floor and the coinbase subsidy), and the HTTP listen address. Each
// option is a long-form flag with an environment-variable fallback.
package config

import (
	"fmt"
	"strconv"
	"strings"

	flags "github.com/jessevdk/go-flags"
)

// minBits is the lowest accepted difficulty value; lower integer values
// encode stricter targets than this engine is prepared to grind against.
const minBits uint64 = 0x1e000000

// Config is the engine's process-wide configuration, resolved from
// environment variables (or equivalent CLI flags) at startup.
type Config struct {
	HTTPListen string `long:"listen" env:"HTTP_LISTEN" default:"0.0.0.0:8080" description:"HTTP address to listen on"`
	StorePath  string `long:"store-path" env:"STORE_PATH" default:"chain-lens.db" description:"path to the bbolt database file backing the partitioned store"`

	// BlockchainBits is the 8-hex-char compact difficulty target every
	// accepted block's bits field must equal; this engine does not
	// implement difficulty retargeting.
	BlockchainBits string `long:"blockchain-bits" env:"BLOCKCHAIN_BITS" required:"true" description:"the fixed 8-hex-char compact difficulty target every block must carry"`

	// BlockchainSubsidy is the exact satoshi value a coinbase's single
	// output must carry.
	BlockchainSubsidy uint64 `long:"blockchain-subsidy" env:"BLOCKCHAIN_SUBSIDY" required:"true" description:"the exact coinbase subsidy, in satoshis, every accepted block's coinbase output must carry"`

	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"zap log level: debug, info, warn, error"`
}

// Parse parses args (typically os.Args[1:]) against environment-variable
// defaults and returns the resolved Config.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if len(cfg.BlockchainBits) != 8 {
		return nil, fmt.Errorf("config: blockchain-bits must be 8 hex chars, got %d", len(cfg.BlockchainBits))
	}
	cfg.BlockchainBits = strings.ToLower(cfg.BlockchainBits)
	bits, err := strconv.ParseUint(cfg.BlockchainBits, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("config: blockchain-bits is not valid hex: %w", err)
	}
	if bits < minBits {
		return nil, fmt.Errorf("config: blockchain-bits %s below the %08x floor", cfg.BlockchainBits, minBits)
	}
	return cfg, nil
}
