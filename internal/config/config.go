package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/screa/d3caf/internal/crypto"
)

// EnvPrefix prefixes environment overrides, e.g. D3CAF_LISTEN
const EnvPrefix = "D3CAF"

// Errors
var (
	ErrNoBytecodeSpecified = errors.New("must specify either --bytecode, --bytecode-file or --bytecode-hash")
	ErrNoFactorySpecified  = errors.New("must specify --factory")
	ErrNoSolverSpecified   = errors.New("must specify --solver")
	ErrNoRequestSpecified  = errors.New("must specify --request")
)

// Config holds the application configuration
type Config struct {
	// Mining
	Workers      int    `mapstructure:"workers"`
	Verbose      bool   `mapstructure:"verbose"`
	LogFile      string `mapstructure:"log-file"`
	LogInterval  int    `mapstructure:"log-interval"` // Logging interval in seconds
	Bytecode     string `mapstructure:"bytecode"`
	BytecodeFile string `mapstructure:"bytecode-file"`
	BytecodeHash string `mapstructure:"bytecode-hash"`
	Factory      string `mapstructure:"factory"`
	Solver       string `mapstructure:"solver"`
	BestSalt     string `mapstructure:"best-salt"`
	Request      string `mapstructure:"request"`
	Submit       bool   `mapstructure:"submit"`

	// Client
	API  string `mapstructure:"api"`
	From string `mapstructure:"from"`

	// Server
	Listen      string        `mapstructure:"listen"`
	DataDir     string        `mapstructure:"data-dir"`
	BlockTime   time.Duration `mapstructure:"block-time"`
	StartHeight uint64        `mapstructure:"start-height"`
	Owner       string        `mapstructure:"owner"`
	DatabaseURL string        `mapstructure:"database-url"`
	CORS        bool          `mapstructure:"cors"`
}

var keys = []string{
	"workers", "verbose", "log-file", "log-interval",
	"bytecode", "bytecode-file", "bytecode-hash", "factory", "solver", "best-salt", "request", "submit",
	"api", "from",
	"listen", "data-dir", "block-time", "start-height", "owner", "database-url", "cors",
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		Workers:     runtime.NumCPU(),
		LogInterval: 5, // Default 5 seconds
		API:         "http://127.0.0.1:8545",
		Listen:      ":8545",
		BlockTime:   12 * time.Second,
		CORS:        true,
	}
}

// Load overlays values from v (bound flags, D3CAF_* environment variables and
// the optional config file) on top of the defaults
func Load(v *viper.Viper, configFile string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about, so bind every key explicitly.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := NewConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ValidateMiner validates the configuration of a mining run
func (c *Config) ValidateMiner() error {
	if c.Request == "" {
		if c.Factory == "" {
			return ErrNoFactorySpecified
		}
		if c.Bytecode == "" && c.BytecodeFile == "" && c.BytecodeHash == "" {
			return ErrNoBytecodeSpecified
		}
	}
	if c.Solver == "" {
		return ErrNoSolverSpecified
	}
	if c.Submit && c.Request == "" {
		return ErrNoRequestSpecified
	}
	return nil
}

// GetTargetDescription returns a human-readable description of the target
func (c *Config) GetTargetDescription() string {
	if c.BestSalt != "" {
		return "beat best salt " + c.BestSalt
	}
	if c.Request != "" {
		return "beat current best of request " + c.Request
	}
	return "lowest address"
}

// FactoryAddress returns the parsed --factory value
func (c *Config) FactoryAddress() (common.Address, error) {
	return crypto.ParseAddress(c.Factory)
}

// SolverAddress returns the parsed --solver value
func (c *Config) SolverAddress() (common.Address, error) {
	return crypto.ParseAddress(c.Solver)
}

// FromAddress returns the sender used for client calls, defaulting to the solver
func (c *Config) FromAddress() (common.Address, error) {
	if c.From == "" {
		return c.SolverAddress()
	}
	return crypto.ParseAddress(c.From)
}

// GetBytecodeHash returns the hash of the code to deploy, hashing the bytecode if needed
func (c *Config) GetBytecodeHash() (common.Hash, error) {
	if c.BytecodeHash != "" {
		return crypto.ParseHash(c.BytecodeHash)
	}
	code, err := c.GetBytecode()
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(crypto.Keccak256(code)), nil
}

// GetBytecode returns the bytecode to use for address calculation
func (c *Config) GetBytecode() ([]byte, error) {
	// Check if bytecode file is specified
	if c.BytecodeFile != "" {
		return readBytecodeFromFile(c.BytecodeFile)
	}

	// Check if bytecode is provided directly
	if c.Bytecode != "" {
		return crypto.HexToBytes(c.Bytecode)
	}

	// This should not happen if validation passes
	return nil, ErrNoBytecodeSpecified
}

// readBytecodeFromFile reads bytecode from a file
func readBytecodeFromFile(filename string) ([]byte, error) {
	// Read file content
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// Convert to string and clean up
	code := strings.TrimSpace(string(content))
	if len(code) > 2 && code[:2] == "0x" {
		code = code[2:]
	}

	// Ensure even length by padding with 0 if necessary
	if len(code)%2 != 0 {
		code = code + "0"
	}

	return hex.DecodeString(code)
}
