// config.go - Daemon configuration: a JSON file overridden by flags.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"anoncoin/internal/ledger"
	"anoncoin/internal/netparams"
	"anoncoin/internal/sigma"
	"anoncoin/internal/spark"
)

const defaultConfigFile = "anoncoind.json"

// Config represents the daemon configuration
type Config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit" json:"-"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to the JSON configuration file" json:"-"`

	// Storage and transport
	DataDir string `long:"datadir" description:"Directory holding the block store" json:"data_dir"`
	DBFile  string `long:"dbfile" description:"Block store file name inside datadir" json:"db_file"`
	Listen  string `long:"listen" description:"HTTP listen address" json:"listen"`

	// Logging
	LogLevel       string `long:"debuglevel" description:"Level for all subsystems {trace, debug, info, warn, error, critical}" json:"log_level"`
	LogFile        string `long:"logfile" description:"Log file path, empty to log to stdout only" json:"log_file"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Log file size in KB before it is rotated" json:"max_log_file_size"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Rotated log files to keep" json:"max_log_files"`

	// Audit
	EnableAudit  bool   `long:"audit" description:"Record rejections and reorgs in the audit log" json:"enable_audit"`
	AuditLogPath string `long:"auditlog" description:"Audit log path" json:"audit_log_path"`

	// Consensus
	Regtest                bool  `long:"regtest" description:"Use small proof parameters and group sizes for local testing" json:"regtest"`
	MaxSpendInputsPerBlock int   `long:"maxspendinputs" description:"Spend inputs allowed per block" json:"max_spend_inputs_per_block"`
	MaxSpendValuePerBlock  int64 `long:"maxspendvalue" description:"Sigma value in base units allowed per block" json:"max_spend_value_per_block"`
	MaxMintsPerBlock       int   `long:"maxmints" description:"Coins a block may add to one pool" json:"max_mints_per_block"`
	SigmaCoinsPerGroup     int   `long:"sigmagroupsize" description:"Coins per Sigma anonymity set" json:"sigma_coins_per_group"`
	SparkCoinsPerGroup     int   `long:"sparkgroupsize" description:"Coins per Spark cover set" json:"spark_coins_per_group"`

	// Performance
	MaxConcurrency int `long:"workers" description:"Parallel proof verifications, 0 for one per CPU" json:"max_concurrency"`
	TimeoutSeconds int `long:"timeout" description:"HTTP read and write timeout in seconds" json:"timeout_seconds"`
	EventBuffer    int `long:"eventbuffer" description:"Recent events kept for /events" json:"event_buffer"`

	// Security
	RateLimit float64 `long:"ratelimit" description:"Submissions per second allowed per client" json:"rate_limit"`
	RateBurst int     `long:"rateburst" description:"Submission burst allowed per client" json:"rate_burst"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	limits := ledger.DefaultLimits()
	return &Config{
		ConfigFile:             defaultConfigFile,
		DataDir:                "data",
		DBFile:                 "ledger.db",
		Listen:                 "127.0.0.1:8335",
		LogLevel:               "info",
		LogFile:                "logs/anoncoind.log",
		MaxLogFileSize:         10 * 1024,
		MaxLogFiles:            3,
		EnableAudit:            true,
		AuditLogPath:           "logs/audit.log",
		MaxSpendInputsPerBlock: limits.MaxSpendInputsPerBlock,
		MaxSpendValuePerBlock:  limits.MaxSpendValuePerBlock,
		MaxMintsPerBlock:       limits.MaxMintsPerBlock,
		SigmaCoinsPerGroup:     limits.SigmaCoinsPerGroup,
		SparkCoinsPerGroup:     limits.SparkCoinsPerGroup,
		TimeoutSeconds:         30,
		EventBuffer:            256,
		RateLimit:              5,
		RateBurst:              20,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		config := DefaultConfig()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		config.ConfigFile = configPath
		return config, nil
	}

	config := DefaultConfig()
	config.ConfigFile = configPath
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// loadConfig reads the config file named on the command line, or the
// default one, and applies the remaining flags on top of it.
func loadConfig(args []string) (*Config, error) {
	pre := Config{ConfigFile: defaultConfigFile}
	preParser := flags.NewParser(&pre, flags.Default)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}
	if pre.ShowVersion {
		return &pre, nil
	}

	cfg, err := LoadConfig(pre.ConfigFile)
	if err != nil {
		return nil, err
	}
	if _, err := flags.NewParser(cfg, flags.Default).ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig validates the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" || c.DBFile == "" {
		return fmt.Errorf("data_dir and db_file must be set")
	}
	if c.Listen == "" {
		return fmt.Errorf("listen must be set")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate_limit and rate_burst must be positive")
	}
	if c.LogFile != "" && (c.MaxLogFileSize <= 0 || c.MaxLogFiles <= 0) {
		return fmt.Errorf("max_log_file_size and max_log_files must be positive")
	}
	if c.EnableAudit && c.AuditLogPath == "" {
		return fmt.Errorf("audit_log_path must be set when auditing")
	}
	sigmaCtx, sparkParams := c.Params()
	return c.Limits().Validate(sigmaCtx.Params().MaxSetSize(), sparkParams.CoverSetSize())
}

// Limits returns the consensus limits of the configuration. Regtest
// replaces the group sizes and the mint cap with ones that fit its
// parameters.
func (c *Config) Limits() ledger.Limits {
	l := ledger.Limits{
		MaxSpendInputsPerBlock: c.MaxSpendInputsPerBlock,
		MaxSpendValuePerBlock:  c.MaxSpendValuePerBlock,
		MaxMintsPerBlock:       c.MaxMintsPerBlock,
		SigmaCoinsPerGroup:     c.SigmaCoinsPerGroup,
		SparkCoinsPerGroup:     c.SparkCoinsPerGroup,
	}
	if c.Regtest {
		l.SigmaCoinsPerGroup = netparams.RegTest.SigmaCoinsPerGroup
		l.SparkCoinsPerGroup = netparams.RegTest.SparkCoinsPerGroup
		l.MaxMintsPerBlock = netparams.RegTest.MaxMintsPerBlock
	}
	return l
}

// Params returns the proof parameters the configuration selects.
func (c *Config) Params() (*sigma.Context, *spark.Params) {
	net := netparams.Select(c.Regtest)
	return net.Sigma(), net.Spark()
}

// DBPath returns the block store location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}
