package main

import (
	"flag"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	configpkg "github.com/idudko/fhe-telemetry/internal/config"
)

// Config represents the full agent configuration.
//
// Priority order (lowest to highest): defaults, JSON config file (-c/-config
// or CONFIG), environment (including .env), command line flags.
type Config struct {
	Address        string             `json:"address" env:"ADDRESS" env-description:"Server address"`
	PollInterval   configpkg.Duration `json:"poll_interval" env:"POLL_INTERVAL" env-description:"Sampling interval"`
	ReportInterval configpkg.Duration `json:"report_interval" env:"REPORT_INTERVAL" env-description:"Submission interval"`
	Key            string             `json:"key" env:"KEY" env-description:"Key for signing requests"`
	RateLimit      int                `json:"rate_limit" env:"RATE_LIMIT" env-description:"Concurrent outgoing requests"`
	AnalyzeEvery   int                `json:"analyze_every" env:"ANALYZE_EVERY" env-description:"Reports per performance analysis (0 disables)"`
	Records        bool               `json:"records" env:"RECORDS" env-description:"Also file samples as dashboard records"`
	CryptoKey      string             `json:"crypto_key" env:"CRYPTO_KEY" env-description:"Path to oracle public key"`
	WalletKey      string             `json:"wallet_key" env:"WALLET_KEY" env-description:"Path to the wallet private key (PEM, P-256)"`
	DiskPath       string             `json:"disk_path" env:"DISK_PATH" env-description:"Mount point sampled for disk usage"`
	LogLevel       string             `json:"log_level" env:"LOG_LEVEL" env-description:"Log level"`

	configFile string
}

func defaultConfig() Config {
	return Config{
		Address:        "localhost:8080",
		PollInterval:   configpkg.Duration(2 * time.Second),
		ReportInterval: configpkg.Duration(10 * time.Second),
		RateLimit:      1,
		AnalyzeEvery:   6,
		Records:        true,
		DiskPath:       "/",
		LogLevel:       "info",
	}
}

func loadConfig(args []string) (Config, error) {
	cfg := defaultConfig()
	fset := flag.NewFlagSet("agent", flag.ContinueOnError)

	fset.StringVar(&cfg.Address, "a", cfg.Address, "HTTP address of the server")
	fset.Var(&cfg.PollInterval, "p", "Poll interval")
	fset.Var(&cfg.ReportInterval, "r", "Report interval")
	fset.StringVar(&cfg.Key, "k", cfg.Key, "Key for signing requests")
	fset.IntVar(&cfg.RateLimit, "l", cfg.RateLimit, "Rate limit for concurrent requests")
	fset.IntVar(&cfg.AnalyzeEvery, "analyze-every", cfg.AnalyzeEvery, "Reports per performance analysis (0 disables)")
	fset.BoolVar(&cfg.Records, "records", cfg.Records, "Also file samples as dashboard records")
	fset.StringVar(&cfg.CryptoKey, "crypto-key", cfg.CryptoKey, "Path to oracle public key (fetched from the server when empty)")
	fset.StringVar(&cfg.WalletKey, "wallet-key", cfg.WalletKey, "Path to the wallet private key")
	fset.StringVar(&cfg.DiskPath, "disk", cfg.DiskPath, "Mount point sampled for disk usage")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fset.StringVar(&cfg.configFile, "c", "", "Path to config file")
	fset.StringVar(&cfg.configFile, "config", "", "Path to config file")

	fset.Usage = cleanenv.FUsage(fset.Output(), &cfg, nil, fset.Usage)

	if err := configpkg.Load(fset, args, &cfg, &cfg.configFile); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
