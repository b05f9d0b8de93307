package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/agent"
	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/pkg/crypto"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	wallet, err := loadWallet(cfg.WalletKey)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.WalletKey).Msg("failed to load wallet")
	}

	agentCfg := agent.Config{
		Wallet:         wallet,
		PollInterval:   cfg.PollInterval.Std(),
		ReportInterval: cfg.ReportInterval.Std(),
		AnalyzeEvery:   cfg.AnalyzeEvery,
		RateLimit:      cfg.RateLimit,
		Records:        cfg.Records,
	}
	if cfg.CryptoKey != "" {
		pub, err := crypto.LoadPublicKey(cfg.CryptoKey)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.CryptoKey).Msg("failed to load oracle public key")
		}
		agentCfg.OracleKey = pub
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a := agent.New(agentCfg, agent.NewCollector(agent.HostSource{DiskPath: cfg.DiskPath}), agent.NewClient(cfg.Address, cfg.Key))
	err = a.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg(agent.Describe(err))
	}
	log.Info().Msg(agent.Describe(err))
}

func loadWallet(path string) (*auth.Wallet, error) {
	if path != "" {
		return auth.LoadWallet(path)
	}
	log.Warn().Msg("no wallet key configured, generating an ephemeral one")
	return auth.NewWallet()
}
