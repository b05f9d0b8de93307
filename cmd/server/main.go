package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/idudko/fhe-telemetry/internal/audit"
	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/internal/handler"
	"github.com/idudko/fhe-telemetry/internal/ledger"
	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/oracle"
	"github.com/idudko/fhe-telemetry/internal/repository"
	"github.com/idudko/fhe-telemetry/internal/service"
	"github.com/idudko/fhe-telemetry/pkg/crypto"
)

const shutdownTimeout = 10 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg Config) error {
	storage, err := repository.Open(ctx, cfg.storageOptions())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	key, err := oracleKey(cfg.CryptoKey)
	if err != nil {
		return err
	}
	signer, verifier, err := proofScheme(cfg, key)
	if err != nil {
		return err
	}

	subject := audit.NewSubject()
	subject.Attach(audit.LogObserver{})
	if cfg.AuditFile != "" {
		subject.Attach(audit.NewFileObserver(cfg.AuditFile))
	}
	if cfg.AuditURL != "" {
		collector := audit.NewHTTPObserver(cfg.AuditURL)
		subject.Attach(collector)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			collector.Close(ctx)
		}()
	}

	orc := oracle.New(model.Address(cfg.OracleAddress), key, signer, cfg.OracleWorkers, cfg.OracleQueue)
	correlator := oracle.NewCorrelator(orc, verifier, orc.Address())
	contract := ledger.New(storage, correlator, subject)
	orc.Start(ctx, contract)
	defer orc.Stop()

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Msg("no JWT secret configured, sessions will not survive a restart")
	}
	issuer, err := auth.NewIssuer(secret, cfg.JWTTTL.Std())
	if err != nil {
		return err
	}

	keyPEM, err := crypto.EncodePublicKeyPEM(orc.PublicKey())
	if err != nil {
		return err
	}

	records := service.NewRecordService(contract, service.NewOracleEncryptor(orc.PublicKey()))
	h := handler.NewHandler(contract, records, issuer, keyPEM, cfg.Key)
	router := handler.NewRouter(h, handler.RouterConfig{
		Key:            cfg.Key,
		TrustedSubnet:  cfg.TrustedSubnet,
		AllowedOrigins: cfg.AllowedOrigins,
		Pinger:         storage,
	})

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("address", cfg.Address).
			Str("oracle", string(orc.Address())).
			Str("proof", cfg.ProofMode).
			Msg("server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Int("pending_requests", contract.PendingRequests()).Msg("shutting down server")
		// In-flight writes drain against a paused ledger and get 503.
		contract.Pause()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func oracleKey(path string) (*rsa.PrivateKey, error) {
	if path != "" {
		key, err := crypto.LoadPrivateKey(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load oracle key: %w", err)
		}
		return key, nil
	}
	log.Warn().Msg("no oracle key configured, generating an ephemeral one")
	return crypto.GenerateKey(crypto.DefaultKeyBits)
}

func proofScheme(cfg Config, key *rsa.PrivateKey) (oracle.Signer, oracle.Verifier, error) {
	switch cfg.ProofMode {
	case proofModeRSA:
		return oracle.NewRSASigner(key), oracle.NewRSAVerifier(&key.PublicKey), nil
	case proofModeHMAC:
		p, err := oracle.NewHMACProof(cfg.ProofKey)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown proof mode %q", cfg.ProofMode)
	}
}
