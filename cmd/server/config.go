package main

import (
	"flag"
	"time"

	configpkg "github.com/idudko/fhe-telemetry/internal/config"
	"github.com/idudko/fhe-telemetry/internal/repository"
)

// Config represents the full server configuration.
//
// Priority order (lowest to highest): defaults, JSON config file (-c/-config
// or CONFIG), environment (including .env), command line flags.
type Config struct {
	Address  string `json:"address" env:"ADDRESS"`
	Key      string `json:"key" env:"KEY"`
	LogLevel string `json:"log_level" env:"LOG_LEVEL"`

	StorageBackend  string             `json:"storage_backend" env:"STORAGE_BACKEND"`
	FileStoragePath string             `json:"store_file" env:"STORE_FILE"`
	StoreInterval   configpkg.Duration `json:"store_interval" env:"STORE_INTERVAL"`
	Restore         bool               `json:"restore" env:"RESTORE"`
	DSN             string             `json:"database_dsn" env:"DATABASE_DSN"`
	MigrationsPath  string             `json:"migrations_path" env:"MIGRATIONS_PATH"`
	SQLitePath      string             `json:"sqlite_path" env:"SQLITE_PATH"`
	RedisURL        string             `json:"redis_url" env:"REDIS_URL"`
	RedisPrefix     string             `json:"redis_prefix" env:"REDIS_PREFIX"`

	FabricPeerEndpoint string `json:"fabric_peer_endpoint" env:"FABRIC_PEER_ENDPOINT"`
	FabricGatewayPeer  string `json:"fabric_gateway_peer" env:"FABRIC_GATEWAY_PEER"`
	FabricMSPID        string `json:"fabric_msp_id" env:"FABRIC_MSP_ID"`
	FabricCertPath     string `json:"fabric_cert_path" env:"FABRIC_CERT_PATH"`
	FabricKeyDir       string `json:"fabric_key_dir" env:"FABRIC_KEY_DIR"`
	FabricTLSCertPath  string `json:"fabric_tls_cert_path" env:"FABRIC_TLS_CERT_PATH"`
	FabricChannel      string `json:"fabric_channel" env:"FABRIC_CHANNEL"`
	FabricChaincode    string `json:"fabric_chaincode" env:"FABRIC_CHAINCODE"`

	MinioEndpoint  string `json:"minio_endpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey string `json:"minio_access_key" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `json:"minio_secret_key" env:"MINIO_SECRET_KEY"`
	MinioBucket    string `json:"minio_bucket" env:"MINIO_BUCKET"`
	MinioSecure    bool   `json:"minio_secure" env:"MINIO_SECURE"`

	AuditFile      string               `json:"audit_file" env:"AUDIT_FILE"`
	AuditURL       string               `json:"audit_url" env:"AUDIT_URL"`
	TrustedSubnet  string               `json:"trusted_subnet" env:"TRUSTED_SUBNET"`
	AllowedOrigins configpkg.StringList `json:"allowed_origins" env:"ALLOWED_ORIGINS"`

	// CryptoKey is the oracle private key. A throwaway key is generated when
	// it is empty.
	CryptoKey     string `json:"crypto_key" env:"CRYPTO_KEY"`
	OracleAddress string `json:"oracle_address" env:"ORACLE_ADDRESS"`
	OracleWorkers int    `json:"oracle_workers" env:"ORACLE_WORKERS"`
	OracleQueue   int    `json:"oracle_queue" env:"ORACLE_QUEUE"`
	ProofMode     string `json:"proof_mode" env:"PROOF_MODE"`
	ProofKey      string `json:"proof_key" env:"PROOF_KEY"`

	JWTSecret string             `json:"jwt_secret" env:"JWT_SECRET"`
	JWTTTL    configpkg.Duration `json:"jwt_ttl" env:"JWT_TTL"`

	configFile string
}

const (
	proofModeRSA  = "rsa"
	proofModeHMAC = "hmac"
)

func defaultConfig() Config {
	return Config{
		Address:        "localhost:8080",
		LogLevel:       "info",
		StoreInterval:  configpkg.Duration(300 * time.Second),
		MigrationsPath: "migrations",
		RedisPrefix:    "fhe-telemetry:",
		MinioBucket:    "fhe-telemetry",
		OracleAddress:  "0x0000000000000000000000000000000000000a11",
		OracleWorkers:  2,
		OracleQueue:    64,
		ProofMode:      proofModeRSA,
		JWTTTL:         configpkg.Duration(12 * time.Hour),
	}
}

// loadConfig registers flags on a fresh FlagSet and layers all sources.
func loadConfig(args []string) (Config, error) {
	cfg := defaultConfig()
	fset := flag.NewFlagSet("server", flag.ContinueOnError)

	fset.StringVar(&cfg.Address, "a", cfg.Address, "HTTP address to listen on")
	fset.StringVar(&cfg.Key, "k", cfg.Key, "Key for signing requests and responses")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	fset.StringVar(&cfg.StorageBackend, "storage", cfg.StorageBackend, "Storage backend (memory, file, postgres, sqlite, redis, fabric, minio)")
	fset.StringVar(&cfg.FileStoragePath, "f", cfg.FileStoragePath, "Path to file storage")
	fset.Var(&cfg.StoreInterval, "i", "Store interval (0 = synchronous)")
	fset.BoolVar(&cfg.Restore, "r", cfg.Restore, "Restore data from file")
	fset.StringVar(&cfg.DSN, "d", cfg.DSN, "PostgreSQL DSN")
	fset.StringVar(&cfg.MigrationsPath, "migrations", cfg.MigrationsPath, "Path to PostgreSQL migrations")
	fset.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "Path to SQLite database")
	fset.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis URL")
	fset.StringVar(&cfg.RedisPrefix, "redis-prefix", cfg.RedisPrefix, "Redis key prefix")

	fset.StringVar(&cfg.FabricPeerEndpoint, "fabric-peer", cfg.FabricPeerEndpoint, "Fabric peer endpoint")
	fset.StringVar(&cfg.FabricGatewayPeer, "fabric-gateway-peer", cfg.FabricGatewayPeer, "Fabric peer TLS host name")
	fset.StringVar(&cfg.FabricMSPID, "fabric-msp", cfg.FabricMSPID, "Fabric MSP id")
	fset.StringVar(&cfg.FabricCertPath, "fabric-cert", cfg.FabricCertPath, "Fabric client certificate")
	fset.StringVar(&cfg.FabricKeyDir, "fabric-key-dir", cfg.FabricKeyDir, "Fabric client key directory")
	fset.StringVar(&cfg.FabricTLSCertPath, "fabric-tls-cert", cfg.FabricTLSCertPath, "Fabric peer TLS CA certificate")
	fset.StringVar(&cfg.FabricChannel, "fabric-channel", cfg.FabricChannel, "Fabric channel")
	fset.StringVar(&cfg.FabricChaincode, "fabric-chaincode", cfg.FabricChaincode, "Fabric chaincode")

	fset.StringVar(&cfg.MinioEndpoint, "minio", cfg.MinioEndpoint, "MinIO endpoint")
	fset.StringVar(&cfg.MinioAccessKey, "minio-access-key", cfg.MinioAccessKey, "MinIO access key")
	fset.StringVar(&cfg.MinioSecretKey, "minio-secret-key", cfg.MinioSecretKey, "MinIO secret key")
	fset.StringVar(&cfg.MinioBucket, "minio-bucket", cfg.MinioBucket, "MinIO bucket")
	fset.BoolVar(&cfg.MinioSecure, "minio-secure", cfg.MinioSecure, "Use TLS for MinIO")

	fset.StringVar(&cfg.AuditFile, "audit-file", cfg.AuditFile, "Path to audit log file")
	fset.StringVar(&cfg.AuditURL, "audit-url", cfg.AuditURL, "URL for audit server")
	fset.StringVar(&cfg.TrustedSubnet, "t", cfg.TrustedSubnet, "Trusted subnet (CIDR) for write requests")
	fset.Var(&cfg.AllowedOrigins, "origins", "Comma separated CORS origins")

	fset.StringVar(&cfg.CryptoKey, "crypto-key", cfg.CryptoKey, "Path to oracle private key")
	fset.StringVar(&cfg.OracleAddress, "oracle-address", cfg.OracleAddress, "Address the oracle signs callbacks with")
	fset.IntVar(&cfg.OracleWorkers, "oracle-workers", cfg.OracleWorkers, "Oracle decryption workers")
	fset.IntVar(&cfg.OracleQueue, "oracle-queue", cfg.OracleQueue, "Oracle request queue size")
	fset.StringVar(&cfg.ProofMode, "proof", cfg.ProofMode, "Callback proof scheme (rsa, hmac)")
	fset.StringVar(&cfg.ProofKey, "proof-key", cfg.ProofKey, "Shared key for hmac proofs")

	fset.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "Session token secret")
	fset.Var(&cfg.JWTTTL, "jwt-ttl", "Session token lifetime")

	fset.StringVar(&cfg.configFile, "c", "", "Path to config file")
	fset.StringVar(&cfg.configFile, "config", "", "Path to config file")

	if err := configpkg.Load(fset, args, &cfg, &cfg.configFile); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) storageOptions() repository.Options {
	return repository.Options{
		Backend:        c.StorageBackend,
		FilePath:       c.FileStoragePath,
		StoreInterval:  c.StoreInterval.Std(),
		Restore:        c.Restore,
		DSN:            c.DSN,
		MigrationsPath: c.MigrationsPath,
		SQLitePath:     c.SQLitePath,
		RedisURL:       c.RedisURL,
		RedisPrefix:    c.RedisPrefix,
		Fabric: repository.FabricOptions{
			PeerEndpoint: c.FabricPeerEndpoint,
			GatewayPeer:  c.FabricGatewayPeer,
			MSPID:        c.FabricMSPID,
			CertPath:     c.FabricCertPath,
			KeyDir:       c.FabricKeyDir,
			TLSCertPath:  c.FabricTLSCertPath,
			Channel:      c.FabricChannel,
			Chaincode:    c.FabricChaincode,
		},
		MinioEndpoint:  c.MinioEndpoint,
		MinioAccessKey: c.MinioAccessKey,
		MinioSecretKey: c.MinioSecretKey,
		MinioBucket:    c.MinioBucket,
		MinioSecure:    c.MinioSecure,
	}
}
