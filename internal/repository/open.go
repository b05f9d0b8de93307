package repository

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendFabric   = "fabric"
	BackendMinio    = "minio"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	FilePath      string
	StoreInterval time.Duration
	Restore       bool

	DSN            string
	MigrationsPath string

	SQLitePath string

	RedisURL    string
	RedisPrefix string

	Fabric FabricOptions

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSecure    bool
}

// Open builds the configured backend. An empty backend name picks postgres
// when a DSN is set, the file backend when a path is set, memory otherwise.
func Open(ctx context.Context, opts Options) (Storage, error) {
	backend := opts.Backend
	if backend == "" {
		switch {
		case opts.DSN != "":
			backend = BackendPostgres
		case opts.FilePath != "":
			backend = BackendFile
		default:
			backend = BackendMemory
		}
	}

	switch backend {
	case BackendMemory:
		return NewMemStorage(), nil
	case BackendFile:
		return NewFileStorage(opts.FilePath, opts.StoreInterval, opts.Restore)
	case BackendPostgres:
		return NewDBStorage(ctx, opts.DSN, opts.MigrationsPath)
	case BackendSQLite:
		return NewSQLiteStorage(opts.SQLitePath)
	case BackendRedis:
		return NewRedisStorage(ctx, opts.RedisURL, opts.RedisPrefix)
	case BackendFabric:
		return NewFabricStorage(opts.Fabric)
	case BackendMinio:
		return NewMinioStorage(ctx, opts.MinioEndpoint, opts.MinioAccessKey, opts.MinioSecretKey, opts.MinioBucket, opts.MinioSecure)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
