package cli

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cabshq/cabs/cmd/cabsd/config"
	"github.com/cabshq/cabs/internal/backend"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/rowstore/memstore"
	"github.com/cabshq/cabs/internal/rowstore/sqlitestore"
	"github.com/cabshq/cabs/internal/sizetiered"
)

// buildBackend realizes cfg.Backend into a contracts.BlobBackend, per
// spec.md §4.2's {local, database, memory, s3, remote} kinds. When
// SizeTieredThreshold is positive, the chosen kind becomes the "big" tier
// of an internal/sizetiered.Store fronted by a database-backed small tier,
// per spec.md §4.3.
func buildBackend(ctx context.Context, cfg config.BackendConfig, rows contracts.RowStore) (contracts.BlobBackend, error) {
	big, err := buildBigBackend(ctx, cfg, rows)
	if err != nil {
		return nil, err
	}
	if cfg.SizeTieredThreshold <= 0 {
		return big, nil
	}
	small := backend.NewInDatabase(rows)
	return sizetiered.New(small, big, cfg.SizeTieredThreshold), nil
}

func buildBigBackend(ctx context.Context, cfg config.BackendConfig, rows contracts.RowStore) (contracts.BlobBackend, error) {
	switch cfg.Kind {
	case "", "memory":
		return backend.NewInMemory(0), nil
	case "local":
		if cfg.Path == "" {
			return nil, fmt.Errorf("backend.path is required for the local backend")
		}
		return backend.NewLocalFile(cfg.Path)
	case "database":
		return backend.NewInDatabase(rows), nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("backend.bucket is required for the s3 backend")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return backend.NewObjectStore(s3.NewFromConfig(awsCfg), cfg.Bucket), nil
	case "remote":
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("backend.remote_url is required for the remote backend")
		}
		return backend.NewRemote(cfg.RemoteURL, cfg.RemoteCredential, nil), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

// buildRowStore opens the row store cabsd bookkeeps claims and cache rows
// in. An empty path selects the in-memory store, used for ephemeral or
// test deployments; any other path opens a sqlitestore.Store there
// ("?_journal_mode=WAL" is appended by sqlitestore itself).
func buildRowStore(path string) (contracts.RowStore, error) {
	if path == "" {
		return memstore.New(), nil
	}
	return sqlitestore.Open(path)
}
