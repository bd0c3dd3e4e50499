package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/storage/gcs"
	"github.com/capturelab/scoopd/internal/storage/memory"
)

// ConnectObjectStore builds the configured artifact store backend.
//
//nolint:ireturn // the backend is selected at runtime.
func ConnectObjectStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (core.ObjectStore, error) {
	switch cfg.Backend {
	case "memory":
		if logger != nil {
			logger.Warn("using in-memory artifact storage, archives will not survive restarts")
		}
		return memory.NewStore(), nil
	case "gcs":
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		client, err := gcstorage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Info("gcs artifact storage connected", "bucket", cfg.Bucket)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
