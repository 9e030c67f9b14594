package cmd

import (
	"log/slog"

	"github.com/dendrascience/dbooru/backend"
	"github.com/dendrascience/dbooru/internal/config"
	"github.com/spf13/cobra"
)

const configEnvVar = config.EnvVar

// loadConfig reads the config file and applies the persistent flag
// overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if root, _ := cmd.Flags().GetString("root"); root != "" {
		cfg.Root = root
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func backendOptions(cfg *config.Config, logger *slog.Logger) backend.Options {
	return backend.Options{
		ChunkSize: cfg.Store.HashChunkSize,
		PoolSize:  cfg.Store.PoolSize,
		Logger:    logger,
	}
}

// openStore opens the configured store. The caller closes it.
func openStore(cmd *cobra.Command) (*backend.Backend, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())
	b, err := backend.Open(cfg.Root, backendOptions(cfg, logger))
	if err != nil {
		return nil, nil, nil, err
	}
	return b, cfg, logger, nil
}

// canonicalFid normalizes the size suffix so metadata lookups match the
// stored row.
func canonicalFid(b *backend.Backend, fid string) (string, error) {
	f, err := b.Locator().Parse(fid)
	if err != nil {
		return "", err
	}
	return f.String(), nil
}
