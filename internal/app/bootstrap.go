package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/infra"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/metrics"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/storage"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Journal *storage.Journal
	Prom    *metrics.Metrics
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the logger, and opens the
// optional session journal and metrics registry.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	slog.Info("🚀 Bootstrapping execution subsystem",
		slog.String("app", cfg.App.Name),
		slog.String("mode", cfg.Trading.Mode))

	if cfg.Journal.Enabled {
		if dir := filepath.Dir(cfg.Journal.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create journal dir: %w", err)
			}
		}
		journal, err := storage.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		b.Journal = journal
		slog.Info("✅ Session journal opened (WAL-mode)", slog.String("path", cfg.Journal.Path))
	}

	if cfg.Metrics.Enabled {
		b.Prom = metrics.New()
		slog.Info("✅ Metrics registry ready")
	}

	return nil
}

// Close releases resources opened during Initialize.
func (b *Bootstrap) Close() {
	if err := b.Journal.Close(); err != nil {
		slog.Warn("journal close failed", slog.Any("error", err))
	}
}
