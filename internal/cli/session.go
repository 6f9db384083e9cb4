package cli

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hupe1980/unibase"
	"github.com/hupe1980/unibase/internal/config"
)

// withWorkspace opens the configured workspace, runs fn and closes it. When
// persist is set the state is persisted after fn succeeds.
func withWorkspace(cmd *cobra.Command, persist bool, fn func(ctx context.Context, db *unibase.Unibase) error) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	cfg := config.Get()
	logger := newLogger(cfg)

	db, err := openWorkspace(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close workspace", "error", err)
		}
	}()

	if err := fn(ctx, db); err != nil {
		return err
	}
	if !persist {
		return nil
	}
	return db.Persist(ctx)
}
