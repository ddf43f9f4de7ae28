// ABOUTME: Shared wiring for CLI commands
// ABOUTME: Builds the engine and backend clients from configuration
package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harperreed/sheetbridge/sync"
)

// callbackURL derives the OAuth redirect from the configured HTTP port.
func callbackURL(port int) string {
	return fmt.Sprintf("http://localhost:%d/oauth/callback", port)
}

// buildEngine wires both backend clients, the rate limiter, and the engine.
// Requires a saved Google token; run 'sheetbridge sync init' first.
func buildEngine(ctx context.Context, cfg *sync.Config, database *sql.DB) (*sync.Engine, *sync.SheetClient, error) {
	token, err := sync.LoadToken()
	if err != nil {
		return nil, nil, fmt.Errorf("no Google token found. Run 'sheetbridge sync init' first: %w", err)
	}

	sheetClient, err := sync.NewSheetClient(ctx, token, callbackURL(cfg.HTTPPort), cfg.SheetID, cfg.SheetRange)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Sheets client: %w", err)
	}

	amoClient := sync.NewAmoClient(cfg.AmoBaseURL, sync.StaticToken(cfg.AmoAccessToken), cfg.AmoPipelineID, cfg.AmoStatusID)

	limiter := sync.NewRateLimiter(map[sync.Backend]sync.RateConfig{
		sync.BackendSheets: cfg.SheetRate,
		sync.BackendCrm:    cfg.CrmRate,
	})

	engine := sync.NewEngine(sync.EngineConfig{
		DB:          database,
		SheetReader: sheetClient,
		SheetWriter: sheetClient,
		CrmReader:   amoClient,
		CrmWriter:   amoClient,
		Limiter:     limiter,
		SheetBatch:  cfg.SheetBatch,
		CrmBatch:    cfg.CrmBatch,
	})

	return engine, sheetClient, nil
}
