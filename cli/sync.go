// ABOUTME: Sync CLI commands
// ABOUTME: Handles OAuth setup and one-shot push/pull passes
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/harperreed/sheetbridge/models"
	"github.com/harperreed/sheetbridge/sync"
)

// SyncInitCommand handles OAuth setup
func SyncInitCommand(cfg *sync.Config, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()

	config, err := sync.GetClient(ctx, callbackURL(cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("failed to get OAuth config: %w", err)
	}

	// Start local server for OAuth callback
	callbackChan := make(chan *oauth2.Token)
	errChan := make(chan error)
	state := uuid.NewString()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- fmt.Errorf("OAuth state mismatch")
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			return
		}

		token, err := config.Exchange(ctx, code)
		if err != nil {
			errChan <- fmt.Errorf("failed to exchange code: %w", err)
			return
		}

		callbackChan <- token
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Generate auth URL
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	fmt.Println("Opening browser for Google OAuth...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)

	// Try to open browser
	_ = openBrowser(authURL)

	// Wait for callback or error
	select {
	case token := <-callbackChan:
		_ = server.Shutdown(ctx)

		if err := sync.SaveToken(token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Printf("\n✓ Authenticated successfully\n")
		fmt.Printf("✓ Tokens saved to %s\n\n", sync.TokenPath())
		fmt.Println("Ready to sync! Run 'sheetbridge sync push' for a first pass.")

		return nil

	case err := <-errChan:
		_ = server.Shutdown(ctx)
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
}

// SyncPushCommand runs one sheet-to-CRM pass.
func SyncPushCommand(cfg *sync.Config, database *sql.DB, args []string) error {
	return runOnce(cfg, database, models.DirectionSheetToCrm, "push", args)
}

// SyncPullCommand runs one CRM-to-sheet pass.
func SyncPullCommand(cfg *sync.Config, database *sql.DB, args []string) error {
	return runOnce(cfg, database, models.DirectionCrmToSheet, "pull", args)
}

func runOnce(cfg *sync.Config, database *sql.DB, direction models.Direction, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()

	engine, _, err := buildEngine(ctx, cfg, database)
	if err != nil {
		return err
	}

	fmt.Printf("Running %s pass...\n", name)
	report, err := engine.Run(ctx, direction)
	if err != nil {
		return fmt.Errorf("%s pass failed: %w", name, err)
	}

	fmt.Printf("\n✓ Pass %s finished in %dms\n", report.PassID, report.DurationMs)
	fmt.Printf("  ✓ Created %d, updated %d\n", report.Created, report.Updated)
	for reason, count := range report.Skipped {
		fmt.Printf("  → Skipped %d (%s)\n", count, reason)
	}
	for _, conflict := range report.Conflicts {
		fmt.Printf("  → Conflict on %s resolved in favor of %s\n", conflict.Fingerprint, conflict.Winner)
	}
	for _, failure := range report.Failed {
		fmt.Printf("  ✗ %s (%s): %s\n", failure.Fingerprint, failure.Kind, failure.Message)
	}

	return nil
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	command := exec.Command(cmd, args...)
	return command.Start()
}
