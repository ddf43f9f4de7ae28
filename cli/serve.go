// ABOUTME: Long-running server command
// ABOUTME: Starts the scheduler and the HTTP surface until interrupted
package cli

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/harperreed/sheetbridge/sync"
	"github.com/harperreed/sheetbridge/web"
)

// ServeCommand runs the scheduler and HTTP server until SIGINT/SIGTERM. A
// pass in progress finishes its current batch before shutdown is honored.
func ServeCommand(cfg *sync.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, sheetClient, err := buildEngine(ctx, cfg, database)
	if err != nil {
		return err
	}

	scheduler := sync.NewScheduler(&sync.EngineTrigger{Engine: engine}, cfg.PushInterval, cfg.PullInterval)
	go scheduler.Run(ctx)

	server := web.NewServer(engine, sheetClient, database, callbackURL(cfg.HTTPPort))

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(cfg.HTTPPort)
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down, waiting for in-flight passes")
		engine.Wait()
		return nil
	case err := <-errChan:
		return err
	}
}
