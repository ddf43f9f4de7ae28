// ABOUTME: Entry point for the sheet/CRM sync bridge
// ABOUTME: Routes to serve and sync commands based on arguments
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/sheetbridge/cli"
	"github.com/harperreed/sheetbridge/db"
	"github.com/harperreed/sheetbridge/sync"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	envFile := flag.String("env-file", ".env", "Environment file to load")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/sheetbridge/sheetbridge.db)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	// Handle version flag
	if *showVersion {
		fmt.Printf("sheetbridge version %s\n", version)
		os.Exit(0)
	}

	// Get remaining args after flags
	args := flag.Args()

	// If no command specified, show usage
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := sync.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Route to top-level command
	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "serve":
		if err := cli.ServeCommand(cfg, database, commandArgs); err != nil {
			log.Fatalf("Server failed: %v", err)
		}

	case "sync":
		if len(commandArgs) == 0 {
			fmt.Println("Error: sync requires a subcommand")
			printUsage()
			os.Exit(1)
		}

		syncCommand := commandArgs[0]
		syncArgs := commandArgs[1:]

		switch syncCommand {
		case "init":
			if err := cli.SyncInitCommand(cfg, syncArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		case "push":
			if err := cli.SyncPushCommand(cfg, database, syncArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		case "pull":
			if err := cli.SyncPullCommand(cfg, database, syncArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		default:
			fmt.Printf("Unknown sync command: %s\n\n", syncCommand)
			printUsage()
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`sheetbridge v%s - Google Sheets <-> AmoCRM sync bridge

USAGE:
  sheetbridge [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --env-file <path>      Environment file to load (default: .env)
  --db-path <path>       Database path (default: ~/.local/share/sheetbridge/sheetbridge.db)

COMMANDS:
  serve                  Run the scheduler and HTTP server
  sync                   Sync operations

SYNC COMMANDS:
  sheetbridge sync init     Authenticate with Google (OAuth flow)
  sheetbridge sync push     Run one sheet-to-CRM pass
  sheetbridge sync pull     Run one CRM-to-sheet pass

ENVIRONMENT:
  SHEET_ID, SHEET_RANGE                Google Sheets source
  AMO_BASE_URL, AMO_ACCESS_TOKEN       AmoCRM account
  AMO_PIPELINE_ID, AMO_STATUS_ID       Target pipeline and status
  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET   OAuth app credentials
  PUSH_INTERVAL, PULL_INTERVAL         Pass intervals (default 2m / 5m)

EXAMPLES:
  # Authenticate with Google
  sheetbridge sync init

  # Run the bridge
  sheetbridge serve

  # One-shot pass
  sheetbridge sync push

`, version)
}
