package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/wayfinder/internal/db"
	"github.com/banshee-data/wayfinder/internal/monitoring"
	"github.com/banshee-data/wayfinder/internal/version"
)

const defaultDBPath = "wayfinder.db"

var logf = monitoring.Prefixed("wayfinder")

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "replay":
		handleReplay(args)
	case "serve":
		handleServe(args)
	case "status":
		handleStatus(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`wayfinder - turn-by-turn navigation progress engine

Usage: wayfinder <command> [options]

Commands:
  replay     Run a recorded trace against a route and report milestones
  serve      Run the navigation engine behind the HTTP API
  status     Show the progress and session of a running server
  migrate    Manage the telemetry database schema
  version    Show wayfinder version
  help       Show this help message

Run 'wayfinder <command> -h' for the options of a command.`)
}

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath, "Telemetry database path")
	fs.Parse(args)

	if err := db.RunMigrateCommand(fs.Args(), *dbPath, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}
