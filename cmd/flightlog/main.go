package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/flight-log-ingest/cmd/flightlog/app"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: flightlog [flags] <command> [args]

Commands:
  import [-j n] <file>...    import flight logs, up to n files in parallel
  add <name> <start> <secs>  record a flight by hand, without a log file
  list                  list all flights
  show <id>             show one flight with tags and messages
  delete <id>           delete a flight and its telemetry
  rename <id> <name>    set a flight's display name
  note <id> <text>      set a flight's notes
  tag <id> <tag>        add a manual tag
  untag <id> <tag>      remove a tag
  retag [id]            regenerate auto tags for one flight, or all
  points <id>           write a flight's telemetry as CSV to stdout
  dedup                 remove duplicate flights
  stats                 print library overview statistics
  backup <file>         export the database to a tar.gz archive
  restore <file>        import a tar.gz archive created by backup

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	var configPath, dbPath string
	var verbose bool
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&dbPath, "db", "", "Path to the database file (overrides configuration)")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug output")
	flag.Usage = usage
	flag.Parse()

	config := app.DefaultConfig()
	if configPath != "" {
		var err error
		if config, err = app.LoadConfig(configPath); err != nil {
			logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
			os.Exit(1)
		}
	}
	if dbPath != "" {
		config.Storage.DatabasePath = dbPath
	}

	logLevel.Set(config.LogLevel())
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, config, flag.Args(), logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
