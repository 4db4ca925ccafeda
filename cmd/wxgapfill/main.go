package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/chrissnell/wxgapfill/internal/app"
	"github.com/chrissnell/wxgapfill/internal/controllers/restserver"
	"github.com/chrissnell/wxgapfill/internal/gapfill"
	"github.com/chrissnell/wxgapfill/internal/log"
	"github.com/chrissnell/wxgapfill/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source:\n\t\t\t  YAML: config.yaml\n\t\t\t  SQLite: config.db")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	station := flag.String("station", "", "Fill the missing values of this station and exit")
	all := flag.Bool("all", false, "Fill the missing values of every station and exit")
	fullErrors := flag.Bool("full-error-analysis", false, "Predict every day of the window and report the estimation error")
	serve := flag.Bool("serve", false, "Serve the gap-fill HTTP API")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wxgapfill %s\n", version)
		os.Exit(0)
	}

	modes := 0
	for _, set := range []bool{*station != "", *all, *serve} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -station, -all or -serve is required")
		flag.Usage()
		os.Exit(2)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfgData, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfgData, version, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to start: %v", err)
		os.Exit(1)
	}
	defer application.Close()

	if *serve {
		if err := application.Serve(ctx); err != nil {
			log.Errorf("Server error: %v", err)
			os.Exit(1)
		}
		return
	}

	req := restserver.RunRequest{Station: *station, All: *all, FullErrorAnalysis: *fullErrors}
	results, err := application.Fill(ctx, req, nil)
	for _, res := range results {
		if res.Status == gapfill.StatusStopped {
			log.Warnf("Gap filling of %s was stopped", res.Station.Name)
			continue
		}
		log.Infow("gap filling finished", "station", res.Station.Name,
			"missing", res.Report.Total.Missing, "filled", res.Report.Total.Filled,
			"unfilled", res.Report.Total.Unfilled)
	}
	if err != nil {
		log.Errorf("Gap filling failed: %v", err)
		os.Exit(1)
	}
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error

	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
