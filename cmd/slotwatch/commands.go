package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingsantohq/slotwatch/internal/config"
	"github.com/pingsantohq/slotwatch/internal/directory"
	"github.com/pingsantohq/slotwatch/internal/fixture"
	"github.com/pingsantohq/slotwatch/internal/logging"
	"github.com/pingsantohq/slotwatch/internal/shell"
)

func runServers(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("servers", flag.ContinueOnError)
	common := registerCommon(fs)
	endpoint := fs.String("endpoint", "", "Directory URL (default: first configured endpoint)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *common.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, closer, err := openLogger(cfg, *common.verbose)
	if err != nil {
		return err
	}
	defer closer.Close()

	url := *endpoint
	if url == "" {
		url = cfg.Directory.Endpoints[0]
	}
	client, err := directory.NewClient(directory.Config{
		Endpoint: url,
		Game:     cfg.Directory.Game,
		Timeout:  cfg.Directory.Timeout,
	}, directory.Dependencies{Logger: logger})
	if err != nil {
		return err
	}

	servers, err := client.Fetch(ctx)
	if err != nil {
		return err
	}

	color := !*common.noColor && out == io.Writer(os.Stdout) && colorEnabled(false, logger)
	printer := shell.NewPrinter(out, shell.WithColor(color))
	if len(servers) == 0 {
		printer.Line("", fmt.Sprintf("No %s servers listed by %s", cfg.Directory.Game, url))
		return nil
	}
	printer.ServerTable(servers)
	return nil
}

func runFixture(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fixture", flag.ContinueOnError)
	file := fs.String("file", "", "YAML or JSON list of directory records to serve")
	addr := fs.String("addr", "127.0.0.1:8085", "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("--file is required")
	}

	store, err := fixture.LoadFile(*file)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr)
	srv := fixture.New(fixture.Config{
		Addr:         *addr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}, fixture.Dependencies{Logger: logger, Store: store})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("fixture directory serving %d records on http://%s%s", len(store.Records()), *addr, fixture.ServersPath)
	return serveHTTP(runCtx, srv.Server)
}

func runInitConfig(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("init-config", flag.ContinueOnError)
	output := flags.String("output", config.DefaultConfigPath, "Where to write the configuration")
	force := flags.Bool("force", false, "Overwrite an existing file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*output); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", *output)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := config.Write(*output, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote default configuration to %s\n", *output)
	return nil
}
