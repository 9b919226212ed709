package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/slotwatch/internal/config"
	"github.com/pingsantohq/slotwatch/internal/diag"
	"github.com/pingsantohq/slotwatch/internal/health"
	"github.com/pingsantohq/slotwatch/internal/logging"
	"github.com/pingsantohq/slotwatch/internal/metrics"
	"github.com/pingsantohq/slotwatch/internal/shell"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runInteractive(ctx, os.Args[2:])
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "servers":
		err = runServers(ctx, os.Args[2:], os.Stdout)
	case "fixture":
		err = runFixture(ctx, os.Args[2:])
	case "init-config":
		err = runInitConfig(os.Args[2:], os.Stdout)
	case "diag":
		err = diag.Run(ctx, os.Args[2:], diag.Dependencies{})
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("slotwatch: IW5 server slot watcher and auto-connector")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  slotwatch run [--config slotwatch.yaml] [--verbose] [--no-color]")
	fmt.Println("  slotwatch watch --server ID [--endpoint URL] [--config path] [--verbose] [--no-color]")
	fmt.Println("  slotwatch servers [--endpoint URL] [--config path] [--no-color]")
	fmt.Println("  slotwatch fixture --file snapshot.yaml [--addr 127.0.0.1:8085]")
	fmt.Println("  slotwatch init-config [--output slotwatch.yaml] [--force]")
	fmt.Println("  slotwatch diag [--config path] [--output file] [--metrics-url URL] [--probe-directory=false]")
}

type commonFlags struct {
	configPath *string
	verbose    *bool
	noColor    *bool
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "", "Path to configuration file (default $SLOTWATCH_CONFIG or "+config.DefaultConfigPath+")"),
		verbose:    fs.Bool("verbose", false, "Write diagnostic logs to stderr"),
		noColor:    fs.Bool("no-color", false, "Disable ANSI colors"),
	}
}

func loadConfig(ctx context.Context, path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.LoadFromEnv(ctx)
	}
	return config.Load(ctx, path)
}

func openLogger(cfg config.Config, verbose bool) (*log.Logger, io.Closer, error) {
	if verbose {
		return logging.New(os.Stderr), io.NopCloser(nil), nil
	}
	return logging.Open(cfg.Observability.LogFile)
}

// colorEnabled reports whether stdout should receive ANSI sequences.
func colorEnabled(disabled bool, logger *log.Logger) bool {
	if disabled || os.Getenv("NO_COLOR") != "" {
		return false
	}
	if err := shell.EnableVirtualTerminal(os.Stdout); err != nil {
		logger.Printf("ansi colors unavailable: %v", err)
		return false
	}
	return true
}

// supervise runs fn under signal handling, next to the monitoring endpoints
// when metricsAddr is set. It reports whether fn ended because of an
// interrupt.
func supervise(ctx context.Context, metricsAddr string, store *metrics.Store, checker *health.Checker, logger *log.Logger, fn func(context.Context) error) (bool, error) {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var interrupted bool
	grp, groupCtx := errgroup.WithContext(runCtx)

	grp.Go(func() error {
		err := fn(groupCtx)
		interrupted = runCtx.Err() != nil
		stop()
		if interrupted && errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if metricsAddr != "" {
		grp.Go(func() error {
			return serveMonitoring(groupCtx, metricsAddr, store, checker, logger)
		})
	}

	err := grp.Wait()
	if err != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	return interrupted, err
}

func monitoringHandler(store *metrics.Store, checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.NewHTTPHandler(store))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ready, reasons := checker.Ready(time.Now().UTC())
		if !ready {
			http.Error(w, strings.Join(reasons, "; "), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func serveMonitoring(ctx context.Context, addr string, store *metrics.Store, checker *health.Checker, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           monitoringHandler(store, checker),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Printf("metrics listening on http://%s", addr)
	return serveHTTP(ctx, srv)
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
