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
	"time"

	"github.com/pingsantohq/slotwatch/internal/config"
	"github.com/pingsantohq/slotwatch/internal/console"
	"github.com/pingsantohq/slotwatch/internal/directory"
	"github.com/pingsantohq/slotwatch/internal/events"
	"github.com/pingsantohq/slotwatch/internal/health"
	"github.com/pingsantohq/slotwatch/internal/metrics"
	"github.com/pingsantohq/slotwatch/internal/monitor"
	"github.com/pingsantohq/slotwatch/internal/shell"
	"github.com/pingsantohq/slotwatch/pkg/types"
)

// app carries everything a monitoring command needs.
type app struct {
	cfg        config.Config
	logger     *log.Logger
	printer    *shell.Printer
	input      *shell.Input
	menu       *shell.Menu
	events     events.Recorder
	bridge     console.Bridge
	store      *metrics.Store
	checker    *health.Checker
	httpClient *http.Client
}

func newApp(cfg config.Config, logger *log.Logger, printer *shell.Printer, input *shell.Input, bridge console.Bridge) *app {
	store := metrics.NewStore()
	staleAfter := 3 * cfg.Monitor.PollInterval
	if staleAfter < 30*time.Second {
		staleAfter = 30 * time.Second
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		printer: printer,
		input:   input,
		menu:    shell.NewMenu(printer, input, cfg.Monitor.CancelKey),
		events: events.NewMulti(
			shell.NewAnnouncer(printer, cfg.Monitor.CancelKey),
			events.NewLogRecorder(logger),
		),
		bridge:  bridge,
		store:   store,
		checker: health.NewChecker(store, staleAfter),
	}
}

// setup loads configuration and builds the app wired to the real terminal
// and game client.
func setup(ctx context.Context, common commonFlags) (*app, io.Closer, error) {
	cfg, err := loadConfig(ctx, *common.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, closer, err := openLogger(cfg, *common.verbose)
	if err != nil {
		return nil, nil, err
	}
	bridge, err := console.NewSystem(console.Config{
		ClientTitlePattern: cfg.Console.ClientTitlePattern,
		GameTitle:          cfg.Console.GameTitle,
		TerminalClass:      cfg.Console.TerminalClass,
		TerminalPrefix:     cfg.Console.TerminalPrefix,
		SoundFile:          cfg.Console.SoundFile,
	}, console.Dependencies{Logger: logger})
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("init console bridge: %w", err)
	}
	printer := shell.NewPrinter(os.Stdout, shell.WithColor(colorEnabled(*common.noColor, logger)))
	return newApp(cfg, logger, printer, shell.NewInput(os.Stdin), bridge), closer, nil
}

func runInteractive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, closer, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer closer.Close()

	a.logger.Printf("slotwatch starting (endpoints=%d)", len(a.cfg.Directory.Endpoints))
	interrupted, err := supervise(ctx, a.cfg.Observability.MetricsAddr, a.store, a.checker, a.logger, a.interactive)
	if interrupted {
		a.printer.Blank()
		a.printer.Line(shell.Red, "🛑 Operation cancelled by user. Exiting...")
	}
	a.printer.Line(shell.Green, "😊 Goodbye!")
	return err
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	common := registerCommon(fs)
	endpoint := fs.String("endpoint", "", "Directory URL (default: first configured endpoint)")
	serverID := fs.String("server", "", "Id of the server to watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *serverID == "" {
		return errors.New("--server is required")
	}

	a, closer, err := setup(ctx, common)
	if err != nil {
		return err
	}
	defer closer.Close()

	url := *endpoint
	if url == "" {
		url = a.cfg.Directory.Endpoints[0]
	}
	interrupted, err := supervise(ctx, a.cfg.Observability.MetricsAddr, a.store, a.checker, a.logger, func(ctx context.Context) error {
		return a.watchOne(ctx, url, types.ServerID(*serverID))
	})
	if interrupted {
		a.printer.Blank()
		a.printer.Line(shell.Red, "🛑 Operation cancelled by user. Exiting...")
	}
	return err
}

// interactive is the endpoint -> server -> monitor loop. It ends cleanly
// when the operator closes the input stream.
func (a *app) interactive(ctx context.Context) error {
	key := a.cfg.Monitor.CancelKey
	a.printer.Line(shell.Yellow, fmt.Sprintf("Press '%s' to return to the previous step at any time.", key))
	for {
		err := a.selectAndWatch(ctx)
		switch {
		case err == nil, errors.Is(err, shell.ErrBack):
			continue
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

func (a *app) selectAndWatch(ctx context.Context) error {
	endpoint, err := a.menu.SelectEndpoint(ctx, a.cfg.Directory.Endpoints)
	if err != nil {
		return err
	}
	client, err := a.directory(endpoint)
	if err != nil {
		return err
	}

	servers, err := client.Fetch(ctx)
	a.checker.ObserveFetch(time.Now().UTC(), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		a.logger.Printf("server list fetch from %s failed: %v", endpoint, err)
		a.printer.Line(shell.Red, "❌ Failed to fetch server list: "+err.Error())
		return nil
	}
	if len(servers) == 0 {
		a.printer.Line(shell.Red, fmt.Sprintf("❌ No %s servers listed by this directory.", a.cfg.Directory.Game))
		return nil
	}
	a.printer.ServerTable(servers)

	target, err := a.menu.SelectServer(ctx, servers)
	if err != nil {
		return err
	}
	out, err := a.monitor(ctx, client, target, true)
	if err != nil {
		return err
	}
	if out == monitor.ConnectedSuccess {
		a.printer.Line(shell.Green, "✅ Successfully connected to the server.")
	}
	return nil
}

// watchOne monitors a single server without menus. Only a confirmed
// connection or an operator return count as success.
func (a *app) watchOne(ctx context.Context, endpoint string, id types.ServerID) error {
	client, err := a.directory(endpoint)
	if err != nil {
		return err
	}
	servers, err := client.Fetch(ctx)
	a.checker.ObserveFetch(time.Now().UTC(), err)
	if err != nil {
		return err
	}
	target, ok := types.FindServer(servers, id)
	if !ok {
		return fmt.Errorf("server %s not listed by %s", id, endpoint)
	}

	out, err := a.monitor(ctx, client, target, false)
	if err != nil {
		return err
	}
	switch out {
	case monitor.ConnectedSuccess, monitor.UserReturn:
		return nil
	default:
		return fmt.Errorf("session ended: %s", out)
	}
}

func (a *app) monitor(ctx context.Context, client *directory.Client, target types.ServerRecord, interactive bool) (monitor.Outcome, error) {
	key := a.cfg.Monitor.CancelKey
	// Discard anything typed before monitoring started.
	a.input.CancelRequested(key)

	deps := monitor.Dependencies{
		Directory: client,
		Bridge:    a.bridge,
		Cancelled: a.input.CancelFunc(key),
		Events:    a.events,
		Metrics:   a.store.SessionRecorder(),
		Health:    a.checker,
		Logger:    a.logger,
	}
	if interactive {
		deps.AwaitClient = a.awaitClient
	}
	session, err := monitor.New(monitor.Config{
		PollInterval:  a.cfg.Monitor.PollInterval,
		CheckInterval: a.cfg.Monitor.CheckInterval,
		RetryDelay:    a.cfg.Monitor.RetryDelay,
	}, deps)
	if err != nil {
		return monitor.Watching, err
	}
	return session.Run(ctx, target)
}

func (a *app) awaitClient(ctx context.Context) error {
	err := a.menu.AwaitClient(ctx)
	if errors.Is(err, shell.ErrBack) {
		return monitor.ErrUserReturn
	}
	return err
}

func (a *app) directory(endpoint string) (*directory.Client, error) {
	return directory.NewClient(directory.Config{
		Endpoint:   endpoint,
		Game:       a.cfg.Directory.Game,
		Timeout:    a.cfg.Directory.Timeout,
		MinSpacing: a.cfg.Directory.RateLimit,
	}, directory.Dependencies{
		HTTPClient: a.httpClient,
		Logger:     a.logger,
	})
}
