// Package diag collects a support bundle for troubleshooting a slotwatch
// install: configuration, the diagnostic log, a metrics scrape and a probe of
// every configured directory endpoint and of the game client.
package diag

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pingsantohq/slotwatch/internal/config"
	"github.com/pingsantohq/slotwatch/internal/console"
	"github.com/pingsantohq/slotwatch/internal/directory"
)

const (
	defaultOutputPrefix = "slotwatch-diag_"
	infoFileName        = "diagnostics/info.json"
	configDirName       = "config"
	logsDirName         = "logs"
	observabilityDir    = "observability"
	redactedMarker      = "REDACTED"
)

var (
	tokenPattern    = regexp.MustCompile(`(?i)(token=)([^&\s"']+)`)
	bearerPattern   = regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)([A-Za-z0-9\._\-]+)`)
	apiKeyPattern   = regexp.MustCompile(`(?i)(api[_-]?key=)([^&\s"']+)`)
	passwordPattern = regexp.MustCompile(`(?i)(password=)([^&\s"']+)`)
)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Now        func() time.Time
	HTTPClient *http.Client
	// Bridge is probed for the game client; nil uses the platform bridge.
	Bridge console.Bridge
	Out    io.Writer
}

// Run executes the diagnostics workflow, producing a tar.gz bundle.
func Run(ctx context.Context, args []string, deps Dependencies) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}

	fs := flag.NewFlagSet("diag", flag.ContinueOnError)
	configFlag := fs.String("config", "", "Path to configuration file (default $SLOTWATCH_CONFIG or "+config.DefaultConfigPath+")")
	outputPath := fs.String("output", "", "Path for diagnostics tarball (default ./slotwatch-diag_<ts>.tar.gz)")
	includeMetrics := fs.Bool("include-metrics", true, "Include a scrape of the monitoring endpoint")
	metricsURL := fs.String("metrics-url", "", "Metrics endpoint URL (default derived from observability.metrics_addr)")
	timeout := fs.Duration("timeout", 5*time.Second, "Timeout for each network probe")
	probeDirectory := fs.Bool("probe-directory", true, "Fetch every configured directory endpoint once")
	redactLogs := fs.Bool("redact-logs", true, "Redact sensitive tokens in the log file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	now := deps.Now().UTC()
	outPath := *outputPath
	if outPath == "" {
		outPath = fmt.Sprintf("%s%s.tar.gz", defaultOutputPrefix, now.Format("20060102T150405Z"))
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure output directory %q: %w", filepath.Dir(outPath), err)
	}

	info := bundleInfo{
		GeneratedAt: now.Format(time.RFC3339),
		OutputPath:  outPath,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}

	configPath := config.ResolvePath(*configFlag)
	cfg, err := config.LoadOrDefault(ctx, configPath)
	if err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("config unavailable (%s): %v", configPath, err))
		cfg = config.Default()
	} else {
		info.ConfigPath = configPath
	}

	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create diagnostics file %q: %w", outPath, err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	if fi, err := os.Stat(configPath); err == nil && fi.Mode().IsRegular() {
		if err := addFile(tw, configPath, filepath.ToSlash(filepath.Join(configDirName, filepath.Base(configPath))), false); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include config %q: %v", configPath, err))
		}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		info.Warnings = append(info.Warnings, fmt.Sprintf("unable to stat config %q: %v", configPath, err))
	}

	if logFile := cfg.Observability.LogFile; logFile != "" && logFile != "-" {
		name := filepath.ToSlash(filepath.Join(logsDirName, filepath.Base(logFile)))
		if err := addFile(tw, logFile, name, *redactLogs); err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include log %q: %v", logFile, err))
		}
	}
	info.LogsRedacted = *redactLogs

	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	url := *metricsURL
	if url == "" && cfg.Observability.MetricsAddr != "" {
		url = "http://" + cfg.Observability.MetricsAddr + "/metrics"
	}
	if *includeMetrics && url != "" {
		scrapeCtx, cancel := context.WithTimeout(ctx, *timeout)
		data, err := scrapeMetrics(scrapeCtx, client, url)
		cancel()
		if err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("metrics scrape failed: %v", err))
		} else {
			if err := addBytes(tw, data, filepath.ToSlash(filepath.Join(observabilityDir, "metrics.prom"))); err != nil {
				info.Warnings = append(info.Warnings, fmt.Sprintf("failed to include metrics snapshot: %v", err))
			}
			summary, warns := summarizeMetrics(data, url)
			info.Metrics = summary
			info.Warnings = append(info.Warnings, warns...)
		}
	}

	if *probeDirectory {
		for _, endpoint := range cfg.Directory.Endpoints {
			info.Directory = append(info.Directory, probeEndpoint(ctx, client, cfg, endpoint, *timeout))
		}
	}

	info.Client = probeClient(ctx, cfg, deps.Bridge)

	if err := writeInfo(tw, info); err != nil {
		return err
	}
	fmt.Fprintf(deps.Out, "diagnostics written to %s\n", outPath)
	return nil
}

func probeEndpoint(ctx context.Context, client *http.Client, cfg config.Config, endpoint string, timeout time.Duration) directoryProbe {
	probe := directoryProbe{Endpoint: endpoint}
	dir, err := directory.NewClient(directory.Config{
		Endpoint: endpoint,
		Game:     cfg.Directory.Game,
	}, directory.Dependencies{HTTPClient: client})
	if err != nil {
		probe.Error = err.Error()
		return probe
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	servers, err := dir.Fetch(probeCtx)
	probe.DurationMillis = time.Since(start).Milliseconds()
	if err != nil {
		probe.Error = err.Error()
		return probe
	}
	probe.Servers = len(servers)
	for _, srv := range servers {
		if srv.HasFreeSlot() {
			probe.WithFreeSlot++
		}
	}
	return probe
}

func probeClient(ctx context.Context, cfg config.Config, bridge console.Bridge) clientProbe {
	if bridge == nil {
		var err error
		bridge, err = console.NewSystem(console.Config{
			ClientTitlePattern: cfg.Console.ClientTitlePattern,
			GameTitle:          cfg.Console.GameTitle,
			TerminalClass:      cfg.Console.TerminalClass,
			TerminalPrefix:     cfg.Console.TerminalPrefix,
		}, console.Dependencies{})
		if err != nil {
			return clientProbe{Error: err.Error()}
		}
	}
	if _, err := bridge.OpenConsole(ctx); err != nil {
		return clientProbe{
			WindowFound: !errors.Is(err, console.ErrClientNotFound),
			Error:       err.Error(),
		}
	}
	return clientProbe{WindowFound: true, ConsoleFound: true}
}

func writeInfo(tw *tar.Writer, info bundleInfo) error {
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal diagnostics info: %w", err)
	}
	return addBytes(tw, payload, infoFileName)
}

func addBytes(tw *tar.Writer, data []byte, name string) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header for %q: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar content for %q: %w", name, err)
	}
	return nil
}

func addFile(tw *tar.Writer, src, name string, redact bool) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %q: %w", src, err)
	}
	if redact {
		data = redactSensitive(data)
	}
	return addBytes(tw, data, name)
}

func redactSensitive(data []byte) []byte {
	text := string(data)
	for _, pattern := range []*regexp.Regexp{tokenPattern, bearerPattern, apiKeyPattern, passwordPattern} {
		text = pattern.ReplaceAllString(text, "${1}"+redactedMarker)
	}
	return []byte(text)
}

func scrapeMetrics(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/plain")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

var summarizedMetrics = map[string]func(*metricsSummary, float64){
	"slotwatch_polls_total":          func(s *metricsSummary, v float64) { s.Polls = ptrUint64(uint64(v)) },
	"slotwatch_fetch_failures_total": func(s *metricsSummary, v float64) { s.FetchFailures = ptrUint64(uint64(v)) },
	"slotwatch_connected_total":      func(s *metricsSummary, v float64) { s.Connected = ptrUint64(uint64(v)) },
	"slotwatch_ready":                func(s *metricsSummary, v float64) { ready := v == 1; s.Ready = &ready },
}

func summarizeMetrics(data []byte, url string) (*metricsSummary, []string) {
	summary := &metricsSummary{URL: url}
	var warnings []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(line, "#") {
			continue
		}
		apply, ok := summarizedMetrics[fields[0]]
		if !ok {
			continue
		}
		val, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("parse %s: %v", fields[0], err))
			continue
		}
		apply(summary, val)
	}
	return summary, warnings
}

func ptrUint64(v uint64) *uint64 {
	return &v
}

type bundleInfo struct {
	GeneratedAt  string           `json:"generated_at"`
	OutputPath   string           `json:"output_path"`
	ConfigPath   string           `json:"config_path,omitempty"`
	Metrics      *metricsSummary  `json:"metrics,omitempty"`
	Directory    []directoryProbe `json:"directory,omitempty"`
	Client       clientProbe      `json:"client"`
	LogsRedacted bool             `json:"logs_redacted"`
	Warnings     []string         `json:"warnings,omitempty"`
	GoVersion    string           `json:"go_version"`
	Platform     string           `json:"platform"`
}

type metricsSummary struct {
	URL           string  `json:"url"`
	Polls         *uint64 `json:"polls_total,omitempty"`
	FetchFailures *uint64 `json:"fetch_failures_total,omitempty"`
	Connected     *uint64 `json:"connected_total,omitempty"`
	Ready         *bool   `json:"ready,omitempty"`
}

type directoryProbe struct {
	Endpoint       string `json:"endpoint"`
	Servers        int    `json:"servers"`
	WithFreeSlot   int    `json:"with_free_slot"`
	DurationMillis int64  `json:"duration_ms"`
	Error          string `json:"error,omitempty"`
}

type clientProbe struct {
	WindowFound  bool   `json:"window_found"`
	ConsoleFound bool   `json:"console_found"`
	Error        string `json:"error,omitempty"`
}
