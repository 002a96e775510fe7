// Command a11yview paints accessibility scan results over a live page.
//
// Usage:
//
//	a11yview -url https://example.com -results scan.json -type issues
//	a11yview -config a11yview.yaml -url https://example.com -serve
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/a11yview/controller"
	"github.com/hazyhaar/a11yview/idgen"
	"github.com/hazyhaar/a11yview/internal/browser"
	"github.com/hazyhaar/a11yview/internal/config"
	"github.com/hazyhaar/a11yview/viewer"
	"github.com/hazyhaar/a11yview/visibility"
)

func main() {
	configPath := flag.String("config", "", "path to a11yview.yaml config file")
	pageURL := flag.String("url", "", "page URL to visualize on")
	resultsPath := flag.String("results", "", "path to a scan-results JSON file")
	vizType := flag.String("type", "issues", "visualization type to enable at startup")
	serve := flag.Bool("serve", false, "run the status/control HTTP server")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools over stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *pageURL, *resultsPath, *vizType, *serve, *mcpStdio); err != nil {
		logger.Error("a11yview: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL, resultsPath, vizType string, serve, mcpStdio bool) error {
	if pageURL == "" {
		fmt.Fprintln(os.Stderr, "usage: a11yview -url <url> [-results <file>] [-type <type>] [-config <file>] [-serve]")
		os.Exit(1)
	}

	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		headless := true
		cfg.Browser.Headless = &headless
	}

	logger = logger.With("run", idgen.New())
	logger.Info("a11yview: starting", "url", pageURL)

	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Headless:  cfg.Browser.Headless,
		Logger:    logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	page, err := mgr.OpenPage(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	doc, win, err := browser.BindPage(ctx, page, logger)
	if err != nil {
		return fmt.Errorf("bind page: %w", err)
	}

	v := viewer.New(viewer.Options{
		Configs:      visualizationConfigs(cfg),
		FeatureFlags: cfg.FeatureFlags,
		Visibility: visibility.Options{
			Interval: cfg.Visibility.Interval,
			Jitter:   cfg.Visibility.Jitter,
			Logger:   logger,
		},
		Logger: logger,
	})
	if err := v.Attach(doc, win); err != nil {
		return err
	}
	defer v.Dispose()

	if resultsPath != "" {
		instances, err := viewer.LoadResults(resultsPath)
		if err != nil {
			return fmt.Errorf("load results: %w", err)
		}
		logger.Info("a11yview: loaded scan results", "instances", len(instances))
		if err := v.Enable(vizType, vizType, instances); err != nil {
			return fmt.Errorf("enable %s: %w", vizType, err)
		}
	}

	if serve {
		addr := cfg.Server.Addr
		if addr == "" {
			addr = ":8711"
		}
		go func() {
			if err := v.Serve(ctx, addr); err != nil {
				logger.Error("a11yview: http server", "error", err)
			}
		}()
	}

	if mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "a11yview", Version: "1.0.0"}, nil)
		v.RegisterMCP(srv)
		logger.Info("a11yview: mcp server on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	<-ctx.Done()
	return nil
}

// visualizationConfigs maps config file entries onto controller configs,
// falling back to the built-in set when the file declares none.
func visualizationConfigs(cfg *config.Config) []controller.VisualizationConfig {
	if len(cfg.Visualizations) == 0 {
		return nil
	}
	var configs []controller.VisualizationConfig
	for _, vc := range cfg.Visualizations {
		for _, dc := range controller.DefaultConfigs() {
			if dc.Type == vc.Type {
				dc.Steps = vc.Steps
				configs = append(configs, dc)
			}
		}
	}
	return configs
}
