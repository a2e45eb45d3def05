package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"festsched/internal/capture"
	"festsched/internal/config"
	"festsched/internal/ics"
	appLog "festsched/internal/log"
	"festsched/internal/refresh"
	"festsched/internal/schedule"
	"festsched/internal/status"
	"festsched/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	debug      bool
	capture    string
}

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("failed to read .env", "err", err)
	}

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	zone, err := status.ParseZone(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	appLog.Info("festsched starting",
		"listen", conf.Listen,
		"timezone", zone.String(),
		"refresh", conf.Refresh,
		"seed_events", len(conf.Events),
		"program", conf.Program != "",
		"admin_auth", conf.AdminEnabled(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := status.NewEngine(zone)
	coll := schedule.New(engine)
	coll.Seed(conf.Events)

	if conf.Program != "" {
		if err := importProgram(ctx, conf, coll, zone); err != nil {
			// The board still works with the seeded events.
			appLog.Error("program import failed", err)
		}
	}

	poller, err := refresh.Start(ctx, coll, conf.Refresh, zone)
	if err != nil {
		appLog.Error("failed to start status refresh", err, "refresh", conf.Refresh)
		os.Exit(1)
	}
	defer poller.Stop()

	srv := web.NewServer(conf, coll, poller)

	if flags.capture != "" {
		if err := runCapture(ctx, cancel, srv, conf.Listen, flags.capture); err != nil {
			appLog.Error("board capture failed", err)
			os.Exit(1)
		}
		return
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("http server stopped", err)
		os.Exit(1)
	}
	appLog.Info("festsched exiting")
}

func importProgram(ctx context.Context, conf *config.Config, coll *schedule.Collection, zone *time.Location) error {
	start, err := status.ParseLocal(conf.Festival.Start, zone)
	if err != nil {
		return fmt.Errorf("festival.start: %w", err)
	}
	end, err := status.ParseLocal(conf.Festival.End, zone)
	if err != nil {
		return fmt.Errorf("festival.end: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	cands, err := ics.ImportProgram(fetchCtx, ics.NewFetcher(conf.CacheDir), conf.Program, ics.Window{Start: start, End: end}, zone)
	if err != nil {
		return err
	}
	appLog.Info("program imported", "occurrences", len(cands), "added", coll.Seed(cands))
	return nil
}

// runCapture serves the board just long enough to screenshot it.
func runCapture(ctx context.Context, cancel context.CancelFunc, srv *web.Server, listen, output string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	if err := waitHealthy(ctx, "http://"+listen+"/health", 5*time.Second); err != nil {
		cancel()
		<-errCh
		return err
	}

	captureErr := capture.CaptureBoardPNG(ctx, capture.CaptureOptions{
		URL:        "http://" + listen + "/board",
		OutputPath: output,
	})
	cancel()
	if err := <-errCh; err != nil && captureErr == nil {
		return err
	}
	return captureErr
}

func waitHealthy(ctx context.Context, url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server at %s not ready after %s", url, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	defaultConfig := os.Getenv("FESTSCHED_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "./festsched.yaml"
	}

	flag.StringVar(&cfg.configPath, "config", defaultConfig, "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&cfg.capture, "capture", "", "Write a PNG of the board to this path and exit")

	flag.Parse()

	return cfg
}
