// Zbxstreamd exposes a Zabbix real-time export directory as a live event
// stream over HTTP.
//
// It loads configuration (defaults, optional TOML file, environment
// overrides), follows the export directory's NDJSON files, and serves a
// content-negotiated endpoint: Server-Sent Events for live clients, a
// recent-history snapshot for JSON clients, and a demo page for browsers.
// Shutdown is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/zbx-rtx/streamd/internal/app"
	"github.com/zbx-rtx/streamd/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to config TOML (optional)")
		port       = pflag.IntP("port", "p", 0, "HTTP listen port (overrides config)")
		dir        = pflag.StringP("dir", "d", "", "Export directory to follow (overrides config)")
		demoMode   = pflag.Bool("demo", false, "Write simulated export records into the directory")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dir != "" {
		cfg.Export.Dir = *dir
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}

	logger := log.New(os.Stdout, "zbxstreamd ", log.LstdFlags|log.Lmicroseconds)

	a, err := app.New(app.Options{
		Logger: logger,
		Cfg:    cfg,
	})
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Fatalf("zbxstreamd failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
