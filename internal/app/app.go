// Package app wires together the HTTP server, the tail engine, the ring
// buffer, and the two live hubs. It owns the daemon's lifecycle: subsystems
// start when Run is called and wind down in order on context cancellation,
// with a hard-kill timer so a stuck handle on a network filesystem can never
// block shutdown forever.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/zbx-rtx/streamd/internal/config"
	"github.com/zbx-rtx/streamd/internal/demo"
	"github.com/zbx-rtx/streamd/internal/ring"
	"github.com/zbx-rtx/streamd/internal/sse"
	"github.com/zbx-rtx/streamd/internal/tail"
	"github.com/zbx-rtx/streamd/internal/ws"
)

// killGrace is how long a shutdown may take before the process force-exits
// with status 1.
const killGrace = 5 * time.Second

// Options holds everything the App needs from the caller.
type Options struct {
	Logger *log.Logger
	Cfg    config.Config
}

// App is the top-level daemon process.
type App struct {
	log *log.Logger
	cfg config.Config

	startedAt time.Time
	ring      *ring.Buffer
	hub       *sse.Hub
	wsHub     *ws.Hub
	tailer    *tail.DirectoryTailer
	server    *http.Server
	mux       *http.ServeMux

	// stopping is closed when shutdown begins so long-lived stream
	// handlers release their connections and let Shutdown drain.
	stopping chan struct{}

	pushed atomic.Uint64

	// forceExit is swapped out in tests; the default kills the process.
	forceExit func()
}

// New validates nothing beyond what config.Load already did; a bad ring
// capacity is the one construction-time failure left, and it is fatal.
func New(opts Options) (*App, error) {
	cfg := opts.Cfg

	rb, err := ring.New(cfg.Ring.Capacity)
	if err != nil {
		return nil, err
	}

	a := &App{
		log:       opts.Logger,
		cfg:       cfg,
		startedAt: time.Now(),
		ring:      rb,
		hub: sse.NewHub(
			time.Duration(cfg.SSE.HeartbeatMS)*time.Millisecond,
			int64(cfg.SSE.DropThreshold),
		),
		wsHub:     ws.NewHub(),
		stopping:  make(chan struct{}),
		forceExit: func() { os.Exit(1) },
	}

	tailer, err := tail.NewDirectoryTailer(tail.DirOptions{
		Dir:        cfg.Export.Dir,
		Include:    includeOrNil(cfg.Export.Include),
		Ignore:     includeOrNil(cfg.Export.Ignore),
		Interval:   time.Duration(cfg.Tail.PollIntervalMS) * time.Millisecond,
		MaxBackoff: time.Duration(cfg.Tail.MaxBackoffMS) * time.Millisecond,
		FromEnd:    cfg.Tail.FromEnd,
		Emit:       a.onTailEvent,
	})
	if err != nil {
		return nil, err
	}
	a.tailer = tailer

	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleRoot)
	mux.HandleFunc("/v1/events/zabbix/", a.handleEvents)
	mux.HandleFunc("/v1/events/zabbix/openapi.json", a.handleOpenAPI)
	mux.Handle("/v1/events/zabbix/ws", a.wsHub.Handler())
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	a.mux = mux

	return a, nil
}

func includeOrNil(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	return patterns
}

// Handler exposes the routing table, mainly for tests.
func (a *App) Handler() http.Handler { return a.mux }

// Run starts the subsystems and serves HTTP until ctx is cancelled or the
// listener fails.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	a.log.Printf("listening on http://%s", ln.Addr())
	a.log.Printf("following %s", a.cfg.Export.Dir)

	a.startSubsystems(ctx)

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")

		kill := time.AfterFunc(killGrace, func() {
			a.log.Printf("shutdown stalled for %s, forcing exit", killGrace)
			a.forceExit()
		})

		close(a.stopping)
		a.tailer.Stop()

		sctx, cancel := context.WithTimeout(context.Background(), killGrace/2)
		defer cancel()
		a.server.Shutdown(sctx)

		kill.Stop()
	}()

	err = a.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// startSubsystems launches the hubs, the tail engine, and (when configured)
// the demo generator. Split from Run so tests can drive the pipeline behind
// an httptest server.
func (a *App) startSubsystems(ctx context.Context) {
	go a.hub.Run(ctx)
	go a.wsHub.Run(ctx)
	a.tailer.Start()

	if a.cfg.Demo.Enabled {
		r := demo.New(a.cfg.Export.Dir)
		if a.cfg.Demo.IntervalSeconds > 0 {
			r.Interval = time.Duration(a.cfg.Demo.IntervalSeconds) * time.Second
		}
		a.log.Printf("demo mode active, writing simulated export records to %s", a.cfg.Export.Dir)
		go r.Run(ctx)
	}
}

// onTailEvent is the single seam between the tail engine and the fan-out
// side: data events are stamped into the ring and broadcast, lifecycle
// events are logged and mirrored to WebSocket watchers.
func (a *App) onTailEvent(ev tail.Event) {
	switch ev.Kind {
	case tail.KindData:
		env := a.ring.Push(ev.File, ev.Family, []byte(ev.Line))
		a.pushed.Add(1)
		event := "zabbix." + ev.Family
		a.hub.Broadcast(event, env.ID, env.Record)
		a.wsHub.BroadcastEnvelope(event, env)

	case tail.KindReady:
		a.log.Printf("tailing %s (size=%d inode=%d)", ev.Path, ev.Size, ev.Inode)
		a.wsHub.BroadcastLog("info", "tailing "+ev.Path)

	case tail.KindInfo:
		a.log.Printf("%s: %s", ev.Path, ev.Msg)
		a.wsHub.BroadcastLog("info", ev.Path+": "+ev.Msg)

	case tail.KindWarn:
		if ev.Err != nil {
			a.log.Printf("warn: %s: %s: %v", ev.Path, ev.Msg, ev.Err)
		} else {
			a.log.Printf("warn: %s: %s", ev.Path, ev.Msg)
		}
		a.wsHub.BroadcastLog("warn", ev.Path+": "+ev.Msg)

	case tail.KindParseError:
		a.log.Printf("parse error: %s: %s", ev.Path, ev.Msg)
	}
}
