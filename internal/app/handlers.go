package app

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zbx-rtx/streamd/internal/ring"
	"github.com/zbx-rtx/streamd/internal/sse"
	"github.com/zbx-rtx/streamd/internal/tail"
)

// handleRoot redirects the bare root to the event endpoint and serves the
// plain-text 404 for everything else that fell through the mux.
func (a *App) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, "/v1/events/zabbix/", http.StatusFound)
}

// handleEvents is the content-negotiated endpoint: text/event-stream gets
// the live stream, application/json the recent-history snapshot, anything
// else the demo page.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/events/zabbix/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "text/event-stream"):
		a.handleStream(w, r)
	case strings.Contains(accept, "application/json"):
		a.handleSnapshot(w, r)
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(demoPage)
	}
}

// handleStream registers the connection as a live SSE client and holds it
// open until the peer disconnects or the daemon shuts down.
func (a *App) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		return
	}
	flusher.Flush()

	client := sse.NewClient(w, flusher.Flush)
	a.hub.Register(client)

	select {
	case <-r.Context().Done():
	case <-client.Done():
	case <-a.stopping:
	}

	a.hub.Unregister(client)

	// Unblock a write pump stuck on a live but slow connection, then wait
	// for it: the ResponseWriter must not be touched after this handler
	// returns.
	rc := http.NewResponseController(w)
	rc.SetWriteDeadline(time.Now())
	<-client.Done()
}

// handleSnapshot serves the recent-history query from the ring.
func (a *App) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	q := ring.Query{}
	params := r.URL.Query()

	if f := params.Get("family"); f != "" {
		if !tail.ValidFamily(f) {
			http.Error(w, "invalid family", http.StatusBadRequest)
			return
		}
		q.Family = f
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = n
	}
	if v := params.Get("sinceId"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid sinceId", http.StatusBadRequest)
			return
		}
		q.SinceID = n
	}

	items := a.ring.Query(q)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"latestId": a.ring.LatestID(),
		"items":    items,
	})
}

func (a *App) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(openAPIDoc)
}

// handleHealthz answers ok in plain text, or a per-component report when the
// client asks for JSON.
func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
		return
	}

	checks := map[string]any{}
	allOK := true

	if _, err := os.ReadDir(a.cfg.Export.Dir); err != nil {
		checks["export_dir"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		checks["export_dir"] = map[string]any{"ok": true, "path": a.cfg.Export.Dir}
	}
	checks["tailers"] = map[string]any{"ok": true, "count": len(a.tailer.Tailed())}
	checks["clients"] = map[string]any{"ok": true, "sse": a.hub.ClientCount()}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"name":           "zbx-rtx-stream",
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"export_dir":     a.cfg.Export.Dir,
		"demo_enabled":   a.cfg.Demo.Enabled,
		"files":          a.tailer.Tailed(),
		"ring": map[string]any{
			"capacity":  a.ring.Capacity(),
			"resident":  a.ring.Len(),
			"latest_id": a.ring.LatestID(),
			"pushed":    a.pushed.Load(),
		},
		"sse_clients": a.hub.ClientCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
