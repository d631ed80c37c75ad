// Package demo simulates a Zabbix server's real-time export so the daemon,
// CLI, and demo page can be exercised end-to-end without a monitoring
// server. The runner appends plausible problem and history records to NDJSON
// files in the watched directory, cycling through a small host catalog and
// also writing to per-worker subfiles. Every file it writes starts with
// problems- or history-, so its records classify as those two families only.
package demo

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// Runner appends simulated export records on a configurable interval.
type Runner struct {
	Dir      string
	Interval time.Duration // time between simulated records

	seq int // cycles through hosts and problem names
}

type host struct {
	name string
	item string
}

// hosts is the simulated infrastructure the records reference.
var hosts = []host{
	{"web01.example.com", "CPU utilization"},
	{"web02.example.com", "Available memory"},
	{"db01.example.com", "Disk space usage /var"},
	{"lb01.example.com", "Interface eth0: bits received"},
	{"cache01.example.com", "Redis connected clients"},
}

var problemNames = []string{
	"High CPU utilization (over 90% for 5m)",
	"Low available memory",
	"Disk space is critically low",
	"Zabbix agent is not available",
	"Service is down",
}

// New creates a demo runner with a sensible default interval.
func New(dir string) *Runner {
	return &Runner{
		Dir:      dir,
		Interval: time.Second,
	}
}

// Run writes one record immediately, then repeats on the configured interval
// until ctx is cancelled. The export directory is created if missing.
func (r *Runner) Run(ctx context.Context) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return err
	}

	r.emit()

	t := time.NewTicker(r.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.emit()
		}
	}
}

// emit appends one simulated record. Problems, history, and the per-worker
// subfiles rotate so every file the runner writes gets records over a short
// window.
func (r *Runner) emit() {
	h := hosts[r.seq%len(hosts)]
	now := time.Now()
	clock := now.Unix()
	ns := now.Nanosecond()

	var file, line string
	switch r.seq % 4 {
	case 0:
		line = fmt.Sprintf(
			`{"clock":%d,"ns":%d,"value":1,"eventid":%d,"name":%q,"severity":%d,"hosts":[{"host":%q,"name":%q}],"groups":["Demo servers"],"tags":[{"tag":"scope","value":"availability"}]}`,
			clock, ns, 9000+r.seq, problemNames[r.seq%len(problemNames)], 1+rand.Intn(5), h.name, h.name)
		file = "problems-demo.ndjson"
	case 1:
		line = fmt.Sprintf(
			`{"host":{"host":%q,"name":%q},"groups":["Demo servers"],"itemid":%d,"name":%q,"clock":%d,"ns":%d,"value":%.4f,"type":0}`,
			h.name, h.name, 4000+r.seq%len(hosts), h.item, clock, ns, rand.Float64()*100)
		file = "history-demo.ndjson"
	case 2:
		line = fmt.Sprintf(
			`{"host":{"host":%q,"name":%q},"groups":["Demo servers"],"itemid":%d,"name":%q,"clock":%d,"ns":%d,"value":%d,"type":3}`,
			h.name, h.name, 4100+r.seq%len(hosts), h.item, clock, ns, rand.Intn(1000))
		file = fmt.Sprintf("history-demo-task-manager-%d.ndjson", 1+r.seq%2)
	default:
		line = fmt.Sprintf(
			`{"clock":%d,"ns":%d,"value":0,"eventid":%d,"p_eventid":%d,"hosts":[{"host":%q,"name":%q}]}`,
			clock, ns, 9500+r.seq, 9000+r.seq-4, h.name, h.name)
		file = "problems-demo-main-process-1.ndjson"
	}
	r.seq++

	r.append(file, line)
}

// append writes one line to the named export file. Write errors are dropped:
// the demo is best-effort and the tailer reports real I/O problems itself.
func (r *Runner) append(file, line string) {
	f, err := os.OpenFile(filepath.Join(r.Dir, file), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
