package tail

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// Default file selection for a Zabbix real-time export directory: the
// top-level problems/history files plus their per-worker subfiles, minus
// anything the server has renamed aside as .old.
var (
	DefaultInclude = []string{
		`^(problems|history)-.*\.ndjson$`,
		`^(problems|history)-.*-(main-process|task-manager)-\d+\.ndjson$`,
	}
	DefaultIgnore = []string{`\.old$`}
)

const (
	// rescanDebounce batches bursts of directory change hints into one scan.
	rescanDebounce = 150 * time.Millisecond
	// defaultChildStopTimeout bounds how long a stuck child tailer is waited
	// on, during shutdown or after a scan drops it, before it is abandoned.
	defaultChildStopTimeout = 2 * time.Second
)

// DirOptions configures a DirectoryTailer.
type DirOptions struct {
	// Dir is the directory to follow.
	Dir string
	// Include and Ignore are basename regexp patterns. Nil selects the
	// Zabbix defaults above.
	Include []string
	Ignore  []string
	// Interval and MaxBackoff are handed to every child FileTailer.
	Interval   time.Duration
	MaxBackoff time.Duration
	// FromEnd makes children begin at the current end of pre-existing files.
	FromEnd bool
	// ChildStopTimeout overrides the per-child stop bound. Zero means 2s.
	ChildStopTimeout time.Duration
	// Emit receives all child events, with data events annotated with
	// their family. Must be non-nil.
	Emit func(Event)
}

// DirectoryTailer keeps exactly one FileTailer per matching file in a
// directory. It scans once at Start, then rescans on a debounced filesystem
// hint and whenever Scan is called; there is no periodic rescan. Reading the
// followed files does not depend on hints: each child polls its own file.
type DirectoryTailer struct {
	dir              string
	include          []*regexp.Regexp
	ignore           []*regexp.Regexp
	interval         time.Duration
	maxBackoff       time.Duration
	fromEnd          bool
	childStopTimeout time.Duration
	emit             func(Event)

	mu       sync.Mutex
	children map[string]*FileTailer

	scanning atomic.Bool
	started  atomic.Bool
	stopped  atomic.Bool

	watcher   *fsnotify.Watcher
	watchDone chan struct{}

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewDirectoryTailer validates the selection patterns and builds the tailer.
func NewDirectoryTailer(opts DirOptions) (*DirectoryTailer, error) {
	includeSrc := opts.Include
	if includeSrc == nil {
		includeSrc = DefaultInclude
	}
	ignoreSrc := opts.Ignore
	if ignoreSrc == nil {
		ignoreSrc = DefaultIgnore
	}
	include, err := compilePatterns(includeSrc)
	if err != nil {
		return nil, fmt.Errorf("include pattern: %w", err)
	}
	ignore, err := compilePatterns(ignoreSrc)
	if err != nil {
		return nil, fmt.Errorf("ignore pattern: %w", err)
	}
	stopTimeout := opts.ChildStopTimeout
	if stopTimeout <= 0 {
		stopTimeout = defaultChildStopTimeout
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	return &DirectoryTailer{
		dir:              dir,
		include:          include,
		ignore:           ignore,
		interval:         opts.Interval,
		maxBackoff:       opts.MaxBackoff,
		fromEnd:          opts.FromEnd,
		childStopTimeout: stopTimeout,
		emit:             opts.Emit,
		children:         make(map[string]*FileTailer),
	}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Start performs one immediate scan and registers the directory change-hint
// watcher. A missing or unreadable directory is warned, not fatal: a later
// Scan retries. The watcher cannot be registered on a missing directory, so
// in that case only an explicit Scan picks the directory up. Idempotent.
func (d *DirectoryTailer) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	d.Scan()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		d.warnDir("change hints unavailable", err)
		return
	}
	if err := w.Add(d.dir); err != nil {
		d.warnDir("change hints unavailable", err)
		w.Close()
		return
	}
	d.watcher = w
	d.watchDone = make(chan struct{})
	go d.watchLoop()
}

// watchLoop turns filesystem events into debounced rescans and per-file
// pokes. It exits when the watcher is closed.
func (d *DirectoryTailer) watchLoop() {
	defer close(d.watchDone)
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				d.scheduleScan()
			}
			if ev.Has(fsnotify.Write) {
				d.mu.Lock()
				c := d.children[filepath.Clean(ev.Name)]
				d.mu.Unlock()
				if c != nil {
					c.Poke()
				}
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.warnDir("watcher error", err)
		}
	}
}

// scheduleScan debounces bursts of hints into one scan.
func (d *DirectoryTailer) scheduleScan() {
	d.debounceMu.Lock()
	defer d.debounceMu.Unlock()
	if d.debounceTimer != nil {
		d.debounceTimer.Stop()
	}
	d.debounceTimer = time.AfterFunc(rescanDebounce, d.Scan)
}

// Scan reconciles the child set against the directory's current contents.
// Single-flighted: a scan requested while one is running is dropped, as is
// any scan after Stop.
func (d *DirectoryTailer) Scan() {
	if d.stopped.Load() {
		return
	}
	if !d.scanning.CompareAndSwap(false, true) {
		return
	}
	defer d.scanning.Store(false)

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.warnDir("directory scan failed", err)
		return
	}

	want := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d.selects(e.Name()) {
			want[filepath.Join(d.dir, e.Name())] = true
		}
	}

	var toStart, toStop []*FileTailer
	d.mu.Lock()
	for path, c := range d.children {
		if !want[path] {
			delete(d.children, path)
			toStop = append(toStop, c)
		}
	}
	for path := range want {
		if _, ok := d.children[path]; ok {
			continue
		}
		c := NewFileTailer(FileOptions{
			Path:       path,
			Interval:   d.interval,
			MaxBackoff: d.maxBackoff,
			FromEnd:    d.fromEnd,
			Emit:       d.forward,
		})
		d.children[path] = c
		toStart = append(toStart, c)
	}
	d.mu.Unlock()

	for _, c := range toStart {
		c.Start()
	}
	for _, c := range toStop {
		go d.stopChild(c)
	}
}

// selects applies the include and ignore pattern sets to a basename.
func (d *DirectoryTailer) selects(base string) bool {
	for _, re := range d.ignore {
		if re.MatchString(base) {
			return false
		}
	}
	for _, re := range d.include {
		if re.MatchString(base) {
			return true
		}
	}
	return false
}

// forward annotates data events with their family and passes everything up.
func (d *DirectoryTailer) forward(ev Event) {
	if ev.Kind == KindData {
		ev.Family = FamilyFor(ev.File)
	}
	d.emit(ev)
}

// stopChild stops one child, abandoning it with a warning if it does not
// finish within the stop timeout.
func (d *DirectoryTailer) stopChild(c *FileTailer) {
	go c.Stop()
	select {
	case <-c.Done():
	case <-time.After(d.childStopTimeout):
		d.warnDir("child stop timed out, abandoning "+c.Path(), nil)
	}
}

// Stop cancels the pending debounce, tears down the watcher, and stops every
// child in parallel. Each child stop is bounded; a stuck child is abandoned
// so Stop itself always returns. Idempotent.
func (d *DirectoryTailer) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}

	d.debounceMu.Lock()
	if d.debounceTimer != nil {
		d.debounceTimer.Stop()
	}
	d.debounceMu.Unlock()

	if d.watcher != nil {
		d.watcher.Close()
		<-d.watchDone
	}

	d.mu.Lock()
	children := make([]*FileTailer, 0, len(d.children))
	for _, c := range d.children {
		children = append(children, c)
	}
	d.children = make(map[string]*FileTailer)
	d.mu.Unlock()

	var g errgroup.Group
	for _, c := range children {
		c := c
		g.Go(func() error {
			d.stopChild(c)
			return nil
		})
	}
	_ = g.Wait()
}

// TailedFile describes one currently followed file for status reporting.
type TailedFile struct {
	Path   string `json:"path"`
	File   string `json:"file"`
	Family string `json:"family"`
	Offset int64  `json:"offset"`
}

// Tailed lists the currently followed files.
func (d *DirectoryTailer) Tailed() []TailedFile {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TailedFile, 0, len(d.children))
	for path, c := range d.children {
		base := filepath.Base(path)
		out = append(out, TailedFile{
			Path:   path,
			File:   base,
			Family: FamilyFor(base),
			Offset: c.Offset(),
		})
	}
	return out
}

func (d *DirectoryTailer) warnDir(msg string, err error) {
	d.emit(Event{Kind: KindWarn, Path: d.dir, Msg: msg, Err: err})
}
