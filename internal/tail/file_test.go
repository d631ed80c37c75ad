package tail

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects emitted events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == KindData {
			out = append(out, ev.Line)
		}
	}
	return out
}

func (r *recorder) infos() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == KindInfo {
			out = append(out, ev.Msg)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func startTailer(t *testing.T, path string, rec *recorder, fromEnd bool) *FileTailer {
	t.Helper()
	ft := NewFileTailer(FileOptions{
		Path:       path,
		Interval:   20 * time.Millisecond,
		MaxBackoff: 100 * time.Millisecond,
		FromEnd:    fromEnd,
		Emit:       rec.emit,
	})
	ft.Start()
	t.Cleanup(ft.Stop)
	return ft
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(data)
	require.NoError(t, err)
}

func TestEmitsAppendedLinesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problems-a.ndjson")
	appendFile(t, path, "")
	rec := &recorder{}
	startTailer(t, path, rec, false)

	appendFile(t, path, "{\"a\":1}\n{\"a\":2}\n")
	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 2 })
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, rec.lines())
}

func TestPartialLineHeldUntilTerminated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problems-a.ndjson")
	appendFile(t, path, "")
	rec := &recorder{}
	startTailer(t, path, rec, false)

	appendFile(t, path, `{"a":`)
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.lines(), "no line may be emitted before its newline")

	appendFile(t, path, "3}\n")
	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 1 })
	assert.Equal(t, []string{`{"a":3}`}, rec.lines())
}

func TestCRLFAndEmptyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history-a.ndjson")
	appendFile(t, path, "")
	rec := &recorder{}
	startTailer(t, path, rec, false)

	appendFile(t, path, "{\"x\":1}\r\n\r\n\n{\"x\":2}\n")
	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 2 })
	assert.Equal(t, []string{`{"x":1}`, `{"x":2}`}, rec.lines())
}

func TestTruncationResetsToStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history-a.ndjson")
	appendFile(t, path, "{\"n\":1}\n{\"n\":2}\n")
	rec := &recorder{}
	startTailer(t, path, rec, false)

	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 2 })

	require.NoError(t, os.Truncate(path, 0))
	appendFile(t, path, "{\"n\":3}\n")

	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 3 })
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, rec.lines())

	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(strings.Join(rec.infos(), " "), "shrank")
	})
}

func TestRotationReadsNewFileFromStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "problems-a.ndjson")
	appendFile(t, path, "{\"old\":1}\n")
	rec := &recorder{}
	startTailer(t, path, rec, false)

	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 1 })

	// Replace the inode under the same path.
	require.NoError(t, os.Remove(path))
	appendFile(t, path, "{\"new\":1}\n")

	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 2 })
	assert.Equal(t, []string{`{"old":1}`, `{"new":1}`}, rec.lines())
	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(strings.Join(rec.infos(), " "), "inode changed")
	})
}

func TestRotationDiscardsBufferedPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "problems-a.ndjson")
	appendFile(t, path, `{"old":`)
	rec := &recorder{}
	startTailer(t, path, rec, false)

	// Let the tailer buffer the unterminated prefix, then rotate.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.Remove(path))
	appendFile(t, path, "{\"new\":1}\n")

	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 1 })
	assert.Equal(t, []string{`{"new":1}`}, rec.lines())
}

func TestFromEndSkipsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problems-a.ndjson")
	appendFile(t, path, "{\"pre\":1}\n")
	rec := &recorder{}
	startTailer(t, path, rec, true)

	// Wait for the open before appending, or the new line lands "before"
	// the end the tailer starts from.
	waitFor(t, 2*time.Second, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		for _, ev := range rec.events {
			if ev.Kind == KindReady {
				return true
			}
		}
		return false
	})

	appendFile(t, path, "{\"post\":1}\n")
	waitFor(t, 2*time.Second, func() bool { return len(rec.lines()) == 1 })
	assert.Equal(t, []string{`{"post":1}`}, rec.lines())
}

func TestMissingFileWarnsAndRecovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "problems-a.ndjson")
	rec := &recorder{}
	startTailer(t, path, rec, false)

	waitFor(t, 2*time.Second, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		for _, ev := range rec.events {
			if ev.Kind == KindWarn {
				return true
			}
		}
		return false
	})

	appendFile(t, path, "{\"late\":1}\n")
	waitFor(t, 3*time.Second, func() bool { return len(rec.lines()) == 1 })
	assert.Equal(t, []string{`{"late":1}`}, rec.lines())
}

func TestLargeAppendReadInChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history-big.ndjson")
	appendFile(t, path, "")
	rec := &recorder{}
	startTailer(t, path, rec, false)

	// Well past one 64 KiB chunk.
	line := `{"pad":"` + strings.Repeat("x", 1000) + `"}`
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	appendFile(t, path, sb.String())

	waitFor(t, 5*time.Second, func() bool { return len(rec.lines()) == 200 })
	for _, got := range rec.lines() {
		assert.Equal(t, line, got)
	}
}

func TestStopIsIdempotentAndBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problems-a.ndjson")
	appendFile(t, path, "{\"a\":1}\n")
	rec := &recorder{}
	ft := startTailer(t, path, rec, false)

	done := make(chan struct{})
	go func() {
		ft.Stop()
		ft.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}

	select {
	case <-ft.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestPokeTriggersImmediateCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problems-a.ndjson")
	appendFile(t, path, "")
	rec := &recorder{}
	ft := NewFileTailer(FileOptions{
		Path:       path,
		Interval:   30 * time.Millisecond,
		MaxBackoff: 10 * time.Second, // idle backoff grows huge fast
		Emit:       rec.emit,
	})
	ft.Start()
	t.Cleanup(ft.Stop)

	// Let the backoff climb while the file is idle.
	time.Sleep(400 * time.Millisecond)

	appendFile(t, path, "{\"a\":1}\n")
	ft.Poke()
	waitFor(t, time.Second, func() bool { return len(rec.lines()) == 1 })
}

// Segmentation property: however the bytes arrive, the emitted lines equal
// the concatenation split on newlines, with \r stripped and blanks dropped.
func TestLineAssemblyUnderArbitrarySegmentation(t *testing.T) {
	input := "{\"a\":1}\n{\"b\":2}\r\n\n{\"c\":3}\n{\"d\":"
	wantLines := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}

	for _, chunkSize := range []int{1, 2, 3, 5, 7, len(input)} {
		rec := &recorder{}
		ft := NewFileTailer(FileOptions{Path: "x", Emit: rec.emit})
		for i := 0; i < len(input); i += chunkSize {
			end := i + chunkSize
			if end > len(input) {
				end = len(input)
			}
			ft.onBytes([]byte(input[i:end]))
		}
		assert.Equal(t, wantLines, rec.lines(), "chunk size %d", chunkSize)
		// The unterminated suffix stays buffered.
		assert.Equal(t, `{"d":`, string(ft.buf), "chunk size %d", chunkSize)
	}
}
