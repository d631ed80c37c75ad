// Package ring provides the bounded in-memory log of exported records. Every
// record pushed gets a process-unique, strictly increasing id; the newest C
// records stay resident and are queryable by id range and family. Replay is
// best-effort: records evicted by capacity pressure are simply gone.
package ring

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Query limits, mirroring the snapshot endpoint's contract.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 10000
)

// Source identifies where a record came from.
type Source struct {
	File   string `json:"file"`
	Family string `json:"family"`
}

// Envelope is the stored and broadcast unit: id + insertion time + source +
// the opaque record payload.
type Envelope struct {
	ID     uint64          `json:"id"`
	Time   int64           `json:"time"`
	Source Source          `json:"source"`
	Record json.RawMessage `json:"record"`
}

// Buffer is a fixed-capacity ring of envelopes. Safe for concurrent use;
// push and query hold one short lock so a query sees each push fully or not
// at all.
type Buffer struct {
	mu     sync.Mutex
	slots  []Envelope
	next   int // write cursor
	count  int
	nextID uint64
}

// New builds a buffer holding the latest capacity envelopes.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, errors.New("ring: capacity must be > 0")
	}
	return &Buffer{
		slots:  make([]Envelope, capacity),
		nextID: 1,
	}, nil
}

// Push stores a record and returns the completed envelope. The record is
// kept verbatim when it is a valid JSON value; anything else is wrapped as a
// JSON string so the envelope always serializes cleanly.
func (b *Buffer) Push(file, family string, record []byte) Envelope {
	payload := make(json.RawMessage, len(record))
	copy(payload, record)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(record))
		if err != nil {
			quoted = []byte(`""`)
		}
		payload = quoted
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	env := Envelope{
		ID:     b.nextID,
		Time:   time.Now().UnixMilli(),
		Source: Source{File: file, Family: family},
		Record: payload,
	}
	b.nextID++
	b.slots[b.next] = env
	b.next = (b.next + 1) % len(b.slots)
	if b.count < len(b.slots) {
		b.count++
	}
	return env
}

// LatestID returns the highest id assigned so far, 0 before the first push.
func (b *Buffer) LatestID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextID - 1
}

// Len returns the number of resident envelopes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the fixed slot count.
func (b *Buffer) Capacity() int { return len(b.slots) }

// Query selects resident envelopes in ascending id order.
type Query struct {
	// Family restricts results to one family when non-empty.
	Family string
	// SinceID excludes envelopes with id <= SinceID.
	SinceID uint64
	// Limit caps the result length. Clamped to [1, MaxQueryLimit];
	// zero or negative means DefaultQueryLimit.
	Limit int
}

// Query walks from the oldest resident envelope toward the newest and
// returns everything matching, up to the limit.
func (b *Buffer) Query(q Query) []Envelope {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Envelope, 0)
	oldest := (b.next - b.count + len(b.slots)) % len(b.slots)
	for i := 0; i < b.count && len(out) < limit; i++ {
		env := b.slots[(oldest+i)%len(b.slots)]
		if env.ID <= q.SinceID {
			continue
		}
		if q.Family != "" && env.Source.Family != q.Family {
			continue
		}
		out = append(out, env)
	}
	return out
}
