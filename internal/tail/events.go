// Package tail follows the append-only NDJSON files that a Zabbix server
// writes into its real-time export directory. A FileTailer tracks one file
// through appends, truncations, and rotations; a DirectoryTailer keeps one
// FileTailer per matching file and classifies every emitted record into a
// family. Consumers receive a flat stream of typed events through a single
// callback.
package tail

// Kind identifies the kind of tail event.
type Kind string

const (
	// KindReady is emitted once per successful open of a followed file.
	KindReady Kind = "ready"
	// KindData carries one complete line from a followed file.
	KindData Kind = "data"
	// KindInfo reports rotations, truncations, and other expected
	// lifecycle transitions.
	KindInfo Kind = "info"
	// KindWarn reports recoverable I/O errors; the tailer keeps going.
	KindWarn Kind = "warn"
	// KindParseError is reserved for record-structural validation.
	KindParseError Kind = "parse_error"
)

// Event is the unit delivered to the tail consumer.
type Event struct {
	Kind Kind

	// Path is the absolute path of the originating file (the directory
	// itself on directory-level warnings); File its basename.
	Path string
	File string

	// Family is the classification tag, set by the DirectoryTailer on
	// data events. Empty on events emitted by a bare FileTailer.
	Family string

	// Line is the raw line for data events, without its terminator.
	Line string

	// Size and Inode describe the file at open time on ready events.
	Size  int64
	Inode uint64

	// Msg describes info and warn events; Err carries the underlying
	// error on warn events when one exists.
	Msg string
	Err error
}
