package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Family []string // families to show (empty = all)
	JSON   bool     // output raw JSON per message
}

// Watch connects to the daemon's WebSocket mirror and streams events to the
// terminal in a human-readable format until interrupted.
func Watch(baseURL string, opts WatchOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/v1/events/zabbix/ws"
	u.RawQuery = ""

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(green, "connected"), colorize(dim, u.String()))
		if len(opts.Family) > 0 {
			fmt.Printf("  %s %s\n", colorize(dim, "family:"), colorize(dim, strings.Join(opts.Family, ", ")))
		}
		fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))
		fmt.Println()
	}

	familySet := make(map[string]bool, len(opts.Family))
	for _, f := range opts.Family {
		familySet[f] = true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var m struct {
				Type     string `json:"type"`
				TS       string `json:"ts"`
				Event    string `json:"event"`
				Level    string `json:"level"`
				Message  string `json:"message"`
				Envelope *struct {
					ID     uint64 `json:"id"`
					Source struct {
						File   string `json:"file"`
						Family string `json:"family"`
					} `json:"source"`
					Record json.RawMessage `json:"record"`
				} `json:"envelope"`
			}
			if err := json.Unmarshal(msg, &m); err != nil {
				fmt.Printf("  %s\n", string(msg))
				continue
			}

			if len(familySet) > 0 {
				if m.Envelope == nil || !familySet[m.Envelope.Source.Family] {
					continue
				}
			}

			if opts.JSON {
				fmt.Println(string(msg))
				continue
			}
			renderMessage(m.Type, m.TS, m.Level, m.Message, m.Envelope)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Println()
			fmt.Println(colorize(dim, "  disconnecting..."))
		}
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(1*time.Second),
		)
		return nil
	case <-done:
		return nil
	}
}

func renderMessage(typ, ts, level, message string, env *struct {
	ID     uint64 `json:"id"`
	Source struct {
		File   string `json:"file"`
		Family string `json:"family"`
	} `json:"source"`
	Record json.RawMessage `json:"record"`
}) {
	short := shortTime(ts)
	switch typ {
	case "event":
		if env == nil {
			return
		}
		fmt.Printf("  %s %s %s %s\n",
			colorize(dim, short),
			colorize(dim, fmt.Sprintf("#%-8d", env.ID)),
			colorize(familyColor(env.Source.Family), padRight(env.Source.Family, 13)),
			string(env.Record),
		)
	case "log":
		label := colorize(green, "INFO ")
		if level == "warn" {
			label = colorize(yellow, "WARN ")
		}
		fmt.Printf("  %s %s %s\n", colorize(dim, short), label, message)
	default:
		fmt.Printf("  %s %s\n", colorize(dim, short), typ)
	}
}

// shortTime shortens an RFC 3339 timestamp to local wall-clock time.
func shortTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "        "
	}
	return t.Local().Format("15:04:05")
}
