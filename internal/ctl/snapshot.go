package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// SnapshotOptions controls the snapshot query.
type SnapshotOptions struct {
	Family  string
	Limit   int
	SinceID uint64
	JSON    bool
}

type envelope struct {
	ID     uint64 `json:"id"`
	Time   int64  `json:"time"`
	Source struct {
		File   string `json:"file"`
		Family string `json:"family"`
	} `json:"source"`
	Record json.RawMessage `json:"record"`
}

// Snapshot queries the recent-history endpoint and renders the envelopes.
func Snapshot(baseURL string, opts SnapshotOptions) error {
	params := url.Values{}
	if opts.Family != "" {
		params.Set("family", opts.Family)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.SinceID > 0 {
		params.Set("sinceId", strconv.FormatUint(opts.SinceID, 10))
	}
	path := "/v1/events/zabbix/"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		LatestID uint64     `json:"latestId"`
		Items    []envelope `json:"items"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Printf("  %s %d, %d item(s)\n", colorize(dim, "latest id"), resp.LatestID, len(resp.Items))
	for _, e := range resp.Items {
		ts := time.UnixMilli(e.Time).Local().Format("15:04:05")
		fmt.Printf("  %s %s %s %s\n",
			colorize(dim, fmt.Sprintf("#%-8d", e.ID)),
			colorize(dim, ts),
			colorize(familyColor(e.Source.Family), padRight(e.Source.Family, 13)),
			string(e.Record),
		)
	}
	fmt.Println()
	return nil
}
