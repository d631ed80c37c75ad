package ctl

import (
	"fmt"
	"time"
)

type statusResponse struct {
	Name          string `json:"name"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ExportDir     string `json:"export_dir"`
	DemoEnabled   bool   `json:"demo_enabled"`
	SSEClients    int    `json:"sse_clients"`
	Files         []struct {
		File   string `json:"file"`
		Family string `json:"family"`
		Offset int64  `json:"offset"`
	} `json:"files"`
	Ring struct {
		Capacity int    `json:"capacity"`
		Resident int    `json:"resident"`
		LatestID uint64 `json:"latest_id"`
		Pushed   uint64 `json:"pushed"`
	} `json:"ring"`
}

// Status fetches and renders the daemon's status summary.
func Status(baseURL string, jsonOut bool) error {
	var st statusResponse
	if err := getJSON(baseURL, "/api/status", &st); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}

	fmt.Println()
	fmt.Printf("  %s\n", colorize(bold, st.Name))
	fmt.Printf("  %-14s %s\n", colorize(dim, "Uptime:"), formatDuration(time.Duration(st.UptimeSeconds)*time.Second))
	fmt.Printf("  %-14s %s\n", colorize(dim, "Export dir:"), st.ExportDir)
	mode := "live"
	if st.DemoEnabled {
		mode = "demo"
	}
	fmt.Printf("  %-14s %s\n", colorize(dim, "Mode:"), mode)
	fmt.Printf("  %-14s %d resident / %d capacity, latest id %d\n",
		colorize(dim, "Ring:"), st.Ring.Resident, st.Ring.Capacity, st.Ring.LatestID)
	fmt.Printf("  %-14s %d\n", colorize(dim, "SSE clients:"), st.SSEClients)

	if len(st.Files) > 0 {
		fmt.Println()
		fmt.Printf("  %s\n", colorize(bold, "FILES"))
		for _, f := range st.Files {
			fmt.Printf("    %s %s offset=%d\n",
				colorize(familyColor(f.Family), padRight(f.Family, 13)), f.File, f.Offset)
		}
	}
	fmt.Println()
	return nil
}
