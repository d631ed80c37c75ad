package ctl

import "fmt"

// Health checks daemon health and renders the per-component report.
func Health(baseURL string, jsonOut bool) error {
	var resp struct {
		Healthy bool           `json:"healthy"`
		Checks  map[string]any `json:"checks"`
	}
	if err := getJSON(baseURL, "/healthz", &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}

	fmt.Println()
	if resp.Healthy {
		fmt.Printf("  %s\n", colorize(green, "healthy"))
	} else {
		fmt.Printf("  %s\n", colorize(red, "unhealthy"))
	}
	for name, check := range resp.Checks {
		m, ok := check.(map[string]any)
		if !ok {
			continue
		}
		mark := colorize(green, "ok")
		if okVal, _ := m["ok"].(bool); !okVal {
			mark = colorize(red, "fail")
		}
		fmt.Printf("    %s %s\n", padRight(name, 12), mark)
		if errMsg, _ := m["error"].(string); errMsg != "" {
			fmt.Printf("      %s\n", colorize(dim, errMsg))
		}
	}
	fmt.Println()
	return nil
}
