package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend reachability and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			fmt.Println()
			fmt.Println("  vigil status")
			fmt.Println("  ────────────────────────────────────────")
			fmt.Printf("  Config:        %s\n", cfgFile)
			fmt.Printf("  Backend:       %s\n", cfg.Backend.URL)
			fmt.Printf("  Channel:       %s\n", cfg.ChannelURL())
			fmt.Printf("  Narration:     %s\n", onOff(cfg.Detection.Narration))
			fmt.Printf("  Video:         %s\n", cfg.Video.DefaultID)
			fmt.Printf("  Probe:         %s\n", probeInterval(cfg.Probe.Interval))
			fmt.Printf("  Cache:         %s\n", cacheSummary(cfg.Cache))
			fmt.Printf("  Webhooks:      %d configured\n", len(cfg.Webhooks))

			client := backend.NewClient(cfg.Backend.URL, cfg.Backend.ProbeTimeout)
			fmt.Println("  ────────────────────────────────────────")
			if err := client.Probe(ctx); err != nil {
				fmt.Printf("  Backend:       %s (%v)\n", upDown(false), err)
			} else {
				fmt.Printf("  Backend:       %s\n", upDown(true))
				if records, err := client.History(ctx); err == nil {
					fmt.Printf("  History:       %d records\n", len(records))
					fmt.Printf("  Armed:         %d\n", lo.CountBy(records, func(r backend.Record) bool { return r.Gun || r.Knife }))
				}
			}

			fmt.Printf("  Dashboard:     %s\n", dashboardStatus(ctx, cfg))
			fmt.Println()
			return nil
		},
	}
}

func probeInterval(d time.Duration) string {
	if d <= 0 {
		return "once at startup"
	}
	return "every " + d.String()
}

func cacheSummary(c config.CacheConfig) string {
	if c.RedisAddr != "" {
		return fmt.Sprintf("redis %s, ttl %s", c.RedisAddr, c.TTL)
	}
	return fmt.Sprintf("memory, ttl %s", c.TTL)
}

// dashboardStatus asks a running `vigil serve` for its health.
func dashboardStatus(ctx context.Context, cfg *config.Config) string {
	bind := cfg.Server.Bind
	if bind == "" || bind == "0.0.0.0" {
		bind = "127.0.0.1"
	}
	url := "http://" + net.JoinHostPort(bind, strconv.Itoa(cfg.Server.Port)) + "/health"

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "not running"
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "not running"
	}
	defer func() { _ = resp.Body.Close() }()

	var health struct {
		Version   string `json:"version"`
		Connected bool   `json:"connected"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&health) != nil {
		return fmt.Sprintf("unexpected response from %s", url)
	}
	return fmt.Sprintf("running %s (backend %s)", health.Version, upDown(health.Connected))
}
