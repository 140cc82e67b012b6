package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/monitor"
)

func newProbeCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the detection backend is reachable",
		Example: `  vigil probe
  vigil probe --interval 5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := backend.NewClient(cfg.Backend.URL, cfg.Backend.ProbeTimeout)
			prober := monitor.NewProber(client, 0, quietLogger(), nil)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				st := prober.Check(ctx)
				fmt.Println(formatStatus(cfg.Backend.URL, st))
				if interval <= 0 {
					if !st.Connected {
						return fmt.Errorf("backend unreachable")
					}
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "keep probing at this interval")
	return cmd
}

func formatStatus(url string, st monitor.Status) string {
	line := fmt.Sprintf("%s  %s  %s", st.CheckedAt.Local().Format("15:04:05"), url, upDown(st.Connected))
	if st.Error != "" {
		line += "  " + faint.Sprint(st.Error)
	}
	return line
}

