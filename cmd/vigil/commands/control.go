package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/control"
	"github.com/vigilhq/vigil/internal/monitor"
)

func newControlCmd() *cobra.Command {
	names := make([]string, len(backend.Actions))
	for i, a := range backend.Actions {
		names[i] = string(a)
	}

	return &cobra.Command{
		Use:       "control <action>",
		Short:     "Switch the video source or start/stop detection",
		Long:      "Actions: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := backend.ParseAction(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := quietLogger()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			client := backend.NewClient(cfg.Backend.URL, cfg.Backend.ProbeTimeout)
			prober := monitor.NewProber(client, 0, logger, nil)
			prober.Check(ctx)

			panel := control.NewPanel(client, prober, cfg.Video.DefaultID, logger, nil)
			st, err := panel.Do(ctx, action)
			if errors.Is(err, control.ErrNotConnected) {
				return fmt.Errorf("%s: backend at %s is not reachable", action, cfg.Backend.URL)
			}
			if err != nil {
				return err
			}

			fmt.Printf("%s  %s\n", good.Sprint("ok"), action)
			fmt.Printf("  Source:     %s\n", st.Source)
			fmt.Printf("  Video:      %s\n", client.VideoFeedURL(st.VideoID))
			fmt.Printf("  Detection:  %s\n", onOff(st.Detecting))
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "active"
	}
	return "inactive"
}
