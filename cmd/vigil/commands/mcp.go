package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/vigilhq/vigil/internal/mcp"
	"github.com/vigilhq/vigil/internal/server"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start vigil as an MCP server (stdio)",
		Long: `Exposes vigil as an MCP tool server. Add to your MCP client config:

  {
    "mcpServers": {
      "vigil": {
        "command": "vigil",
        "args": ["mcp", "--config", "./vigil.yaml"]
      }
    }
  }

Tools: current_detections, recent_detections, detection_history, control_video`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// stdout carries the protocol; keep logs on stderr and quiet.
			logger := quietLogger()

			core, err := server.NewCore(cfg, logger, server.Options{Version: version})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				core.Run(runCtx)
			}()
			defer func() {
				cancel()
				<-done
			}()

			s := mcpserver.NewServer(mcpserver.Deps{
				State:     core.Listener,
				History:   core.History,
				Control:   core.Panel,
				Connected: core.Prober.Connected,
			}, version, logger)
			return mcpserver.Serve(ctx, s)
		},
	}
}
