package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/server"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind string
	var narration bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the vigil dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if cmd.Flags().Changed("narration") {
				cfg.Detection.Narration = narration
			}

			logger, level := newLogger(os.Stderr, cfg.Server.LogLevel)

			srv, err := server.NewServer(cfg, cfgFile, logger, server.Options{
				LogLevel: level,
				Version:  version,
			})
			if err != nil {
				return err
			}

			printBanner(cfg)

			// Graceful shutdown on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	cmd.Flags().BoolVar(&narration, "narration", false, "start with natural-language narration enabled")
	return cmd
}

func printBanner(cfg *config.Config) {
	bindAddr := cfg.Server.Bind
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}

	nlp := "off"
	if cfg.Detection.Narration {
		nlp = "on"
	}

	fmt.Println()
	fmt.Println("  vigil dashboard")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Live:       http://%s:%d/\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  History:    http://%s:%d/history\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  Health:     http://%s:%d/health\n", bindAddr, cfg.Server.Port)
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Backend:    %s\n", cfg.Backend.URL)
	fmt.Printf("  Narration: %s  |  Webhooks: %d\n", nlp, len(cfg.Webhooks))
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop.")
	fmt.Println()
}
