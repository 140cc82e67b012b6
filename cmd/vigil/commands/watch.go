package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vigilhq/vigil/internal/detect"
	"github.com/vigilhq/vigil/internal/server"
	"github.com/vigilhq/vigil/internal/tui"
)

func newWatchCmd() *cobra.Command {
	var narration, plain bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show live detections in the terminal",
		Long: `Subscribes to the detection backend and renders the live dashboard in the
terminal. When stdout is not a terminal, or with --plain, alerts are printed
one per line instead.`,
		Example: `  vigil watch
  vigil watch --narration
  vigil watch --plain | tee alerts.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("narration") {
				cfg.Detection.Narration = narration
			}

			interactive := !plain && term.IsTerminal(int(os.Stdout.Fd()))

			// The TUI owns the screen, so only errors reach stderr.
			level := cfg.Server.LogLevel
			if interactive {
				level = "error"
			}
			logger, _ := newLogger(os.Stderr, level)

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

			id, states := core.Listener.Subscribe()
			defer core.Listener.Unsubscribe(id)

			if !interactive {
				printStates(ctx, states, os.Stdout)
				return nil
			}

			p := tea.NewProgram(tui.New(states, tui.Actions{
				SetNarration: core.Listener.SetNarration,
				Recheck:      core.Prober.Recheck,
			}), tea.WithAltScreen())
			exited := make(chan struct{})
			defer close(exited)
			go func() {
				select {
				case <-ctx.Done():
					p.Quit()
				case <-exited:
				}
			}()
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().BoolVar(&narration, "narration", false, "subscribe with natural-language narration")
	cmd.Flags().BoolVar(&plain, "plain", false, "print alerts line by line instead of the interactive view")
	return cmd
}

// printStates writes connectivity changes and new alerts until ctx is done
// or states is closed.
func printStates(ctx context.Context, states <-chan detect.State, w io.Writer) {
	var (
		seen      = map[string]bool{}
		connected *bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			if connected == nil || *connected != s.Connected {
				c := s.Connected
				connected = &c
				fmt.Fprintf(w, "backend %s\n", upDown(c)) //nolint:errcheck // CLI output
			}
			// History is newest first; print unseen entries oldest first.
			next := make(map[string]bool, len(s.History))
			for i := len(s.History) - 1; i >= 0; i-- {
				e := s.History[i]
				next[e.ID] = true
				if !seen[e.ID] {
					fmt.Fprintln(w, formatEntry(e)) //nolint:errcheck // CLI output
				}
			}
			seen = next
		}
	}
}

func formatEntry(e detect.HistoryEntry) string {
	lvl := e.Type.Level()
	return fmt.Sprintf("%s  %s  %s",
		e.Timestamp.Local().Format("15:04:05"),
		levelColor(lvl).Sprintf("%-8s", lvl),
		e.Label(),
	)
}
