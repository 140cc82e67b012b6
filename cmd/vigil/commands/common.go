package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/detect"
	"github.com/vigilhq/vigil/internal/server"
)

// loadConfig reads --config, falling back to defaults when the file is
// missing, and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a text logger whose level can be changed at runtime.
func newLogger(w io.Writer, level string) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(server.ParseLevel(level))
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), lv
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	critical = color.New(color.FgRed, color.Bold)
	high     = color.New(color.FgYellow, color.Bold)
	medium   = color.New(color.FgCyan)
	faint    = color.New(color.Faint)
	good     = color.New(color.FgGreen)
)

func levelColor(l detect.Level) *color.Color {
	switch l {
	case detect.LevelCritical:
		return critical
	case detect.LevelHigh:
		return high
	case detect.LevelMedium:
		return medium
	}
	return faint
}

func yesNo(b bool) string {
	if b {
		return critical.Sprint("yes")
	}
	return faint.Sprint("no ")
}

func upDown(b bool) string {
	if b {
		return good.Sprint("connected")
	}
	return critical.Sprint("disconnected")
}
