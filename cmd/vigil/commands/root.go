package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "vigil",
		Short: "Live dashboard for a video threat-detection backend",
		Long:  "Vigil subscribes to a detection backend, shows live alerts with response guidance, and drives the video and detection controls.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "vigil.yaml", "config file path")

	root.AddCommand(
		newServeCmd(),
		newWatchCmd(),
		newHistoryCmd(),
		newControlCmd(),
		newProbeCmd(),
		newStatusCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)

	return root
}
