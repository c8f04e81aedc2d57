package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "gridmap",
		Short:        "Transfer nodal fields between non-matching meshes",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging regardless of echo_level")
	root.AddCommand(newMapCmd(&verbose))
	return root
}

// newLogger maps the echo level onto logrus levels
func newLogger(cmd *cobra.Command, echoLevel int, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case verbose || echoLevel >= 3:
		log.SetLevel(logrus.DebugLevel)
	case echoLevel >= 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}
