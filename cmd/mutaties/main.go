package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const programName = "mutaties"

var globalFlags = struct {
	duration    int
	quick       bool
	stopExactly int
	metricsAddr string
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Background processors of the competition and cart mutation queues",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().IntVar(&globalFlags.duration, "duration", 60, "run length in minutes")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.quick, "quick", false, "read --duration as seconds")
	rootCmd.PersistentFlags().IntVar(&globalFlags.stopExactly, "stop-exactly", -1, "stop at this minute of the hour (0-59)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.metricsAddr, "metrics-addr", "", "Prometheus listen address, overrides WORKER_METRICS_ADDR")

	rootCmd.AddCommand(queueCommand(queueCompetition))
	rootCmd.AddCommand(queueCommand(queueCart))
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(tokenCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
