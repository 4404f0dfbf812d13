package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

const defaultRendezvous = "ws://localhost:9000"

type globalFlags struct {
	logFile    string
	logLevel   string
	rendezvous string
	noTUI      bool
	lanOnly    bool
}

func main() {
	var g globalFlags
	cmd := &cobra.Command{
		Use:   "nwshare",
		Short: "Share files peer to peer with a short session code",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(g.logFile, g.logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&g.logFile, "log-file", "nwshare.log", "Where to write logs")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&g.rendezvous, "rendezvous", defaultRendezvous, "Rendezvous service address")
	cmd.PersistentFlags().BoolVar(&g.noTUI, "no-tui", false, "Print plain progress instead of the terminal UI")
	cmd.PersistentFlags().BoolVar(&g.lanOnly, "lan", false, "Only use local network ICE candidates")

	cmd.AddCommand(
		newSendCommand(&g),
		newReceiveCommand(&g),
		newRendezvousCommand(),
		newDiscoverCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fang.Execute(ctx, cmd); err != nil {
		os.Exit(1)
	}
}
