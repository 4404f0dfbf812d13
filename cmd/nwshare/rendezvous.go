package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/nwshare/api"
)

func newRendezvousCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "rendezvous",
		Short: "Run the signaling service peers meet at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRendezvous(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":9000", "Address to listen on")
	return cmd
}

func runRendezvous(ctx context.Context, listen string) error {
	hub := api.NewHub(slog.Default())
	srv := &http.Server{
		Addr:              listen,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Printf("Rendezvous listening on %s\n", listen)
	slog.Info("Rendezvous listening", "addr", listen)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
