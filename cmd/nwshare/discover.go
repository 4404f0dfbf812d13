package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/nwshare/pkg/discovery"
)

func newDiscoverCommand() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List sessions announced on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			return runDiscover(ctx, &discovery.MDNSAdapter{})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "How long to listen for announcements")
	return cmd
}

func runDiscover(ctx context.Context, adapter discovery.Adapter) error {
	var latest []discovery.ServiceInfo
	for res := range adapter.Discover(ctx, discovery.DefaultServiceType+"."+discovery.DefaultDomain+".") {
		if res.Error != nil {
			return res.Error
		}
		latest = res.Services
	}
	if len(latest) == 0 {
		fmt.Println("No sessions found")
		return nil
	}
	for _, s := range latest {
		lock := ""
		if s.Locked {
			lock = " (password)"
		}
		fmt.Printf("%-24s code %s  rendezvous %s%s\n", s.Name, s.Code, s.Rendezvous, lock)
	}
	return nil
}
