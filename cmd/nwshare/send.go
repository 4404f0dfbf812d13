package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rescp17/nwshare/api"
	appevents "github.com/rescp17/nwshare/internal/app_events"
	senderEvent "github.com/rescp17/nwshare/internal/app_events/sender"
	"github.com/rescp17/nwshare/internal/util"
	"github.com/rescp17/nwshare/pkg/catalog"
	"github.com/rescp17/nwshare/pkg/discovery"
	"github.com/rescp17/nwshare/pkg/multiFilePicker"
	"github.com/rescp17/nwshare/pkg/sender"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/rescp17/nwshare/pkg/transfer"
	"github.com/rescp17/nwshare/pkg/ui"
	"github.com/rescp17/nwshare/pkg/webrtc"
)

const (
	codeAttempts = 5
	stopTimeout  = 30 * time.Second
)

type sendFlags struct {
	password  string
	expiry    time.Duration
	limit     int
	chunkSize int
	announce  bool
	name      string
}

func newSendCommand(g *globalFlags) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "send [path]...",
		Short: "Host a session sharing files or directories",
		Long:  "Host a session sharing files or directories. Without paths a file picker opens.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if g.noTUI {
					return errors.New("no paths given")
				}
				picked, err := multiFilePicker.Run(".")
				if err != nil {
					return err
				}
				if len(picked) == 0 {
					return errors.New("nothing selected")
				}
				args = picked
			}
			return runSend(cmd.Context(), g, f, args)
		},
	}
	cmd.Flags().StringVar(&f.password, "password", "", "Require guests to enter this password")
	cmd.Flags().DurationVar(&f.expiry, "expiry", session.DefaultExpiry, "End the session after this long (0 never expires)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "End the session after this many downloads (0 is unlimited)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", transfer.DefaultChunkSize, "Bytes per data channel message")
	cmd.Flags().BoolVar(&f.announce, "announce", false, "Advertise the session on the local network")
	cmd.Flags().StringVar(&f.name, "name", "", "Instance name used with --announce (defaults to the hostname)")
	return cmd
}

func runSend(ctx context.Context, g *globalFlags, f sendFlags, paths []string) error {
	files := catalog.New()
	for _, p := range paths {
		if _, err := files.AddPath(p); err != nil {
			return err
		}
	}
	if files.Len() == 0 {
		return errors.New("nothing to share")
	}

	cfg := transfer.DefaultConfig()
	cfg.ChunkSize = f.chunkSize
	opts := sender.Options{
		Transfer:   cfg,
		Session:    session.Config{Password: f.password, MaxDownloads: f.limit},
		Rendezvous: g.rendezvous,
		Instance:   f.name,
	}
	if f.expiry > 0 {
		opts.Session.ExpiresAt = time.Now().Add(f.expiry)
	}
	if f.announce {
		opts.Announce = &discovery.MDNSAdapter{}
		if opts.Instance == "" {
			opts.Instance, _ = os.Hostname()
		}
	}

	sig, err := registerSession(ctx, g.rendezvous)
	if err != nil {
		return err
	}
	provider := webrtc.NewProvider(sig, webrtc.Config{LANOnly: g.lanOnly})
	host, err := sender.NewApp(provider, files, opts)
	if err != nil {
		provider.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- host.Run(runCtx) }()

	if g.noTUI {
		fmt.Printf("Sharing %d file(s), %s. Session code: %s\n", files.Len(), util.FormatSize(files.TotalSize()), host.Code())
		printHostMessages(ctx, host)
	} else {
		p := tea.NewProgram(ui.NewHostModel(host), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Error("TUI failed", "error", err)
		}
	}

	// let running transfers finish unless the user interrupts again
	host.Stop()
	select {
	case <-host.Done():
	case <-time.After(stopTimeout):
		cancel()
	}
	err = <-runErr
	if reason := host.EndReason(); reason != session.EndReasonNone {
		fmt.Printf("Session %s ended (%s).\n", host.Code(), reason)
	}
	return err
}

// registerSession claims a fresh session code at the rendezvous.
func registerSession(ctx context.Context, rendezvous string) (*api.WSSignaler, error) {
	for range codeAttempts {
		code, err := session.GenerateCode()
		if err != nil {
			return nil, err
		}
		sig, err := api.Dial(ctx, rendezvous, session.PeerID(code), slog.Default())
		if errors.Is(err, api.ErrIDTaken) {
			slog.Info("Session code taken, retrying", "code", code)
			continue
		}
		return sig, err
	}
	return nil, fmt.Errorf("no free session code after %d attempts", codeAttempts)
}

func printHostMessages(ctx context.Context, host *sender.App) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-host.Done():
			return
		case msg := <-host.UIMessages():
			switch msg := msg.(type) {
			case senderEvent.PeerConnectedMsg:
				fmt.Printf("Guest %s connected\n", msg.PeerID)
			case senderEvent.PeerDisconnectedMsg:
				fmt.Println("A guest left")
			case senderEvent.TransferUpdateMsg:
				if msg.Status.State.IsTerminal() {
					fmt.Printf("%s: %s (%s)\n", msg.Status.FileName, msg.Status.State, util.FormatSize(msg.Status.BytesTransferred))
				}
			case senderEvent.ChatMsg:
				fmt.Printf("chat: %s\n", msg.Message.Text)
			case senderEvent.SessionEndingMsg:
				fmt.Printf("Session ending: %s\n", msg.Reason)
			case appevents.Error:
				fmt.Fprintf(os.Stderr, "error: %v\n", msg.Err)
			}
		}
	}
}
