package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rescp17/nwshare/api"
	appevents "github.com/rescp17/nwshare/internal/app_events"
	receiverEvent "github.com/rescp17/nwshare/internal/app_events/receiver"
	"github.com/rescp17/nwshare/internal/util"
	"github.com/rescp17/nwshare/pkg/receiver"
	"github.com/rescp17/nwshare/pkg/session"
	"github.com/rescp17/nwshare/pkg/transfer"
	"github.com/rescp17/nwshare/pkg/ui"
	"github.com/rescp17/nwshare/pkg/webrtc"
)

const manifestTimeout = 30 * time.Second

type receiveFlags struct {
	out      string
	password string
}

func newReceiveCommand(g *globalFlags) *cobra.Command {
	var f receiveFlags
	cmd := &cobra.Command{
		Use:   "receive <code>",
		Short: "Join a session and download its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(cmd.Context(), g, f, args[0])
		},
	}
	cmd.Flags().StringVarP(&f.out, "out", "o", ".", "Directory downloads are written to")
	cmd.Flags().StringVar(&f.password, "password", "", "Password for a protected session (--no-tui only)")
	return cmd
}

func runReceive(ctx context.Context, g *globalFlags, f receiveFlags, code string) error {
	if !session.ValidCode(code) {
		return fmt.Errorf("%w: %q", receiver.ErrInvalidCode, code)
	}
	if err := util.EnsureOutputDir(f.out); err != nil {
		return err
	}
	sink, err := transfer.NewDirSink(f.out)
	if err != nil {
		return err
	}

	sig, err := api.Dial(ctx, g.rendezvous, "guest-"+uuid.NewString(), slog.Default())
	if err != nil {
		return err
	}
	provider := webrtc.NewProvider(sig, webrtc.Config{LANOnly: g.lanOnly})
	guest := receiver.NewApp(provider, receiver.Options{Sink: sink})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- guest.Run(runCtx) }()

	if g.noTUI {
		err = downloadHeadless(runCtx, guest, code, f.password)
	} else {
		p := tea.NewProgram(ui.NewGuestModel(guest, code), tea.WithContext(ctx))
		if _, perr := p.Run(); perr != nil && !errors.Is(perr, tea.ErrProgramKilled) {
			err = perr
		}
	}
	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}

// downloadHeadless fetches every shared file and returns once none is pending.
func downloadHeadless(ctx context.Context, guest *receiver.App, code, password string) error {
	if err := guest.Connect(ctx, code); err != nil {
		return err
	}
	fmt.Printf("Connected to %s\n", code)

	timeout := time.NewTimer(manifestTimeout)
	defer timeout.Stop()
	requested := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			if !requested {
				return errors.New("host sent no file list")
			}
		case msg := <-guest.UIMessages():
			switch msg := msg.(type) {
			case receiverEvent.ManifestMsg:
				if msg.Locked {
					if password == "" {
						return errors.New("session is password protected, pass --password")
					}
					if err := guest.VerifyPassword(password); err != nil {
						return err
					}
					continue
				}
				if requested {
					continue
				}
				requested = true
				n, err := guest.DownloadAll()
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Println("Nothing to download")
					return nil
				}
				fmt.Printf("Downloading %d file(s)\n", n)
			case receiverEvent.PasswordResultMsg:
				if !msg.OK {
					return receiver.ErrLocked
				}
			case receiverEvent.DownloadCompleteMsg:
				fmt.Printf("Saved %s (%s)\n", msg.Download.Location, util.FormatSize(msg.Download.Size))
			case receiverEvent.HostErrorMsg:
				fmt.Fprintf(os.Stderr, "host refused: %s\n", msg.Payload.Message)
			case receiverEvent.PhaseMsg:
				if msg.Err != nil {
					return msg.Err
				}
			case appevents.Error:
				fmt.Fprintf(os.Stderr, "error: %v\n", msg.Err)
			}
			if requested && !pending(guest.Snapshot()) {
				return nil
			}
		}
	}
}

func pending(s receiver.Snapshot) bool {
	for _, f := range s.Files {
		switch f.State {
		case receiver.FileQueued, receiver.FileRequested, receiver.FileDownloading:
			return true
		}
	}
	return false
}
