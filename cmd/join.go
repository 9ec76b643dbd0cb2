package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atharve16/MediMate/internal/config"
	"github.com/atharve16/MediMate/internal/identity"
	"github.com/atharve16/MediMate/internal/media"
	"github.com/atharve16/MediMate/internal/peer"
	"github.com/atharve16/MediMate/internal/session"
	"github.com/atharve16/MediMate/internal/signaling"
	"github.com/atharve16/MediMate/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagEmail    string
	flagName     string
	flagMedia    string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagAutoCall bool
	flagHeadless bool
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room and call whoever else is there",
	Long: `Join a room on the rendezvous service. Without a room name the service
picks one; share it with the other participant.

Keys in the call view:
  c call   a accept   d decline   e end   v add video
  m mute   o camera   q quit

Examples:
  medimate join
  medimate join calm-river-fox --email me@example.org
  medimate join demo --media synthetic --headless`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{
			STUNServer: flagSTUN,
			TURNServer: flagTURN,
			TURNUser:   flagTURNUser,
			TURNPass:   flagTURNPass,
			ForceRelay: flagRelay,
			Email:      flagEmail,
			Name:       flagName,
			MediaMode:  flagMedia,
		}, slog.LevelError)
		if err != nil {
			return err
		}
		var room string
		if len(args) == 1 {
			room = args[0]
		}
		return joinRoom(cmd.Context(), cfg, room)
	},
}

func newProvider(mode string, logger *slog.Logger) (media.Provider, error) {
	switch mode {
	case config.MediaSynthetic:
		return &media.Synthetic{}, nil
	case config.MediaNone:
		return media.None{}, nil
	}
	return media.NewDevices(logger)
}

func joinRoom(ctx context.Context, cfg *config.Config, room string) error {
	logger := slog.Default()

	id, err := identity.Chain{
		identity.Static{Email: cfg.Email, Name: cfg.Name},
		identity.Env{},
	}.Identity(ctx)
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg.MediaMode, logger)
	if err != nil {
		return fmt.Errorf("open media devices: %w", err)
	}
	api, err := peer.NewAPI(cfg, provider, logger)
	if err != nil {
		return err
	}

	sp := ui.NewConnectionSpinner("Connecting to " + cfg.WebSocketURL + "...")
	if !flagHeadless {
		sp.Start()
	}
	client, err := signaling.Dial(ctx, cfg.WebSocketURL, id)
	if err != nil {
		if !flagHeadless {
			sp.Error("Could not reach the rendezvous service")
		}
		return err
	}
	defer client.Close()
	if !flagHeadless {
		sp.Success(fmt.Sprintf("Connected as %s", id.Display()))
	}

	engine := session.New(client, media.NewAcquirer(provider, logger), api.NewTransport,
		session.WithIdentity(id),
		session.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := engine.Run(gctx)
		cancel()
		return err
	})

	if err := engine.Join(gctx, room); err != nil {
		cancel()
		return errors.Join(err, g.Wait())
	}

	if flagHeadless {
		g.Go(func() error {
			defer cancel()
			return autopilot(gctx, engine, true)
		})
		return ignoreCanceled(g.Wait())
	}

	if flagAutoCall {
		g.Go(func() error { return autopilot(gctx, engine, false) })
	}
	g.Go(func() error {
		defer cancel()
		summary, err := ui.RunCall(engine, cfg.WebSocketURL)
		if err != nil {
			return err
		}
		if summary != nil {
			fmt.Println(ui.CallSummaryView(*summary))
		}
		return nil
	})
	return ignoreCanceled(g.Wait())
}

// autopilot places the call when this side should initiate. A declined or
// failed call is not retried until a new peer shows up. With answer set it
// also accepts incoming calls and returns once the session is back to Idle.
func autopilot(ctx context.Context, e *session.Engine, answer bool) error {
	updates, stop := e.Subscribe()
	defer stop()

	var tried bool
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			switch s.State {
			case session.Discovering:
				if s.Remote.ID == "" {
					tried = false
					continue
				}
				if tried || !session.ShouldInitiate(s.LocalID, s.Remote.ID) {
					continue
				}
				tried = true
				if err := e.Call(ctx); err != nil {
					slog.Warn("automatic call failed", "error", err)
				}
			case session.Ringing:
				if !answer {
					continue
				}
				if err := e.Accept(ctx); err != nil {
					slog.Warn("automatic accept failed", "error", err)
				}
			case session.Idle:
				if answer {
					slog.Info("session finished", "error", s.Err)
					return nil
				}
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(joinCmd)

	f := joinCmd.Flags()
	f.StringVarP(&flagEmail, "email", "e", "", "Email announced to the room (default $MEDIMATE_EMAIL)")
	f.StringVarP(&flagName, "name", "n", "", "Display name")
	f.StringVarP(&flagMedia, "media", "m", "", "Capture: devices, synthetic or none")
	f.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	f.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	f.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	f.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	f.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	f.BoolVar(&flagAutoCall, "auto-call", false, "Call automatically when this side should initiate")
	f.BoolVar(&flagHeadless, "headless", false, "No call view: call or accept automatically and exit after the call")
}
