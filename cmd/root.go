package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atharve16/MediMate/internal/config"
	"github.com/atharve16/MediMate/internal/logging"
	"github.com/atharve16/MediMate/internal/ui"
	"github.com/atharve16/MediMate/internal/version"
	"github.com/spf13/cobra"
)

// Flags shared by every command.
var (
	flagConfig    string
	flagDomain    string
	flagServer    string
	flagLogLevel  string
	flagLogFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "medimate",
	Short: "Two-party WebRTC calls with a small rendezvous service",
	Long: `MediMate connects two participants in a video or audio call. Both join the
same room on a rendezvous service, discover each other there and negotiate
a direct WebRTC connection. The service only relays signaling; media flows
peer to peer.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and runs it until
// the command returns or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

// loadConfig resolves configuration for one command and installs the
// default logger. defLevel applies when neither flag nor LOG_LEVEL sets one.
func loadConfig(opts config.Options, defLevel slog.Level) (*config.Config, error) {
	opts.ConfigFile = flagConfig
	opts.Domain = flagDomain
	opts.ServerURL = flagServer
	opts.LogLevel = flagLogLevel
	opts.LogFormat = flagLogFormat

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat, defLevel)
	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "YAML config file (default $MEDIMATE_CONFIG)")
	pf.StringVarP(&flagDomain, "domain", "d", "", "Rendezvous service host[:port]")
	pf.StringVar(&flagServer, "server", "", "Rendezvous websocket URL, overrides --domain")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")
}
