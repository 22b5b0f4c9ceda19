package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tandem-rtc/tandem/pkg/call"
	"github.com/tandem-rtc/tandem/pkg/config"
	"github.com/tandem-rtc/tandem/pkg/logging"
	"github.com/tandem-rtc/tandem/pkg/peer"
	"github.com/tandem-rtc/tandem/pkg/signaling"
	"github.com/tandem-rtc/tandem/pkg/telemetry"
)

const defaultConfigPath = "tandem.yaml"

var (
	flagRelay    string
	flagRoom     string
	flagName     string
	flagConfig   string
	flagLogLevel string
	flagCall     bool
)

var rootCmd = &cobra.Command{
	Use:   "tandem-peer",
	Short: "Joins a two-party room and runs a video call from the terminal",
	Long: `tandem-peer connects to a tandem relay, joins a room and waits for the other
participant. Commands are read from the standard input:

  call              call the other participant
  mute              toggle the microphone
  video             toggle the camera
  share / unshare   start or stop sharing the screen
  add <kind>        add an audio or video track
  remove <kind>     remove the audio or video track
  hangup            end the call
  status            print the state of the room and of the call
  quit              leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRoom == "" {
			return errors.New("no room specified")
		}

		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagRelay, "relay", "r", "ws://localhost:8080/ws", "WebSocket URL of the relay")
	rootCmd.Flags().StringVar(&flagRoom, "room", "", "room to join")
	rootCmd.Flags().StringVarP(&flagName, "name", "n", "", "display name announced to the other participant")
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "configuration file path")
	rootCmd.Flags().StringVar(&flagLogLevel, "log", "", "log level, overrides the config")
	rootCmd.Flags().BoolVar(&flagCall, "call", false, "call the other participant as soon as it joins")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadConfigFromPath(flagConfig)
	}

	cfg, err := config.LoadConfig(defaultConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		defaults := config.DefaultConfig()
		return &defaults, nil
	}

	return cfg, err
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}

	if err := logging.Setup(cfg.Log); err != nil {
		return err
	}

	name := flagName
	if name == "" {
		name, _ = os.Hostname()
	}

	logger := logrus.WithFields(logrus.Fields{"room": flagRoom, "name": name})

	tracerProvider, err := telemetry.SetupTelemetry(ctx, cfg.Telemetry)
	switch {
	case errors.Is(err, telemetry.ErrNoExporter):
	case err != nil:
		return err
	default:
		defer func() {
			_ = tracerProvider.Shutdown(context.Background())
		}()
	}

	acquirer, options, err := newAcquirer()
	if err != nil {
		return err
	}

	factory, err := peer.NewFactory(cfg.WebRTC, options...)
	if err != nil {
		return err
	}

	client, err := signaling.Dial(ctx, flagRelay, nil, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	controller, err := call.New(ctx, call.Options{
		Name:       name,
		Room:       flagRoom,
		Channel:    client,
		Acquirer:   acquirer,
		Transports: call.PeerTransports(factory),
		Renderer:   call.NewLogRenderer(logger),
		Config:     cfg.Call,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer controller.Close()

	client.Start()

	if err := controller.Join(ctx); err != nil {
		return fmt.Errorf("failed to join room %s: %w", flagRoom, err)
	}

	logger.Info("joined the room, type `help` for the list of commands")

	if flagCall {
		go callWhenPaired(ctx, controller, logger)
	}

	return newConsole(controller, os.Stdin, os.Stdout).Run(ctx)
}
