package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/config"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/media"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/signalling"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/sockets"
	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/status"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitStartup = -1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitStartup
	}

	levelVar := new(slog.LevelVar)
	slog.SetDefault(slog.New(newLogHandler(levelVar, false)))

	fmt.Fprint(os.Stderr, "Checking required parameters...")
	mgr, err := config.NewManager(flags.ConfigDir, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, " ERROR!")
		if errors.Is(err, config.ErrMissingServer) {
			fmt.Fprintln(os.Stderr, "--server is a required argument, for example:")
			fmt.Fprintln(os.Stderr, "--server https://192.168.1.100:443/rtc/socket.io")
		} else {
			fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		}
		return exitStartup
	}
	defer mgr.Close()
	fmt.Fprintln(os.Stderr, " OK")

	cfg := mgr.Get()
	slog.SetDefault(slog.New(newLogHandler(levelVar, cfg.Log.NoColor)))
	applyLogLevel(levelVar, cfg.Log.Level)
	mgr.SetUpdateCallback(func(c *config.AppConfig) {
		applyLogLevel(levelVar, c.Log.Level)
	})

	peerConnection := cfg.WebRTC.PeerConnectionConfig
	if cfg.WebRTC.RTCConfigURL != "" {
		fetched, err := media.FetchRTCConfig(cfg.WebRTC.RTCConfigURL)
		if err != nil {
			slog.Warn("failed to fetch rtc config, using configured ice servers", "url", cfg.WebRTC.RTCConfigURL, "error", err)
		} else {
			peerConnection = fetched
		}
	}

	mediaConfig := media.Config{
		PeerConnection:   peerConnection,
		Codecs:           cfg.WebRTC.Codecs,
		PortMin:          cfg.WebRTC.PortMin,
		PortMax:          cfg.WebRTC.PortMax,
		KeyframeInterval: cfg.WebRTC.KeyframeInterval,
		DisableAudio:     cfg.WebRTC.DisableAudio,
		LoggerFactory:    media.NewLoggerFactory(slog.Default()),
	}

	fmt.Fprint(os.Stderr, "Checking media engine...")
	if err := media.Preflight(mediaConfig); err != nil {
		fmt.Fprintln(os.Stderr, " ERROR!")
		fmt.Fprintf(os.Stderr, "media engine unavailable: %v\n", err)
		return exitStartup
	}
	fmt.Fprintln(os.Stderr, " OK")

	factory, err := media.NewFactory(mediaConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "media engine unavailable: %v\n", err)
		return exitStartup
	}

	metrics.StartTime.SetToCurrentTime()

	server := signalling.NewServerSession(signalling.SessionConfig{
		Server:         cfg.Signalling.Server,
		DisableSSL:     cfg.Signalling.DisableSSL,
		Identity:       cfg.Signalling.Identity,
		ConnectTimeout: cfg.Signalling.ConnectTimeout,
		AckTimeout:     cfg.Signalling.AckTimeout,
	}, sockets.NewSocketIODialer())

	coordinator := signalling.NewCallCoordinator(signalling.Options{
		RemoteOfferer:    cfg.Signalling.RemoteOfferer,
		StrictCandidates: cfg.Signalling.StrictCandidates,
	}, server, factory.NewEngine)

	if cfg.Signalling.RemoteOfferer {
		slog.Warn("remote offerer mode is not implemented, calls will stop before the offer")
	}

	if cfg.Status.Listen != "" {
		statusServer := status.NewServer(coordinator)
		go func() {
			if err := statusServer.Listen(cfg.Status.Listen); err != nil {
				slog.Error("status server stopped", "error", err)
			}
		}()
		defer func() {
			if err := statusServer.Shutdown(); err != nil {
				slog.Warn("failed to stop status server", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting viewer", "identity", cfg.Signalling.Identity, "server", cfg.Signalling.Server)
	fmt.Fprint(os.Stdout, signalling.Usage())
	go func() {
		if err := signalling.RunConsole(ctx, os.Stdin, os.Stdout, coordinator); err != nil {
			slog.Warn("operator console stopped", "error", err)
		}
	}()

	if err := coordinator.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return exitFatal
	}
	slog.Info("viewer stopped")
	return exitOK
}

func newLogHandler(level *slog.LevelVar, noColor bool) slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor || !isatty.IsTerminal(os.Stderr.Fd()),
	})
}

func applyLogLevel(levelVar *slog.LevelVar, s string) {
	level, err := config.ParseLevel(s)
	if err != nil {
		slog.Warn("ignoring log level", "level", s, "error", err)
		return
	}
	levelVar.Set(level)
}
