package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vaishakh3/emomusic/internal/detection"
	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/recommend"
	"github.com/vaishakh3/emomusic/internal/spotifyapi"
)

const version = "0.3.0"

const (
	eventQueueSize     = 256
	broadcastQueueSize = 256
)

func printVersion() {
	fmt.Printf("emomusic v%s\n", version)
	fmt.Println("Mood-driven Spotify playback daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  emomusic [OPTIONS]")
	fmt.Println("  emomusic librespot-hook [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Picks Spotify recommendations for a mood (selected explicitly or detected")
	fmt.Println("  from a camera) and plays them on a Spotify Connect device.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Printf("        YAML config file (default: first %s in the XDG config dirs)\n", configRelPath)
	fmt.Println()
	fmt.Println("  -token-file string")
	fmt.Println("        File holding the Spotify bearer token or an oauth2 token JSON document")
	fmt.Println()
	fmt.Println("  -api-base-url string")
	fmt.Println("        Spotify Web API root (default \"https://api.spotify.com/v1/\")")
	fmt.Println()
	fmt.Println("  -device-name string")
	fmt.Printf("        Spotify Connect device to play on (default %q)\n", device.DefaultName)
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device for media keys (e.g. /dev/input/event3)")
	fmt.Println()
	fmt.Println("  -detection")
	fmt.Println("        Enable camera mood detection")
	fmt.Println()
	fmt.Println("  -detector-url string")
	fmt.Println("        Face expression detector base URL")
	fmt.Println()
	fmt.Println("  -camera-url string")
	fmt.Println("        Camera snapshot URL (one JPEG/PNG per GET)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath())
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Printf("        HTTP port for the websocket state stream, 0 disables (default %d)\n", defaultHTTPPort)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  librespot-hook")
	fmt.Println("        Run as librespot event hook (reads PLAYER_EVENT from environment)")
	fmt.Println("        Options: -ipc-socket, -log-level")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with the config file from ~/.config/emomusic/config.yaml")
	fmt.Println("  emomusic")
	fmt.Println()
	fmt.Println("  # Enable detection against local sidecars")
	fmt.Println("  emomusic -detection -detector-url http://127.0.0.1:8088 -camera-url http://127.0.0.1:8080/?action=snapshot")
	fmt.Println()
	fmt.Println("  # Use as librespot hook (add to librespot config)")
	fmt.Println("  onevent = emomusic librespot-hook")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - The token needs the scopes: " + strings.Join(spotifyapi.Scopes, " "))
	fmt.Println("    user-read-playback-state user-modify-playback-state")
	fmt.Println("  - Media keys need read access to the input device ('input' group)")
	fmt.Println()
}

func main() {
	// Check for subcommand mode (librespot hook) first
	if len(os.Args) > 1 && os.Args[1] == "librespot-hook" {
		runLibrespotSubcommand()
		return
	}

	// Check for version/help early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	cfg, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level) // checked by Validate
	logger := setupLogger(logLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("emomusic exiting", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

// loadConfig builds the effective config: defaults, then the config file,
// then explicitly set flags, then validation.
func loadConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var (
		configPath  = fs.String("config", "", "YAML config file")
		tokenFile   = fs.String("token-file", "", "Spotify token file")
		apiBaseURL  = fs.String("api-base-url", "", "Spotify Web API root")
		deviceName  = fs.String("device-name", "", "Spotify Connect device name")
		inputDevice = fs.String("input-device", "", "Linux input event device for media keys")
		detectionOn = fs.Bool("detection", false, "Enable camera mood detection")
		detectorURL = fs.String("detector-url", "", "Face expression detector base URL")
		cameraURL   = fs.String("camera-url", "", "Camera snapshot URL")
		ipcSocket   = fs.String("ipc-socket", "", "Unix domain socket path for IPC")
		httpPort    = fs.Int("http-port", 0, "HTTP port for the websocket state stream")
		logLevel    = fs.String("log-level", "", "Log level: error, warn, info, debug")
		_           = fs.Bool("version", false, "Print version and exit")
		_           = fs.Bool("help", false, "Print help message")
	)
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	path := *configPath
	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "token-file":
			o.TokenFile = tokenFile
		case "api-base-url":
			o.APIBaseURL = apiBaseURL
		case "device-name":
			o.DeviceName = deviceName
		case "input-device":
			o.InputDevice = inputDevice
		case "detection":
			o.DetectionEnabled = detectionOn
		case "detector-url":
			o.DetectorURL = detectorURL
		case "camera-url":
			o.CameraURL = cameraURL
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "http-port":
			o.HTTPPort = httpPort
		case "log-level":
			o.LogLevel = logLevel
		}
	})
	o.Apply(&cfg)

	cfg.Spotify.TokenFile = ExpandPath(cfg.Spotify.TokenFile)
	cfg.IPC.SocketPath = ExpandPath(cfg.IPC.SocketPath)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// run wires every component and blocks until ctx ends or a component fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	// Startup checks: failures here are fatal.
	tokens := spotifyapi.NewFileTokenSource(cfg.Spotify.TokenFile)
	if _, err := tokens.Token(); err != nil {
		return fmt.Errorf("spotify token: %w", err)
	}

	client, err := spotifyapi.NewClient(ctx, spotifyapi.Options{
		BaseURL:     cfg.Spotify.APIBaseURL,
		TokenSource: tokens,
		Timeout:     msDuration(cfg.Spotify.TimeoutMS),
	})
	if err != nil {
		return err
	}

	ipcListener, err := listenIPC(cfg.IPC.SocketPath)
	if err != nil {
		return fmt.Errorf("IPC: %w", err)
	}

	var httpListener net.Listener
	if cfg.HTTP.Port > 0 {
		if httpListener, err = listenHTTP(cfg.HTTP.Port); err != nil {
			ipcListener.Close()
			return fmt.Errorf("HTTP: %w", err)
		}
	}

	events := make(chan Event, eventQueueSize)

	// Without a websocket stream nobody consumes broadcasts.
	var broadcasts chan StateBroadcast
	if httpListener != nil {
		broadcasts = make(chan StateBroadcast, broadcastQueueSize)
	}

	g, gctx := errgroup.WithContext(ctx)

	player := device.NewSpotifyPlayer(client, device.SpotifyPlayerConfig{
		DeviceName:   cfg.Spotify.DeviceName,
		PollInterval: msDuration(cfg.Spotify.PollIntervalMS),
	}, logger.With("component", "device"))

	fetcher := recommend.NewSpotifyFetcher(client, logger.With("component", "recommend"))

	var detector *detection.Manager
	if cfg.Detection.Enabled {
		detLogger := logger.With("component", "detection")
		camera := detection.NewSnapshotCamera(detection.SnapshotCameraConfig{
			URL:      cfg.Detection.CameraURL,
			FPS:      cfg.Detection.FPS,
			MaxWidth: cfg.Detection.MaxFrameWidth,
		}, detLogger)
		faces := detection.NewHTTPDetector(cfg.Detection.DetectorURL, nil, detLogger)
		detector = detection.NewManager(camera, faces, cfg.ToDetectionConfig(), detectionUpdates(gctx, events), detLogger)
		defer detector.Close()
	}

	effCfg := effectRunnerConfig{
		Player:       player,
		Fetcher:      fetcher,
		FetchTimeout: msDuration(cfg.Recommend.TimeoutMS),
	}
	if detector != nil {
		effCfg.Detection = detector
	}
	effects := newEffectRunner(effCfg, events, logger.With("component", "effects"))
	defer effects.waitFetches()

	logger.Info("starting emomusic",
		"version", version,
		"device_name", cfg.Spotify.DeviceName,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"detection", cfg.Detection.Enabled,
		"input_devices", len(cfg.Input.Devices))

	g.Go(func() error {
		runDaemon(gctx, events, effects, NewDaemonState(), daemonConfig{
			Reducer: cfg.ToReducerConfig(),
			TickHz:  cfg.Playback.TickHz,
		}, broadcasts, logger.With("component", "daemon"))
		return nil
	})
	g.Go(func() error { return effects.runDeviceWorker(gctx) })
	g.Go(func() error { return effects.runDetectionWorker(gctx) })
	g.Go(func() error {
		return runIPCServer(gctx, ipcListener, events, logger.With("component", "ipc"))
	})
	g.Go(func() error {
		return runInput(gctx, cfg.Input.Devices, events, logger.With("component", "input"))
	})

	if httpListener != nil {
		wsLogger := logger.With("component", "ws")
		ws := NewServer(gctx, wsLogger, events, ServerConfig{})
		g.Go(func() error {
			ws.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, ws.Hub(), broadcasts, wsLogger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, httpListener, newHTTPMux(ws), logger.With("component", "http"))
		})
	}

	if cfg.Playback.AutoConnect {
		events <- Connect{}
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func printLibrespotHookUsage() {
	fmt.Printf("emomusic librespot-hook v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  emomusic librespot-hook [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Librespot event hook that forwards playback, track, volume and session")
	fmt.Println("  events to the emomusic daemon via its Unix socket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath())
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PLAYER_EVENT - playing|paused|stopped|track_changed|volume_changed|session_disconnected")
	fmt.Println("  TRACK_ID, URI, NAME, ARTISTS, COVERS - for track_changed")
	fmt.Println("  VOLUME - for volume_changed (0-65535)")
	fmt.Println()
	fmt.Println("EXAMPLE:")
	fmt.Println("  Add to librespot configuration:")
	fmt.Println("  onevent = /usr/local/bin/emomusic librespot-hook")
	fmt.Println()
}

// runLibrespotSubcommand handles librespot-hook subcommand mode
func runLibrespotSubcommand() {
	fs := flag.NewFlagSet("librespot-hook", flag.ExitOnError)
	ipcSocketPath := fs.String("ipc-socket", defaultSocketPath(), "Unix domain socket path for IPC")
	logLevelStr := fs.String("log-level", "info", "Log level: error, warn, info, debug")
	showHelp := fs.Bool("help", false, "Print help message")
	fs.Usage = printLibrespotHookUsage

	// Skip the "librespot-hook" subcommand name
	_ = fs.Parse(os.Args[2:])

	if *showHelp {
		printLibrespotHookUsage()
		return
	}

	logLevel, err := parseLogLevel(*logLevelStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	// stdout may be captured by librespot; log to stderr.
	logger := setupLogger(logLevel, os.Stderr)

	start := time.Now()
	if err := runLibrespotHook(ExpandPath(*ipcSocketPath), os.Getenv, logger); err != nil {
		logger.Error("librespot hook error", "error", err)
		os.Exit(1)
	}
	logger.Debug("librespot hook done", "took", time.Since(start))
}
