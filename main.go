package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fluid/config"
	"github.com/pthm-cable/fluid/game"
	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/particles"
	"github.com/pthm-cable/fluid/stream"
	"github.com/pthm-cable/fluid/transport"
)

func main() {
	os.Exit(run())
}

// run wires the simulation and returns the process exit status. Deferred
// cleanup runs before main exits.
func run() int {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	maxFrames := flag.Int("max-frames", 0, "Stop after N frames (0 = use config)")
	listen := flag.String("listen", "", "Settings listener address (empty = use config)")
	wsAddr := flag.String("ws", "", "WebSocket frame stream address (empty = use config)")
	stepsPerUpdate := flag.Int("steps-per-update", 1, "Simulation frames per update call")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	cfg := config.Cfg()

	if *listen != "" {
		cfg.Transport.Enabled = true
		cfg.Transport.Listen = *listen
	}
	if *wsAddr != "" {
		cfg.Stream.Enabled = true
		cfg.Stream.Listen = *wsAddr
	}
	frames := cfg.Simulation.MaxFrames
	if *maxFrames > 0 {
		frames = *maxFrames
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := params.NewStore(cfg.Parameters)

	if cfg.Transport.Enabled {
		srv := &transport.Server{Addr: cfg.Transport.Listen, Store: store}
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				// the simulation keeps running on its current parameters
				slog.Error("settings listener stopped", "error", err)
			}
		}()
	}

	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(store,
			particles.CircleMesh(cfg.Parameters.ParticleRadius, cfg.Render.CircleSegments),
			int(cfg.Parameters.ParticleCount), cfg.Parameters.Bounds, cfg.Derived.FrameInterval)
		defer hub.Close()
		startStream(ctx, cfg.Stream.Listen, hub)
	}

	opts := game.Options{
		Config:         cfg,
		Store:          store,
		Hub:            hub,
		LogStats:       *logStats,
		OutputDir:      *outputDir,
		Headless:       *headless,
		StepsPerUpdate: *stepsPerUpdate,
	}

	if *headless {
		// Headless mode - pure CPU simulation, no raylib needed
		g, err := game.NewGameWithOptions(opts)
		if err != nil {
			slog.Error("failed to start simulation", "error", err)
			return 1
		}
		defer g.Unload()

		slog.Info("starting headless simulation",
			"max_frames", frames,
			"steps_per_update", *stepsPerUpdate,
		)
		return exitStatus(loop(ctx, g.UpdateHeadless, g.Frame, nil, frames), g.Frame())
	}

	// Graphical mode
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), cfg.Screen.Title)
	if !rl.IsWindowReady() {
		slog.Error("failed to open window")
		return 1
	}
	defer rl.CloseWindow()

	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	g, err := game.NewGameWithOptions(opts)
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		return 1
	}
	defer g.Unload()

	update := func(ctx context.Context) error {
		if err := g.Update(ctx); err != nil {
			return err
		}
		g.Draw()
		return nil
	}
	return exitStatus(loop(ctx, update, g.Frame, rl.WindowShouldClose, frames), g.Frame())
}

// loop calls update until ctx is done, closed reports true or maxFrames
// frames have run (0 = no limit). It returns the first update error that
// is not caused by cancellation.
func loop(ctx context.Context, update func(context.Context) error, frame func() uint64, closed func() bool, maxFrames int) error {
	for ctx.Err() == nil {
		if closed != nil && closed() {
			return nil
		}
		if err := update(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if maxFrames > 0 && frame() >= uint64(maxFrames) {
			slog.Info("max frames reached", "frame", frame())
			return nil
		}
	}
	return nil
}

// exitStatus logs err and maps it to a process exit status.
func exitStatus(err error, frame uint64) int {
	if err != nil {
		slog.Error("simulation failed", "frame", frame, "error", err)
		return 1
	}
	slog.Info("stopped", "frame", frame)
	return 0
}

// startStream serves hub on addr until ctx is done.
func startStream(ctx context.Context, addr string, hub *stream.Hub) {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("frame stream started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("frame stream stopped", "error", err)
		}
	}()
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
}
