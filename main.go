package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/game"
	"github.com/pthm-cable/plume/kernel"
	"github.com/pthm-cable/plume/server"
	"github.com/pthm-cable/plume/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics")
	serve := flag.Bool("serve", false, "Serve the simulation over a websocket instead of opening a window")
	addr := flag.String("addr", "", "Listen address for -serve (empty = use config)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config snapshot and frames")
	captureEvery := flag.Int("capture-every", 0, "Headless: write a PNG every N frames to -output-dir (0 = never)")
	maxFrames := flag.Int("max-frames", 0, "Stop after N frames (0 = unlimited)")
	useOpenCL := flag.Bool("opencl", false, "Run kernels on an OpenCL device (build with -tags opencl)")
	cpuProfile := flag.String("cpuprofile", "", "Write a CPU profile to this file")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *useOpenCL {
		cfg.Compute.Backend = kernel.BackendOpenCL
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logger.Error("failed to create cpu profile", "error", err)
			os.Exit(1)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Error("failed to start cpu profile", "error", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if *serve {
		if err := runServer(cfg, *addr, logger); err != nil {
			logger.Error("server failed", "error", err)
		}
		return
	}

	opts := game.Options{
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		OutputDir:      *outputDir,
		Headless:       *headless,
		CaptureEvery:   *captureEvery,
	}

	if *headless {
		// Headless mode - pure CPU simulation, no raylib needed
		g, err := game.NewGame(opts)
		if err != nil {
			logger.Error("failed to start", "error", err)
			return
		}
		defer g.Unload()

		logger.Info("starting headless simulation",
			"max_frames", *maxFrames,
			"capture_every", *captureEvery,
		)

		for {
			g.UpdateHeadless()

			if *maxFrames > 0 && int(g.Frame()) >= *maxFrames {
				logger.Info("max frames reached", "frame", g.Frame())
				return
			}
		}
	}

	// Graphical mode
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "Plume")
	defer rl.CloseWindow()

	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	g, err := game.NewGame(opts)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return
	}
	defer g.Unload()

	for !rl.WindowShouldClose() {
		g.Update()
		g.Draw()

		if *maxFrames > 0 && int(g.Frame()) >= *maxFrames {
			break
		}
	}
}

// runServer hosts the simulator over a websocket until interrupted.
func runServer(cfg *config.Config, addr string, logger *slog.Logger) error {
	if addr == "" {
		addr = cfg.Server.Addr
	}

	d, backend, err := kernel.NewDispatcher(cfg.Compute.Backend, cfg.Compute.Workers, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := sim.FromConfig(cfg, d, logger)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, s, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, h := s.Size()
	logger.Info("starting server", "addr", addr, "backend", backend, "grid_w", w, "grid_h", h)
	return srv.ListenAndServe(ctx, addr)
}
