// Package game hosts the solver in a raylib window or a headless loop.
package game

import (
	"fmt"
	"image"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/plume/camera"
	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/display"
	"github.com/pthm-cable/plume/kernel"
	"github.com/pthm-cable/plume/renderer"
	"github.com/pthm-cable/plume/sim"
	"github.com/pthm-cable/plume/telemetry"
	"github.com/pthm-cable/plume/ui"
)

// Options configures a Game.
type Options struct {
	LogStats       bool
	StatsWindowSec float64
	OutputDir      string
	Headless       bool
	CaptureEvery   int // write a PNG every N frames to OutputDir (0 = never)
}

// Game holds the complete host state.
type Game struct {
	cfg        config.Config // working copy edited by the panel
	sim        *sim.Simulator
	dispatcher kernel.Dispatcher
	backend    string
	logger     *slog.Logger

	params display.Params
	img    *image.RGBA
	fresh  bool // img holds a frame not yet uploaded

	view *camera.Viewport

	// Rendering (nil when headless)
	tex       *renderer.FieldTexture
	panel     *ui.ControlsPanel
	hud       *ui.HUD
	perfPanel *ui.PerfPanel

	// Telemetry
	perfCollector *telemetry.PerfCollector
	collector     *telemetry.Collector
	outputManager *telemetry.OutputManager
	logStats      bool
	captureEvery  int

	// State
	headless bool
	paused   bool
	showPerf bool
	lastErr  string

	// Window and canvas (canvas is the window minus the panel)
	screenW, screenH int
	canvasW, canvasH int
	resizePending    bool
	resizeAt         float64
	dragging         bool
}

// NewGame builds the dispatcher, simulator and output for the global config.
func NewGame(opts Options) (*Game, error) {
	cfg := *config.Cfg()
	logger := slog.Default()

	d, backend, err := kernel.NewDispatcher(cfg.Compute.Backend, cfg.Compute.Workers, logger)
	if err != nil {
		return nil, err
	}
	s, err := sim.FromConfig(&cfg, d, logger)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("creating simulator: %w", err)
	}
	params, err := display.ParamsFromConfig(cfg.Visualization)
	if err != nil {
		d.Close()
		return nil, err
	}

	statsWindow := opts.StatsWindowSec
	if statsWindow <= 0 {
		statsWindow = cfg.Telemetry.StatsWindow
	}

	g := &Game{
		cfg:           cfg,
		sim:           s,
		dispatcher:    d,
		backend:       backend,
		logger:        logger,
		params:        params,
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector:     telemetry.NewCollector(statsWindow, cfg.Derived.DT32),
		logStats:      opts.LogStats,
		captureEvery:  opts.CaptureEvery,
		headless:      opts.Headless,
		screenW:       cfg.Screen.Width,
		screenH:       cfg.Screen.Height,
		canvasW:       cfg.Derived.CanvasW,
		canvasH:       cfg.Derived.CanvasH,
	}
	s.SetPerfCollector(g.perfCollector)
	s.SetCollector(g.collector)

	w, h := s.Size()
	g.view = camera.New(float32(g.canvasW), float32(g.canvasH), float32(w), float32(h))

	g.outputManager, err = telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		d.Close()
		return nil, err
	}
	if err := g.outputManager.WriteConfig(&g.cfg); err != nil {
		logger.Error("failed to write config", "error", err)
	}

	if !opts.Headless {
		g.tex = renderer.NewFieldTexture(true)
		g.panel = ui.NewControlsPanel(int32(g.canvasW), 0, int32(cfg.Screen.PanelWidth), int32(g.screenH))
		g.hud = ui.NewHUD()
		g.perfPanel = ui.NewPerfPanel(10, 100, 260)
	}

	logger.Info("simulation ready", "grid_w", w, "grid_h", h, "backend", backend, "precision", cfg.Derived.Precision)
	return g, nil
}

// Update handles input and advances one frame.
func (g *Game) Update() {
	g.handleInput()
	g.handleResize()
	if g.paused {
		return
	}
	g.step(true)
}

// UpdateHeadless advances one frame without input or window.
func (g *Game) UpdateHeadless() {
	capture := g.captureEvery > 0 && g.outputManager != nil && (g.sim.Frame()+1)%int32(g.captureEvery) == 0
	g.step(capture)
	if capture {
		if err := g.outputManager.WriteFrame(g.sim.Frame(), g.img); err != nil {
			g.logger.Error("failed to write frame", "error", err)
		}
	}
}

// step runs the solver and, when render is set, the display pass.
func (g *Game) step(render bool) {
	g.perfCollector.StartTick()
	if err := g.sim.Step(g.cfg.Derived.DT32); err != nil {
		g.reportError("step failed", err)
	}
	if render {
		g.perfCollector.StartPhase(telemetry.PhaseDisplay)
		g.renderDisplay()
	}
	g.perfCollector.EndTick()

	g.flushTelemetry()
}

// renderDisplay maps the selected field into the display image.
func (g *Game) renderDisplay() {
	w, h := g.sim.Size()
	if g.img == nil || g.img.Rect.Dx() != w || g.img.Rect.Dy() != h {
		g.img = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	if err := g.sim.RenderDisplay(g.params, g.img); err != nil {
		g.reportError("display failed", err)
		return
	}
	g.fresh = true
}

// Draw renders the canvas, HUD and panel.
func (g *Game) Draw() {
	g.perfCollector.RecordFrame()

	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	if g.fresh && g.img != nil {
		g.tex.Upload(g.img)
		g.fresh = false
	}
	w, h := g.sim.Size()
	g.view.SetGrid(float32(w), float32(h))
	x, y, vw, vh := g.view.Rect()
	g.tex.Draw(rl.Rectangle{X: x, Y: y, Width: vw, Height: vh})

	g.hud.Draw(ui.HUDData{
		Title:     "Plume",
		Frame:     g.sim.Frame(),
		FPS:       rl.GetFPS(),
		GridW:     w,
		GridH:     h,
		Mode:      g.params.Mode.String(),
		Precision: g.cfg.Derived.Precision.String(),
		Backend:   g.backend,
		Paused:    g.paused,
		Error:     g.lastErr,
	})
	if g.showPerf {
		g.perfPanel.Draw(g.perfCollector.Stats())
	}
	g.hud.DrawControls(int32(g.screenH), "[Space] pause  [R] reset  [1-4] mode  [P] perf  [F11] fullscreen")

	act := g.panel.Draw(&g.cfg, g.paused)

	rl.EndDrawing()

	g.applyAction(act)
}

// reportError logs err and keeps it for the HUD.
func (g *Game) reportError(msg string, err error) {
	g.logger.Error(msg, "error", err)
	g.lastErr = err.Error()
}

// Frame returns the number of completed solver steps.
func (g *Game) Frame() int32 {
	return g.sim.Frame()
}

// Unload releases GPU and compute resources and closes output files.
func (g *Game) Unload() {
	if g.tex != nil {
		g.tex.Unload()
	}
	if err := g.outputManager.Close(); err != nil {
		g.logger.Error("failed to close output", "error", err)
	}
	if err := g.dispatcher.Close(); err != nil {
		g.logger.Error("failed to close dispatcher", "error", err)
	}
}
