package ui

import (
	"fmt"
	"math"
	"strings"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/display"
)

// Action reports what the user changed in one frame of the panel.
type Action struct {
	SimChanged        bool // a simulation parameter changed
	VisChanged        bool // a visualization parameter changed
	ResolutionChanged bool
	Reset             bool
	TogglePause       bool
}

// slider binds a numeric config field to a slider.
type slider struct {
	label    string
	min, max float64
	format   string
	vis      bool // visualization rather than simulation parameter
	get      func(*config.Config) float64
	set      func(*config.Config, float64)
}

// sliders lists the panel sliders in display order. Ranges match the
// configuration validation bounds.
var sliders = []slider{
	{"Density diss.", 0.9, 1, "%.3f", false,
		func(c *config.Config) float64 { return c.Simulation.DensityDissipation },
		func(c *config.Config, v float64) { c.Simulation.DensityDissipation = v }},
	{"Velocity diss.", 0.9, 1, "%.3f", false,
		func(c *config.Config) float64 { return c.Simulation.VelocityDissipation },
		func(c *config.Config, v float64) { c.Simulation.VelocityDissipation = v }},
	{"Pressure iters", 1, 50, "%.0f", false,
		func(c *config.Config) float64 { return float64(c.Simulation.PressureIterations) },
		func(c *config.Config, v float64) { c.Simulation.PressureIterations = int(math.Round(v)) }},
	{"Curl", 0, 50, "%.1f", false,
		func(c *config.Config) float64 { return c.Simulation.Curl },
		func(c *config.Config, v float64) { c.Simulation.Curl = v }},
	{"Gravity X", -100, 100, "%.0f", false,
		func(c *config.Config) float64 { return c.Simulation.GravityX },
		func(c *config.Config, v float64) { c.Simulation.GravityX = v }},
	{"Gravity Y", -100, 100, "%.0f", false,
		func(c *config.Config) float64 { return c.Simulation.GravityY },
		func(c *config.Config, v float64) { c.Simulation.GravityY = v }},
	{"Splat radius", 0.001, 0.02, "%.4f", false,
		func(c *config.Config) float64 { return c.Simulation.SplatRadius },
		func(c *config.Config, v float64) { c.Simulation.SplatRadius = v }},
	{"Splat density", 0, 2, "%.2f", false,
		func(c *config.Config) float64 { return c.Simulation.SplatDensity },
		func(c *config.Config, v float64) { c.Simulation.SplatDensity = v }},
	{"Bias", 0.1, 10, "%.2f", true,
		func(c *config.Config) float64 { return c.Visualization.Bias },
		func(c *config.Config, v float64) { c.Visualization.Bias = v }},
}

var modeLabels = []string{"Density", "Velocity", "Curl", "Pressure"}

// resolutionIndex returns the selector index for res, or 0 if unknown.
func resolutionIndex(res int) int32 {
	for i, r := range config.Resolutions {
		if r == res {
			return int32(i)
		}
	}
	return 0
}

// resolutionLabels joins the supported resolutions for a toggle group.
func resolutionLabels() string {
	parts := make([]string, len(config.Resolutions))
	for i, r := range config.Resolutions {
		parts[i] = fmt.Sprint(r)
	}
	return strings.Join(parts, ";")
}

// ControlsPanel renders the right-side parameter panel.
type ControlsPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
	height   int32
}

// NewControlsPanel creates a new controls panel.
func NewControlsPanel(x, y, width, height int32) *ControlsPanel {
	return &ControlsPanel{renderer: NewRenderer(), x: x, y: y, width: width, height: height}
}

// SetBounds moves the panel, e.g. after a window resize.
func (c *ControlsPanel) SetBounds(x, y, width, height int32) {
	c.x, c.y, c.width, c.height = x, y, width, height
}

// Contains reports whether the screen point lies over the panel.
func (c *ControlsPanel) Contains(px, py float32) bool {
	return px >= float32(c.x) && px < float32(c.x+c.width) &&
		py >= float32(c.y) && py < float32(c.y+c.height)
}

// Draw renders the panel and applies edits to cfg in place.
func (c *ControlsPanel) Draw(cfg *config.Config, paused bool) Action {
	var act Action
	r := c.renderer
	t := r.Theme
	r.DrawPanel(c.x, c.y, c.width, c.height)

	x := float32(c.x + t.Padding)
	y := c.y + t.Padding
	w := float32(c.width - t.Padding*2)

	y = r.DrawSectionHeader(int32(x), y, "Simulation")
	for _, s := range sliders {
		if s.vis {
			continue
		}
		if c.slider(s, cfg, x, &y, w) {
			act.SimChanged = true
		}
	}

	vort := gui.CheckBox(rl.Rectangle{X: x, Y: float32(y), Width: 14, Height: 14}, "Vorticity", cfg.Simulation.Vorticity)
	if vort != cfg.Simulation.Vorticity {
		cfg.Simulation.Vorticity = vort
		act.SimChanged = true
	}
	grav := gui.CheckBox(rl.Rectangle{X: x + w/2, Y: float32(y), Width: 14, Height: 14}, "Gravity", cfg.Simulation.Gravity)
	if grav != cfg.Simulation.Gravity {
		cfg.Simulation.Gravity = grav
		act.SimChanged = true
	}
	y += t.LineHeight + 8

	rl.DrawText("Resolution", int32(x), y, t.FontSize, t.LabelColor)
	y += t.LineHeight
	n := float32(len(config.Resolutions))
	cur := resolutionIndex(cfg.Simulation.Resolution)
	sel := gui.ToggleGroup(rl.Rectangle{X: x, Y: float32(y), Width: w/n - 2, Height: 20}, resolutionLabels(), cur)
	if sel != cur {
		cfg.Simulation.Resolution = config.Resolutions[sel]
		act.SimChanged = true
		act.ResolutionChanged = true
	}
	y += 30

	y = r.DrawSectionHeader(int32(x), y, "Display")
	mode, _ := display.ParseMode(cfg.Visualization.Mode)
	n = float32(len(modeLabels))
	newMode := gui.ToggleGroup(rl.Rectangle{X: x, Y: float32(y), Width: w/n - 2, Height: 20}, strings.Join(modeLabels, ";"), int32(mode))
	if display.Mode(newMode) != mode {
		cfg.Visualization.Mode = display.Mode(newMode).String()
		act.VisChanged = true
	}
	y += 30
	for _, s := range sliders {
		if s.vis && c.slider(s, cfg, x, &y, w) {
			act.VisChanged = true
		}
	}
	rl.DrawRectangle(int32(x), y, int32(w/2-4), 14, hexColor(cfg.Visualization.ColorA))
	rl.DrawRectangle(int32(x+w/2), y, int32(w/2), 14, hexColor(cfg.Visualization.ColorB))
	y += t.LineHeight + 10

	if gui.Button(rl.Rectangle{X: x, Y: float32(y), Width: w/2 - 4, Height: 28}, "Reset") {
		act.Reset = true
	}
	if gui.Button(rl.Rectangle{X: x + w/2, Y: float32(y), Width: w / 2, Height: 28}, toggleText(paused, "Resume", "Pause")) {
		act.TogglePause = true
	}
	return act
}

// slider draws one labelled slider and reports whether the value changed.
func (c *ControlsPanel) slider(s slider, cfg *config.Config, x float32, y *int32, w float32) bool {
	t := c.renderer.Theme
	old := s.get(cfg)
	rl.DrawText(s.label, int32(x), *y, t.FontSize, t.LabelColor)
	rl.DrawText(fmt.Sprintf(s.format, old), int32(x+w-50), *y, t.FontSize, t.ValueColor)
	*y += t.LineHeight - 2

	raw := gui.SliderBar(rl.Rectangle{X: x, Y: float32(*y), Width: w, Height: t.SliderHeight}, "", "", float32(old), float32(s.min), float32(s.max))
	*y += int32(t.SliderHeight) + 6
	if raw == float32(old) {
		return false
	}
	s.set(cfg, math.Min(math.Max(float64(raw), s.min), s.max))
	return true
}

// hexColor parses #rrggbb, falling back to magenta.
func hexColor(s string) rl.Color {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return rl.Magenta
	}
	return rl.Color{R: r, G: g, B: b, A: 255}
}

func toggleText(on bool, onText, offText string) string {
	if on {
		return onText
	}
	return offText
}
