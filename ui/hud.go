package ui

import (
	"fmt"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/plume/telemetry"
)

// HUDData holds all the data needed to render the main HUD.
type HUDData struct {
	Title     string
	Frame     int32
	FPS       int32
	GridW     int
	GridH     int
	Mode      string
	Precision string
	Backend   string
	Paused    bool
	Error     string // last rejected config or allocation failure
}

// HUD renders the main heads-up display.
type HUD struct {
	renderer *Renderer
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{renderer: NewRenderer()}
}

// Draw renders the HUD in the top-left corner of the canvas.
func (h *HUD) Draw(data HUDData) {
	rl.DrawText(data.Title, 10, 10, 20, rl.White)
	rl.DrawText(
		fmt.Sprintf("Frame: %d | FPS: %d | Grid: %dx%d %s", data.Frame, data.FPS, data.GridW, data.GridH, data.Precision),
		10, 35, 16, rl.LightGray,
	)
	rl.DrawText(fmt.Sprintf("Mode: %s | Backend: %s", data.Mode, data.Backend), 10, 55, 16, rl.LightGray)

	y := int32(75)
	if data.Paused {
		rl.DrawText("PAUSED", 10, y, 16, rl.Yellow)
		y += 20
	}
	if data.Error != "" {
		rl.DrawText(data.Error, 10, y, 14, h.renderer.Theme.ErrorColor)
	}
}

// DrawControls renders the control legend at the bottom of the screen.
func (h *HUD) DrawControls(screenHeight int32, controls string) {
	rl.DrawText(controls, 10, screenHeight-25, 14, rl.Gray)
}

// PerfPanel renders the per-pass timing breakdown.
type PerfPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
}

// NewPerfPanel creates a new performance panel.
func NewPerfPanel(x, y, width int32) *PerfPanel {
	return &PerfPanel{renderer: NewRenderer(), x: x, y: y, width: width}
}

// SetPosition updates the panel position.
func (p *PerfPanel) SetPosition(x, y int32) {
	p.x = x
	p.y = y
}

// Draw renders one bar per solver phase in pipeline order.
func (p *PerfPanel) Draw(stats telemetry.PerfStats) {
	r := p.renderer
	lh := r.Theme.LineHeight
	height := lh*int32(len(telemetry.Phases)+2) + r.Theme.Padding*2
	r.DrawPanel(p.x, p.y, p.width, height)

	x := p.x + r.Theme.Padding
	y := p.y + r.Theme.Padding
	y = r.DrawSectionHeader(x, y, fmt.Sprintf("Step %s", stats.AvgTickDuration.Round(time.Microsecond)))

	for _, phase := range telemetry.Phases {
		y = r.DrawBar(x, y, phase, float32(stats.PhasePct[phase]/100), p.width-r.Theme.Padding*2)
	}
}
