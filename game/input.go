package game

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/plume/display"
	"github.com/pthm-cable/plume/sim"
)

var modeKeys = []int32{rl.KeyOne, rl.KeyTwo, rl.KeyThree, rl.KeyFour}

// handleInput processes keyboard and pointer input.
func (g *Game) handleInput() {
	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		g.paused = !g.paused
	}
	if rl.IsKeyPressed(rl.KeyR) {
		g.sim.RequestReset()
	}
	if rl.IsKeyPressed(rl.KeyP) {
		g.showPerf = !g.showPerf
	}
	for i, key := range modeKeys {
		if rl.IsKeyPressed(key) {
			g.cfg.Visualization.Mode = display.Mode(i).String()
			g.params.Mode = display.Mode(i)
		}
	}

	g.handlePointer()
}

// handlePointer posts the pointer to the simulator. A drag only starts on a
// press over the grid; it ends when the button is released.
func (g *Game) handlePointer() {
	m := rl.GetMousePosition()

	if rl.IsMouseButtonPressed(rl.MouseButtonLeft) && g.view.Contains(m.X, m.Y) {
		g.dragging = true
	}
	if !rl.IsMouseButtonDown(rl.MouseButtonLeft) {
		g.dragging = false
	}

	x, y := g.view.ScreenToNDC(m.X, m.Y)
	g.sim.PostPointer(sim.Pointer{X: x, Y: y, Down: g.dragging})
}
