package game

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/display"
	"github.com/pthm-cable/plume/ui"
)

// handleResize debounces window resizes. The grid is reallocated once the
// window size has been stable for the configured quiet time.
func (g *Game) handleResize() {
	now := rl.GetTime()
	if rl.IsWindowResized() {
		w, h := rl.GetScreenWidth(), rl.GetScreenHeight()
		if w != g.screenW || h != g.screenH {
			g.screenW, g.screenH = w, h
			g.canvasW = max(w-g.cfg.Screen.PanelWidth, 1)
			g.canvasH = max(h, 1)
			g.panel.SetBounds(int32(g.canvasW), 0, int32(g.cfg.Screen.PanelWidth), int32(h))
			g.view.Resize(float32(g.canvasW), float32(g.canvasH))
			g.resizePending = true
			g.resizeAt = now
		}
	}
	if g.resizePending && now-g.resizeAt >= g.cfg.Interaction.ResizeDebounceS {
		g.resizePending = false
		g.applyAspect()
	}
}

// applyAspect latches the canvas aspect into the config and reallocates.
func (g *Game) applyAspect() {
	next := g.cfg.Simulation
	next.Aspect = float64(g.canvasW) / float64(g.canvasH)
	if err := g.sim.Configure(next); err != nil {
		g.reportError("resize rejected", err)
		return
	}
	g.cfg.Simulation = next
	g.requestGridResize()
}

// requestGridResize asks the simulator for a grid matching the current
// resolution and aspect.
func (g *Game) requestGridResize() {
	w, h := config.GridSize(g.cfg.Simulation.Resolution, g.cfg.Simulation.Aspect)
	g.logger.Info("grid resize requested", "resolution", g.cfg.Simulation.Resolution, "grid_w", w, "grid_h", h)
	g.sim.RequestResize(w, h)
}

// applyAction latches panel edits. Rejected simulation settings revert the
// working copy to the last valid snapshot.
func (g *Game) applyAction(act ui.Action) {
	if act.SimChanged {
		if err := g.sim.Configure(g.cfg.Simulation); err != nil {
			g.reportError("configuration rejected", err)
			g.cfg.Simulation = g.sim.Config()
		} else {
			g.lastErr = ""
			if act.ResolutionChanged {
				g.requestGridResize()
			}
		}
	}
	if act.VisChanged {
		params, err := display.ParamsFromConfig(g.cfg.Visualization)
		if err != nil {
			g.reportError("display settings rejected", err)
		} else {
			g.params = params
		}
	}
	if act.Reset {
		g.sim.RequestReset()
	}
	if act.TogglePause {
		g.paused = !g.paused
	}
}
