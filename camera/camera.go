// Package camera maps window pixels onto the simulation grid.
package camera

// Viewport fits the grid into the canvas area of the window, preserving the
// grid's aspect ratio and centering it. While a resize is pending the grid
// and canvas shapes differ and the unused strip stays empty.
type Viewport struct {
	// Canvas dimensions in pixels
	CanvasW, CanvasH float32

	// Grid dimensions in cells
	GridW, GridH float32

	// Fitted rectangle in pixels
	x, y, w, h float32
}

// New creates a viewport for a canvas and grid size.
func New(canvasW, canvasH, gridW, gridH float32) *Viewport {
	v := &Viewport{CanvasW: canvasW, CanvasH: canvasH, GridW: gridW, GridH: gridH}
	v.fit()
	return v
}

// Resize updates the canvas dimensions.
func (v *Viewport) Resize(canvasW, canvasH float32) {
	if canvasW == v.CanvasW && canvasH == v.CanvasH {
		return
	}
	v.CanvasW, v.CanvasH = canvasW, canvasH
	v.fit()
}

// SetGrid updates the grid dimensions.
func (v *Viewport) SetGrid(gridW, gridH float32) {
	if gridW == v.GridW && gridH == v.GridH {
		return
	}
	v.GridW, v.GridH = gridW, gridH
	v.fit()
}

func (v *Viewport) fit() {
	if v.CanvasW <= 0 || v.CanvasH <= 0 || v.GridW <= 0 || v.GridH <= 0 {
		v.x, v.y, v.w, v.h = 0, 0, max(v.CanvasW, 0), max(v.CanvasH, 0)
		return
	}
	scale := min(v.CanvasW/v.GridW, v.CanvasH/v.GridH)
	v.w = v.GridW * scale
	v.h = v.GridH * scale
	v.x = (v.CanvasW - v.w) / 2
	v.y = (v.CanvasH - v.h) / 2
}

// Rect returns the fitted grid rectangle in window pixels.
func (v *Viewport) Rect() (x, y, w, h float32) {
	return v.x, v.y, v.w, v.h
}

// Contains reports whether a window pixel lies on the grid.
func (v *Viewport) Contains(sx, sy float32) bool {
	return sx >= v.x && sy >= v.y && sx < v.x+v.w && sy < v.y+v.h
}

// ScreenToNDC converts a window pixel (origin top-left) to normalized device
// coordinates of the grid with +y up. Points off the grid map outside
// [-1, 1]. A degenerate viewport maps everything to the centre.
func (v *Viewport) ScreenToNDC(sx, sy float32) (float32, float32) {
	if v.w <= 0 || v.h <= 0 {
		return 0, 0
	}
	return (sx-v.x)/v.w*2 - 1, 1 - (sy-v.y)/v.h*2
}

// NDCToScreen is the inverse of ScreenToNDC.
func (v *Viewport) NDCToScreen(nx, ny float32) (float32, float32) {
	return v.x + (nx+1)/2*v.w, v.y + (1-ny)/2*v.h
}
