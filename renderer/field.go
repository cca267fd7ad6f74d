// Package renderer presents display images in the raylib window.
package renderer

import (
	"image"
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// FieldTexture holds the GPU texture a display image is uploaded into.
// The texture is recreated whenever the image size changes.
type FieldTexture struct {
	tex        rl.Texture2D
	texW, texH int
	pixels     []color.RGBA

	smooth      bool
	initialized bool
}

// NewFieldTexture creates an empty presenter. Smooth selects bilinear
// filtering when the texture is stretched to the canvas.
func NewFieldTexture(smooth bool) *FieldTexture {
	return &FieldTexture{smooth: smooth}
}

// init (re)creates the texture (must be called after the raylib window is created).
func (r *FieldTexture) init(w, h int) {
	if r.initialized {
		rl.UnloadTexture(r.tex)
	}

	r.texW = w
	r.texH = h
	r.pixels = make([]color.RGBA, w*h)

	img := rl.GenImageColor(w, h, rl.Black)
	r.tex = rl.LoadTextureFromImage(img)
	if r.smooth {
		rl.SetTextureFilter(r.tex, rl.FilterBilinear)
	} else {
		rl.SetTextureFilter(r.tex, rl.FilterPoint)
	}
	rl.SetTextureWrap(r.tex, rl.WrapClamp)
	rl.UnloadImage(img)

	r.initialized = true
}

// Upload copies img into the texture. Image row 0 is the top of the canvas.
func (r *FieldTexture) Upload(img *image.RGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	if !r.initialized || w != r.texW || h != r.texH {
		r.init(w, h)
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		dst := r.pixels[y*w : (y+1)*w]
		for x := range dst {
			i := x * 4
			dst[x] = color.RGBA{R: row[i], G: row[i+1], B: row[i+2], A: row[i+3]}
		}
	}
	rl.UpdateTexture(r.tex, r.pixels)
}

// Draw stretches the texture over dst.
func (r *FieldTexture) Draw(dst rl.Rectangle) {
	if !r.initialized {
		return
	}
	srcRect := rl.Rectangle{X: 0, Y: 0, Width: float32(r.texW), Height: float32(r.texH)}
	rl.DrawTexturePro(r.tex, srcRect, dst, rl.Vector2{}, 0, rl.White)
}

// Size returns the current texture size.
func (r *FieldTexture) Size() (int, int) {
	return r.texW, r.texH
}

// Unload frees GPU resources.
func (r *FieldTexture) Unload() {
	if !r.initialized {
		return
	}
	rl.UnloadTexture(r.tex)
	r.initialized = false
}
