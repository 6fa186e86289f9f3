// Package renderer draws the particle set and its bounding box with raylib.
// Every call must happen on the thread that created the window.
package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/fluid/camera"
	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/particles"
)

// minPixelRadius keeps particles visible when zoomed far out.
const minPixelRadius = 0.75

// ParticleRenderer draws one disc per particle instance.
type ParticleRenderer struct {
	segments int32
}

// NewParticleRenderer creates a renderer drawing discs with the given
// number of rim segments.
func NewParticleRenderer(segments int) *ParticleRenderer {
	if segments < 3 {
		segments = 3
	}
	return &ParticleRenderer{segments: int32(segments)}
}

// Draw renders every instance whose disc is on screen. Only the x and y
// axes are drawn; 3D sets are shown projected along z.
func (r *ParticleRenderer) Draw(instances []particles.Instance, cam *camera.Camera, radius float32) {
	size := max(radius*cam.Scale(), minPixelRadius)
	for i := range instances {
		in := &instances[i]
		x, y := in.Position[0], in.Position[1]
		if !cam.IsVisible(x, y, radius) {
			continue
		}
		sx, sy := cam.WorldToScreen(x, y)
		rl.DrawCircleSector(rl.Vector2{X: sx, Y: sy}, size, 0, 360, r.segments, toColor(in.Color))
	}
}

// DrawBounds outlines the XY extent of the bounding box.
func (r *ParticleRenderer) DrawBounds(b params.Bounds, cam *camera.Camera) {
	x0, y0 := cam.WorldToScreen(b.Min[0], b.Max[1])
	x1, y1 := cam.WorldToScreen(b.Max[0], b.Min[1])
	rl.DrawRectangleLinesEx(rl.Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, 1, rl.DarkGray)
}

func toColor(c particles.Color) rl.Color {
	return rl.Color{
		R: unit8(c[0]),
		G: unit8(c[1]),
		B: unit8(c[2]),
		A: unit8(c[3]),
	}
}

// unit8 maps [0,1] onto a byte, clamping out-of-range values.
func unit8(v float32) uint8 {
	switch {
	case !(v > 0):
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
