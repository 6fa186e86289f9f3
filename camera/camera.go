// Package camera maps the simulation bounding box onto the viewport.
package camera

import "github.com/pthm-cable/fluid/params"

// Camera controls the viewport into the simulation bounds. World y points
// up; screen y points down.
type Camera struct {
	// Position is the camera center in world coordinates
	X, Y float32

	// Zoom level relative to the fitted view (1.0 = whole box visible)
	Zoom float32

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// Visible world rectangle at zoom 1
	MinX, MinY, MaxX, MaxY float32

	// Zoom constraints
	MinZoom, MaxZoom float32

	// fit is screen pixels per world unit at zoom 1
	fit float32
}

// New creates a camera showing the whole XY extent of bounds.
func New(viewportW, viewportH float32, bounds params.Bounds) *Camera {
	c := &Camera{
		ViewportW: viewportW,
		ViewportH: viewportH,
		MinZoom:   1.0,
		MaxZoom:   16.0,
	}
	c.SetBounds(bounds)
	c.Reset()
	return c
}

// SetBounds refits the view to a new bounding box, keeping the zoom.
func (c *Camera) SetBounds(b params.Bounds) {
	c.MinX, c.MinY = b.Min[0], b.Min[1]
	c.MaxX, c.MaxY = b.Max[0], b.Max[1]
	c.refit()
	c.X = clamp(c.X, c.MinX, c.MaxX)
	c.Y = clamp(c.Y, c.MinY, c.MaxY)
}

func (c *Camera) refit() {
	w, h := c.MaxX-c.MinX, c.MaxY-c.MinY
	if w <= 0 || h <= 0 {
		c.fit = 1
		return
	}
	c.fit = min(c.ViewportW/w, c.ViewportH/h)
}

// Scale returns screen pixels per world unit at the current zoom.
func (c *Camera) Scale() float32 {
	return c.fit * c.Zoom
}

// WorldToScreen converts world coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wy float32) (sx, sy float32) {
	s := c.Scale()
	sx = c.ViewportW/2 + (wx-c.X)*s
	sy = c.ViewportH/2 - (wy-c.Y)*s
	return sx, sy
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float32) (wx, wy float32) {
	s := c.Scale()
	wx = c.X + (sx-c.ViewportW/2)/s
	wy = c.Y - (sy-c.ViewportH/2)/s
	return wx, wy
}

// IsVisible returns true if a circle at (wx, wy) with given world radius
// could be visible on screen (conservative check for culling).
func (c *Camera) IsVisible(wx, wy, radius float32) bool {
	s := c.Scale()
	halfW := c.ViewportW/(2*s) + radius
	halfH := c.ViewportH/(2*s) + radius
	return absf(wx-c.X) <= halfW && absf(wy-c.Y) <= halfH
}

// Resize updates viewport dimensions and refits the bounds.
func (c *Camera) Resize(viewportW, viewportH float32) {
	if viewportW == c.ViewportW && viewportH == c.ViewportH {
		return
	}
	c.ViewportW = viewportW
	c.ViewportH = viewportH
	c.refit()
}

// Pan moves the camera by the given delta in screen pixels. The center
// stays inside the bounds.
func (c *Camera) Pan(dx, dy float32) {
	s := c.Scale()
	c.X = clamp(c.X+dx/s, c.MinX, c.MaxX)
	c.Y = clamp(c.Y-dy/s, c.MinY, c.MaxY)
}

// SetZoom sets the zoom level, clamped to min/max.
func (c *Camera) SetZoom(zoom float32) {
	c.Zoom = clamp(zoom, c.MinZoom, c.MaxZoom)
}

// ZoomBy multiplies the current zoom by the given factor.
func (c *Camera) ZoomBy(factor float32) {
	c.SetZoom(c.Zoom * factor)
}

// Reset centers the camera on the bounds at zoom 1.
func (c *Camera) Reset() {
	c.X = (c.MinX + c.MaxX) / 2
	c.Y = (c.MinY + c.MaxY) / 2
	c.Zoom = 1.0
}

// VisibleWorldBounds returns the world-coordinate bounds of the visible area.
func (c *Camera) VisibleWorldBounds() (minX, minY, maxX, maxY float32) {
	s := c.Scale()
	halfW := c.ViewportW / (2 * s)
	halfH := c.ViewportH / (2 * s)

	minX = c.X - halfW
	maxX = c.X + halfW
	minY = c.Y - halfH
	maxY = c.Y + halfH
	return
}

// absf returns the absolute value of a float32.
func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// clamp restricts a value to a range.
func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
