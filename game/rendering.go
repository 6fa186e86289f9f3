package game

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// background is the clear colour behind the fluid.
var background = rl.Color{R: 12, G: 14, B: 20, A: 255}

// Draw renders the particles and HUD.
func (g *Game) Draw() {
	g.perfCollector.RecordFrame()

	rl.BeginDrawing()
	rl.ClearBackground(background)

	g.particleRenderer.DrawBounds(g.snapshot.Bounds, g.camera)
	g.particleRenderer.Draw(g.instances, g.camera, g.snapshot.ParticleRadius)

	// Draw HUD
	rl.DrawText(fmt.Sprintf("Frame: %d  Particles: %d", g.pipeline.Frame(), g.set.Len()), 10, 10, 20, rl.White)
	rl.DrawText(fmt.Sprintf("Speed: %dx  [</>]  Params: v%d", g.stepsPerUpdate, g.version), 10, 35, 20, rl.White)
	if g.paused {
		rl.DrawText("PAUSED", 10, 60, 20, rl.Yellow)
	}
	g.drawPerfPanel()

	rl.EndDrawing()
}

// drawPerfPanel renders frame timing and neighbour statistics.
func (g *Game) drawPerfPanel() {
	panelX := int32(g.screenWidth) - 230
	panelY := int32(10)
	panelW := int32(220)
	panelH := int32(80)

	rl.DrawRectangle(panelX, panelY, panelW, panelH, rl.Color{R: 0, G: 0, B: 0, A: 180})
	rl.DrawRectangleLines(panelX, panelY, panelW, panelH, rl.DarkGray)

	stats := g.perfCollector.Stats()
	rl.DrawText(fmt.Sprintf("Step: %v  FPS: %.0f", stats.AvgTickDuration, stats.FPS), panelX+10, panelY+8, 12, rl.White)
	rl.DrawText(fmt.Sprintf("Neighbours: %.1f avg  %d max", g.report.MeanNeighbours, g.report.MaxNeighbours), panelX+10, panelY+30, 12, rl.White)

	color := rl.White
	if g.report.NonFinite > 0 {
		color = rl.Red
	}
	rl.DrawText(fmt.Sprintf("Reset: %d  Clamped: %d", g.report.NonFinite, g.report.Clamped), panelX+10, panelY+52, 12, color)
}
