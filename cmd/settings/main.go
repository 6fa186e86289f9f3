// Settings panel - sliders for every simulation parameter, streamed to a
// running simulation over TCP.
//
// Usage: go run ./cmd/settings -addr 127.0.0.1:12345
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/fluid/config"
	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/transport"
)

const (
	windowWidth  = 620
	windowHeight = 1020
	sendInterval = 10 * time.Millisecond
	rowHeight    = 26
	labelWidth   = 220
	sliderWidth  = 280
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml with the initial parameters (empty = use defaults)")
	addr := flag.String("addr", "", "Simulation settings address (empty = use config)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	target := cfg.Transport.Listen
	if *addr != "" {
		target = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The store validates edits; only accepted values are sent.
	store := params.NewStore(cfg.Parameters)
	go sendLoop(ctx, &transport.Client{Addr: target}, store)

	rl.InitWindow(windowWidth, windowHeight, "Fluid Settings")
	if !rl.IsWindowReady() {
		slog.Error("failed to open window")
		os.Exit(1)
	}
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	start := cfg.Parameters.Bounds
	edit := store.Snapshot()
	var rejected error

	for !rl.WindowShouldClose() && ctx.Err() == nil {
		before := edit

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)

		y := float32(10)
		rl.DrawText("Simulation parameters", 10, int32(y), 20, rl.DarkGray)
		y += 30
		y = drawSliders(generalSliders(&edit), y)
		y = drawSliders(boundsSliders(&edit, start), y)

		y += 6
		rl.DrawText("Kernels", 10, int32(y), 20, rl.DarkGray)
		y += 30
		y = drawSliders(kernelSliders(&edit), y)

		y += 10
		if gui.Button(rl.Rectangle{X: 10, Y: y, Width: 120, Height: 30}, "Reset All") {
			edit = cfg.Parameters
		}
		if gui.Button(rl.Rectangle{X: 140, Y: y, Width: 120, Height: 30}, "Copy YAML") {
			copyYAML(edit)
		}
		y += 40

		if edit != before {
			rejected = store.Write(edit)
		}
		if rejected != nil {
			rl.DrawText(fmt.Sprintf("Not sent: %v", rejected), 10, int32(y), 12, rl.Red)
		} else {
			rl.DrawText(fmt.Sprintf("Sending to %s every %v", target, sendInterval), 10, int32(y), 12, rl.Gray)
		}

		rl.EndDrawing()
	}
}

// drawSliders draws one labelled slider per row and returns the next y.
func drawSliders(sliders []slider, y float32) float32 {
	clampAll(sliders)
	for _, s := range sliders {
		rl.DrawText(s.Label, 10, int32(y+3), 14, rl.Gray)
		*s.Value = gui.SliderBar(
			rl.Rectangle{X: labelWidth, Y: y, Width: sliderWidth, Height: 20},
			"", "",
			*s.Value, s.Min, s.Max,
		)
		rl.DrawText(fmt.Sprintf(s.Format, *s.Value), labelWidth+sliderWidth+10, int32(y+3), 14, rl.DarkGray)
		y += rowHeight
	}
	return y
}

// copyYAML puts the parameters on the clipboard as a config snippet.
func copyYAML(p params.Parameters) {
	data, err := yaml.Marshal(map[string]params.Parameters{"parameters": p})
	if err != nil {
		slog.Error("marshal parameters", "error", err)
		return
	}
	rl.SetClipboardText(string(data))
}

// sendLoop sends the current parameters every sendInterval until ctx is
// done. A failed send is logged once; the client redials on the next tick.
func sendLoop(ctx context.Context, c *transport.Client, store *params.Store) {
	defer c.Close()
	ticker := time.NewTicker(sendInterval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := c.Send(ctx, store.Snapshot())
		switch {
		case err != nil && !failing:
			slog.Error("stream write error", "error", err)
			failing = true
		case err == nil && failing:
			slog.Info("reconnected", "addr", c.Addr)
			failing = false
		}
	}
}
