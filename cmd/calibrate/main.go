// Package main provides CMA-ES calibration of the pressure and damping
// parameters so a resting block of fluid settles near its rest density.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/fluid/config"
)

// evalRow is one line of calibrate_log.csv.
type evalRow struct {
	Eval                   int     `csv:"eval"`
	Score                  float64 `csv:"score"`
	DensityError           float64 `csv:"density_error"`
	PressureMultiplier     float64 `csv:"pressure_multiplier"`
	NearPressureMultiplier float64 `csv:"near_pressure_multiplier"`
	Viscosity              float64 `csv:"viscosity"`
	VelocitySmoothing      float64 `csv:"velocity_smoothing"`
}

// result is written to best.json.
type result struct {
	Evaluations int                `json:"evaluations"`
	Score       float64            `json:"score"`
	Params      map[string]float64 `json:"params"`
	Elapsed     string             `json:"elapsed"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// parseCounts parses a comma-separated list of particle counts.
func parseCounts(s string) ([]uint32, error) {
	var counts []uint32
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.ParseUint(f, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid particle count %q", f)
		}
		counts = append(counts, uint32(n))
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("no particle counts given")
	}
	return counts, nil
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxFrames := flag.Int("max-frames", 600, "Frames per simulation run")
	countList := flag.String("counts", "512,1024", "Particle counts, one run per count per evaluation")
	maxEvals := flag.Int("max-evals", 100, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	counts, err := parseCounts(*countList)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	baseCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg.Telemetry.StatsWindowFrames = max(1, *maxFrames/10)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	params := NewParamVector(baseCfg.Parameters)
	evaluator := NewFitnessEvaluator(params, *maxFrames, counts, baseCfg)

	dim := params.Dim()
	initX := params.Clamp(params.DefaultVector())
	initX = params.Normalize(initX)

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // runs inside an evaluation are already parallel
	}

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	headerWritten := false

	evalCount := 0
	bestScore := 1e9
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			// The values actually simulated are the clamped ones.
			raw := params.Clamp(params.Denormalize(x))
			score := evaluator.Evaluate(ctx, raw)
			evalCount++

			if score < bestScore {
				bestScore = score
				bestParams = raw
			}

			row := []evalRow{{
				Eval:                   evalCount,
				Score:                  score,
				DensityError:           evaluator.LastDensityError(),
				PressureMultiplier:     raw[0],
				NearPressureMultiplier: raw[1],
				Viscosity:              raw[2],
				VelocitySmoothing:      raw[3],
			}}
			var werr error
			if !headerWritten {
				werr = gocsv.MarshalFile(&row, logFile)
				headerWritten = true
			} else {
				werr = gocsv.MarshalWithoutHeaders(&row, logFile)
			}
			if werr != nil {
				log.Printf("failed to write log row: %v", werr)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(*maxEvals-evalCount) * avgPerEval
			fmt.Printf("Eval %d/%d: score=%.4f density_err=%.4f (best=%.4f) | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, score, evaluator.LastDensityError(), bestScore,
				formatDuration(elapsed), formatDuration(remaining))

			return score
		},
	}

	fmt.Printf("Starting CMA-ES calibration with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Particle counts per evaluation: %v, frames per run: %d\n", counts, *maxFrames)

	res, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("calibration ended: %v", err)
	}
	if bestParams == nil && res != nil {
		bestParams = params.Clamp(params.Denormalize(res.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	totalTime := time.Since(startTime)
	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(totalTime))
	fmt.Printf("Best score: %.4f\n", bestScore)

	best := result{
		Evaluations: evalCount,
		Score:       bestScore,
		Params:      make(map[string]float64, dim),
		Elapsed:     formatDuration(totalTime),
	}
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Name, bestParams[i])
		best.Params[spec.Name] = bestParams[i]
	}

	data, err := json.MarshalIndent(best, "", "  ")
	if err != nil {
		log.Printf("failed to marshal result: %v", err)
	} else if err := os.WriteFile(filepath.Join(*outputDir, "best.json"), data, 0644); err != nil {
		log.Printf("failed to write result: %v", err)
	}

	bestCfg := *baseCfg
	bestCfg.Parameters = params.Apply(baseCfg.Parameters, bestParams)
	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
