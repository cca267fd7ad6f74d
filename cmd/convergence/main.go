// Command convergence measures how the residual divergence of a projected
// flow falls with the number of Jacobi pressure iterations. It writes a CSV
// table and a PNG plot of mean |divergence| against iterations.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/grid"
	"github.com/pthm-cable/plume/kernel"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	size := flag.Int("size", 128, "Grid cells per side")
	maxIter := flag.Int("max-iterations", 50, "Largest Jacobi iteration count")
	sigma := flag.Float64("sigma", 8, "Width of the divergent bump in cells")
	outputDir := flag.String("output", ".", "Directory for convergence.csv and convergence.png")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	d, backend, err := kernel.NewDispatcher(cfg.Compute.Backend, cfg.Compute.Workers, logger)
	if err != nil {
		logger.Error("failed to create dispatcher", "error", err)
		os.Exit(1)
	}
	defer d.Close()

	alloc := grid.HostAllocator{Precision: cfg.Derived.Precision, MaxCells: cfg.Compute.MaxCells}
	rows, fit, err := Run(d, alloc, *size, *size, *maxIter, *sigma)
	if err != nil {
		logger.Error("convergence study failed", "error", err)
		os.Exit(1)
	}
	last := rows[len(rows)-1]
	logger.Info("convergence",
		"backend", backend,
		"size", *size,
		"initial", fit.Initial,
		"final", last.MeanAbsDivergence,
		"reduction", last.Reduction,
		"factor_per_iteration", fit.Factor,
	)

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		logger.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	if err := writeCSV(filepath.Join(*outputDir, "convergence.csv"), rows); err != nil {
		logger.Error("failed to write csv", "error", err)
		os.Exit(1)
	}
	title := fmt.Sprintf("Jacobi convergence, %dx%d %s", *size, *size, cfg.Derived.Precision)
	if err := writePlot(filepath.Join(*outputDir, "convergence.png"), title, rows); err != nil {
		logger.Error("failed to write plot", "error", err)
		os.Exit(1)
	}
}

func writeCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writePlot draws mean |divergence| against iterations, on a log axis when
// every value is positive.
func writePlot(path, title string, rows []Row) error {
	pts := make(plotter.XYs, len(rows))
	positive := true
	for i, r := range rows {
		pts[i].X = float64(r.Iterations)
		pts[i].Y = r.MeanAbsDivergence
		positive = positive && r.MeanAbsDivergence > 0
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "pressure iterations"
	p.Y.Label.Text = "mean |divergence|"
	if positive {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	points.GlyphStyle.Radius = vg.Points(2)
	p.Add(plotter.NewGrid(), line, points)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
