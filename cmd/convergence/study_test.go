package main

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/plume/grid"
	"github.com/pthm-cable/plume/kernel"
	"github.com/pthm-cable/plume/parallel"
)

func TestRunReducesDivergence(t *testing.T) {
	d := kernel.NewCPUDispatcher(parallel.NewPool(2))
	defer d.Close()

	rows, fit, err := Run(d, grid.HostAllocator{}, 64, 64, 30, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 30 {
		t.Fatalf("got %d rows, want 30", len(rows))
	}
	if fit.Initial <= 0 {
		t.Fatalf("initial divergence = %g", fit.Initial)
	}
	last := rows[len(rows)-1]
	if last.Reduction >= rows[0].Reduction {
		t.Errorf("30 iterations (%g) did not improve on 1 (%g)", last.Reduction, rows[0].Reduction)
	}
	if !(fit.Factor > 0 && fit.Factor <= 1) {
		t.Errorf("factor per iteration = %g, want in (0, 1]", fit.Factor)
	}
}

func TestRunRejectsZeroIterations(t *testing.T) {
	d := kernel.NewCPUDispatcher(parallel.NewPool(1))
	defer d.Close()
	if _, _, err := Run(d, grid.HostAllocator{}, 8, 8, 0, 2); err == nil {
		t.Error("expected error for zero iterations")
	}
}

func TestFitFactor(t *testing.T) {
	rows := make([]Row, 20)
	for i := range rows {
		rows[i] = Row{Iterations: i + 1, MeanAbsDivergence: math.Pow(0.5, float64(i+1))}
	}
	if got := fitFactor(rows); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("fitFactor = %g, want 0.5", got)
	}
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	rows := []Row{{1, 0.5, 1, 0.5}, {2, 0.25, 0.5, 0.25}}

	csvPath := filepath.Join(dir, "c.csv")
	if err := writeCSV(csvPath, rows); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "iterations,mean_abs_divergence") {
		t.Errorf("csv = %q", data)
	}

	pngPath := filepath.Join(dir, "c.png")
	if err := writePlot(pngPath, "test", rows); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(pngPath); err != nil || fi.Size() == 0 {
		t.Errorf("plot not written: %v", err)
	}
}
