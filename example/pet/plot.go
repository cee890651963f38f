package main

import (
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/petseg/metric"
)

// plotLoss renders the per-step training loss curve.
func plotLoss(losses []float64, path string) error {
	if len(losses) == 0 {
		return nil
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Training loss"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "loss"

	pts := make(plotter.XYs, len(losses))
	for i, l := range losses {
		pts[i].X = float64(i)
		pts[i].Y = l
	}
	if err := plotutil.AddLinePoints(p, "loss", pts); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// plotIoU renders the per-class IoU of a metric report as a bar chart.
func plotIoU(report metric.Report, path string) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Per-class IoU"
	p.Y.Label.Text = "IoU"
	p.Y.Max = 1

	vals := make(plotter.Values, len(report))
	names := make([]string, len(report))
	for i, s := range report {
		vals[i] = s.IoU
		names[i] = className(s.Class)
	}

	bars, err := plotter.NewBarChart(vals, vg.Points(40))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
