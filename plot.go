package main

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotLatency renders one bar group per operation with one bar per
// structure and saves it to path (the extension selects the format).
func PlotLatency(path string, results []BenchResult) error {
	var (
		names []string
		ops   []string
		seenN = map[string]bool{}
		seenO = map[string]bool{}
		lat   = map[[2]string]float64{}
	)
	for _, r := range results {
		if !seenN[r.Structure] {
			seenN[r.Structure] = true
			names = append(names, r.Structure)
		}
		if !seenO[r.Operation] {
			seenO[r.Operation] = true
			ops = append(ops, r.Operation)
		}
		lat[[2]string{r.Structure, r.Operation}] = float64(r.LatencyNs)
	}
	if len(names) == 0 {
		return errors.New("plot: no results")
	}

	p := plot.New()
	p.Title.Text = "Latency per operation"
	p.Y.Label.Text = "ns/op"

	w := vg.Points(18)
	for i, name := range names {
		vals := make(plotter.Values, len(ops))
		for j, op := range ops {
			vals[j] = lat[[2]string{name, op}]
		}
		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return errors.Wrap(err, "plot: bars")
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = w * vg.Length(float64(i)-float64(len(names)-1)/2)
		p.Add(bars)
		p.Legend.Add(name, bars)
	}
	p.Legend.Top = true
	p.NominalX(ops...)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "plot: save %s", path)
	}
	return nil
}
