// MIT License
//
// Copyright (c) 2023 EASE lab
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package metrics

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart"
	"github.com/wcharczuk/go-chart/drawing"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/vhive-serverless/dumpviz/ptables"
	"github.com/vhive-serverless/dumpviz/tape"
)

// densitySamples Number of points sampled for the density plot
const densitySamples = 1024

// PlotClassBars Renders the per-class cell counts as a bar chart png
func (s *Summary) PlotClassBars(path string) error {
	var (
		bars   []chart.Value
		colors = classColors()
	)

	for class := ptables.AccessClass(0); class < ptables.NumAccessClasses; class++ {
		if s.ClassCells[class] == 0 {
			continue
		}

		bars = append(bars, chart.Value{
			Value: float64(s.ClassCells[class]),
			Label: class.String(),
			Style: chart.Style{
				Show:        true,
				FillColor:   colors[class],
				StrokeColor: colors[class],
			},
		})
	}

	if len(bars) == 0 {
		log.Warn("No mapped cells to chart. Plotting aborts")
		return nil
	}

	graph := chart.BarChart{
		Title:      "Mapped cells per access class",
		TitleStyle: chart.StyleShow(),
		Background: chart.Style{
			Padding: chart.Box{
				Top: 40,
			},
		},
		Height:   512,
		BarWidth: 60,
		XAxis:    chart.StyleShow(),
		YAxis: chart.YAxis{
			Style: chart.StyleShow(),
		},
		Bars: bars,
	}

	pngFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer pngFile.Close()

	return graph.Render(chart.PNG, pngFile)
}

// PlotMappedDensity Plots the cumulative number of mapped cells against the
// tape index, sampled down to densitySamples points
func PlotMappedDensity(t *tape.Tape, path string) error {
	if len(t.Cells) == 0 {
		log.Warn("Empty tape. Plotting aborts")
		return nil
	}

	step := len(t.Cells) / densitySamples
	if step == 0 {
		step = 1
	}

	var (
		pts    plotter.XYs
		mapped uint64
	)

	for idx, cell := range t.Cells {
		if _, ok := cell.Class(); ok {
			mapped++
		}
		if idx%step == 0 || idx == len(t.Cells)-1 {
			pts = append(pts, plotter.XY{X: float64(idx), Y: float64(mapped)})
		}
	}

	p := plot.New()
	p.Title.Text = "Cumulative mapped cells"
	p.X.Label.Text = "tape index"
	p.Y.Label.Text = "mapped cells"
	p.Y.Min = 0

	if err := plotutil.AddLinePoints(p, pts); err != nil {
		return err
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// classColors The render palette as drawing colors, indexed by AccessClass
func classColors() [ptables.NumAccessClasses]drawing.Color {
	return [ptables.NumAccessClasses]drawing.Color{
		ptables.UserRead:            {R: 0xa9, G: 0xff, B: 0x52, A: 255},
		ptables.UserReadExec:        {R: 0xff, G: 0xff, B: 0x99, A: 255},
		ptables.UserReadWrite:       {R: 0xe0, G: 0xb0, B: 0xff, A: 255},
		ptables.UserReadWriteExec:   {R: 0xff, G: 0x7f, B: 0x7f, A: 255},
		ptables.KernelRead:          {R: 0x00, G: 0xff, B: 0x00, A: 255},
		ptables.KernelReadExec:      {R: 0xff, G: 0xff, B: 0x00, A: 255},
		ptables.KernelReadWrite:     {R: 0xa0, G: 0x20, B: 0xf0, A: 255},
		ptables.KernelReadWriteExec: {R: 0xfe, G: 0x00, B: 0x00, A: 255},
	}
}
