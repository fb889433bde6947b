/*
Copyright © 2026 the Fallout authors.
This file is part of Fallout.

Fallout is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Fallout is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Fallout.  If not, see <http://www.gnu.org/licenses/>.
*/

package falloututil

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sort"

	"github.com/ctessum/plotextra"
	"github.com/spatialmodel/fallout"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// mapDecades is the number of orders of magnitude below the maximum that
// WriteMap colors.
const mapDecades = 4

// WriteMap draws the named field of r as a PNG map on a log scale, with
// ground zero marked and a color bar underneath. Cells more than four
// orders of magnitude below the maximum are left blank.
func WriteMap(w io.Writer, r *fallout.Result, field string) error {
	f, err := r.Field(field)
	if err != nil {
		return err
	}
	g := r.Grid
	logv := make([]float64, len(f.Data.Elements))
	var positive []float64
	for i, v := range f.Data.Elements {
		logv[i] = math.NaN()
		if v > 0 && !math.IsInf(v, 0) {
			logv[i] = math.Log10(v)
			positive = append(positive, logv[i])
		}
	}
	if len(positive) == 0 {
		return fmt.Errorf("falloututil: field %s has no positive values to map", field)
	}
	sort.Float64s(positive)
	hi := positive[len(positive)-1]
	lo := hi - mapDecades

	cm2, err := moreland.NewLuminance([]color.Color{
		color.NRGBA{G: 176, A: 255},
		color.NRGBA{G: 255, A: 255},
	})
	if err != nil {
		return fmt.Errorf("falloututil: creating color map: %w", err)
	}
	cm := &plotextra.BrokenColorMap{
		Base:     moreland.ExtendedBlackBody(),
		OverFlow: palette.Reverse(cm2),
	}
	cm.SetMin(lo)
	cm.SetMax(hi)
	// The top 0.1% of cells get the overflow colors.
	cut := math.Min(math.Max(positive[int(0.999*float64(len(positive)-1))], lo+0.5), hi)
	cm.SetHighCut(cut)

	img := image.NewNRGBA(image.Rect(0, 0, g.Nx, g.Ny))
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			v := logv[j*g.Nx+i]
			if math.IsNaN(v) || v < lo {
				continue
			}
			c, err := cm.At(v)
			if err != nil {
				return fmt.Errorf("falloututil: coloring map: %w", err)
			}
			img.Set(i, g.Ny-1-j, c) // Image rows run north to south.
		}
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = fmt.Sprintf("%s: %s", r.Model, f.Description)
	p.X.Label.Text = "km east of ground zero"
	p.Y.Label.Text = "km north of ground zero"
	b := g.Bounds()
	p.Add(plotter.NewImage(img, b.Min.X/1000, b.Min.Y/1000, b.Max.X/1000, b.Max.Y/1000))
	gz, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return err
	}
	gz.GlyphStyle.Shape = draw.CrossGlyph{}
	gz.GlyphStyle.Radius = vg.Points(4)
	gz.GlyphStyle.Color = color.NRGBA{B: 255, A: 255}
	p.Add(gz)

	l, err := plot.New()
	if err != nil {
		return err
	}
	l.Add(&plotter.ColorBar{ColorMap: cm})
	l.X.Scale = plotextra.BrokenScale{HighCut: cut, HighCutFraction: 0.9}
	l.X.Tick.Marker = plotextra.BrokenTicks{HighCut: cut}
	l.X.Label.Text = fmt.Sprintf("log10 %s (%s)", f.Name, f.Units)
	l.HideY()
	l.X.Padding = 0

	const (
		width   = 6 * vg.Inch
		height  = 6.8 * vg.Inch
		legendH = 0.8 * vg.Inch
	)
	canvas := vgimg.New(width, height)
	dc := draw.New(canvas)
	p.Draw(draw.Crop(dc, 0, 0, legendH, 0))
	l.Draw(draw.Crop(dc, 0, 0, 0, legendH-height))
	png := vgimg.PngCanvas{Canvas: canvas}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("falloututil: writing map: %w", err)
	}
	return nil
}
