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

package delfic

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/spatialmodel/fallout"
)

// maxFallSteps bounds the number of integration steps in one fall.
const maxFallSteps = 5000

// Fall integrates the descent of a particle of the given diameter (µm)
// from height z0 (m) to the ground in steps of c.AltitudeStep, using the
// settling velocity and wind at the middle of each step. Steps are
// lengthened so that no fall takes more than maxFallSteps of them.
// It returns the fall time in seconds and the horizontal displacement in
// meters.
func Fall(c Config, wind fallout.WindProfile, diameter, z0 float64) (t, dx, dy float64) {
	if math.IsInf(z0, 0) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	step := math.Max(c.AltitudeStep, z0/maxFallSteps)
	for z := z0; z > 0; {
		z1 := math.Max(z-step, 0)
		zm := (z + z1) / 2
		v := TerminalVelocity(diameter, StandardAir(zm), c.ParticleDensity).Value()
		if !(v > 0) || math.IsInf(v, 0) {
			return math.NaN(), math.NaN(), math.NaN()
		}
		dt := (z - z1) / v
		u, w := wind.At(zm)
		t += dt
		dx += u * dt
		dy += w * dt
		z = z1
	}
	return t, dx, dy
}

// Path describes where one bin lands, relative to ground zero.
type Path struct {
	// X and Y locate the center of the landing footprint.
	X, Y float64 `units:"m"`

	// AxisX and AxisY are the unit vector along which the layer is
	// stretched by wind shear.
	AxisX, AxisY float64

	// LayerSpread is the standard deviation of landing points through the
	// depth of the layer, along the axis.
	LayerSpread float64 `units:"m"`

	// FallTime is the fall time from the layer center.
	FallTime float64 `units:"s"`

	// Arrival is the time the first particles of the bin reach the ground.
	Arrival float64 `units:"h"`

	// Skip is set when the path could not be computed.
	Skip bool
}

// Trace computes the path of one bin released from cloud.
func Trace(c Config, cloud Cloud, wind fallout.WindProfile, b Bin) (Path, float64) {
	zb, zc, zt := cloud.Layer(b.Diameter)
	tb, xb, yb := Fall(c, wind, b.Diameter, zb)
	tc, _, _ := Fall(c, wind, b.Diameter, zc)
	tt, xt, yt := Fall(c, wind, b.Diameter, zt)
	for _, v := range []float64{tb, xb, yb, tt, xt, yt} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Path{Skip: true}, v
		}
	}
	if !(tc > 0) || math.IsInf(tc, 0) {
		return Path{Skip: true}, tc
	}
	p := Path{
		X:        (xb + xt) / 2,
		Y:        (yb + yt) / 2,
		FallTime: tc,
		Arrival:  c.stabilizationHours() + tb/3600,
		AxisX:    1,
	}
	ddx, ddy := xt-xb, yt-yb
	if d := math.Hypot(ddx, ddy); d > 0 {
		p.AxisX, p.AxisY = ddx/d, ddy/d
		p.LayerSpread = d / math.Sqrt(12)
	} else if d := math.Hypot(p.X, p.Y); d > 0 {
		p.AxisX, p.AxisY = p.X/d, p.Y/d
	}
	return p, 0
}

// transport is the third stage. Bins are traced concurrently; each
// goroutine writes only its own bins.
func (e *engine) transport(s *fallout.Simulation) error {
	e.paths = make([]Path, len(e.bins))
	bad := make([]float64, len(e.bins))
	ctx := s.Context()
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for k := pp; k < len(e.bins); k += nprocs {
				if ctx.Err() != nil {
					return
				}
				e.paths[k], bad[k] = Trace(e.cfg, e.cloud, s.Wind, e.bins[k])
			}
		}(pp)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delfic: transport stopped: %w", err)
	}
	for k, p := range e.paths {
		if p.Skip {
			s.Diverged(fallout.DivergenceError{Stage: "delfic transport", Bin: k, Value: bad[k]})
		}
	}
	return nil
}
