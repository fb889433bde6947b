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

// Air holds properties of the atmosphere at one altitude.
type Air struct {
	Temperature float64 `units:"K"`
	Pressure    float64 `units:"Pa"`
	Density     float64 `units:"kg/m3"`
	Viscosity   float64 `units:"Pa s"`
}

// standardAtmosphere is the 1976 U.S. Standard Atmosphere at 1 km
// intervals from the surface to 20 km.
var standardAtmosphere = [...]Air{
	{288.15, 101325.0, 1.2250, 1.789e-5},
	{281.65, 89874.6, 1.1116, 1.758e-5},
	{275.15, 79495.2, 1.0065, 1.726e-5},
	{268.65, 70108.5, 0.9091, 1.694e-5},
	{262.15, 61640.2, 0.8191, 1.661e-5},
	{255.65, 54019.9, 0.7361, 1.628e-5},
	{249.15, 47181.0, 0.6597, 1.595e-5},
	{242.65, 41060.6, 0.5895, 1.561e-5},
	{236.15, 35599.6, 0.5252, 1.527e-5},
	{229.65, 30742.6, 0.4663, 1.493e-5},
	{223.15, 26436.3, 0.4127, 1.458e-5},
	{216.65, 22632.1, 0.3639, 1.422e-5},
	{216.65, 19330.4, 0.3108, 1.422e-5},
	{216.65, 16510.4, 0.2655, 1.422e-5},
	{216.65, 14101.4, 0.2269, 1.422e-5},
	{216.65, 12044.8, 0.1938, 1.422e-5},
	{216.65, 10289.1, 0.1656, 1.422e-5},
	{216.65, 8787.9, 0.1415, 1.422e-5},
	{216.65, 7500.2, 0.1209, 1.422e-5},
	{216.65, 6401.1, 0.1032, 1.422e-5},
	{216.65, 5474.9, 0.0880, 1.422e-5},
}

const atmosphereStep = 1000.0 // m

// StandardAir returns the standard atmosphere at altitude z meters,
// interpolating linearly between table levels and holding the end values
// below the surface and above 20 km.
func StandardAir(z float64) Air {
	last := len(standardAtmosphere) - 1
	if !(z > 0) {
		return standardAtmosphere[0]
	}
	k := z / atmosphereStep
	if k >= float64(last) {
		return standardAtmosphere[last]
	}
	i := int(k)
	f := k - float64(i)
	a, b := standardAtmosphere[i], standardAtmosphere[i+1]
	return Air{
		Temperature: a.Temperature + f*(b.Temperature-a.Temperature),
		Pressure:    a.Pressure + f*(b.Pressure-a.Pressure),
		Density:     a.Density + f*(b.Density-a.Density),
		Viscosity:   a.Viscosity + f*(b.Viscosity-a.Viscosity),
	}
}
