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

package fallout

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/fallout/grid"
)

// Place is a named location.
type Place struct {
	Name string  `toml:"name"`
	Lat  float64 `toml:"lat"`
	Lon  float64 `toml:"lon"`
}

// Location returns the coordinates of p.
func (p Place) Location() grid.LatLon { return grid.LatLon{Lat: p.Lat, Lon: p.Lon} }

// Gazetteer looks up places by name, ignoring case.
type Gazetteer struct {
	places map[string]Place
}

type gazetteerFile struct {
	Place []Place `toml:"place"`
}

// ReadGazetteer reads places from TOML with one [[place]] table per
// location:
//
//	[[place]]
//	name = "India Gate, New Delhi"
//	lat = 28.6129332
//	lon = 77.2294928
func ReadGazetteer(r io.Reader) (*Gazetteer, error) {
	var f gazetteerFile
	md, err := toml.DecodeReader(r, &f)
	if err != nil {
		return nil, fmt.Errorf("fallout: reading places: %w", err)
	}
	if u := md.Undecoded(); len(u) > 0 {
		return nil, fmt.Errorf("fallout: reading places: unknown keys %v", u)
	}
	g := &Gazetteer{places: make(map[string]Place)}
	for _, p := range f.Place {
		if err := g.Add(p); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func placeKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Add adds or replaces a place.
func (g *Gazetteer) Add(p Place) error {
	if placeKey(p.Name) == "" {
		return InvalidParameterError{Name: "Place", Reason: "place has no name"}
	}
	if !(p.Lat >= -90 && p.Lat <= 90) || !(p.Lon >= -180 && p.Lon <= 180) || math.IsNaN(p.Lat+p.Lon) {
		return InvalidParameterError{Name: "Place", Reason: fmt.Sprintf("%s: (%g, %g) is not a valid latitude and longitude", p.Name, p.Lat, p.Lon)}
	}
	g.places[placeKey(p.Name)] = p
	return nil
}

// Merge adds every place in o to g.
func (g *Gazetteer) Merge(o *Gazetteer) {
	for k, p := range o.places {
		g.places[k] = p
	}
}

// Lookup returns the place called name.
func (g *Gazetteer) Lookup(name string) (Place, error) {
	p, ok := g.places[placeKey(name)]
	if !ok {
		return Place{}, InvalidParameterError{Name: "Place", Reason: fmt.Sprintf("unknown place %q", name)}
	}
	return p, nil
}

// Places returns every place, sorted by name.
func (g *Gazetteer) Places() []Place {
	out := make([]Place, 0, len(g.places))
	for _, p := range g.places {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return placeKey(out[i].Name) < placeKey(out[j].Name) })
	return out
}

// DefaultGazetteer returns landmarks in and around Delhi.
func DefaultGazetteer() *Gazetteer {
	g, err := ReadGazetteer(strings.NewReader(delhiPlaces))
	if err != nil {
		panic(err)
	}
	return g
}

const delhiPlaces = `
[[place]]
name = "Kashmere Gate, Delhi"
lat = 28.6668141
lon = 77.2290549

[[place]]
name = "Malviya Nagar, Delhi"
lat = 28.5339201
lon = 77.2124474

[[place]]
name = "Delhi Airport"
lat = 28.5610952
lon = 77.0853142

[[place]]
name = "Red Fort, Delhi"
lat = 28.656081
lon = 77.2407959

[[place]]
name = "India Gate, New Delhi"
lat = 28.6129332
lon = 77.2294928

[[place]]
name = "Hauz Khas, Delhi"
lat = 28.5498087
lon = 77.2077638

[[place]]
name = "Connaught Place, New Delhi"
lat = 28.6314022
lon = 77.2193791

[[place]]
name = "Karol Bagh, Delhi"
lat = 28.6529982
lon = 77.1890227

[[place]]
name = "Lajpat Nagar, Delhi"
lat = 28.5660924
lon = 77.2432851

[[place]]
name = "Dwarka, New Delhi"
lat = 28.574272
lon = 77.0653316

[[place]]
name = "Rajouri Garden, Delhi"
lat = 28.6511896
lon = 77.1242597

[[place]]
name = "Chandni Chowk, Delhi"
lat = 28.6559834
lon = 77.2321937

[[place]]
name = "Greater Kailash, New Delhi"
lat = 28.5555167
lon = 77.2634965

[[place]]
name = "Rohini, Delhi"
lat = 28.7162092
lon = 77.1170743

[[place]]
name = "Saket, New Delhi"
lat = 28.5234897
lon = 77.209631

[[place]]
name = "Nehru Place, Delhi"
lat = 28.5492574
lon = 77.2529526

[[place]]
name = "Sarojini Nagar Market"
lat = 28.5769159
lon = 77.1962566

[[place]]
name = "Kamla Nagar Market"
lat = 28.6786683
lon = 77.2072566

[[place]]
name = "Defence Colony, Delhi"
lat = 28.5713575
lon = 77.2330402

[[place]]
name = "Green Park, Delhi"
lat = 28.5564421
lon = 77.2038699

[[place]]
name = "Okhla Industrial Area, Delhi"
lat = 28.5475409
lon = 77.2828271

[[place]]
name = "Nizamuddin, Delhi"
lat = 28.5909417
lon = 77.2423341

[[place]]
name = "Chanakyapuri, Delhi"
lat = 28.5946775
lon = 77.1885212

[[place]]
name = "Lutyens, Delhi"
lat = 28.6025053
lon = 77.2279312

[[place]]
name = "Akshardham Temple, Delhi"
lat = 28.6125167
lon = 77.2773184

[[place]]
name = "Lotus Temple, Delhi"
lat = 28.5533586
lon = 77.2586006

[[place]]
name = "Qutub Minar, Delhi"
lat = 28.524413
lon = 77.1854501

[[place]]
name = "National Museum, New Delhi"
lat = 28.6119151
lon = 77.2196391

[[place]]
name = "Humayun's Tomb, Delhi"
lat = 28.5932856
lon = 77.2506468

[[place]]
name = "Mehrauli, Delhi"
lat = 28.5218262
lon = 77.1783232

[[place]]
name = "Jawaharlal Nehru University, New Delhi"
lat = 28.5401668
lon = 77.1645601

[[place]]
name = "Delhi University"
lat = 28.7508153
lon = 77.1162765
`
