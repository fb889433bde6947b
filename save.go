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
	"encoding/gob"
	"fmt"
	"io"
)

func init() {
	gob.Register(&Result{})
}

// Save writes r to w in gob format
// (format description at https://golang.org/pkg/encoding/gob/).
func (r *Result) Save(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(r); err != nil {
		return fmt.Errorf("fallout: saving result: %w", err)
	}
	return nil
}

// Load reads a result written by Save.
func Load(rd io.Reader) (*Result, error) {
	r := new(Result)
	if err := gob.NewDecoder(rd).Decode(r); err != nil {
		return nil, fmt.Errorf("fallout: loading result: %w", err)
	}
	if r.Grid == nil {
		return nil, fmt.Errorf("fallout: loading result: no grid")
	}
	return r, nil
}
