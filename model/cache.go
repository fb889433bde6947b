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

package model

import (
	"context"
	"encoding/gob"
	"runtime"

	"github.com/ctessum/requestcache"
	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/internal/hash"
)

func init() {
	gob.Register(fallout.UniformDensity(0))
}

// Request holds all the inputs to one simulation.
type Request struct {
	Params     fallout.DetonationParameters
	Wind       fallout.WindProfile
	Population fallout.Population
	Model      Model
	Options    Options
}

// Key returns a string that identifies the inputs of r. Requests with
// equal keys give equal results.
func (r Request) Key() string {
	r.Options.Log = nil
	return hash.Hash(r)
}

// Cache runs simulations, reusing the results of identical requests.
// Concurrent identical requests are computed once.
type Cache struct {
	c *requestcache.Cache
}

// NewCache returns a cache that holds up to memory results in memory and,
// if dir is not empty, also stores every result in dir.
func NewCache(memory int, dir string) *Cache {
	funcs := []requestcache.CacheFunc{requestcache.Deduplicate(), requestcache.Memory(memory)}
	if dir != "" {
		funcs = append(funcs, requestcache.Disk(dir, requestcache.MarshalGob, requestcache.UnmarshalGob))
	}
	return &Cache{
		c: requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			r := request.(Request)
			return Run(ctx, r.Params, r.Wind, r.Population, r.Model, r.Options)
		}, runtime.GOMAXPROCS(-1), funcs...),
	}
}

// Run returns the result for r, from the cache if possible. Results are
// shared between callers and must not be modified.
func (c *Cache) Run(ctx context.Context, r Request) (*fallout.Result, error) {
	res, err := c.c.NewRequest(ctx, r, r.Key()).Result()
	if err != nil {
		return nil, err
	}
	return res.(*fallout.Result), nil
}
