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
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/spatialmodel/fallout/grid"
	"gonum.org/v1/gonum/floats"
)

// geographicWKT is the .prj text for longitude/latitude on WGS84.
const geographicWKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// NoData is written to output files in place of non-finite values, such as
// the arrival time of cells fallout never reaches.
const NoData = -9999.0

// DefaultOutputVariables returns the output variables written when none
// are given: every field of the result under a shapefile-safe name.
func DefaultOutputVariables() map[string]string {
	return map[string]string{
		"Deposit":  DepositionField,
		"DoseRate": DoseRateField,
		"Dose":     IntegratedDoseField,
		"Arrival":  ArrivalField,
		"Pop":      PopulationField,
	}
}

// Outputter writes selected variables of a result to a shapefile.
//
// outputVariables maps the names of the variables to write to expressions
// that define them. Expressions can use the result fields, the other
// output variables, and the output functions.
type Outputter struct {
	fileName        string
	outputVariables map[string]string
	outputFunctions map[string]govaluate.ExpressionFunction

	// expanded holds the expressions with every reference to another
	// output variable replaced by its definition.
	expanded map[string]string
}

func oneArg(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("fallout: got %d arguments for function '%s', but needs 1", len(args), name)
		}
		v, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("fallout: function '%s' needs a number, not %T", name, args[0])
		}
		return f(v), nil
	}
}

// NewOutputter returns an Outputter that writes to fileName. The default
// functions are:
//
// 'exp(x)' and 'log10(x)'.
//
// 'shield(dose, factor)', the dose received behind a shield that
// transmits factor of the outdoor dose.
//
// 'sum(x)', which sums an expression across all grid cells.
func NewOutputter(fileName string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	funcs := map[string]govaluate.ExpressionFunction{
		"exp":   oneArg("exp", math.Exp),
		"log10": oneArg("log10", math.Log10),
		"shield": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("fallout: got %d arguments for function 'shield', but needs 2", len(args))
			}
			return args[0].(float64) * args[1].(float64), nil
		},
		"sum": func(args ...interface{}) (interface{}, error) {
			return nil, fmt.Errorf("fallout: unbalanced call to 'sum'")
		},
	}
	for k, v := range outputFunctions {
		funcs[k] = v
	}
	if len(outputVariables) == 0 {
		outputVariables = DefaultOutputVariables()
	}
	if err := checkOutputNames(outputVariables); err != nil {
		return nil, err
	}
	o := &Outputter{
		fileName:        fileName,
		outputVariables: outputVariables,
		outputFunctions: funcs,
		expanded:        make(map[string]string, len(outputVariables)),
	}
	for name := range outputVariables {
		if _, err := o.expand(name, nil); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// expand returns the expression for output variable name with references
// to other output variables replaced by their own expansions. stack holds
// the variables being expanded, to catch circular definitions.
func (o *Outputter) expand(name string, stack []string) (string, error) {
	if e, ok := o.expanded[name]; ok {
		return e, nil
	}
	for _, s := range stack {
		if s == name {
			return "", fmt.Errorf("fallout: output variable '%s' is defined in terms of itself", name)
		}
	}
	expr := o.outputVariables[name]
	parsed, err := govaluate.NewEvaluableExpressionWithFunctions(expr, o.outputFunctions)
	if err != nil {
		return "", fmt.Errorf("fallout: output variable '%s': %w", name, err)
	}
	for _, v := range parsed.Vars() {
		if _, ok := o.outputVariables[v]; !ok || v == name {
			continue
		}
		sub, err := o.expand(v, append(stack, name))
		if err != nil {
			return "", err
		}
		expr = replaceVariable(expr, v, "("+sub+")")
	}
	o.expanded[name] = expr
	return expr, nil
}

// identifier matches variable and function names in expressions.
var identifier = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// replaceVariable replaces whole-word occurrences of v in expr.
func replaceVariable(expr, v, with string) string {
	return identifier.ReplaceAllStringFunc(expr, func(m string) string {
		if m == v {
			return with
		}
		return m
	})
}

// checkOutputNames checks (1) if any output variable names exceed 10
// characters and (2) if any output variable names include characters that
// are unsupported in shapefile field names.
func checkOutputNames(o map[string]string) error {
	valid := regexp.MustCompile(`^[A-Za-z]\w*$`)
	for key := range o {
		long := len(key) > 10
		ok := valid.MatchString(key)
		switch {
		case long && !ok:
			return fmt.Errorf("fallout: output variable name '%s' exceeds 10 characters and includes unsupported character(s)", key)
		case long:
			return fmt.Errorf("fallout: output variable name '%s' exceeds 10 characters", key)
		case !ok:
			return fmt.Errorf("fallout: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// cellParameters gives expressions access to the fields of one cell.
type cellParameters struct {
	g      *grid.Grid
	i      int
	extras map[string]float64
}

func (p cellParameters) Get(name string) (interface{}, error) {
	if v, ok := p.extras[name]; ok {
		return v, nil
	}
	f, err := p.g.Field(name)
	if err != nil {
		return nil, fmt.Errorf("fallout: undefined variable name '%s'", name)
	}
	return f.Data.Elements[p.i], nil
}

// sumArgument finds the first call to sum in expr and returns the
// positions of the call and of its argument.
func sumArgument(expr string) (start, argStart, argEnd, end int, ok bool) {
	for _, loc := range identifier.FindAllStringIndex(expr, -1) {
		if expr[loc[0]:loc[1]] != "sum" || loc[1] >= len(expr) || expr[loc[1]] != '(' {
			continue
		}
		depth := 0
		for i := loc[1]; i < len(expr); i++ {
			switch expr[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return loc[0], loc[1] + 1, i, i + 1, true
				}
			}
		}
		return 0, 0, 0, 0, false
	}
	return 0, 0, 0, 0, false
}

// evaluate computes expr for every cell of g. Each call to sum is
// evaluated first and replaced by its total.
func (o *Outputter) evaluate(g *grid.Grid, expr string) ([]float64, error) {
	extras := make(map[string]float64)
	for {
		start, a, b, end, ok := sumArgument(expr)
		if !ok {
			break
		}
		vals, err := o.evaluate(g, expr[a:b])
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("sum_%d", len(extras))
		extras[name] = floats.Sum(vals)
		expr = expr[:start] + name + expr[end:]
	}
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, o.outputFunctions)
	if err != nil {
		return nil, err
	}
	out := make([]float64, g.Nx*g.Ny)
	for i := range out {
		v, err := e.Eval(cellParameters{g: g, i: i, extras: extras})
		if err != nil {
			return nil, err
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("fallout: expression '%s' gives %T, not a number", expr, v)
		}
		out[i] = f
	}
	return out, nil
}

// Results evaluates every output variable for every cell of r.
func (o *Outputter) Results(r *Result) (map[string][]float64, error) {
	out := make(map[string][]float64, len(o.expanded))
	for name, expr := range o.expanded {
		v, err := o.evaluate(r.Grid, expr)
		if err != nil {
			return nil, fmt.Errorf("fallout: output variable '%s': %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// Output writes the output variables of r to a shapefile of grid cells in
// longitude/latitude coordinates, with a matching .prj file. Cells where
// every output variable is zero are left out.
func (o *Outputter) Output(r *Result) error {
	results, err := o.Results(r)
	if err != nil {
		return err
	}
	vars := make([]string, 0, len(results))
	for v := range results {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	fields := make([]goshp.Field, len(vars))
	for i, v := range vars {
		fields[i] = goshp.FloatField(v, 14, 6)
	}

	// remove extension and replace it with .shp
	fileBase := strings.TrimSuffix(o.fileName, filepath.Ext(o.fileName))
	shape, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("fallout: creating output shapefile: %w", err)
	}
	g := r.Grid
	row := make([]interface{}, len(vars))
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			k := j*g.Nx + i
			empty := true
			for n, v := range vars {
				x := results[v][k]
				if math.IsNaN(x) || math.IsInf(x, 0) {
					x = NoData
				} else if x != 0 {
					empty = false
				}
				row[n] = x
			}
			if empty {
				continue
			}
			poly, err := g.CellGeographic(grid.Index{I: i, J: j})
			if err != nil {
				shape.Close()
				return err
			}
			if err := shape.EncodeFields(poly, row...); err != nil {
				shape.Close()
				return fmt.Errorf("fallout: writing output shapefile: %w", err)
			}
		}
	}
	shape.Close()

	if err := os.WriteFile(fileBase+".prj", []byte(geographicWKT), 0644); err != nil {
		return fmt.Errorf("fallout: creating output prj file: %w", err)
	}
	return nil
}
