// Package problems provides named initial conditions for demonstration runs.
package problems

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/notargets/FVKernel/config"
	"github.com/notargets/FVKernel/solver"
)

// ErrUnknownProblem is returned for a name with no initial condition.
var ErrUnknownProblem = errors.New("unknown problem")

type builder func(cfg config.Config) solver.InitFunc

var registry = map[string]builder{
	"pulse":   pulse,
	"sod":     sod,
	"checker": checker,
}

// Lookup returns the initial condition named by cfg.Runtime.Problem.
func Lookup(cfg config.Config) (solver.InitFunc, error) {
	b, ok := registry[cfg.Runtime.Problem]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownProblem, cfg.Runtime.Problem, Names())
	}
	return b(cfg), nil
}

// Names lists the registered problems.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// extent is the physical size of the domain along each axis.
func extent(cfg config.Config) (l [3]float64) {
	n, dx := cfg.Grid.CellCounts(), cfg.Grid.Dx()
	for d := 0; d < cfg.Grid.Dims; d++ {
		l[d] = float64(n[d]) * dx[d]
	}
	return l
}

// pulse is a Gaussian density and pressure bump advected diagonally.
func pulse(cfg config.Config) solver.InitFunc {
	l := extent(cfg)
	dims := cfg.Grid.Dims
	width := 0.1 * slices.Min(l[:dims])
	return func(x [3]float64) solver.Point {
		var r2 float64
		for d := 0; d < dims; d++ {
			r2 += math.Pow(x[d]-0.5*l[d], 2)
		}
		bump := math.Exp(-r2 / (2 * width * width))
		return solver.Point{
			Rho: 1 + 0.5*bump,
			Vel: [3]float64{1, 0.5, 0.25},
			P:   1 + 0.1*bump,
		}
	}
}

// sod is the shock tube along the first axis. With two or more species the
// low pressure side holds the second one.
func sod(cfg config.Config) solver.InitFunc {
	mid := 0.5 * extent(cfg)[0]
	left, right := fractions(len(cfg.Species))
	return func(x [3]float64) solver.Point {
		if x[0] < mid {
			return solver.Point{Rho: 1, P: 1, Y: left}
		}
		return solver.Point{Rho: 0.125, P: 0.1, Y: right}
	}
}

func fractions(n int) (left, right []float64) {
	if n < 2 {
		return nil, nil
	}
	left = make([]float64, n)
	right = make([]float64, n)
	left[0], right[1] = 1, 1
	return left, right
}

// checker is a uniform state with a grid-scale density checkerboard, the
// pattern the noise filter targets.
func checker(cfg config.Config) solver.InitFunc {
	dx := cfg.Grid.Dx()
	dims := cfg.Grid.Dims
	return func(x [3]float64) solver.Point {
		var parity int
		for d := 0; d < dims; d++ {
			parity += int(math.Floor(x[d] / dx[d]))
		}
		sign := 1.0
		if parity%2 != 0 {
			sign = -1
		}
		return solver.Point{Rho: 1 + 0.01*sign, P: 1}
	}
}
