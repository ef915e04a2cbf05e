// Package integrator advances a residual evaluator in time with explicit
// low-storage Runge-Kutta schemes and fills physical-boundary ghost cells
// between stages.
package integrator

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownMethod is returned for an integrator name with no tableau.
var ErrUnknownMethod = errors.New("unknown integrator")

// Method is a 2N-storage Runge-Kutta tableau. Stage s computes
//
//	dU = A[s]*dU + dt*R(U)
//	U  = U + B[s]*dU
type Method struct {
	Name string
	A    []float64
	B    []float64
}

// Stages is the number of residual evaluations per step.
func (m Method) Stages() int { return len(m.A) }

var methods = map[string]Method{
	// Carpenter and Kennedy five stage, fourth order.
	"lsrk54": {
		Name: "lsrk54",
		A: []float64{
			0.0,
			-567301805773.0 / 1357537059087.0,
			-2404267990393.0 / 2016746695238.0,
			-3550918686646.0 / 2091501179385.0,
			-1275806237668.0 / 842570457699.0,
		},
		B: []float64{
			1432997174477.0 / 9575080441755.0,
			5161836677717.0 / 13612068292357.0,
			1720146321549.0 / 2090206949498.0,
			3134564353537.0 / 4481467310338.0,
			2277821191437.0 / 14882151754819.0,
		},
	},
	// Williamson three stage, third order.
	"rk3": {
		Name: "rk3",
		A:    []float64{0, -5.0 / 9.0, -153.0 / 128.0},
		B:    []float64{1.0 / 3.0, 15.0 / 16.0, 8.0 / 15.0},
	},
}

// MethodByName looks up a tableau.
func MethodByName(name string) (Method, error) {
	m, ok := methods[name]
	if !ok {
		return Method{}, fmt.Errorf("%w %q (have %v)", ErrUnknownMethod, name, Methods())
	}
	return m, nil
}

// Methods lists the known tableau names.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for n := range methods {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
