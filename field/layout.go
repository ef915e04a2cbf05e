package field

import "github.com/notargets/FVKernel/config"

// Layout names the channels of the state and diagnostics arrays.
//
// State channels: momentum per active axis, total energy, one partial density
// per species, and when Ceq is enabled the shock, contact and directional
// relaxation channels.
type Layout struct {
	Dims       int
	NumSpecies int
	Ceq        bool
}

// NewLayout derives the channel layout from a configuration.
func NewLayout(cfg config.Config) Layout {
	return Layout{
		Dims:       cfg.Grid.Dims,
		NumSpecies: len(cfg.Species),
		Ceq:        cfg.Ceq.Enabled,
	}
}

func (l Layout) Momentum(d int) int { return d }
func (l Layout) Energy() int { return l.Dims }
func (l Layout) Species(s int) int { return l.Dims + 1 + s }

// NumConserved counts momentum, energy and species channels.
func (l Layout) NumConserved() int { return l.Dims + 1 + l.NumSpecies }

// NumCeqChannels is 2+Dims with Ceq enabled, otherwise zero.
func (l Layout) NumCeqChannels() int {
	if !l.Ceq {
		return 0
	}
	return 2 + l.Dims
}

// CeqChannel returns the state index of relaxation channel c, where 0 is the
// shock channel, 1 the contact channel and 2+d the direction d channel.
func (l Layout) CeqChannel(c int) int { return l.NumConserved() + c }

func (l Layout) CeqShock() int { return l.CeqChannel(0) }
func (l Layout) CeqContact() int { return l.CeqChannel(1) }
func (l Layout) CeqDir(d int) int { return l.CeqChannel(2 + d) }
func (l Layout) NumVars() int { return l.NumConserved() + l.NumCeqChannels() }

// Diagnostics channels: relaxation targets, dissipation applied to each
// momentum component, noise detector magnitude and noise flag.
func (l Layout) DiagTarget(c int) int { return c }
func (l Layout) DiagDissipation(d int) int { return 2 + l.Dims + d }
func (l Layout) DiagNoise() int { return 2 + 2*l.Dims }
func (l Layout) DiagNoiseFlag() int { return 3 + 2*l.Dims }
func (l Layout) NumDiag() int { return 4 + 2*l.Dims }
