package imageprocessor

// Server-side parameter defaults and bounds.
const (
	DefaultNumPoints   = 1000
	DefaultDetailLevel = 5
	MinNumPoints       = 100
	MinDetailLevel     = 1
	MaxDetailLevel     = 5
)

// Params tunes the low-poly rendering.
type Params struct {
	NumPoints   int
	DetailLevel int
}

// DefaultParams returns the parameters used when a request omits them.
func DefaultParams() Params {
	return Params{NumPoints: DefaultNumPoints, DetailLevel: DefaultDetailLevel}
}

// Normalize clamps DetailLevel into [MinDetailLevel, MaxDetailLevel] and raises
// NumPoints to at least MinNumPoints.
func (p Params) Normalize() Params {
	if p.DetailLevel < MinDetailLevel {
		p.DetailLevel = MinDetailLevel
	}
	if p.DetailLevel > MaxDetailLevel {
		p.DetailLevel = MaxDetailLevel
	}
	if p.NumPoints < MinNumPoints {
		p.NumPoints = MinNumPoints
	}
	return p
}
