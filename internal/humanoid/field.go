// internal/humanoid/field.go
package humanoid

import "math"

// ForceSource is a single point of influence within a PotentialField: an
// attractor (positive strength) or a repulsor (negative strength).
type ForceSource struct {
	Position Vector2D
	Strength float64
	// Falloff controls how quickly the force diminishes with distance.
	Falloff float64
}

// PotentialField deforms mouse trajectories with a 2D field of forces, so a
// path can bend toward an interactive element or away from an obstacle
// instead of tracing a sterile straight line.
type PotentialField struct {
	sources []ForceSource
}

// NewPotentialField creates an empty PotentialField.
func NewPotentialField() *PotentialField {
	return &PotentialField{sources: make([]ForceSource, 0)}
}

// AddSource adds a new force source to the field.
func (pf *PotentialField) AddSource(pos Vector2D, strength, falloff float64) {
	pf.sources = append(pf.sources, ForceSource{Position: pos, Strength: strength, Falloff: falloff})
}

// CalculateNetForce computes the combined force exerted by all sources on a
// point, using exponential decay per source.
func (pf *PotentialField) CalculateNetForce(cursorPos Vector2D) Vector2D {
	netForce := Vector2D{}
	for _, source := range pf.sources {
		vecToSource := source.Position.Sub(cursorPos)
		dist := vecToSource.Mag()
		if dist < 1e-6 || source.Falloff <= 0 {
			continue
		}
		magnitude := source.Strength * math.Exp(-dist/source.Falloff)
		netForce = netForce.Add(vecToSource.Normalize().Mul(magnitude))
	}
	return netForce
}
