// README: Shared identifier and geo value objects used across modules.
package types

type ID string

type Point struct {
	Lat float64
	Lng float64
}

// IsZero reports whether the point was never resolved.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}
