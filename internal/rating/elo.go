// Package rating implements the Elo update applied once per completed match.
package rating

import "math"

// DefaultK is the K-factor used for PvP matches
const DefaultK = 32

// Scores for player 1; player 2 always receives 1 - s1.
const (
	Loss = 0.0
	Draw = 0.5
	Win  = 1.0
)

// Expected returns player 1's expected score against player 2.
func Expected(r1, r2 int) float64 {
	return 1 / (1 + math.Pow(10, float64(r2-r1)/400))
}

// Update returns both players' new ratings given player 1's actual score s1.
// Rounding is half-to-even so .5 deltas settle the same way on both sides
// of a mirrored call.
func Update(r1, r2 int, s1 float64, k int) (int, int) {
	e1 := Expected(r1, r2)
	e2 := 1 - e1
	s2 := 1 - s1

	newR1 := math.RoundToEven(float64(r1) + float64(k)*(s1-e1))
	newR2 := math.RoundToEven(float64(r2) + float64(k)*(s2-e2))
	return int(newR1), int(newR2)
}
