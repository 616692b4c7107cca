package main

import (
	"math"
	"math/rand"
)

// degPerMeter approximates one meter in latitude degrees.
const degPerMeter = 1.0 / 111_000

// SimulatedBus is one moving bus. It drifts along its heading with a
// little jitter so consecutive fixes look like a plausible route.
type SimulatedBus struct {
	ID      string
	Lat     float64
	Lng     float64
	Heading float64 // radians
	SpeedMS float64
}

// Step advances the bus by dt seconds of travel.
func (b *SimulatedBus) Step(rng *rand.Rand, dt float64) {
	// Wander a few degrees each tick, with the occasional turn.
	b.Heading += (rng.Float64() - 0.5) * 0.2
	if rng.Float64() < 0.05 {
		b.Heading += (rng.Float64() - 0.5) * math.Pi / 2
	}
	dist := b.SpeedMS * dt
	b.Lat += math.Cos(b.Heading) * dist * degPerMeter
	b.Lng += math.Sin(b.Heading) * dist * degPerMeter / math.Cos(b.Lat*math.Pi/180)
}

// Accuracy returns a plausible GPS accuracy in meters.
func (b *SimulatedBus) Accuracy(rng *rand.Rand) float64 {
	return 3 + rng.Float64()*12
}
