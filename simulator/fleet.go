package main

import (
	"fmt"
	"math"
	"math/rand"
)

// GenerateFleet creates Count buses with IDs bus0001..busNNNN scattered
// within roughly two kilometers of the configured center.
func GenerateFleet(cfg Config, rng *rand.Rand) []SimulatedBus {
	if cfg.Count <= 0 {
		return nil
	}
	buses := make([]SimulatedBus, cfg.Count)
	for i := range buses {
		buses[i] = SimulatedBus{
			ID:      fmt.Sprintf("bus%04d", i+1),
			Lat:     cfg.CenterLat + (rng.Float64()-0.5)*4000*degPerMeter,
			Lng:     cfg.CenterLng + (rng.Float64()-0.5)*4000*degPerMeter,
			Heading: rng.Float64() * 2 * math.Pi,
			SpeedMS: 6 + rng.Float64()*8,
		}
	}
	return buses
}
