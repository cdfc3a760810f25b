package lifecycle

import (
	"hash/fnv"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultSeed seeds spawn positions when no seed is configured.
const DefaultSeed = "bombfield"

// DeterministicSeedValue derives a stable seed for one consumer of
// randomness so separate subsystems do not share a stream.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

func NewDeterministicRNG(rootSeed, label string) *rand.Rand {
	if rootSeed == "" {
		rootSeed = DefaultSeed
	}
	return rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label)))
}

// RandomInBounds picks x and z uniformly in [-bounds, bounds] at height y.
func RandomInBounds(rng *rand.Rand, bounds, y float32) mgl32.Vec3 {
	if bounds <= 0 {
		return mgl32.Vec3{0, y, 0}
	}
	x := (rng.Float32()*2 - 1) * bounds
	z := (rng.Float32()*2 - 1) * bounds
	return mgl32.Vec3{x, y, z}
}
