package endpointpool

import "math/rand"

// Shuffle permutes items in place using Fisher-Yates. It takes an injectable
// *rand.Rand so callers (and tests) can seed it deterministically; pass nil
// to use the package-level, non-deterministic source.
func Shuffle[T any](rng *rand.Rand, items []T) {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
