package llm

import (
	"math/rand/v2"
)

// RandomSource picks an index in [0, n). *rand.Rand from math/rand/v2
// satisfies it, so tests can pass a seeded generator.
type RandomSource interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// SelectRandomModel picks a model id uniformly from models whose id is not in
// exclude. It returns false when nothing is left to choose from.
// Neither models nor exclude are modified.
func SelectRandomModel(models []ModelDescriptor, exclude map[string]struct{}, rnd RandomSource) (string, bool) {
	if len(models) == 0 {
		return "", false
	}

	available := make([]string, 0, len(models))
	for _, m := range models {
		if _, skip := exclude[m.ID]; skip {
			continue
		}
		available = append(available, m.ID)
	}
	if len(available) == 0 {
		return "", false
	}

	if rnd == nil {
		rnd = globalRand{}
	}
	return available[rnd.IntN(len(available))], true
}
