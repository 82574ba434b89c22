package geo

import (
	"math/rand"

	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// Population bucket thresholds.
const (
	bigCityPopulation = 1_000_000
	midCityPopulation = 100_000
)

// Buckets orders candidate cities by population tier. Iteration order is
// big, mid, small, unknown; each bucket is shuffled for variety.
type Buckets struct {
	Big     []models.Candidate
	Mid     []models.Candidate
	Small   []models.Candidate
	Unknown []models.Candidate
}

// Bucketize resolves populations for candidates that lack one and sorts
// them into buckets. Candidates with a known population below
// minPopulation are dropped. Buckets are shuffled with rng; a nil rng
// leaves bucket order as given (deterministic for tests).
func Bucketize(candidates []models.Candidate, resolver interfaces.PopulationResolver, iso2 string, minPopulation int, rng *rand.Rand) *Buckets {
	b := &Buckets{}

	for _, c := range candidates {
		pop := c.Population
		if pop == nil && resolver != nil {
			pop = resolver.Population(iso2, c.StateCode, c.CityName)
			c.Population = pop
		}

		switch {
		case pop == nil:
			b.Unknown = append(b.Unknown, c)
		case *pop < minPopulation:
			// Too small to be worth a zone sweep.
		case *pop >= bigCityPopulation:
			b.Big = append(b.Big, c)
		case *pop >= midCityPopulation:
			b.Mid = append(b.Mid, c)
		default:
			b.Small = append(b.Small, c)
		}
	}

	if rng != nil {
		shuffle(b.Big, rng)
		shuffle(b.Mid, rng)
		shuffle(b.Small, rng)
		shuffle(b.Unknown, rng)
	}

	return b
}

func shuffle(candidates []models.Candidate, rng *rand.Rand) {
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
}

// Ordered returns all candidates in scheduling order.
func (b *Buckets) Ordered() []models.Candidate {
	out := make([]models.Candidate, 0, b.Len())
	out = append(out, b.Big...)
	out = append(out, b.Mid...)
	out = append(out, b.Small...)
	out = append(out, b.Unknown...)
	return out
}

// Tiers returns the buckets in scheduling order, keeping tier boundaries
// so the scheduler can await each tier before starting the next.
func (b *Buckets) Tiers() [][]models.Candidate {
	return [][]models.Candidate{b.Big, b.Mid, b.Small, b.Unknown}
}

// Len returns the total candidate count across buckets.
func (b *Buckets) Len() int {
	return len(b.Big) + len(b.Mid) + len(b.Small) + len(b.Unknown)
}
