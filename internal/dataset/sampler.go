package dataset

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"ecokernel/internal/model"
)

// Sampler draws examples uniformly at random, with replacement.
type Sampler struct {
	examples []model.Example
	rng      *rand.Rand
}

// NewSampler returns a sampler over set seeded with seed.
func NewSampler(set Set, seed int64) (*Sampler, error) {
	if len(set.Examples) == 0 {
		return nil, errors.New("sampler: no examples provided")
	}
	return &Sampler{
		examples: append([]model.Example(nil), set.Examples...),
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// Next returns the next draw.
func (s *Sampler) Next() model.Example {
	return s.examples[s.rng.Intn(len(s.examples))]
}

// StartSampler streams draws from set until ctx is done. The channel is
// closed when the producer exits.
func StartSampler(ctx context.Context, set Set, seed int64) (<-chan model.Example, error) {
	s, err := NewSampler(set, seed)
	if err != nil {
		return nil, err
	}
	out := make(chan model.Example, 16)
	go func() {
		defer close(out)
		for {
			ex := s.Next()
			select {
			case <-ctx.Done():
				return
			case out <- ex:
			}
		}
	}()
	return out, nil
}
