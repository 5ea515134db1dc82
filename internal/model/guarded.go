package model

import "sync"

// Guarded serializes access to a shared MLP: any number of concurrent
// predictions, or a single writer.
type Guarded struct {
	mu  sync.RWMutex
	mlp *MLP
}

// NewGuarded wraps m. The caller must not use m directly afterwards.
func NewGuarded(m *MLP) *Guarded {
	return &Guarded{mlp: m}
}

func (g *Guarded) Predict(input []float64) ([]float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mlp.Predict(input)
}

func (g *Guarded) SquaredError(input, target []float64) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mlp.SquaredError(input, target)
}

func (g *Guarded) Train(input, target []float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mlp.Train(input, target)
}

func (g *Guarded) TrainStep(ex Example) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mlp.TrainStep(ex)
}

func (g *Guarded) Topology() Topology {
	return g.mlp.Topology()
}

var (
	_ Learner = (*MLP)(nil)
	_ Learner = (*Guarded)(nil)
)
