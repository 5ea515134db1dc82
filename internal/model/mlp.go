package model

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultLearningRate is the step size used when a caller has no preference.
const DefaultLearningRate = 0.1

// MLP is a three layer perceptron with sigmoid activations, trained online
// by backpropagation. Predict is read-only; Train mutates the weights and
// must not run concurrently with any other call (see Guarded).
type MLP struct {
	topo Topology
	lr   float64

	// wih is Hidden x Input, who is Output x Hidden.
	wih *mat.Dense
	who *mat.Dense
	bh  *mat.VecDense
	bo  *mat.VecDense
}

// NewMLP constructs a kernel whose parameters are drawn uniformly from [-1, 1]
// using a generator seeded with seed.
func NewMLP(topo Topology, learningRate float64, seed int64) (*MLP, error) {
	return NewMLPWithRand(topo, learningRate, rand.New(rand.NewSource(seed)))
}

// NewMLPWithRand is NewMLP with a caller supplied random source.
func NewMLPWithRand(topo Topology, learningRate float64, rng *rand.Rand) (*MLP, error) {
	if topo.Input <= 0 || topo.Hidden <= 0 || topo.Output <= 0 {
		return nil, errors.Wrapf(ErrInvalidTopology, "layer sizes %d-%d-%d", topo.Input, topo.Hidden, topo.Output)
	}
	if !(learningRate > 0) || math.IsInf(learningRate, 1) {
		return nil, errors.Wrapf(ErrInvalidTopology, "learning rate %v", learningRate)
	}
	if rng == nil {
		return nil, errors.New("model: nil random source")
	}
	return &MLP{
		topo: topo,
		lr:   learningRate,
		wih:  mat.NewDense(topo.Hidden, topo.Input, initUniform(rng, topo.Hidden*topo.Input)),
		who:  mat.NewDense(topo.Output, topo.Hidden, initUniform(rng, topo.Output*topo.Hidden)),
		bh:   mat.NewVecDense(topo.Hidden, initUniform(rng, topo.Hidden)),
		bo:   mat.NewVecDense(topo.Output, initUniform(rng, topo.Output)),
	}, nil
}

// Topology returns the layer sizes fixed at construction.
func (m *MLP) Topology() Topology { return m.topo }

// LearningRate returns the update step size.
func (m *MLP) LearningRate() float64 { return m.lr }

// Weights returns copies of the input->hidden and hidden->output matrices.
func (m *MLP) Weights() (ih, ho *mat.Dense) {
	return mat.DenseCopyOf(m.wih), mat.DenseCopyOf(m.who)
}

// Biases returns copies of the hidden and output bias vectors.
func (m *MLP) Biases() (h, o []float64) {
	h = append([]float64(nil), m.bh.RawVector().Data...)
	o = append([]float64(nil), m.bo.RawVector().Data...)
	return h, o
}

// Predict runs the forward pass. Every returned value lies in (0, 1).
func (m *MLP) Predict(input []float64) ([]float64, error) {
	if err := checkLen("input", input, m.topo.Input); err != nil {
		return nil, err
	}
	_, out := m.forward(mat.NewVecDense(len(input), input))
	return out.RawVector().Data, nil
}

// Train applies one backpropagation update for a single example.
func (m *MLP) Train(input, target []float64) error {
	if err := checkLen("input", input, m.topo.Input); err != nil {
		return err
	}
	if err := checkLen("target", target, m.topo.Output); err != nil {
		return err
	}

	x := mat.NewVecDense(len(input), input)
	hidden, out := m.forward(x)

	outErr := mat.NewVecDense(m.topo.Output, nil)
	outErr.SubVec(mat.NewVecDense(len(target), target), out)

	// Hidden error must see who before it is updated below.
	hiddenErr := mat.NewVecDense(m.topo.Hidden, nil)
	hiddenErr.MulVec(m.who.T(), outErr)

	gradO := sigmoidGrad(outErr, out)
	m.bo.AddScaledVec(m.bo, m.lr, gradO)
	m.who.RankOne(m.who, m.lr, gradO, hidden)

	gradH := sigmoidGrad(hiddenErr, hidden)
	m.bh.AddScaledVec(m.bh, m.lr, gradH)
	m.wih.RankOne(m.wih, m.lr, gradH, x)
	return nil
}

// TrainStep trains on ex and returns the squared error measured after the
// update.
func (m *MLP) TrainStep(ex Example) (float64, error) {
	if err := m.Train(ex.Input, ex.Target); err != nil {
		return 0, err
	}
	return m.SquaredError(ex.Input, ex.Target)
}

// SquaredError returns sum((target - Predict(input))^2).
func (m *MLP) SquaredError(input, target []float64) (float64, error) {
	if err := checkLen("target", target, m.topo.Output); err != nil {
		return 0, err
	}
	out, err := m.Predict(input)
	if err != nil {
		return 0, err
	}
	floats.Sub(out, target)
	return floats.Dot(out, out), nil
}

func (m *MLP) forward(x *mat.VecDense) (hidden, out *mat.VecDense) {
	hidden = mat.NewVecDense(m.topo.Hidden, nil)
	hidden.MulVec(m.wih, x)
	hidden.AddVec(hidden, m.bh)
	activate(hidden)

	out = mat.NewVecDense(m.topo.Output, nil)
	out.MulVec(m.who, hidden)
	out.AddVec(out, m.bo)
	activate(out)
	return hidden, out
}

// sigmoidGrad returns err[i] * y[i] * (1 - y[i]) where y is already activated.
func sigmoidGrad(err, y *mat.VecDense) *mat.VecDense {
	g := mat.NewVecDense(y.Len(), nil)
	for i := 0; i < y.Len(); i++ {
		v := y.AtVec(i)
		g.SetVec(i, err.AtVec(i)*v*(1-v))
	}
	return g
}

func activate(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, sigmoid(v.AtVec(i)))
	}
}

func sigmoid(x float64) float64 {
	y := 1 / (1 + math.Exp(-x))
	// float64 saturates for |x| beyond ~37 and ~745; stay inside (0, 1).
	switch {
	case y >= 1:
		return math.Nextafter(1, 0)
	case y <= 0:
		return math.SmallestNonzeroFloat64
	}
	return y
}

func initUniform(rng *rand.Rand, n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return data
}
