package model

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func mustMLP(t *testing.T, topo Topology, seed int64) *MLP {
	t.Helper()
	m, err := NewMLP(topo, DefaultLearningRate, seed)
	if err != nil {
		t.Fatalf("NewMLP(%+v): %v", topo, err)
	}
	return m
}

func TestNewMLPRejectsInvalidTopology(t *testing.T) {
	cases := []struct {
		topo Topology
		lr   float64
	}{
		{Topology{0, 4, 2}, 0.1},
		{Topology{3, 0, 2}, 0.1},
		{Topology{3, 4, -1}, 0.1},
		{Topology{3, 4, 2}, 0},
		{Topology{3, 4, 2}, -0.5},
		{Topology{3, 4, 2}, math.NaN()},
		{Topology{3, 4, 2}, math.Inf(1)},
	}
	for _, tc := range cases {
		m, err := NewMLP(tc.topo, tc.lr, 1)
		if !errors.Is(err, ErrInvalidTopology) {
			t.Fatalf("topo=%+v lr=%v: expected ErrInvalidTopology, got %v", tc.topo, tc.lr, err)
		}
		if m != nil {
			t.Fatalf("topo=%+v lr=%v: expected nil kernel", tc.topo, tc.lr)
		}
	}
}

func TestInitialParametersWithinUnitRange(t *testing.T) {
	m := mustMLP(t, Topology{5, 7, 3}, 11)
	ih, ho := m.Weights()
	bh, bo := m.Biases()
	all := append(append(append(append([]float64(nil), ih.RawMatrix().Data...), ho.RawMatrix().Data...), bh...), bo...)
	if len(all) != 5*7+7*3+7+3 {
		t.Fatalf("unexpected parameter count %d", len(all))
	}
	for _, v := range all {
		if v < -1 || v > 1 {
			t.Fatalf("parameter %f outside [-1, 1]", v)
		}
	}
}

func TestPredictOutputRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, topo := range []Topology{{1, 1, 1}, {3, 4, 2}, {8, 16, 5}} {
		m := mustMLP(t, topo, 5)
		for trial := 0; trial < 50; trial++ {
			input := make([]float64, topo.Input)
			for i := range input {
				input[i] = (rng.Float64()*2 - 1) * 1000
			}
			out, err := m.Predict(input)
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if len(out) != topo.Output {
				t.Fatalf("expected %d outputs, got %d", topo.Output, len(out))
			}
			for _, v := range out {
				if !(v > 0 && v < 1) {
					t.Fatalf("output %v outside (0, 1) for input %v", v, input)
				}
			}
		}
	}
}

func TestPredictDeterministicPerInstance(t *testing.T) {
	topo := Topology{3, 4, 2}
	a := mustMLP(t, topo, 1)
	b := mustMLP(t, topo, 2)
	input := []float64{0.2, 0.4, 0.6}

	first, _ := a.Predict(input)
	second, _ := a.Predict(input)
	if !floats.Equal(first, second) {
		t.Fatalf("repeated Predict differs: %v vs %v", first, second)
	}
	other, _ := b.Predict(input)
	if floats.Equal(first, other) {
		t.Fatalf("differently seeded kernels agree: %v", first)
	}
}

func TestDimensionMismatchLeavesStateUntouched(t *testing.T) {
	m := mustMLP(t, Topology{3, 4, 2}, 9)
	ih0, ho0 := m.Weights()
	bh0, bo0 := m.Biases()

	_, err := m.Predict([]float64{1, 2})
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dm.Operand != "input" || dm.Expected != 3 || dm.Actual != 2 {
		t.Fatalf("unexpected mismatch %+v", dm)
	}

	if err := m.Train([]float64{1, 2, 3, 4}, []float64{0.5, 0.5}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for input, got %v", err)
	}
	err = m.Train([]float64{1, 2, 3}, []float64{0.5})
	if !errors.As(err, &dm) || dm.Operand != "target" || dm.Expected != 2 || dm.Actual != 1 {
		t.Fatalf("expected target mismatch, got %v", err)
	}
	if _, err := m.TrainStep(Example{Input: nil, Target: []float64{0.1, 0.2}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch from TrainStep, got %v", err)
	}

	ih1, ho1 := m.Weights()
	bh1, bo1 := m.Biases()
	if !mat.Equal(ih0, ih1) || !mat.Equal(ho0, ho1) || !floats.Equal(bh0, bh1) || !floats.Equal(bo0, bo1) {
		t.Fatalf("rejected call mutated parameters")
	}
}

func TestSingleStepDoesNotIncreaseError(t *testing.T) {
	input := []float64{0.3, 0.6, 0.9}
	target := []float64{0.2, 0.8}
	for seed := int64(1); seed <= 5; seed++ {
		m := mustMLP(t, Topology{3, 4, 2}, seed)
		before, err := m.SquaredError(input, target)
		if err != nil {
			t.Fatalf("SquaredError: %v", err)
		}
		after, err := m.TrainStep(Example{Input: input, Target: target})
		if err != nil {
			t.Fatalf("TrainStep: %v", err)
		}
		if after > before {
			t.Fatalf("seed %d: error rose from %f to %f", seed, before, after)
		}
	}
}

func TestTrainStepReportsPostUpdateError(t *testing.T) {
	m := mustMLP(t, Topology{2, 3, 1}, 4)
	ex := Example{Input: []float64{0.5, 0.1}, Target: []float64{0.7}}
	loss, err := m.TrainStep(ex)
	if err != nil {
		t.Fatalf("TrainStep: %v", err)
	}
	want, _ := m.SquaredError(ex.Input, ex.Target)
	if loss != want {
		t.Fatalf("TrainStep loss %f, SquaredError %f", loss, want)
	}
}

// reference applies one update with plain loops, reading who before it is changed.
func reference(m *MLP, input, target []float64) (ih, ho *mat.Dense, bh, bo []float64) {
	ih, ho = m.Weights()
	bh, bo = m.Biases()
	topo := m.Topology()
	lr := m.LearningRate()

	hidden := make([]float64, topo.Hidden)
	for i := range hidden {
		var s float64
		for j := range input {
			s += ih.At(i, j) * input[j]
		}
		hidden[i] = 1 / (1 + math.Exp(-(s + bh[i])))
	}
	out := make([]float64, topo.Output)
	for k := range out {
		var s float64
		for i := range hidden {
			s += ho.At(k, i) * hidden[i]
		}
		out[k] = 1 / (1 + math.Exp(-(s + bo[k])))
	}
	outErr := make([]float64, topo.Output)
	for k := range outErr {
		outErr[k] = target[k] - out[k]
	}
	hiddenErr := make([]float64, topo.Hidden)
	for i := range hiddenErr {
		for k := range outErr {
			hiddenErr[i] += ho.At(k, i) * outErr[k]
		}
	}
	for k := range out {
		g := outErr[k] * out[k] * (1 - out[k])
		bo[k] += lr * g
		for i := range hidden {
			ho.Set(k, i, ho.At(k, i)+lr*g*hidden[i])
		}
	}
	for i := range hidden {
		g := hiddenErr[i] * hidden[i] * (1 - hidden[i])
		bh[i] += lr * g
		for j := range input {
			ih.Set(i, j, ih.At(i, j)+lr*g*input[j])
		}
	}
	return ih, ho, bh, bo
}

func TestTrainMatchesReferenceUpdate(t *testing.T) {
	m := mustMLP(t, Topology{3, 4, 2}, 21)
	input := []float64{0.9, -0.4, 0.25}
	target := []float64{0.1, 0.9}

	wantIH, wantHO, wantBH, wantBO := reference(m, input, target)
	if err := m.Train(input, target); err != nil {
		t.Fatalf("Train: %v", err)
	}
	gotIH, gotHO := m.Weights()
	gotBH, gotBO := m.Biases()

	const tol = 1e-12
	if !mat.EqualApprox(gotIH, wantIH, tol) {
		t.Fatalf("input->hidden weights diverge:\n got %v\nwant %v", mat.Formatted(gotIH), mat.Formatted(wantIH))
	}
	if !mat.EqualApprox(gotHO, wantHO, tol) {
		t.Fatalf("hidden->output weights diverge:\n got %v\nwant %v", mat.Formatted(gotHO), mat.Formatted(wantHO))
	}
	if !floats.EqualApprox(gotBH, wantBH, tol) || !floats.EqualApprox(gotBO, wantBO, tol) {
		t.Fatalf("biases diverge: got %v %v want %v %v", gotBH, gotBO, wantBH, wantBO)
	}
}

func TestTrainConvergesOnAnchors(t *testing.T) {
	anchors := []Example{
		{Input: []float64{0.1, 0.1, 0.1}, Target: []float64{0.1, 0.9}},
		{Input: []float64{0.5, 0.5, 0.5}, Target: []float64{0.5, 0.5}},
		{Input: []float64{0.9, 0.9, 0.9}, Target: []float64{0.9, 0.1}},
	}
	m := mustMLP(t, Topology{3, 4, 2}, 7)
	distance := func(ex Example) float64 {
		out, err := m.Predict(ex.Input)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		return floats.Distance(out, ex.Target, 2)
	}

	before := make([]float64, len(anchors))
	for i, ex := range anchors {
		before[i] = distance(ex)
	}
	rng := rand.New(rand.NewSource(99))
	for step := 0; step < 2000; step++ {
		ex := anchors[rng.Intn(len(anchors))]
		if err := m.Train(ex.Input, ex.Target); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}
	for i, ex := range anchors {
		after := distance(ex)
		// The midpoint may start within reach of its target.
		if after >= before[i] && after > 0.05 {
			t.Fatalf("anchor %v: distance %f -> %f", ex.Input, before[i], after)
		}
	}
}

func TestWeightShapesStable(t *testing.T) {
	topo := Topology{3, 5, 2}
	m := mustMLP(t, topo, 13)
	rng := rand.New(rand.NewSource(13))
	for step := 0; step < 500; step++ {
		input := []float64{rng.Float64(), rng.Float64(), rng.Float64()}
		if err := m.Train(input, []float64{rng.Float64(), rng.Float64()}); err != nil {
			t.Fatalf("Train: %v", err)
		}
	}
	ih, ho := m.Weights()
	if r, c := ih.Dims(); r != topo.Hidden || c != topo.Input {
		t.Fatalf("input->hidden shape %dx%d", r, c)
	}
	if r, c := ho.Dims(); r != topo.Output || c != topo.Hidden {
		t.Fatalf("hidden->output shape %dx%d", r, c)
	}
	bh, bo := m.Biases()
	if len(bh) != topo.Hidden || len(bo) != topo.Output {
		t.Fatalf("bias lengths %d/%d", len(bh), len(bo))
	}
	if m.Topology() != topo {
		t.Fatalf("topology drifted to %+v", m.Topology())
	}
}

func TestGuardedConcurrentUse(t *testing.T) {
	g := NewGuarded(mustMLP(t, Topology{3, 4, 2}, 17))
	ex := Example{Input: []float64{0.1, 0.2, 0.3}, Target: []float64{0.4, 0.6}}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if w%2 == 0 {
					if _, err := g.TrainStep(ex); err != nil {
						t.Errorf("TrainStep: %v", err)
						return
					}
					continue
				}
				out, err := g.Predict(ex.Input)
				if err != nil || len(out) != 2 {
					t.Errorf("Predict: %v %v", out, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if g.Topology() != (Topology{3, 4, 2}) {
		t.Fatalf("unexpected topology %+v", g.Topology())
	}
}
