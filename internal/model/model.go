package model

// Example is a single supervised training pair.
type Example struct {
	Input  []float64 `yaml:"input"`
	Target []float64 `yaml:"target"`
}

// Topology fixes the layer widths of a kernel.
type Topology struct {
	Input  int
	Hidden int
	Output int
}

// Predictor evaluates a network without changing it.
type Predictor interface {
	Predict(input []float64) ([]float64, error)
}

// Learner is the online training surface used by the trainer.
type Learner interface {
	Predictor
	Train(input, target []float64) error
	TrainStep(ex Example) (float64, error)
}
