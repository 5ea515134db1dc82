package metrics

import "time"

// Window accumulates loss and timing across training steps.
type Window struct {
	examples  int
	compute   time.Duration
	steps     int
	lossTotal float64
	lastLoss  float64
}

// Record adds a new measurement to the window.
func (w *Window) Record(examples int, computeTime time.Duration, loss float64) {
	w.examples += examples
	w.compute += computeTime
	w.steps++
	w.lossTotal += loss
	w.lastLoss = loss
}

// Steps reports how many measurements are pending.
func (w *Window) Steps() int { return w.steps }

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps}
	if w.compute > 0 {
		snap.ExamplesPerSec = float64(w.examples) / w.compute.Seconds()
	}
	if w.steps > 0 {
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
		snap.MeanLoss = w.lossTotal / float64(w.steps)
	}
	snap.LastLoss = w.lastLoss

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Steps          int
	ExamplesPerSec float64
	AvgComputeMS   float64
	MeanLoss       float64
	LastLoss       float64
}
