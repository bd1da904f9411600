// Package trackers implements concrete experiment Trackers
package trackers

import (
	"github.com/samuelfneumann/rlroute/experiment/tracker"
	ts "github.com/samuelfneumann/rlroute/timestep"
	"github.com/samuelfneumann/rlroute/utils/floatutils"
)

// Window is the number of cumulative rewards averaged by Return
const Window = 10

// Return tracks the cumulative reward received over a simulation. The
// reward of every TimeStep but the first is accumulated, and the total
// after each TimeStep is recorded.
//
// Rewards of all agents are accumulated together since the simulator
// reports a single reward stream.
type Return struct {
	total    float64
	totals   []float64
	filename string
}

// NewReturn creates and returns a new *Return Tracker which saves the
// recorded totals to filename. If filename is empty, Save does nothing.
func NewReturn(filename string) *Return {
	return &Return{filename: filename}
}

// Track accumulates the reward of a TimeStep
func (r *Return) Track(step ts.TimeStep) {
	if step.First() {
		return
	}
	r.total += step.Reward
	r.totals = append(r.totals, r.total)
}

// Total returns the cumulative reward
func (r *Return) Total() float64 {
	return r.total
}

// MovingAverage returns the mean of the last Window recorded totals
func (r *Return) MovingAverage() float64 {
	start := len(r.totals) - Window
	if start < 0 {
		start = 0
	}
	return floatutils.Mean(r.totals[start:])
}

// Save saves the recorded totals
func (r *Return) Save() error {
	if r.filename == "" {
		return nil
	}
	return tracker.SaveData(r.filename, r.totals)
}
