package checkpointer

import "github.com/samuelfneumann/rlroute/network"

// nStep implements checkpointing every N episodes
type nStep struct {
	interval int
	Checkpointer
}

// NewNStep returns a checkpointer that checkpoints through c every n
// episodes
func NewNStep(n int, c Checkpointer) Checkpointer {
	if n < 1 {
		n = 1
	}
	return &nStep{
		interval:     n,
		Checkpointer: c,
	}
}

// Checkpoint checkpoints the networks if episode is a multiple of the
// interval
func (n *nStep) Checkpoint(episode int,
	networks map[string]network.NeuralNet) error {
	if episode%n.interval == 0 {
		return n.Checkpointer.Checkpoint(episode, networks)
	}
	return nil
}
