package experiment

import (
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/timestep"
)

// visit is a single decision of an agent
type visit struct {
	state  *graph.State
	action timestep.Action
}

// key identifies a trajectory: the deciding agent and the legality
// context it decided in
type key struct {
	agent     int
	signature string
}

// ring holds the last two visits of a trajectory
type ring struct {
	visits [2]visit
	n      int
}

func (r *ring) add(v visit) {
	r.visits[r.n%2] = v
	r.n++
}

// last returns the most recent visit
func (r *ring) last() visit {
	return r.visits[(r.n-1)%2]
}

// previous returns the visit before the most recent one
func (r *ring) previous() visit {
	return r.visits[r.n%2]
}

// Trajectories correlates the consecutive decisions of each agent in
// the same legality context to form transitions. Only the last two
// decisions of each trajectory are kept.
//
// Trajectories are never released, so the memory used grows with the
// number of distinct (agent, legality context) pairs seen.
type Trajectories struct {
	rings map[key]*ring
}

// NewTrajectories returns a new, empty Trajectories
func NewTrajectories() *Trajectories {
	return &Trajectories{rings: make(map[key]*ring)}
}

// Observe records the decision of action in state by an agent, where
// reward is the reward received with state. If the agent has decided
// in the same legality context before, the transition from that
// decision to state is returned.
func (t *Trajectories) Observe(agentID int, state *graph.State,
	action timestep.Action, reward float64) (timestep.Transition, bool) {
	k := key{agent: agentID, signature: state.Signature()}
	r, ok := t.rings[k]
	if !ok {
		r = &ring{}
		t.rings[k] = r
	}

	r.add(visit{state: state, action: action.Clone()})
	if r.n < 2 {
		return timestep.Transition{}, false
	}

	prev := r.previous()
	return timestep.Transition{
		State:     prev.state,
		Action:    prev.action,
		NextState: state,
		Reward:    reward,
	}, true
}

// Close returns the terminal transition from the last decision of an
// agent in the legality context of state, if there is one
func (t *Trajectories) Close(agentID int, state *graph.State,
	reward float64) (timestep.Transition, bool) {
	r, ok := t.rings[key{agent: agentID, signature: state.Signature()}]
	if !ok || r.n == 0 {
		return timestep.Transition{}, false
	}

	last := r.last()
	return timestep.Transition{
		State:     last.state,
		Action:    last.action,
		NextState: state,
		Reward:    reward,
		Done:      true,
	}, true
}

// Len returns the number of trajectories
func (t *Trajectories) Len() int {
	return len(t.rings)
}
