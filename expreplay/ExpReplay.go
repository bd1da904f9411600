// Package expreplay implements a fixed-capacity experience replay
// buffer of graph transitions with pluggable sampling strategies and
// crash-resilient snapshots.
package expreplay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/samuelfneumann/rlroute/utils/logging"
	"golang.org/x/exp/rand"
)

// logEvery is the number of pushes between progress log records
const logEvery = 200

// Store is a ring buffer of transitions with a parallel slice of
// sampling weights. Once the buffer is full, each push overwrites the
// oldest transition together with its weight.
//
// A Store is not safe for concurrent use.
type Store struct {
	transitions []timestep.Transition
	weights     []float64

	// pos is the slot that the next push writes to
	pos  int
	size int

	// full records whether the buffer has reached capacity at least
	// once
	full      bool
	persisted bool
	pushes    int

	selector    Selector
	snapshotter Snapshotter
	logger      *slog.Logger
	src         rand.Source
}

// Option configures a Store
type Option func(*Store)

// WithSelector sets the Selector used by Sample
func WithSelector(sel Selector) Option {
	return func(s *Store) {
		s.selector = sel
	}
}

// WithSnapshotter sets the Snapshotter used by Persist and Restore
func WithSnapshotter(snap Snapshotter) Option {
	return func(s *Store) {
		s.snapshotter = snap
	}
}

// WithLogger sets the logger of the Store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithSeed seeds the random sampling of the Store
func WithSeed(seed uint64) Option {
	return func(s *Store) {
		s.src = rand.NewSource(seed)
	}
}

// New returns a new Store holding at most capacity transitions. By
// default transitions are sampled uniformly and the Store has no
// Snapshotter.
func New(capacity int, opts ...Option) (*Store, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be >= 1")
	}

	s := &Store{
		transitions: make([]timestep.Transition, capacity),
		weights:     make([]float64, capacity),
		selector:    uniformSelector{},
		logger:      logging.NewNop(),
		src:         rand.NewSource(0),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Push adds the transition (state, action, next, reward, done) with
// the given sampling weight to the buffer. Weights are stored as
// given; SampleWeighted fails with distribution.ErrDegenerate while
// any stored weight is negative or not finite, so callers using
// weighted sampling must push weights >= 0.
func (s *Store) Push(weight float64, state *graph.State,
	action timestep.Action, next *graph.State, reward float64, done bool) {
	s.push(weight, timestep.Transition{
		State:     state,
		Action:    action,
		NextState: next,
		Reward:    reward,
		Done:      done,
	})
}

// Add adds a transition with the given sampling weight to the buffer.
// The state and next state are referenced, not copied.
func (s *Store) Add(weight float64, t timestep.Transition) {
	s.push(weight, t)
}

func (s *Store) push(weight float64, t timestep.Transition) {
	t.Action = t.Action.Clone()

	s.transitions[s.pos] = t
	s.weights[s.pos] = weight
	s.pos = (s.pos + 1) % s.Capacity()

	if s.size < s.Capacity() {
		s.size++
	}
	if !s.full && s.size == s.Capacity() {
		s.full = true
		s.logger.Info("replay buffer full", "capacity", s.Capacity())
	}

	s.pushes++
	if s.pushes%logEvery == 0 {
		s.logger.Info("collected experiences", "size", s.size,
			"capacity", s.Capacity(), "pushes", s.pushes)
	}
}

// Len returns the number of transitions in the buffer
func (s *Store) Len() int {
	return s.size
}

// Capacity returns the maximum number of transitions in the buffer
func (s *Store) Capacity() int {
	return len(s.transitions)
}

// Full returns whether the buffer has reached its capacity at least
// once
func (s *Store) Full() bool {
	return s.full
}

// Weights returns a copy of the weights of the stored transitions in
// slot order
func (s *Store) Weights() []float64 {
	w := make([]float64, s.size)
	copy(w, s.weights[:s.size])
	return w
}

// Transitions returns the stored transitions in insertion order
func (s *Store) Transitions() []timestep.Transition {
	out := make([]timestep.Transition, s.size)
	for i := range out {
		out[i] = s.transitions[s.slot(i)]
	}
	return out
}

// Selector returns the Selector used by Sample
func (s *Store) Selector() Selector {
	return s.selector
}

// slot returns the slot holding the i-th oldest transition
func (s *Store) slot(i int) int {
	start := (s.pos - s.size + s.Capacity()) % s.Capacity()
	return (start + i) % s.Capacity()
}

// Sample returns n transitions chosen by the configured Selector
func (s *Store) Sample(n int) ([]timestep.Transition, error) {
	return s.sample(s.selector, n)
}

// SampleUniform returns n transitions drawn uniformly at random
// without replacement
func (s *Store) SampleUniform(n int) ([]timestep.Transition, error) {
	return s.sample(uniformSelector{}, n)
}

// SampleRecent returns the n most recently inserted transitions in
// insertion order
func (s *Store) SampleRecent(n int) ([]timestep.Transition, error) {
	return s.sample(recentSelector{}, n)
}

// SampleWeighted returns n transitions drawn with replacement, each
// with probability proportional to its weight
func (s *Store) SampleWeighted(n int) ([]timestep.Transition, error) {
	return s.sample(weightedSelector{}, n)
}

func (s *Store) sample(sel Selector, n int) ([]timestep.Transition, error) {
	if n < 0 {
		return nil, &ExpReplayError{
			Op:  "sample",
			Err: fmt.Errorf("cannot sample %v transitions", n),
		}
	}

	indices, err := sel.choose(s, n)
	if err != nil {
		return nil, &ExpReplayError{Op: "sample", Err: err}
	}

	batch := make([]timestep.Transition, len(indices))
	for i, index := range indices {
		batch[i] = s.transitions[index]
	}
	return batch, nil
}

// CanProvide returns whether the buffer can provide batches of n
// transitions. This is only the case once the buffer has reached its
// capacity at least once. The first time CanProvide returns true, the
// buffer is persisted if it has a Snapshotter; persistence failures
// are logged but do not change the result.
func (s *Store) CanProvide(n int) bool {
	if !s.full || s.size < n {
		return false
	}

	if !s.persisted && s.snapshotter != nil {
		s.persisted = true
		if err := s.Persist(context.Background()); err != nil {
			s.logger.Error("could not persist experiences", "error", err)
		} else {
			s.logger.Info("persisted experiences", "size", s.size)
		}
	}
	return true
}

// Persist writes a snapshot of the buffer
func (s *Store) Persist(ctx context.Context) error {
	if s.snapshotter == nil {
		return &PersistenceError{Op: "persist",
			Err: fmt.Errorf("no snapshotter configured")}
	}

	snap := &Snapshot{
		Transitions: s.Transitions(),
		Weights:     make([]float64, s.size),
	}
	for i := range snap.Weights {
		snap.Weights[i] = s.weights[s.slot(i)]
	}

	if err := s.snapshotter.Save(ctx, snap); err != nil {
		return &PersistenceError{Op: "persist", Err: err}
	}
	s.persisted = true
	return nil
}

// Restore replaces the contents of the buffer with the last snapshot
// and returns whether a snapshot was loaded. If the snapshot holds
// more transitions than the buffer can, the newest are kept.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.snapshotter == nil {
		return false, &PersistenceError{Op: "restore", Err: ErrNoSnapshot}
	}

	snap, err := s.snapshotter.Load(ctx)
	if err != nil {
		return false, &PersistenceError{Op: "restore", Err: err}
	}
	if len(snap.Weights) != len(snap.Transitions) {
		return false, &PersistenceError{
			Op: "restore",
			Err: fmt.Errorf("snapshot has %v transitions but %v weights",
				len(snap.Transitions), len(snap.Weights)),
		}
	}

	transitions, weights := snap.Transitions, snap.Weights
	if drop := len(transitions) - s.Capacity(); drop > 0 {
		transitions, weights = transitions[drop:], weights[drop:]
	}

	s.transitions = make([]timestep.Transition, s.Capacity())
	s.weights = make([]float64, s.Capacity())
	copy(s.transitions, transitions)
	copy(s.weights, weights)
	s.size = len(transitions)
	s.pos = s.size % s.Capacity()
	s.full = s.size == s.Capacity()
	s.persisted = true

	s.logger.Info("restored experiences", "size", s.size,
		"capacity", s.Capacity())
	return true, nil
}

// Config implements a specific configuration of a Store
type Config struct {
	Capacity  int          `yaml:"capacity" json:"capacity"`
	BatchSize int          `yaml:"batch_size" json:"batch_size"`
	Sampler   SelectorType `yaml:"sampler" json:"sampler"`
}

// Validate checks that the Config describes a usable Store
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("validate: capacity must be >= 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be >= 1")
	}
	if c.BatchSize > c.Capacity {
		return fmt.Errorf("validate: cannot have batch size(%v) > "+
			"capacity (%v)", c.BatchSize, c.Capacity)
	}
	if _, err := CreateSelector(c.Sampler); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// Create creates and returns the Store with the specified Config
func (c Config) Create(snap Snapshotter, logger *slog.Logger,
	seed uint64) (*Store, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	sel, err := CreateSelector(c.Sampler)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	opts := []Option{WithSelector(sel), WithSeed(seed)}
	if snap != nil {
		opts = append(opts, WithSnapshotter(snap))
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return New(c.Capacity, opts...)
}
