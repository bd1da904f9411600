package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/rlroute/agent"
	env "github.com/samuelfneumann/rlroute/environment"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
)

// Session runs the experiment a Config describes. An offline session
// trains from the store's snapshot and falls back to training online in
// the environment if the snapshot cannot be restored.
type Session struct {
	env     env.Environment
	store   *expreplay.Store
	config  Config
	configs agent.Configs
	spec    graph.Spec
	opts    []Option

	learner agent.Learner
}

// NewSession creates and returns a new Session
func NewSession(e env.Environment, store *expreplay.Store, c Config,
	configs agent.Configs, spec graph.Spec, opts ...Option) (*Session,
	error) {
	if _, err := newRunner(store, c, configs, spec, opts); err != nil {
		return nil, fmt.Errorf("newsession: %w", err)
	}
	return &Session{
		env:     e,
		store:   store,
		config:  c,
		configs: configs,
		spec:    spec,
		opts:    opts,
	}, nil
}

// Learner returns the learner of the last experiment run
func (s *Session) Learner() agent.Learner {
	return s.learner
}

// Run runs the session
func (s *Session) Run(ctx context.Context) error {
	if !s.config.Offline || !s.config.Train {
		return s.runOnline(ctx, s.config)
	}

	off, err := NewOffline(s.store, s.config, s.configs, s.spec, s.opts...)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	err = off.Run(ctx)
	if !expreplay.IsPersistence(err) {
		s.learner = off.Learner()
		return err
	}

	off.logger.Warn("online learning", "error", err)
	c := s.config
	c.Offline = false
	return s.runOnline(ctx, c)
}

func (s *Session) runOnline(ctx context.Context, c Config) error {
	if s.env == nil {
		return fmt.Errorf("run: no environment for online learning")
	}
	on, err := NewOnline(s.env, s.store, c, s.configs, s.spec, s.opts...)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	err = on.Run(ctx)
	s.learner = on.Learner()
	return err
}
