// Package config loads the YAML configuration of an rlroute session
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/agent/nonlinear/discrete/deepq"
	"github.com/samuelfneumann/rlroute/agent/nonlinear/discrete/sac"
	"github.com/samuelfneumann/rlroute/environment/synthetic"
	"github.com/samuelfneumann/rlroute/experiment"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/utils/logging"
	"gopkg.in/yaml.v3"
)

// Snapshot backends
const (
	FileBackend  = "file"
	RedisBackend = "redis"
)

// Config is the configuration of an rlroute session
type Config struct {
	Seed        uint64           `yaml:"seed"`
	Log         Log              `yaml:"log"`
	Graph       graph.Spec       `yaml:"graph"`
	Replay      Replay           `yaml:"replay"`
	Training    Training         `yaml:"training"`
	SAC         sac.Config       `yaml:"sac"`
	DQN         deepq.Config     `yaml:"dqn"`
	Environment synthetic.Config `yaml:"environment"`
	Metrics     Metrics          `yaml:"metrics"`
}

// Log configures logging
type Log struct {
	Level string `yaml:"level"`
}

// Replay configures the experience store and its snapshots
type Replay struct {
	expreplay.Config `yaml:",inline"`
	Snapshot         Snapshot `yaml:"snapshot"`
}

// Snapshot configures where experience snapshots are kept
type Snapshot struct {
	Backend string `yaml:"backend"`

	// Path is the snapshot file, or the directory of experiences.bin
	Path string `yaml:"path"`

	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// Training configures the experiment
type Training struct {
	Train           bool       `yaml:"train"`
	Offline         bool       `yaml:"offline"`
	Algorithm       agent.Type `yaml:"algorithm"`
	Episodes        int        `yaml:"episodes"`
	StepsPerEpisode int        `yaml:"steps_per_episode"`
	SaveEvery       int        `yaml:"save_every"`
	EvalEpsilon     float64    `yaml:"eval_epsilon"`
	CheckpointDir   string     `yaml:"checkpoint_dir"`
}

// Metrics configures the metrics and inference endpoint
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration of the reference deployment
func Default() Config {
	e := experiment.DefaultConfig()
	return Config{
		Log:   Log{Level: "info"},
		Graph: graph.DefaultSpec(),
		Replay: Replay{
			Config: expreplay.Config{
				Capacity:  10000,
				BatchSize: e.BatchSize,
				Sampler:   expreplay.Uniform,
			},
			Snapshot: Snapshot{
				Backend: FileBackend,
				Path:    expreplay.DefaultSnapshotFile,
				Key:     expreplay.DefaultRedisKey,
			},
		},
		Training: Training{
			Train:           e.Train,
			Algorithm:       e.Algorithm,
			Episodes:        e.Episodes,
			StepsPerEpisode: e.StepsPerEpisode,
			SaveEvery:       e.SaveEvery,
			EvalEpsilon:     e.EvalEpsilon,
			CheckpointDir:   e.CheckpointDir,
		},
		SAC:         sac.DefaultConfig(),
		DQN:         deepq.DefaultConfig(),
		Environment: synthetic.DefaultConfig(),
		Metrics:     Metrics{Addr: ":9090"},
	}
}

// Load reads the configuration file at path on top of the defaults
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("load: %v: %w", path, err)
	}
	return c, nil
}

// Decode decodes a YAML configuration on top of the defaults and
// validates it. Unknown fields are rejected.
func Decode(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	return c, nil
}

// Validate checks the ranges of all fields and the constraints between
// them
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("validate: log: %w", err)
	}
	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("validate: graph: %w", err)
	}
	if err := c.Replay.Validate(); err != nil {
		return fmt.Errorf("validate: replay: %w", err)
	}
	if err := c.Replay.Snapshot.Validate(); err != nil {
		return fmt.Errorf("validate: replay: %w", err)
	}
	if err := c.Experiment().Validate(); err != nil {
		return fmt.Errorf("validate: training: %w", err)
	}
	if c.Training.Offline && c.Training.Algorithm == "" {
		return fmt.Errorf("validate: training: offline learning needs an " +
			"algorithm")
	}
	if err := c.SAC.Validate(); err != nil {
		return fmt.Errorf("validate: sac: %w", err)
	}
	if err := c.DQN.Validate(); err != nil {
		return fmt.Errorf("validate: dqn: %w", err)
	}
	if err := c.Environment.Validate(); err != nil {
		return fmt.Errorf("validate: environment: %w", err)
	}
	return nil
}

// Validate checks that the snapshot backend is usable
func (s Snapshot) Validate() error {
	switch s.Backend {
	case FileBackend:
		if s.Path == "" {
			return fmt.Errorf("validate: file snapshots need a path")
		}
	case RedisBackend:
		if s.Address == "" {
			return fmt.Errorf("validate: redis snapshots need an address")
		}
	default:
		return fmt.Errorf("validate: unknown snapshot backend %q", s.Backend)
	}
	return nil
}

// Snapshotter creates the Snapshotter of the configured backend
func (s Snapshot) Snapshotter() (expreplay.Snapshotter, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("snapshotter: %w", err)
	}
	if s.Backend == FileBackend {
		return expreplay.NewFileSnapshotter(s.Path), nil
	}

	var opts []expreplay.RedisOption
	if s.Key != "" {
		opts = append(opts, expreplay.WithKey(s.Key))
	}
	if s.TTL > 0 {
		opts = append(opts, expreplay.WithTTL(s.TTL))
	}
	return expreplay.NewRedisSnapshotter(s.Address, s.Password, s.DB,
		opts...), nil
}

// Store creates the experience store
func (c Config) Store(logger *slog.Logger) (*expreplay.Store, error) {
	snap, err := c.Replay.Snapshot.Snapshotter()
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	store, err := c.Replay.Create(snap, logger, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return store, nil
}

// Experiment returns the configuration of the experiment
func (c Config) Experiment() experiment.Config {
	t := c.Training
	return experiment.Config{
		Train:           t.Train,
		Offline:         t.Offline,
		Algorithm:       t.Algorithm,
		Episodes:        t.Episodes,
		StepsPerEpisode: t.StepsPerEpisode,
		SaveEvery:       t.SaveEvery,
		BatchSize:       c.Replay.BatchSize,
		EvalEpsilon:     t.EvalEpsilon,
		CheckpointDir:   t.CheckpointDir,
		Seed:            c.Seed,
	}
}

// Learners returns the learner configurations
func (c Config) Learners() agent.Configs {
	return agent.Configs{agent.SAC: c.SAC, agent.DQN: c.DQN}
}

// Logger creates the logger at the configured level
func (c Config) Logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logging.New(level), nil
}
