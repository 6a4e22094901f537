package jobs

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// TreeConfig tunes restart backoff for every supervisor in the tree.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the process supervisor: a root with one child for realtime
// services (hub, notification bus, http) and one for periodic jobs.
type Tree struct {
	root     *suture.Supervisor
	realtime *suture.Supervisor
	jobs     *suture.Supervisor
}

func NewTree(cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultTreeConfig()
	}
	log := logging.With("supervisor")
	spec := suture.Spec{
		EventHook: func(ev suture.Event) {
			log.Warn().Fields(ev.Map()).Msg(ev.String())
		},
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	child := spec
	child.EventHook = nil

	t := &Tree{
		root:     suture.New("reviewinn", spec),
		realtime: suture.New("realtime", child),
		jobs:     suture.New("jobs", child),
	}
	t.root.Add(t.realtime)
	t.root.Add(t.jobs)
	return t
}

func (t *Tree) AddRealtime(svc suture.Service) suture.ServiceToken { return t.realtime.Add(svc) }

func (t *Tree) AddJob(svc suture.Service) suture.ServiceToken { return t.jobs.Add(svc) }

func (t *Tree) Serve(ctx context.Context) error { return t.root.Serve(ctx) }
