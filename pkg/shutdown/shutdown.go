// Package shutdown stops the server in stages when a signal arrives.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/logging"
)

var (
	ErrTimeout    = errors.New("shutdown timed out")
	ErrAlreadyRan = errors.New("shutdown already ran")
)

// Stage orders cleanup steps. Lower stages run first.
type Stage int

const (
	// StageHTTP stops accepting requests.
	StageHTTP Stage = 100
	// StageLive closes live connections, disposing their pages.
	StageLive Stage = 200
)

const defaultTimeout = 30 * time.Second

// Config configures a Sequence. Zero fields take defaults: a 30s timeout
// and SIGINT plus SIGTERM.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	Logger  logging.Logger
}

type step struct {
	name  string
	stage Stage
	fn    func(context.Context) error
}

// Sequence runs registered cleanup steps once, stage by stage.
type Sequence struct {
	timeout time.Duration
	signals []os.Signal
	log     logging.Logger

	mu      sync.Mutex
	steps   []step
	started chan struct{}
	ran     bool
}

// New returns an empty Sequence.
func New(cfg Config) *Sequence {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return &Sequence{
		timeout: cfg.Timeout,
		signals: cfg.Signals,
		log:     logging.OrNop(cfg.Logger).With(logging.Component("shutdown")),
		started: make(chan struct{}),
	}
}

// Add registers fn to run at stage. Steps sharing a stage run in the
// order they were added.
func (s *Sequence) Add(stage Stage, name string, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{name: name, stage: stage, fn: fn})
}

// Wait blocks until a signal arrives or ctx ends, then runs the sequence.
// It returns nil at once if Run was called elsewhere.
func (s *Sequence) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, s.signals...)
	defer stop()

	select {
	case <-sigCtx.Done():
		s.log.Info("shutdown requested")
		return s.Run()
	case <-s.started:
		return nil
	}
}

// Run executes every step within the timeout. A failing step does not
// stop the ones after it; steps left when the deadline passes are skipped.
func (s *Sequence) Run() error {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return ErrAlreadyRan
	}
	s.ran = true
	close(s.started)
	steps := append([]step(nil), s.steps...)
	s.mu.Unlock()

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].stage < steps[j].stage })

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var errs []error
	for _, st := range steps {
		start := time.Now()
		if err := st.fn(ctx); err != nil {
			s.log.Error("shutdown step failed", logging.String("step", st.name), logging.Err(err))
			errs = append(errs, err)
		} else {
			s.log.Debug("shutdown step done",
				logging.String("step", st.name),
				logging.Duration("took", time.Since(start)))
		}
		if ctx.Err() != nil {
			errs = append(errs, ErrTimeout)
			break
		}
	}
	return errors.Join(errs...)
}
