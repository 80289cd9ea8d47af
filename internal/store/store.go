// Package store implements a unidirectional state container. A Store owns a
// value of type S and changes it only by running a Reducer over dispatched
// actions, one at a time, on the goroutine that calls Run.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/danhigham/tgflux/internal/metrics"
)

// Reducer computes the next state and the follow-up work for an action. It
// must be total: a panic inside a reducer is a programming error and is not
// recovered.
type Reducer[S, A any] func(state S, action A) (S, Command[A])

// Namer lets actions report a stable name for logs and metrics.
type Namer interface {
	ActionName() string
}

// ErrAlreadyRunning is returned by Run when the Store is already running.
var ErrAlreadyRunning = errors.New("store: already running")

// Option configures a Store.
type Option[S, A any] func(*Store[S, A])

// WithLogger sets the logger used for dispatch tracing.
func WithLogger[S, A any](l *zap.Logger) Option[S, A] {
	return func(s *Store[S, A]) {
		s.logger = l.Named("store")
	}
}

// WithMetrics counts reduced actions and started flows.
func WithMetrics[S, A any](m *metrics.Metrics) Option[S, A] {
	return func(s *Store[S, A]) {
		s.metrics = m
	}
}

// WithOnChange registers a hook called on the Run goroutine after every state
// replacement. It must not block.
func WithOnChange[S, A any](fn func(S)) Option[S, A] {
	return func(s *Store[S, A]) {
		s.onChange = fn
	}
}

// envelope is one inbox entry: an action, or a flush barrier when done is set.
type envelope[A any] struct {
	action A
	done   chan struct{}
}

// Store serializes reductions over a state of type S. Create it with New.
type Store[S, A any] struct {
	reducer  Reducer[S, A]
	logger   *zap.Logger
	metrics  *metrics.Metrics
	onChange func(S)

	mu    sync.RWMutex
	state S

	inboxMu sync.Mutex
	inbox   []envelope[A]
	wake    chan struct{}

	flows   sync.WaitGroup
	running atomic.Bool
}

// New creates a Store holding initial. Nothing is reduced until Run is called.
func New[S, A any](initial S, reducer Reducer[S, A], opts ...Option[S, A]) *Store[S, A] {
	s := &Store[S, A]{
		reducer: reducer,
		logger:  zap.NewNop(),
		state:   initial,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Store[S, A]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch enqueues an action. It never waits for the action to be reduced
// and is safe to call from any goroutine, including from inside flows.
func (s *Store[S, A]) Dispatch(action A) {
	s.enqueue(envelope[A]{action: action})
}

// Flush blocks until every action dispatched before the call, together with
// the immediate actions they produced, has been reduced. Flows started along
// the way are not waited for.
func (s *Store[S, A]) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.enqueue(envelope[A]{done: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store[S, A]) enqueue(e envelope[A]) {
	s.inboxMu.Lock()
	s.inbox = append(s.inbox, e)
	s.inboxMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store[S, A]) drain() []envelope[A] {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	batch := s.inbox
	s.inbox = nil
	return batch
}

// Run reduces dispatched actions until ctx is cancelled. Flows receive a
// context derived from ctx. Run returns ctx.Err() after all flows it started
// have returned. A Store runs at most once; later calls return
// ErrAlreadyRunning.
func (s *Store[S, A]) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.flows.Wait()

	for {
		for _, e := range s.drain() {
			if e.done != nil {
				close(e.done)
				continue
			}
			s.process(ctx, e.action)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// process reduces one action, then drains its immediate actions depth-first
// and finally starts its flows.
func (s *Store[S, A]) process(ctx context.Context, action A) {
	name := actionName(action)
	s.logger.Debug("reduce", zap.String("action", name))

	s.mu.RLock()
	current := s.state
	s.mu.RUnlock()

	next, cmd := s.reducer(current, action)

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	s.metrics.ActionReduced(name)
	if s.onChange != nil {
		s.onChange(next)
	}

	for _, a := range Actions[A](cmd) {
		s.process(ctx, a)
	}

	for _, f := range Flows[A](cmd) {
		s.metrics.FlowStarted()
		s.flows.Add(1)
		go func(f Flow[A]) {
			defer s.flows.Done()
			f(ctx, s.Dispatch)
		}(f)
	}
}

func actionName(a any) string {
	if n, ok := a.(Namer); ok {
		return n.ActionName()
	}
	return fmt.Sprintf("%T", a)
}
