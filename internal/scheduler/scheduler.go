// Package scheduler admits council requests into a bounded pool of stream
// slots, queues the overflow, and switches permanently to the non-streaming
// endpoint once the council reports that streaming is not implemented.
package scheduler

import (
	"context"
	"net/http"
	"sync"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/fetcher"
	"github.com/davidbz/council-relay/internal/lifecycle"
	"github.com/davidbz/council-relay/internal/observability"
	"github.com/davidbz/council-relay/internal/sse"
)

// DefaultStreamLimit is the number of concurrent streams when none is configured.
const DefaultStreamLimit = 3

// Council is the pair of council endpoints the scheduler drives.
type Council interface {
	Complete(ctx context.Context, req domain.StreamRequest) (*domain.CouncilReply, error)
	Stream(ctx context.Context, req domain.StreamRequest, handler sse.Handler) error
}

// Lifecycle applies stream progress to placeholder turns.
type Lifecycle interface {
	SetStreamingState(ctx context.Context, turnID string, state domain.StreamingState) error
	ApplyContext(ctx context.Context, entry domain.QueueEntry, retrieved []domain.RagMatch) error
	AppendDelta(ctx context.Context, turnID, token, traceID string) error
	Finalize(ctx context.Context, entry domain.QueueEntry, completion domain.Completion) (domain.ConversationTurn, error)
	MarkInterrupted(ctx context.Context, turnID, message string) error
	MarkError(ctx context.Context, turnID string, cause error) error
}

// Admission is where Submit routed a request.
type Admission string

const (
	AdmittedStream   Admission = "streaming"
	AdmittedQueue    Admission = "queued"
	AdmittedFallback Admission = "fallback"
)

// Status is a snapshot of the scheduler state.
type Status struct {
	InFlight int  `json:"in_flight"`
	Queued   int  `json:"queued"`
	Pending  int  `json:"pending_fallback"`
	Fallback bool `json:"fallback"`
	Busy     bool `json:"busy"`
}

type queued struct {
	ctx   context.Context //nolint:containedctx // carries request-scoped log fields until admission
	entry domain.QueueEntry
}

// Scheduler owns the in-flight count, the FIFO queue and the fallback flag.
// All three change together under mu.
type Scheduler struct {
	council   Council
	lifecycle Lifecycle
	limit     int

	mu       sync.Mutex
	inFlight int
	queue    []queued
	fallback bool
	pending  int

	wg sync.WaitGroup
}

// New creates a scheduler allowing at most limit concurrent streams.
func New(council Council, lc Lifecycle, limit int) *Scheduler {
	if limit < 1 {
		limit = DefaultStreamLimit
	}
	return &Scheduler{
		council:   council,
		lifecycle: lc,
		limit:     limit,
	}
}

// Submit routes entry to a stream slot, the queue, or the fallback path, and
// returns immediately. The work outlives ctx's cancellation but keeps its values.
func (s *Scheduler) Submit(ctx context.Context, entry domain.QueueEntry) Admission {
	ctx = observability.WithTurnID(context.WithoutCancel(ctx), entry.PlaceholderID)

	if admission := s.admit(ctx, entry, false); admission != "" {
		return admission
	}

	// Labelled before the entry is enqueued so release cannot mark it streaming first.
	if err := s.lifecycle.SetStreamingState(ctx, entry.PlaceholderID, domain.StreamingQueued); err != nil {
		observability.FromContext(ctx).Warn("failed to mark turn queued", observability.Error(err))
	}

	return s.admit(ctx, entry, true)
}

// admit takes a slot or the fallback path when it can. Otherwise it queues
// entry, or returns "" when enqueue is false.
func (s *Scheduler) admit(ctx context.Context, entry domain.QueueEntry, enqueue bool) Admission {
	s.mu.Lock()
	switch {
	case s.fallback:
		s.pending++
		s.mu.Unlock()
		s.spawn(ctx, func(ctx context.Context) { s.runFallback(ctx, entry) })
		return AdmittedFallback

	case s.inFlight < s.limit:
		s.inFlight++
		s.mu.Unlock()
		s.spawn(ctx, func(ctx context.Context) { s.runStream(ctx, entry) })
		return AdmittedStream

	case !enqueue:
		s.mu.Unlock()
		return ""

	default:
		s.queue = append(s.queue, queued{ctx: ctx, entry: entry})
		depth := len(s.queue)
		s.mu.Unlock()

		observability.FromContext(ctx).Info("stream queued", observability.Int("queue_depth", depth))
		return AdmittedQueue
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		InFlight: s.inFlight,
		Queued:   len(s.queue),
		Pending:  s.pending,
		Fallback: s.fallback,
		Busy:     s.inFlight > 0 || len(s.queue) > 0 || s.pending > 0,
	}
}

// Busy reports whether any request is streaming, queued or waiting on the fallback path.
func (s *Scheduler) Busy() bool {
	return s.Status().Busy
}

// Fallback reports whether streaming has been switched off.
func (s *Scheduler) Fallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Wait blocks until all submitted work has finished or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) spawn(ctx context.Context, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				observability.FromContext(ctx).Error("scheduler task panicked", observability.Any("panic", r))
			}
		}()
		fn(ctx)
	}()
}

// streamOutcome tracks the terminal frame of one stream.
type streamOutcome struct {
	done    bool
	errored bool
}

func (o *streamOutcome) terminal() bool {
	return o.done || o.errored
}

func (s *Scheduler) runStream(ctx context.Context, entry domain.QueueEntry) {
	defer s.release()

	logger := observability.FromContext(ctx)
	if err := s.lifecycle.SetStreamingState(ctx, entry.PlaceholderID, domain.StreamingActive); err != nil {
		logger.Warn("failed to mark turn streaming", observability.Error(err))
	}

	var outcome streamOutcome
	err := s.council.Stream(ctx, entry.Request, func(frame sse.Frame) {
		s.handleFrame(ctx, entry, frame, &outcome)
	})

	if fetcher.IsStatus(err, http.StatusNotImplemented) {
		logger.Warn("council does not support streaming, switching to fallback")
		s.enterFallback()
	}

	if outcome.done {
		if err != nil {
			logger.Debug("stream closed with error after done", observability.Error(err))
		}
		return
	}

	switch {
	case err != nil:
		logger.Warn("stream failed, retrying without streaming", observability.Error(err))
	case !outcome.errored:
		logger.Warn("stream ended without a terminal frame, retrying without streaming")
	}

	state := domain.StreamingCompleted
	if s.Fallback() {
		state = domain.StreamingFallback
	}
	s.complete(ctx, entry, state)
}

func (s *Scheduler) handleFrame(ctx context.Context, entry domain.QueueEntry, frame sse.Frame, outcome *streamOutcome) {
	if outcome.terminal() {
		return
	}

	logger := observability.FromContext(ctx)
	var err error

	switch f := frame.(type) {
	case sse.ContextFrame:
		err = s.lifecycle.ApplyContext(ctx, entry, f.Retrieved)
	case sse.DeltaFrame:
		err = s.lifecycle.AppendDelta(ctx, entry.PlaceholderID, f.Token, f.TraceID)
	case sse.DoneFrame:
		outcome.done = true
		_, err = s.lifecycle.Finalize(ctx, entry, domain.Completion{
			Content:    f.Reply,
			State:      domain.StreamingCompleted,
			TraceID:    f.TraceID,
			TokensUsed: f.TokensUsed,
			Retrieved:  f.Retrieved,
		})
	case sse.ErrorFrame:
		outcome.errored = true
		logger.Warn("council stream reported an error", observability.String("message", f.Message))
		err = s.lifecycle.MarkInterrupted(ctx, entry.PlaceholderID, f.Message)
	}

	if err != nil {
		logger.Warn("failed to apply frame",
			observability.String("kind", string(frame.Kind())),
			observability.Error(err))
	}
}

// release frees a slot and admits the next queued entry unless fallback is active.
func (s *Scheduler) release() {
	s.mu.Lock()
	s.inFlight--

	var next *queued
	if !s.fallback && len(s.queue) > 0 {
		head := s.queue[0]
		s.queue = s.queue[1:]
		s.inFlight++
		next = &head
	}
	s.mu.Unlock()

	if next != nil {
		s.spawn(next.ctx, func(ctx context.Context) { s.runStream(ctx, next.entry) })
	}
}

// enterFallback flips the sticky flag and drains the queue through the non-streaming path.
func (s *Scheduler) enterFallback() {
	s.mu.Lock()
	s.fallback = true
	drained := s.queue
	s.queue = nil
	s.pending += len(drained)
	s.mu.Unlock()

	for _, item := range drained {
		s.spawn(item.ctx, func(ctx context.Context) { s.runFallback(ctx, item.entry) })
	}
}

func (s *Scheduler) runFallback(ctx context.Context, entry domain.QueueEntry) {
	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}()

	s.complete(ctx, entry, domain.StreamingFallback)
}

// complete runs one non-streaming call and settles the placeholder either way.
func (s *Scheduler) complete(ctx context.Context, entry domain.QueueEntry, state domain.StreamingState) {
	logger := observability.FromContext(ctx)

	reply, err := s.council.Complete(ctx, entry.Request)
	if err != nil {
		logger.Warn("non-streaming council call failed", observability.Error(err))
		if markErr := s.lifecycle.MarkError(ctx, entry.PlaceholderID, err); markErr != nil {
			logger.Warn("failed to mark turn errored", observability.Error(markErr))
		}
		return
	}

	if _, finErr := s.lifecycle.Finalize(ctx, entry, domain.Completion{
		Content: reply.Text(lifecycle.DefaultReply),
		State:   state,
	}); finErr != nil {
		logger.Warn("failed to finalize turn", observability.Error(finErr))
	}
}
