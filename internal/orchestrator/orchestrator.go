// Package orchestrator is the entry point for submitting and forwarding
// messages to the council.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/lifecycle"
	"github.com/davidbz/council-relay/internal/members"
	"github.com/davidbz/council-relay/internal/observability"
	"github.com/davidbz/council-relay/internal/scheduler"
)

var (
	// ErrEmptyText is returned when a submission has no text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrNoTargets is returned when a forward names no members.
	ErrNoTargets = errors.New("at least one forward target is required")
)

// Config holds orchestrator defaults.
type Config struct {
	DefaultPanel string
}

// SubmitInput is a message from the UI.
type SubmitInput struct {
	SessionID string         `json:"session_id"`
	Text      string         `json:"text"`
	Panel     string         `json:"panel,omitempty"`
	Targets   []string       `json:"targets,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SubmitResult describes what Submit created.
type SubmitResult struct {
	UserTurn    domain.ConversationTurn  `json:"user_turn"`
	Placeholder *domain.ConversationTurn `json:"placeholder,omitempty"`
	Admission   scheduler.Admission      `json:"admission,omitempty"`
	Forwarded   []domain.CouncilMember   `json:"forwarded,omitempty"`
}

// Status combines the scheduler state with in-progress forwards.
type Status struct {
	scheduler.Status
	Forwarding int `json:"forwarding"`
}

// Orchestrator wires the lifecycle manager, scheduler and member registry together.
type Orchestrator struct {
	lifecycle *lifecycle.Manager
	scheduler *scheduler.Scheduler
	turns     domain.TurnStore
	members   domain.MemberRegistry
	config    Config

	mu         sync.Mutex
	forwarding int
	wg         sync.WaitGroup
}

// New creates an orchestrator.
func New(
	lc *lifecycle.Manager,
	sched *scheduler.Scheduler,
	turns domain.TurnStore,
	registry domain.MemberRegistry,
	config Config,
) *Orchestrator {
	return &Orchestrator{
		lifecycle: lc,
		scheduler: sched,
		turns:     turns,
		members:   registry,
		config:    config,
	}
}

// Submit records the user's message and either schedules a council reply or,
// when targets are given, forwards the message to those members in order.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	panel := o.panel(in.Panel)
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = panel + "-default"
	}
	ctx = observability.WithSessionID(ctx, sessionID)

	if len(in.Targets) > 0 {
		return o.submitForward(ctx, sessionID, text, in.Targets)
	}

	matches := o.lifecycle.LookupContext(ctx, sessionID, panel)

	userTurn, err := o.lifecycle.AppendUser(ctx, sessionID, text, nil)
	if err != nil {
		return nil, err
	}
	placeholder, err := o.lifecycle.CreatePlaceholder(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]any, len(in.Metadata)+1)
	maps.Copy(metadata, in.Metadata)
	if payload := lifecycle.ContextPayload(matches); len(payload) > 0 {
		metadata["context"] = payload
	}

	entry := domain.QueueEntry{
		Request: domain.StreamRequest{
			Text:      text,
			SessionID: sessionID,
			Panel:     panel,
			Metadata:  metadata,
		},
		PlaceholderID: placeholder.ID,
	}
	admission := o.scheduler.Submit(ctx, entry)

	observability.FromContext(ctx).Info("message submitted",
		observability.String("turn_id", placeholder.ID),
		observability.String("admission", string(admission)),
		observability.Int("context_matches", len(matches)))

	return &SubmitResult{
		UserTurn:    userTurn,
		Placeholder: &placeholder,
		Admission:   admission,
	}, nil
}

func (o *Orchestrator) submitForward(
	ctx context.Context,
	sessionID, text string,
	refs []string,
) (*SubmitResult, error) {
	targets, err := members.Resolve(ctx, o.members, refs)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(targets))
	for _, member := range targets {
		names = append(names, member.Name)
	}

	userTurn, err := o.lifecycle.AppendUser(ctx, sessionID, text, names)
	if err != nil {
		return nil, err
	}

	o.forward(ctx, sessionID, text, targets, "")

	return &SubmitResult{
		UserTurn:  userTurn,
		Forwarded: targets,
	}, nil
}

// Forward sends an existing turn's content to members.
func (o *Orchestrator) Forward(
	ctx context.Context,
	sessionID, turnID string,
	refs []string,
) ([]domain.CouncilMember, error) {
	if len(refs) == 0 {
		return nil, ErrNoTargets
	}

	turn, err := o.turns.Get(ctx, turnID)
	if err != nil {
		return nil, err
	}
	if turn.SessionID != sessionID {
		return nil, fmt.Errorf("%w: %s", domain.ErrTurnNotFound, turnID)
	}

	targets, err := members.Resolve(ctx, o.members, refs)
	if err != nil {
		return nil, err
	}

	o.forward(observability.WithSessionID(ctx, sessionID), sessionID, turn.Content, targets, turn.ID)
	return targets, nil
}

func (o *Orchestrator) forward(
	ctx context.Context,
	sessionID, content string,
	targets []domain.CouncilMember,
	originTurnID string,
) {
	ctx = context.WithoutCancel(ctx)

	o.mu.Lock()
	o.forwarding++
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			o.forwarding--
			o.mu.Unlock()
		}()

		if _, err := o.lifecycle.ForwardSequential(ctx, sessionID, content, targets, originTurnID); err != nil {
			observability.FromContext(ctx).Warn("forwarding stopped", observability.Error(err))
		}
	}()
}

// Turns returns the visible turns of a session.
func (o *Orchestrator) Turns(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	turns, err := o.turns.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	visible := turns[:0]
	for _, turn := range turns {
		if !turn.Metadata.Hidden {
			visible = append(visible, turn)
		}
	}
	return visible, nil
}

// Context returns the retrieved context for a session.
func (o *Orchestrator) Context(ctx context.Context, sessionID, panel string) []domain.RagMatch {
	return o.lifecycle.LookupContext(ctx, sessionID, o.panel(panel))
}

// Members lists the forward targets matching query.
func (o *Orchestrator) Members(ctx context.Context, query members.Query) ([]domain.CouncilMember, error) {
	return members.Search(ctx, o.members, query)
}

// RegisterMember adds a forward target.
func (o *Orchestrator) RegisterMember(ctx context.Context, member domain.CouncilMember) error {
	return o.members.Register(ctx, member)
}

// Status reports outstanding work.
func (o *Orchestrator) Status() Status {
	status := Status{Status: o.scheduler.Status()}

	o.mu.Lock()
	status.Forwarding = o.forwarding
	o.mu.Unlock()

	status.Busy = status.Busy || status.Forwarding > 0
	return status
}

// Wait blocks until scheduled replies and forwards have finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return o.scheduler.Wait(ctx)
}

func (o *Orchestrator) panel(panel string) string {
	if panel = strings.TrimSpace(panel); panel != "" {
		return panel
	}
	if o.config.DefaultPanel != "" {
		return o.config.DefaultPanel
	}
	return "personal"
}
