// Package lifecycle moves conversation turns from placeholder to final content.
package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/observability"
)

const contextQuery = "context"

// Completer sends a request through the non-streaming council endpoint.
type Completer interface {
	Complete(ctx context.Context, req domain.StreamRequest) (*domain.CouncilReply, error)
}

// Config tunes the manager.
type Config struct {
	ForwardPause time.Duration
	SearchLimit  int
}

// Option customizes a Manager.
type Option func(*Manager)

// WithSleeper replaces the pause used between forwards.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) {
		m.sleep = sleep
	}
}

// WithClock replaces the time source used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator replaces the turn ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// WithDetacher replaces how fire-and-forget work is started.
func WithDetacher(detach func(func())) Option {
	return func(m *Manager) {
		m.detach = detach
	}
}

// Manager owns the placeholder-to-final lifecycle of assistant turns.
type Manager struct {
	turns   domain.TurnStore
	memory  domain.ContextStore
	council Completer
	cache   *ContextCache
	config  Config
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	newID   func() string
	detach  func(func())
}

// NewManager creates a lifecycle manager.
func NewManager(
	turns domain.TurnStore,
	memory domain.ContextStore,
	council Completer,
	config Config,
	opts ...Option,
) *Manager {
	m := &Manager{
		turns:   turns,
		memory:  memory,
		council: council,
		cache:   NewContextCache(),
		config:  config,
		sleep:   sleepContext,
		now:     time.Now,
		newID:   uuid.NewString,
		detach:  func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AppendUser records the user's turn.
func (m *Manager) AppendUser(
	ctx context.Context,
	sessionID, content string,
	forwardedTo []string,
) (domain.ConversationTurn, error) {
	turn := domain.ConversationTurn{
		ID:        m.newID(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: m.now(),
		Delivery:  domain.DeliveryIdle,
		Metadata:  domain.TurnMetadata{ForwardedTo: forwardedTo},
	}
	if err := m.turns.Append(ctx, sessionID, turn); err != nil {
		return domain.ConversationTurn{}, fmt.Errorf("failed to append user turn: %w", err)
	}
	return turn, nil
}

// CreatePlaceholder appends an empty, pending assistant turn.
func (m *Manager) CreatePlaceholder(ctx context.Context, sessionID string) (domain.ConversationTurn, error) {
	return m.appendPlaceholder(ctx, sessionID, "", domain.TurnMetadata{})
}

func (m *Manager) appendPlaceholder(
	ctx context.Context,
	sessionID, content string,
	metadata domain.TurnMetadata,
) (domain.ConversationTurn, error) {
	turn := domain.ConversationTurn{
		ID:        m.newID(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   content,
		CreatedAt: m.now(),
		Delivery:  domain.DeliveryPending,
		Metadata:  metadata,
	}
	if err := m.turns.Append(ctx, sessionID, turn); err != nil {
		return domain.ConversationTurn{}, fmt.Errorf("failed to append placeholder: %w", err)
	}
	return turn, nil
}

// SetStreamingState updates only the streaming state label.
func (m *Manager) SetStreamingState(ctx context.Context, turnID string, state domain.StreamingState) error {
	_, err := m.turns.Update(ctx, turnID, func(turn *domain.ConversationTurn) {
		turn.Metadata.StreamingState = state
	})
	return err
}

// ApplyContext records retrieved material on the turn and caches it for the session.
// Content is left untouched. A nil slice means the frame carried no retrieved
// array and is ignored.
func (m *Manager) ApplyContext(ctx context.Context, entry domain.QueueEntry, retrieved []domain.RagMatch) error {
	if retrieved == nil {
		return nil
	}

	m.cache.Set(entry.Request.SessionID, retrieved)

	_, err := m.turns.Update(ctx, entry.PlaceholderID, func(turn *domain.ConversationTurn) {
		turn.Metadata.Retrieved = retrieved
	})
	return err
}

// AppendDelta appends a token to the turn's content. Empty tokens are ignored.
func (m *Manager) AppendDelta(ctx context.Context, turnID, token, traceID string) error {
	if token == "" {
		return nil
	}

	_, err := m.turns.Update(ctx, turnID, func(turn *domain.ConversationTurn) {
		turn.Content += token
		turn.Metadata.StreamingState = domain.StreamingActive
		if traceID != "" {
			turn.Metadata.TraceID = traceID
		}
	})
	return err
}

// Finalize applies the terminal outcome. An empty completion content keeps the
// accumulated delta text. The exchange is then written to long-term storage in
// the background.
func (m *Manager) Finalize(
	ctx context.Context,
	entry domain.QueueEntry,
	completion domain.Completion,
) (domain.ConversationTurn, error) {
	state := completion.State
	if state == "" {
		state = domain.StreamingCompleted
	}

	turn, err := m.turns.Update(ctx, entry.PlaceholderID, func(turn *domain.ConversationTurn) {
		if completion.Content != "" {
			turn.Content = completion.Content
		}
		turn.Delivery = domain.DeliveryIdle
		turn.Metadata.StreamingState = state
		turn.Metadata.Error = ""
		if completion.TraceID != "" {
			turn.Metadata.TraceID = completion.TraceID
		}
		if completion.TokensUsed > 0 {
			turn.Metadata.TokensUsed = completion.TokensUsed
		}
		if completion.Retrieved != nil {
			turn.Metadata.Retrieved = completion.Retrieved
		}
	})
	if err != nil {
		return domain.ConversationTurn{}, err
	}

	m.writeBack(ctx, entry.Request, turn.Content)
	return turn, nil
}

// writeBack stores the exchange without blocking the caller. Failures are logged only.
func (m *Manager) writeBack(ctx context.Context, req domain.StreamRequest, reply string) {
	if m.memory == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	chunk := ExchangeChunk(req.Text, reply)
	m.detach(func() {
		if err := m.memory.Store(detached, req.Panel, req.SessionID, chunk); err != nil {
			observability.FromContext(detached).Warn("context write-back failed",
				observability.String("panel", req.Panel),
				observability.Error(err))
		}
	})
}

// MarkInterrupted shows that a stream reported an error and is being retried.
func (m *Manager) MarkInterrupted(ctx context.Context, turnID, message string) error {
	_, err := m.turns.Update(ctx, turnID, func(turn *domain.ConversationTurn) {
		turn.Content = InterruptedText
		turn.Delivery = domain.DeliveryError
		turn.Metadata.StreamingState = domain.StreamingError
		turn.Metadata.Error = message
	})
	return err
}

// MarkError puts the turn in its terminal error state.
func (m *Manager) MarkError(ctx context.Context, turnID string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	_, err := m.turns.Update(ctx, turnID, func(turn *domain.ConversationTurn) {
		turn.Content = ErrorText(cause)
		turn.Delivery = domain.DeliveryError
		turn.Metadata.StreamingState = domain.StreamingError
		turn.Metadata.Error = message
	})
	return err
}

// ForwardSequential sends content to each member in order, one at a time, with
// the configured pause between sends. Each member gets its own placeholder
// and a failure for one member does not stop the rest.
func (m *Manager) ForwardSequential(
	ctx context.Context,
	sessionID, content string,
	targets []domain.CouncilMember,
	originTurnID string,
) ([]domain.ConversationTurn, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	logger := observability.FromContext(ctx)

	if originTurnID != "" {
		if err := m.markForwarded(ctx, originTurnID, targets); err != nil {
			return nil, err
		}
	}

	results := make([]domain.ConversationTurn, 0, len(targets))
	for i, member := range targets {
		turn, err := m.forwardOne(ctx, sessionID, content, member)
		if err != nil {
			return results, err
		}
		results = append(results, turn)

		if i == len(targets)-1 {
			break
		}
		if sleepErr := m.sleep(ctx, m.config.ForwardPause); sleepErr != nil {
			logger.Warn("forwarding cancelled", observability.Error(sleepErr))
			return results, sleepErr
		}
	}

	return results, nil
}

func (m *Manager) markForwarded(ctx context.Context, turnID string, targets []domain.CouncilMember) error {
	_, err := m.turns.Update(ctx, turnID, func(turn *domain.ConversationTurn) {
		for _, member := range targets {
			if !slices.Contains(turn.Metadata.ForwardedTo, member.Name) {
				turn.Metadata.ForwardedTo = append(turn.Metadata.ForwardedTo, member.Name)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to mark forwarded turn: %w", err)
	}
	return nil
}

// forwardOne only returns an error when the turn store fails; council failures
// end up on the placeholder.
func (m *Manager) forwardOne(
	ctx context.Context,
	sessionID, content string,
	member domain.CouncilMember,
) (domain.ConversationTurn, error) {
	metadata := domain.TurnMetadata{
		ForwardedTo:       []string{member.Name},
		CouncilMemberID:   member.ID,
		CouncilMemberName: member.Name,
	}

	placeholder, err := m.appendPlaceholder(ctx, sessionID, ForwardingText(member.Name), metadata)
	if err != nil {
		return domain.ConversationTurn{}, err
	}

	ctx = observability.WithTurnID(ctx, placeholder.ID)
	logger := observability.FromContext(ctx)

	reply, callErr := m.council.Complete(ctx, domain.StreamRequest{
		Text:      content,
		SessionID: sessionID,
		Panel:     member.Panel,
		Metadata:  map[string]any{"councilMemberId": member.ID},
	})

	turn, err := m.turns.Update(ctx, placeholder.ID, func(turn *domain.ConversationTurn) {
		if callErr != nil {
			turn.Content = UnreachableText(member.Name)
			turn.Delivery = domain.DeliveryError
			turn.Metadata.Error = callErr.Error()
			return
		}
		turn.Content = reply.Text(SharedText(member.Name))
		turn.Delivery = domain.DeliveryIdle
	})
	if err != nil {
		return domain.ConversationTurn{}, err
	}

	if callErr != nil {
		logger.Warn("forward failed",
			observability.String("member_id", member.ID),
			observability.Error(callErr))
	} else {
		logger.Info("forward delivered", observability.String("member_id", member.ID))
	}

	return turn, nil
}

// LookupContext returns the session's retrieved context, hitting the cache
// first. Lookup failures yield no context rather than an error.
func (m *Manager) LookupContext(ctx context.Context, sessionID, panel string) []domain.RagMatch {
	if cached, ok := m.cache.Get(sessionID); ok {
		return cached
	}
	if m.memory == nil || m.config.SearchLimit <= 0 {
		return nil
	}

	matches, err := m.memory.Search(ctx, panel, sessionID, contextQuery, m.config.SearchLimit)
	if err != nil {
		observability.FromContext(ctx).Warn("context lookup failed",
			observability.String("panel", panel),
			observability.Error(err))
		return nil
	}

	m.cache.Set(sessionID, matches)
	return matches
}

// ContextPayload flattens matches into the strings sent as metadata.context.
func ContextPayload(matches []domain.RagMatch) []string {
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if content := strings.TrimSpace(match.Content); content != "" {
			out = append(out, content)
		}
	}
	return out
}
