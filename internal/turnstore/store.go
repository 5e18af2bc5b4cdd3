// Package turnstore keeps conversation turns in memory and publishes every
// change to per-session subscribers.
package turnstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/observability"
)

// Store implements domain.TurnStore in memory.
type Store struct {
	mu          sync.RWMutex
	turns       map[string]*domain.ConversationTurn
	sessions    map[string][]string
	subscribers map[string]map[uint64]chan domain.ConversationTurn
	nextSubID   uint64
}

// NewStore creates an empty turn store.
func NewStore() *Store {
	return &Store{
		mu:          sync.RWMutex{},
		turns:       make(map[string]*domain.ConversationTurn),
		sessions:    make(map[string][]string),
		subscribers: make(map[string]map[uint64]chan domain.ConversationTurn),
		nextSubID:   0,
	}
}

// Append adds turns to the end of a session.
func (s *Store) Append(ctx context.Context, sessionID string, turns ...domain.ConversationTurn) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range turns {
		if turns[i].ID == "" {
			return errors.New("turn ID cannot be empty")
		}
		if _, exists := s.turns[turns[i].ID]; exists {
			return fmt.Errorf("turn %s already exists", turns[i].ID)
		}
	}

	for _, turn := range turns {
		stored := turn.Clone()
		stored.SessionID = sessionID
		s.turns[stored.ID] = &stored
		s.sessions[sessionID] = append(s.sessions[sessionID], stored.ID)
		s.publishLocked(ctx, stored)
	}

	return nil
}

// Update applies fn to a stored turn and returns the updated copy.
func (s *Store) Update(
	ctx context.Context,
	turnID string,
	fn func(*domain.ConversationTurn),
) (domain.ConversationTurn, error) {
	if fn == nil {
		return domain.ConversationTurn{}, errors.New("update function cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turn, exists := s.turns[turnID]
	if !exists {
		return domain.ConversationTurn{}, fmt.Errorf("%w: %s", domain.ErrTurnNotFound, turnID)
	}

	updated := turn.Clone()
	fn(&updated)
	updated.ID = turn.ID
	updated.SessionID = turn.SessionID
	s.turns[turnID] = &updated
	s.publishLocked(ctx, updated)

	return updated.Clone(), nil
}

// Get returns a copy of a turn.
func (s *Store) Get(_ context.Context, turnID string) (domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turn, exists := s.turns[turnID]
	if !exists {
		return domain.ConversationTurn{}, fmt.Errorf("%w: %s", domain.ErrTurnNotFound, turnID)
	}
	return turn.Clone(), nil
}

// List returns the turns of a session in insertion order.
func (s *Store) List(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sessions[sessionID]
	turns := make([]domain.ConversationTurn, 0, len(ids))
	for _, id := range ids {
		turns = append(turns, s.turns[id].Clone())
	}
	return turns, nil
}

// Subscribe returns a channel receiving a snapshot of every changed turn in
// the session, and a function that closes it. Slow subscribers miss updates
// rather than block writers.
func (s *Store) Subscribe(sessionID string, buffer int) (<-chan domain.ConversationTurn, func()) {
	ch := make(chan domain.ConversationTurn, max(buffer, 1))

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	if s.subscribers[sessionID] == nil {
		s.subscribers[sessionID] = make(map[uint64]chan domain.ConversationTurn)
	}
	s.subscribers[sessionID][id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers[sessionID], id)
			if len(s.subscribers[sessionID]) == 0 {
				delete(s.subscribers, sessionID)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publishLocked(ctx context.Context, turn domain.ConversationTurn) {
	for _, ch := range s.subscribers[turn.SessionID] {
		select {
		case ch <- turn.Clone():
		default:
			observability.FromContext(ctx).Warn("turn subscriber is full, dropping update",
				observability.String("turn_id", turn.ID))
		}
	}
}
