package domain

import (
	"context"
	"errors"
	"time"
)

// ErrTurnNotFound is returned when a turn ID is unknown to the store.
var ErrTurnNotFound = errors.New("turn not found")

// TurnStore holds conversation turns. Persistence format is up to the implementation.
type TurnStore interface {
	// Append adds turns to the end of a session.
	Append(ctx context.Context, sessionID string, turns ...ConversationTurn) error

	// Update applies fn to the stored turn and returns the updated copy.
	Update(ctx context.Context, turnID string, fn func(*ConversationTurn)) (ConversationTurn, error)

	// Get returns a copy of a turn.
	Get(ctx context.Context, turnID string) (ConversationTurn, error)

	// List returns the turns of a session in insertion order.
	List(ctx context.Context, sessionID string) ([]ConversationTurn, error)
}

// ContextStore is the long-term context storage used for retrieval and write-back.
type ContextStore interface {
	// Store records an exchange chunk for later retrieval.
	Store(ctx context.Context, panel, sessionID, chunk string) error

	// Search returns up to limit matches for query.
	Search(ctx context.Context, panel, sessionID, query string, limit int) ([]RagMatch, error)
}

// MemberRegistry resolves forward targets.
type MemberRegistry interface {
	// Register adds a member.
	Register(ctx context.Context, member CouncilMember) error

	// Get retrieves a member by ID.
	Get(ctx context.Context, memberID string) (CouncilMember, error)

	// List returns all members.
	List(ctx context.Context) ([]CouncilMember, error)
}

// EmbeddingGenerator creates vector embeddings from text.
type EmbeddingGenerator interface {
	// Generate creates a vector embedding from text.
	Generate(ctx context.Context, text string) ([]float64, error)

	// Name returns the generator identifier.
	Name() string

	// Dimension returns the vector dimension.
	Dimension() int
}

// SimilaritySearch performs vector similarity search scoped to a partition.
type SimilaritySearch interface {
	// Search finds vectors in scope with similarity above the threshold.
	Search(ctx context.Context, scope string, embedding []float64, threshold float64, limit int) ([]*SearchResult, error)

	// Index stores a vector with associated data under scope.
	Index(ctx context.Context, key, scope string, embedding []float64, data []byte, ttl time.Duration) error
}
