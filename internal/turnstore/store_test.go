package turnstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/turnstore"
)

func turn(id string) domain.ConversationTurn {
	return domain.ConversationTurn{
		ID:        id,
		Role:      domain.RoleAssistant,
		CreatedAt: time.Now(),
		Delivery:  domain.DeliveryPending,
	}
}

func TestStore_AppendAndList(t *testing.T) {
	t.Run("should keep insertion order per session", func(t *testing.T) {
		store := turnstore.NewStore()
		ctx := context.Background()

		require.NoError(t, store.Append(ctx, "s1", turn("a"), turn("b")))
		require.NoError(t, store.Append(ctx, "s2", turn("c")))
		require.NoError(t, store.Append(ctx, "s1", turn("d")))

		turns, err := store.List(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, turns, 3)
		require.Equal(t, "a", turns[0].ID)
		require.Equal(t, "d", turns[2].ID)
		require.Equal(t, "s1", turns[2].SessionID)
	})

	t.Run("should reject duplicate IDs", func(t *testing.T) {
		store := turnstore.NewStore()
		ctx := context.Background()

		require.NoError(t, store.Append(ctx, "s1", turn("a")))
		err := store.Append(ctx, "s1", turn("a"))

		require.Error(t, err)
		require.Contains(t, err.Error(), "already exists")
	})

	t.Run("should reject an empty session", func(t *testing.T) {
		store := turnstore.NewStore()

		err := store.Append(context.Background(), "", turn("a"))

		require.Error(t, err)
	})
}

func TestStore_Update(t *testing.T) {
	t.Run("should apply the patch and return a copy", func(t *testing.T) {
		store := turnstore.NewStore()
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, "s1", turn("a")))

		updated, err := store.Update(ctx, "a", func(turn *domain.ConversationTurn) {
			turn.Content = "hello"
			turn.Metadata.ForwardedTo = []string{"Ada"}
		})
		require.NoError(t, err)
		updated.Metadata.ForwardedTo[0] = "mutated"

		stored, err := store.Get(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, "hello", stored.Content)
		require.Equal(t, []string{"Ada"}, stored.Metadata.ForwardedTo)
	})

	t.Run("should return ErrTurnNotFound for unknown turns", func(t *testing.T) {
		store := turnstore.NewStore()

		_, err := store.Update(context.Background(), "missing", func(*domain.ConversationTurn) {})

		require.ErrorIs(t, err, domain.ErrTurnNotFound)
	})
}

func TestStore_Subscribe(t *testing.T) {
	store := turnstore.NewStore()
	ctx := context.Background()

	updates, unsubscribe := store.Subscribe("s1", 8)

	require.NoError(t, store.Append(ctx, "s1", turn("a")))
	require.NoError(t, store.Append(ctx, "s2", turn("b")))
	_, err := store.Update(ctx, "a", func(turn *domain.ConversationTurn) { turn.Content = "x" })
	require.NoError(t, err)

	first := <-updates
	second := <-updates
	require.Equal(t, "a", first.ID)
	require.Equal(t, "x", second.Content)

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	require.False(t, open)
}
