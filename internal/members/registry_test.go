package members_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/members"
)

func ada() domain.CouncilMember {
	return domain.CouncilMember{ID: "m-ada", Name: "Ada", Handle: "@ada", Panel: "work"}
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should register member successfully", func(t *testing.T) {
		reg := members.NewRegistry()
		ctx := context.Background()

		require.NoError(t, reg.Register(ctx, ada()))

		member, err := reg.Get(ctx, "m-ada")
		require.NoError(t, err)
		require.Equal(t, "Ada", member.Name)
	})

	t.Run("should return error when ID is empty", func(t *testing.T) {
		reg := members.NewRegistry()

		err := reg.Register(context.Background(), domain.CouncilMember{Name: "Nobody"})

		require.Error(t, err)
		require.Contains(t, err.Error(), "member ID cannot be empty")
	})

	t.Run("should return error for duplicate IDs and handles", func(t *testing.T) {
		reg := members.NewRegistry()
		ctx := context.Background()
		require.NoError(t, reg.Register(ctx, ada()))

		err := reg.Register(ctx, ada())
		require.Contains(t, err.Error(), "already registered")

		err = reg.Register(ctx, domain.CouncilMember{ID: "m-2", Name: "Ada Two", Handle: "ADA"})
		require.Contains(t, err.Error(), "already used")
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Run("should return ErrMemberNotFound for unknown IDs", func(t *testing.T) {
		reg := members.NewRegistry()

		_, err := reg.Get(context.Background(), "missing")

		require.ErrorIs(t, err, members.ErrMemberNotFound)
	})

	t.Run("should find members by handle", func(t *testing.T) {
		reg := members.NewRegistry()
		ctx := context.Background()
		require.NoError(t, reg.Register(ctx, ada()))

		member, err := reg.GetByHandle(ctx, "ada")

		require.NoError(t, err)
		require.Equal(t, "m-ada", member.ID)
	})
}

func TestRegistry_List(t *testing.T) {
	reg := members.NewRegistry()
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, domain.CouncilMember{ID: "2", Name: "Zed"}))
	require.NoError(t, reg.Register(ctx, domain.CouncilMember{ID: "1", Name: "Ada"}))

	list, err := reg.List(ctx)

	require.NoError(t, err)
	require.Equal(t, []string{"Ada", "Zed"}, []string{list[0].Name, list[1].Name})
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Run("should handle concurrent registrations safely", func(t *testing.T) {
		reg := members.NewRegistry()
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_ = reg.Register(ctx, domain.CouncilMember{ID: fmt.Sprintf("m-%d", idx), Name: "Member"})
			}(i)
		}
		wg.Wait()

		list, err := reg.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 10)
	})
}

func TestResolve(t *testing.T) {
	reg := members.NewRegistry()
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, ada()))
	require.NoError(t, reg.Register(ctx, domain.CouncilMember{ID: "m-bo", Name: "Bo", Handle: "bo"}))

	t.Run("should keep caller order and accept handles", func(t *testing.T) {
		resolved, err := members.Resolve(ctx, reg, []string{"@bo", "m-ada"})

		require.NoError(t, err)
		require.Equal(t, "Bo", resolved[0].Name)
		require.Equal(t, "Ada", resolved[1].Name)
	})

	t.Run("should fail on the first unknown reference", func(t *testing.T) {
		_, err := members.Resolve(ctx, reg, []string{"m-ada", "ghost"})

		require.ErrorIs(t, err, members.ErrMemberNotFound)
	})
}

func TestParseMember(t *testing.T) {
	t.Run("should parse every field", func(t *testing.T) {
		member, err := members.ParseMember(" m-ada | Ada | @ada | work | strategy ")

		require.NoError(t, err)
		require.Equal(t, domain.CouncilMember{
			ID: "m-ada", Name: "Ada", Handle: "@ada", Panel: "work", Specialty: "strategy",
		}, member)
	})

	t.Run("should require id and name", func(t *testing.T) {
		_, err := members.ParseMember("only-id")

		require.Error(t, err)
	})
}
