// Package members keeps the council members messages can be forwarded to.
package members

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/davidbz/council-relay/internal/domain"
)

// ErrMemberNotFound is returned for unknown member IDs or handles.
var ErrMemberNotFound = errors.New("council member not found")

// Registry implements domain.MemberRegistry.
type Registry struct {
	mu       sync.RWMutex
	members  map[string]domain.CouncilMember
	byHandle map[string]string
}

// NewRegistry creates an empty member registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:       sync.RWMutex{},
		members:  make(map[string]domain.CouncilMember),
		byHandle: make(map[string]string),
	}
}

// Register adds a member. IDs and handles must be unique.
func (r *Registry) Register(_ context.Context, member domain.CouncilMember) error {
	member.ID = strings.TrimSpace(member.ID)
	if member.ID == "" {
		return errors.New("member ID cannot be empty")
	}
	if strings.TrimSpace(member.Name) == "" {
		return errors.New("member name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[member.ID]; exists {
		return fmt.Errorf("member %s already registered", member.ID)
	}

	handle := normalizeHandle(member.Handle)
	if handle != "" {
		if owner, taken := r.byHandle[handle]; taken {
			return fmt.Errorf("handle %s already used by %s", member.Handle, owner)
		}
		r.byHandle[handle] = member.ID
	}

	r.members[member.ID] = member
	return nil
}

// Get retrieves a member by ID.
func (r *Registry) Get(_ context.Context, memberID string) (domain.CouncilMember, error) {
	if memberID == "" {
		return domain.CouncilMember{}, errors.New("member ID cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	member, exists := r.members[memberID]
	if !exists {
		return domain.CouncilMember{}, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	return member, nil
}

// GetByHandle retrieves a member by handle, with or without the leading "@".
func (r *Registry) GetByHandle(ctx context.Context, handle string) (domain.CouncilMember, error) {
	r.mu.RLock()
	memberID, exists := r.byHandle[normalizeHandle(handle)]
	r.mu.RUnlock()

	if !exists {
		return domain.CouncilMember{}, fmt.Errorf("%w: %s", ErrMemberNotFound, handle)
	}
	return r.Get(ctx, memberID)
}

// List returns all members sorted by name.
func (r *Registry) List(_ context.Context) ([]domain.CouncilMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CouncilMember, 0, len(r.members))
	for _, member := range r.members {
		out = append(out, member)
	}
	slices.SortFunc(out, func(a, b domain.CouncilMember) int {
		return strings.Compare(a.Name, b.Name)
	})

	return out, nil
}

// Resolve looks up members by ID or handle, keeping the caller's order.
func Resolve(ctx context.Context, registry domain.MemberRegistry, refs []string) ([]domain.CouncilMember, error) {
	resolved := make([]domain.CouncilMember, 0, len(refs))
	for _, ref := range refs {
		member, err := registry.Get(ctx, ref)
		if errors.Is(err, ErrMemberNotFound) {
			if byHandle, ok := registry.(interface {
				GetByHandle(ctx context.Context, handle string) (domain.CouncilMember, error)
			}); ok {
				member, err = byHandle.GetByHandle(ctx, ref)
			}
		}
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, member)
	}
	return resolved, nil
}

// ParseMember reads the "id|name|handle|panel|specialty" form used in COUNCIL_MEMBERS.
// Trailing fields are optional.
func ParseMember(spec string) (domain.CouncilMember, error) {
	const maxFields = 5
	fields := strings.SplitN(spec, "|", maxFields)
	for len(fields) < maxFields {
		fields = append(fields, "")
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if fields[0] == "" || fields[1] == "" {
		return domain.CouncilMember{}, fmt.Errorf("invalid member %q: id and name are required", spec)
	}

	return domain.CouncilMember{
		ID:        fields[0],
		Name:      fields[1],
		Handle:    fields[2],
		Panel:     fields[3],
		Specialty: fields[4],
	}, nil
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
