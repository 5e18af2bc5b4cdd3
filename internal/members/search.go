package members

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidbz/council-relay/internal/domain"
)

// Query narrows the member list for the forward picker.
type Query struct {
	Panel string
	Text  string
}

// Search returns the members on q.Panel (all panels when empty) whose name,
// handle or specialty contains q.Text, case-insensitively.
func Search(ctx context.Context, registry domain.MemberRegistry, q Query) ([]domain.CouncilMember, error) {
	all, err := registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	panel := strings.TrimSpace(q.Panel)
	text := strings.ToLower(strings.TrimSpace(q.Text))

	matched := make([]domain.CouncilMember, 0, len(all))
	for _, member := range all {
		if panel != "" && member.Panel != panel {
			continue
		}
		if text != "" && !matches(member, text) {
			continue
		}
		matched = append(matched, member)
	}

	return matched, nil
}

func matches(member domain.CouncilMember, text string) bool {
	for _, field := range []string{member.Name, member.Handle, member.Specialty} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

// DefaultRoster is registered when COUNCIL_MEMBERS is unset.
func DefaultRoster() []domain.CouncilMember {
	return []domain.CouncilMember{
		{ID: "personal-avery", Name: "Avery Cole", Handle: "@avery", Specialty: "Personal insights", Panel: "personal"},
		{ID: "personal-jo", Name: "Jordan Ruiz", Handle: "@jo", Specialty: "Executive updates", Panel: "personal"},
		{ID: "business-sloane", Name: "Sloane Wells", Handle: "@sloane", Specialty: "Revenue ops", Panel: "business"},
		{ID: "business-mira", Name: "Mira Patel", Handle: "@mira", Specialty: "Lifecycle marketing", Panel: "business"},
		{ID: "agency-rory", Name: "Rory Blake", Handle: "@rory", Specialty: "Agency orchestration", Panel: "agency"},
		{ID: "agency-fern", Name: "Fern Ibarra", Handle: "@fern", Specialty: "Client success", Panel: "agency"},
		{ID: "developer-ada", Name: "Ada Stone", Handle: "@ada", Specialty: "Integrations", Panel: "developer"},
		{ID: "developer-lio", Name: "Lio Harper", Handle: "@lio", Specialty: "Platform reliability", Panel: "developer"},
	}
}
