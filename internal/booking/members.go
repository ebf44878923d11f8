package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codr1/courtbook/internal/models"
)

// MemberDirectory looks up club members by normalized name.
type MemberDirectory interface {
	FindMemberByName(ctx context.Context, key models.NameKey) (models.Member, error)
}

// ResolveParticipants returns the complete participants with their membership kind filled in
// from the directory. A name with no member record resolves to non-member. Placeholder
// slots are dropped. Caller-supplied kinds are ignored.
func ResolveParticipants(ctx context.Context, directory MemberDirectory, participants []models.Participant) ([]models.Participant, error) {
	complete := models.CompleteParticipants(participants)
	resolved := make([]models.Participant, 0, len(complete))
	for _, p := range complete {
		kind, err := resolveKind(ctx, directory, p)
		if err != nil {
			return nil, err
		}
		p.Kind = kind
		resolved = append(resolved, p)
	}
	return resolved, nil
}

func resolveKind(ctx context.Context, directory MemberDirectory, p models.Participant) (models.MembershipKind, error) {
	member, err := directory.FindMemberByName(ctx, p.NameKey())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.KindNonMember, nil
		}
		return "", fmt.Errorf("lookup member %s: %w", p.FullName(), err)
	}
	if member.Kind == "" {
		return models.KindNonMember, nil
	}
	return member.Kind, nil
}
