// internal/models/member.go
package models

import (
	"fmt"
	"strings"
)

type MembershipKind string

const (
	KindMember        MembershipKind = "member"
	KindWalkingMember MembershipKind = "walking_member"
	KindNonMember     MembershipKind = "non_member"
)

// ParseMembershipKind accepts stored values as well as the labels shown to staff.
func ParseMembershipKind(value string) (MembershipKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "member", "socio", "socio deportivo":
		return KindMember, nil
	case "walking_member", "walking member", "socio paseante":
		return KindWalkingMember, nil
	case "non_member", "non-member", "no socio":
		return KindNonMember, nil
	}
	return "", fmt.Errorf("unknown membership kind %q", value)
}

// Label returns the human-readable form of the kind.
func (k MembershipKind) Label() string {
	switch k {
	case KindMember:
		return "member"
	case KindWalkingMember:
		return "walking member"
	default:
		return "non-member"
	}
}

// IsMember reports whether the kind satisfies the at-least-one-member rule.
func (k MembershipKind) IsMember() bool {
	return k == KindMember || k == KindWalkingMember
}

type Member struct {
	ID        int64          `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Kind      MembershipKind `json:"kind"`
}

func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

func (m Member) NameKey() NameKey {
	return NewNameKey(m.FirstName, m.LastName)
}

// NameKey is the normalized (first, last) pair used to match players across reservations
// and against member records.
type NameKey string

const nameKeySeparator = "\x1f"

// NewNameKey lower-cases both names and collapses inner whitespace.
func NewNameKey(first, last string) NameKey {
	return NameKey(normalizeName(first) + nameKeySeparator + normalizeName(last))
}

func normalizeName(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
