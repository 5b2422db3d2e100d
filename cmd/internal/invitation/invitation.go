// Package invitation implements family invitation acceptance.
//
// Acceptance is a callable operation: the caller redeems a pending, unexpired
// invitation addressed to their verified email and joins the family. All
// record changes commit in one transaction or not at all.
package invitation

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an invitation. It only moves
// StatusPending -> StatusAccepted, once.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

// Role values for family membership. Invitation acceptance always yields RoleMember.
const (
	RoleMember = "member"
)

// MemberStatusActive is the membership status written on acceptance.
const MemberStatusActive = "active"

// Invitation mirrors a family_invitations row. ID doubles as the invite code.
type Invitation struct {
	ID           string
	InviteeEmail string
	InviterName  string
	FamilyID     string
	FamilyName   string
	Status       Status
	CreatedAt    time.Time
	ExpiresAt    time.Time
	RespondedAt  *time.Time
}

// Member is one entry of a family's membership map, keyed by user ID.
type Member struct {
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	ProfileImage *string   `json:"profileImage"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Family is the slice of a families row this package reads back in tests and tools.
type Family struct {
	ID          string
	Name        string
	MemberCount int
}

// User is the slice of a users row that acceptance touches.
type User struct {
	ID              string
	FamilyIDs       []string
	CurrentFamilyID *string
}

// normalizeEmail performs case-insensitive canonicalization.
func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
