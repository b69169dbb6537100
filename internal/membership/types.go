package membership

import (
	"errors"
	"time"

	"tasknest.org/internal/access"
)

var (
	ErrNotFound     = errors.New("membership: not found")
	ErrConflict     = errors.New("membership: already exists")
	ErrForbidden    = errors.New("membership: forbidden")
	ErrInvalidInput = errors.New("membership: invalid input")

	// ErrCascade marks a cascade that stopped partway. The writes already
	// applied are durable; re-running the operation completes the rest.
	ErrCascade = errors.New("membership: cascade incomplete")
)

// Workspace is the top-level collaboration scope.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	MemberCount int       `json:"memberCount"`
	IsArchived  bool      `json:"isArchived"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Project belongs to exactly one workspace.
type Project struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	MemberCount int       `json:"memberCount"`
	IsArchived  bool      `json:"isArchived"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WorkspaceMembership joins a principal to a workspace. Removal flips
// IsActive rather than deleting the row so history and reactivation work.
type WorkspaceMembership struct {
	WorkspaceID string               `json:"workspaceId"`
	PrincipalID string               `json:"userId"`
	Role        access.Role          `json:"role"`
	Permissions access.PermissionSet `json:"permissions"`
	IsActive    bool                 `json:"isActive"`
	JoinedAt    time.Time            `json:"joinedAt"`
	InvitedBy   string               `json:"invitedBy"`
}

// ProjectMembership joins a principal to a project.
type ProjectMembership struct {
	ProjectID   string               `json:"projectId"`
	PrincipalID string               `json:"userId"`
	Role        access.Role          `json:"role"`
	Permissions access.PermissionSet `json:"permissions"`
	IsActive    bool                 `json:"isActive"`
	JoinedAt    time.Time            `json:"joinedAt"`
	AddedBy     string               `json:"addedBy"`
}

// Presence describes a principal's standing in a scope.
type Presence int

const (
	PresenceNone     Presence = iota // no membership row at all
	PresenceInactive                 // row exists, IsActive=false
	PresenceActive
)
