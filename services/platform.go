package services

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by Platform implementations. Callers downgrade
// both to warnings: ErrNotFound degrades TotalXP to stored base XP, and
// ErrPermissionDenied leaves role state divergent until a later trigger
// re-runs reconciliation.
var (
	ErrNotFound         = errors.New("community or member not found")
	ErrPermissionDenied = errors.New("platform rejected role edit: missing permission")
)

// Role is a community role as the platform reports it. ID is the stable
// snowflake identity; Name is the display name the classifier matches on.
type Role struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color int    `json:"color"`
}

// Member is a community member with their current role set.
type Member struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Roles       []Role `json:"roles"`
}

// Platform is the community-platform collaborator. The core only reads role
// state and edits level-marker roles through it; event delivery comes in
// separately over the webhook routes.
type Platform interface {
	// Member resolves a member and their live role set. Returns ErrNotFound
	// when the community or member cannot be resolved.
	Member(ctx context.Context, communityID, userID string) (*Member, error)

	// Roles lists all roles defined in the community.
	Roles(ctx context.Context, communityID string) ([]Role, error)

	// CommunityName resolves the community's display name.
	CommunityName(ctx context.Context, communityID string) (string, error)

	// CreateRole creates a community role. May fail with ErrPermissionDenied.
	CreateRole(ctx context.Context, communityID, name string, color int) (*Role, error)

	// AddRole / RemoveRole edit a member's role set. May fail with
	// ErrPermissionDenied.
	AddRole(ctx context.Context, communityID, userID, roleID string) error
	RemoveRole(ctx context.Context, communityID, userID, roleID string) error

	// PostMessage sends content to a channel and returns the new message id.
	PostMessage(ctx context.Context, communityID, channelID, content string) (string, error)

	// Announce sends content to whatever channel the platform deems visible
	// (the original posted to the first writable text channel).
	Announce(ctx context.Context, communityID, content string) error
}
