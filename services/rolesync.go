package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// RoleSyncService keeps a member's level-marker role consistent with the
// computed level. Failures never roll the stored level back; a later trigger
// re-runs reconciliation and repairs the marker from TotalXP.
type RoleSyncService struct {
	Log      *zap.SugaredLogger
	Platform Platform
}

func NewRoleSyncService(log *zap.SugaredLogger, platform Platform) *RoleSyncService {
	return &RoleSyncService{Log: log, Platform: platform}
}

// EnsureMarkerRoles creates any missing "Level 1".."Level 10" roles in the
// community, colored along the blue-to-gold gradient.
func (s *RoleSyncService) EnsureMarkerRoles(ctx context.Context, communityID string) error {
	roles, err := s.Platform.Roles(ctx, communityID)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(roles))
	for _, role := range roles {
		existing[role.Name] = true
	}

	for level := MinLevel; level <= MaxLevel; level++ {
		name := MarkerRoleName(level)
		if existing[name] {
			continue
		}
		if _, err := s.Platform.CreateRole(ctx, communityID, name, MarkerColor(level)); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				s.Log.Warnf("❌ Missing permission to create role %q in community %s", name, communityID)
				return err
			}
			return err
		}
		s.Log.Infof("Created role: %s", name)
	}
	return nil
}

// Reconcile makes the member hold exactly one marker role, the one for
// newLevel. Every other held marker is removed, not just oldLevel's, so any
// prior divergence self-heals here. The newLevel marker is created
// community-wide on demand and the add retried once after creation.
// Permission failures are logged and swallowed: state stays divergent until
// the next triggering event.
func (s *RoleSyncService) Reconcile(ctx context.Context, userID, communityID string, oldLevel, newLevel int) {
	member, err := s.Platform.Member(ctx, communityID, userID)
	if err != nil {
		s.Log.Warnf("Cannot reconcile roles for user %s in community %s: %v", userID, communityID, err)
		return
	}

	wantName := MarkerRoleName(newLevel)
	var removed []string
	hasWanted := false
	for _, role := range member.Roles {
		if !IsMarkerRole(role.Name) {
			continue
		}
		if role.Name == wantName {
			hasWanted = true
			continue
		}
		if err := s.Platform.RemoveRole(ctx, communityID, userID, role.ID); err != nil {
			s.warnRoleEdit("remove", role.Name, userID, err)
			continue
		}
		removed = append(removed, role.Name)
	}

	if hasWanted {
		s.Log.Infof("ℹ️ %s: already has %s, removed %v", member.DisplayName, wantName, removed)
		return
	}

	wanted, err := s.findRoleByName(ctx, communityID, wantName)
	if err != nil {
		s.Log.Warnf("Cannot list roles for community %s: %v", communityID, err)
		return
	}
	if wanted == nil {
		s.Log.Infof("Creating missing level roles for community %s...", communityID)
		if err := s.EnsureMarkerRoles(ctx, communityID); err != nil {
			return
		}
		if wanted, err = s.findRoleByName(ctx, communityID, wantName); err != nil || wanted == nil {
			s.Log.Warnf("❌ Failed to create %s in community %s", wantName, communityID)
			return
		}
	}

	if err := s.Platform.AddRole(ctx, communityID, userID, wanted.ID); err != nil {
		s.warnRoleEdit("add", wantName, userID, err)
		return
	}
	s.Log.Infof("✅ %s: removed %v → added %s (level %d → %d)", member.DisplayName, removed, wantName, oldLevel, newLevel)
}

func (s *RoleSyncService) findRoleByName(ctx context.Context, communityID, name string) (*Role, error) {
	roles, err := s.Platform.Roles(ctx, communityID)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].Name == name {
			return &roles[i], nil
		}
	}
	return nil, nil
}

func (s *RoleSyncService) warnRoleEdit(op, roleName, userID string, err error) {
	if errors.Is(err, ErrPermissionDenied) {
		s.Log.Warnf("❌ Missing permission to %s role %q for user %s — make sure the bot role outranks the Level roles", op, roleName, userID)
		return
	}
	s.Log.Warnf("Failed to %s role %q for user %s: %v", op, roleName, userID, err)
}
