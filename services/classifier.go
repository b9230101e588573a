package services

import (
	"fmt"
	"strconv"
	"strings"

	"questbot-system/models"
)

// RoleKind tags the classification of a community role.
type RoleKind int

const (
	RoleUnclassified RoleKind = iota
	RoleLevelMarker           // "Level N" display role; never contributes XP
	RoleBadge                 // fixed XP while held
	RoleStreak                // XP accumulates in the ledger on each gain
)

const (
	markerRolePrefix = "Level "

	// Legacy fallback: a held role with no explicit assignment whose name
	// contains "badge" is worth a flat 5 XP.
	badgeNameToken    = "badge"
	fallbackBadgeXP   = 5
	questCompletionXP = 50
)

// RoleClassification is the tagged result of classifying one role.
// Level is set only for RoleLevelMarker; XP only for RoleBadge/RoleStreak.
type RoleClassification struct {
	Kind  RoleKind
	Level int
	XP    int64
}

// MarkerRoleName builds the display name for a level marker role.
func MarkerRoleName(level int) string {
	return fmt.Sprintf("%s%d", markerRolePrefix, level)
}

// ParseMarkerLevel extracts the level from a marker role name. Returns
// (0, false) for anything that is not exactly "Level <1..10>".
func ParseMarkerLevel(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, markerRolePrefix)
	if !ok {
		return 0, false
	}
	level, err := strconv.Atoi(rest)
	if err != nil || level < MinLevel || level > MaxLevel {
		return 0, false
	}
	return level, true
}

// IsMarkerRole matches the marker naming pattern. Deliberately looser than
// ParseMarkerLevel: any "Level "-prefixed role is treated as a marker so
// stale or hand-made variants still get purged during reconciliation and
// never contribute XP.
func IsMarkerRole(name string) bool {
	return strings.HasPrefix(name, markerRolePrefix)
}

// ClassifyRole resolves a role against the community's assignment map.
// Marker pattern wins over any assignment (a marker must never feed back
// into the XP it displays), explicit assignments come next, and the "badge"
// name token is the last-resort legacy rule.
func ClassifyRole(assignments map[string]models.RoleAssignment, role Role) RoleClassification {
	if IsMarkerRole(role.Name) {
		level, _ := ParseMarkerLevel(role.Name)
		return RoleClassification{Kind: RoleLevelMarker, Level: level}
	}

	if a, ok := assignments[role.ID]; ok {
		kind := RoleBadge
		if a.Class == models.RoleClassStreak {
			kind = RoleStreak
		}
		return RoleClassification{Kind: kind, XP: a.XP}
	}

	if strings.Contains(strings.ToLower(role.Name), badgeNameToken) {
		return RoleClassification{Kind: RoleBadge, XP: fallbackBadgeXP}
	}

	return RoleClassification{Kind: RoleUnclassified}
}
