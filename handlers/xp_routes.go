package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"questbot-system/middleware"
	"questbot-system/models"
	"questbot-system/services"
	"questbot-system/utils"
)

// SetupXPRoutes wires the command surface: XP checks and the leaderboard for
// everyone, XP mutation and configuration for admins.
func SetupXPRoutes(app *fiber.App, log *zap.SugaredLogger,
	xpService *services.XPService,
	leaderboardService *services.LeaderboardService,
	settingsService *services.SettingsService,
	roleSyncService *services.RoleSyncService,
	platform services.Platform,
) {
	app.Get("/user/xp", func(c *fiber.Ctx) error {
		communityID := c.Query("community_id")
		userID := c.Query("user_id")
		if communityID == "" || userID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "community_id and user_id are required",
			})
		}

		if !xpService.IsEnrolled(c.Context(), userID, communityID) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "user hasn't opted into the QuestBot system yet",
			})
		}

		breakdown, err := xpService.Breakdown(c.Context(), userID, communityID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to compute XP",
				"cause": err.Error(),
			})
		}

		level := services.LevelOf(breakdown.TotalXP)
		response := fiber.Map{
			"user_id":      userID,
			"community_id": communityID,
			"total_xp":     breakdown.TotalXP,
			"base_xp":      breakdown.BaseXP,
			"badge_xp":     breakdown.BadgeXP,
			"streak_xp":    breakdown.StreakXP,
			"level":        level,
			"total_label":  utils.FormatXP(breakdown.TotalXP),
		}
		if level < services.MaxLevel {
			pct := services.LevelProgress(breakdown.TotalXP)
			response["xp_to_next_level"] = services.XPToNextLevel(breakdown.TotalXP)
			response["progress_percent"] = pct
			response["progress_bar"] = progressBar(pct)
		} else {
			response["status"] = "MAX LEVEL REACHED!"
		}
		return c.JSON(response)
	})

	app.Get("/user/enrolled", func(c *fiber.Ctx) error {
		communityID := c.Query("community_id")
		userID := c.Query("user_id")
		if communityID == "" || userID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "community_id and user_id are required",
			})
		}
		return c.JSON(fiber.Map{
			"user_id":  userID,
			"enrolled": xpService.IsEnrolled(c.Context(), userID, communityID),
		})
	})

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		communityID := c.Query("community_id")
		if communityID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "community_id is required",
			})
		}
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil || limit <= 0 || limit > 100 {
			limit = 10
		}

		entries, err := leaderboardService.TopN(c.Context(), communityID, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "could not retrieve leaderboard data",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"community_id": communityID,
			"entries":      entries,
			"levels":       services.LevelTable(),
		})
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.AdminContextMiddleware(log))

	type xpReq struct {
		CommunityID string `json:"community_id"`
		UserID      string `json:"user_id"`
		Amount      string `json:"amount"`
	}

	// parseXPRequest enforces the malformed-input rule: amounts must parse
	// as integers or the request is rejected with no state change.
	parseXPRequest := func(c *fiber.Ctx) (*xpReq, int64, error) {
		var req xpReq
		if err := c.BodyParser(&req); err != nil {
			return nil, 0, fmt.Errorf("invalid JSON: %w", err)
		}
		if req.CommunityID == "" || req.UserID == "" {
			return nil, 0, fmt.Errorf("community_id and user_id are required")
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(req.Amount), 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid XP amount %q — must be an integer", req.Amount)
		}
		return &req, amount, nil
	}

	requireEnrolled := func(c *fiber.Ctx, userID, communityID string) bool {
		if xpService.IsEnrolled(c.Context(), userID, communityID) {
			return true
		}
		_ = c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "user hasn't opted into the QuestBot system yet — only opted-in users can have XP modified",
		})
		return false
	}

	adminGroup.Post("/xp/add", func(c *fiber.Ctx) error {
		req, amount, err := parseXPRequest(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if !requireEnrolled(c, req.UserID, req.CommunityID) {
			return nil
		}
		totalXP, level, err := xpService.UpdateBaseXP(c.Context(), req.UserID, req.CommunityID, amount)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "error adding XP", "cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"message":  fmt.Sprintf("✅ Added %s to user", utils.FormatXP(amount)),
			"total_xp": totalXP,
			"level":    level,
		})
	})

	adminGroup.Post("/xp/remove", func(c *fiber.Ctx) error {
		req, amount, err := parseXPRequest(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if !requireEnrolled(c, req.UserID, req.CommunityID) {
			return nil
		}
		totalXP, level, err := xpService.UpdateBaseXP(c.Context(), req.UserID, req.CommunityID, -amount)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "error removing XP", "cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"message":  fmt.Sprintf("✅ Removed %s from user", utils.FormatXP(amount)),
			"total_xp": totalXP,
			"level":    level,
		})
	})

	adminGroup.Post("/xp/set", func(c *fiber.Ctx) error {
		req, amount, err := parseXPRequest(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if !requireEnrolled(c, req.UserID, req.CommunityID) {
			return nil
		}
		totalXP, level, err := xpService.SetBaseXP(c.Context(), req.UserID, req.CommunityID, amount)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "error setting XP", "cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"message":  fmt.Sprintf("✅ Set base XP to %s", utils.FormatXP(amount)),
			"total_xp": totalXP,
			"level":    level,
		})
	})

	adminGroup.Post("/roles/assign", func(c *fiber.Ctx) error {
		type assignReq struct {
			CommunityID string   `json:"community_id"`
			RoleIDs     []string `json:"role_ids"`
			Amount      string   `json:"amount"`
			Class       string   `json:"class"`
		}
		var req assignReq
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.CommunityID == "" || len(req.RoleIDs) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "community_id and role_ids are required"})
		}
		if req.Class != models.RoleClassBadge && req.Class != models.RoleClassStreak {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "class must be \"badge\" or \"streak\""})
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(req.Amount), 10, 64)
		if err != nil || amount < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("invalid XP amount %q — must be a non-negative integer", req.Amount)})
		}

		settings, err := settingsService.Get(req.CommunityID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load settings", "cause": err.Error()})
		}
		assignments, err := settingsService.Assignments(settings)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to decode role assignments", "cause": err.Error()})
		}

		assigned := 0
		skipped := make([]string, 0)
		for _, roleID := range req.RoleIDs {
			// Already-assigned roles keep their configuration.
			if _, exists := assignments[roleID]; exists {
				skipped = append(skipped, roleID)
				continue
			}
			assignments[roleID] = models.RoleAssignment{XP: amount, Class: req.Class}
			assigned++
		}
		if err := settingsService.SetAssignments(settings, assignments); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save assignments", "cause": err.Error()})
		}

		return c.JSON(fiber.Map{
			"message":  fmt.Sprintf("Assigned %s %s XP to %d new role(s)", utils.FormatNumber(amount), req.Class, assigned),
			"assigned": assigned,
			"skipped":  skipped,
		})
	})

	adminGroup.Get("/roles/classification", func(c *fiber.Ctx) error {
		communityID := c.Query("community_id")
		roleID := c.Query("role_id")
		roleName := c.Query("role_name")
		if communityID == "" || roleID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "community_id and role_id are required"})
		}

		settings, err := settingsService.Get(communityID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load settings", "cause": err.Error()})
		}
		assignments, err := settingsService.Assignments(settings)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to decode role assignments", "cause": err.Error()})
		}

		classification := services.ClassifyRole(assignments, services.Role{ID: roleID, Name: roleName})
		response := fiber.Map{"role_id": roleID, "kind": roleKindName(classification.Kind)}
		switch classification.Kind {
		case services.RoleLevelMarker:
			response["level"] = classification.Level
		case services.RoleBadge, services.RoleStreak:
			response["xp"] = classification.XP
		}
		return c.JSON(response)
	})

	adminGroup.Post("/optin", func(c *fiber.Ctx) error {
		type optinReq struct {
			CommunityID string `json:"community_id"`
			ChannelID   string `json:"channel_id"`
		}
		var req optinReq
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.CommunityID == "" || req.ChannelID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "community_id and channel_id are required"})
		}

		messageID, err := platform.PostMessage(c.Context(), req.CommunityID, req.ChannelID, optInMessageContent())
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "❌ couldn't post the opt-in message in that channel", "cause": err.Error(),
			})
		}

		settings, err := settingsService.Get(req.CommunityID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load settings", "cause": err.Error()})
		}
		settings.OptInMessageID = messageID
		settings.OptInChannelID = req.ChannelID
		if err := settingsService.Save(settings); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save settings", "cause": err.Error()})
		}

		return c.JSON(fiber.Map{
			"message":    "✅ Opt-In message created — users can now react to join the system",
			"message_id": messageID,
		})
	})

	adminGroup.Post("/quests", func(c *fiber.Ctx) error {
		type questReq struct {
			CommunityID string `json:"community_id"`
			ChannelID   string `json:"channel_id"`
			Title       string `json:"title"`
			Content     string `json:"content"`
		}
		var req questReq
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.CommunityID == "" || req.Title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "community_id and title are required"})
		}

		settings, err := settingsService.Get(req.CommunityID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load settings", "cause": err.Error()})
		}
		channelID := req.ChannelID
		if channelID == "" {
			channelID = settings.QuestChannelID
		}
		if channelID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no channel_id given and no quest channel configured"})
		}

		content := fmt.Sprintf("📜 **%s**\n%s\nReact with %s to complete this quest for +%s!",
			req.Title, req.Content, services.ApprovalEmoji, utils.FormatXP(50))
		if settings.LevelPingRoleID != "" {
			content = fmt.Sprintf("<@&%s> %s", settings.LevelPingRoleID, content)
		}

		messageID, err := platform.PostMessage(c.Context(), req.CommunityID, channelID, content)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "❌ couldn't post the quest message", "cause": err.Error(),
			})
		}

		quest := models.QuestRecord{
			MessageID:      messageID,
			CommunityID:    req.CommunityID,
			ChannelID:      channelID,
			Title:          req.Title,
			Content:        req.Content,
			CompletedUsers: "[]",
		}
		if err := xpService.DB.Create(&quest).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store quest", "cause": err.Error()})
		}

		return c.JSON(fiber.Map{"message": "✅ Quest posted", "message_id": messageID})
	})

	adminGroup.Post("/settings", func(c *fiber.Ctx) error {
		type settingsReq struct {
			CommunityID     string  `json:"community_id"`
			QuestChannelID  *string `json:"quest_channel_id"`
			LevelPingRoleID *string `json:"level_ping_role_id"`
		}
		var req settingsReq
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.CommunityID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "community_id is required"})
		}

		settings, err := settingsService.Get(req.CommunityID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load settings", "cause": err.Error()})
		}
		if req.QuestChannelID != nil {
			settings.QuestChannelID = *req.QuestChannelID
		}
		if req.LevelPingRoleID != nil {
			settings.LevelPingRoleID = *req.LevelPingRoleID
		}
		if err := settingsService.Save(settings); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save settings", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "✅ Settings updated"})
	})

	adminGroup.Post("/roles/ensure-markers", func(c *fiber.Ctx) error {
		type ensureReq struct {
			CommunityID string `json:"community_id"`
		}
		var req ensureReq
		if err := c.BodyParser(&req); err != nil || req.CommunityID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "community_id is required"})
		}
		if err := roleSyncService.EnsureMarkerRoles(c.Context(), req.CommunityID); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "failed to create level roles", "cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"message": "✅ Level roles present"})
	})
}

func roleKindName(kind services.RoleKind) string {
	switch kind {
	case services.RoleLevelMarker:
		return "level_marker"
	case services.RoleBadge:
		return "badge"
	case services.RoleStreak:
		return "streak"
	default:
		return "unclassified"
	}
}

func progressBar(pct float64) string {
	const cells = 20
	filled := int(float64(cells) * pct / 100)
	if filled < 0 {
		filled = 0
	}
	if filled > cells {
		filled = cells
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", cells-filled)
}

func optInMessageContent() string {
	return "🤖 **QuestBot Opt-In**\n" +
		"React with " + services.ApprovalEmoji + " to join the QuestBot system and start earning XP!\n\n" +
		"**What you get by joining:**\n" +
		"• Earn XP by completing quests (50 XP each)\n" +
		"• Gain XP from badge and streak roles\n" +
		"• Appear on the server leaderboard\n" +
		"• Automatic level progression and role assignment\n\n" +
		"**Note:** Only opted-in users will earn XP and appear on leaderboards.\n" +
		"📊 Level System: Level 1: 0 XP → Level 10: 11,700 XP"
}
